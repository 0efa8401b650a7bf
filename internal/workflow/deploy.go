package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/opsagent/internal/nlp"
	"github.com/fyrsmithlabs/opsagent/internal/tools/helm"
	"github.com/fyrsmithlabs/opsagent/internal/tools/kube"
)

// Deploy targets.
const (
	TargetDocker    = "docker"
	TargetK8s       = "k8s"
	TargetHelm      = "helm"
	TargetTerraform = "terraform"
	TargetCloud     = "cloud"
)

// Memory keys written by deploy beyond the entity fields.
const (
	memPreviousImage = "previous_image"
)

type deployHandler struct {
	deps Deps
}

// NewDeploy builds the deploy handler. Backends are checked per target at
// run time.
func NewDeploy(deps Deps) (Handler, error) {
	deps = deps.withDefaults()
	return &deployHandler{deps: deps}, nil
}

func target(req Request, s Settings) string {
	if t := req.entity(nlp.FieldTarget); t != "" {
		return t
	}
	if s.DefaultTarget != "" {
		return s.DefaultTarget
	}
	return TargetK8s
}

func (h *deployHandler) Execute(ctx context.Context, req Request) (string, error) {
	switch t := target(req, h.deps.Settings); t {
	case TargetDocker:
		return h.docker(ctx, req)
	case TargetK8s:
		return h.kubernetes(ctx, req)
	case TargetHelm:
		return h.helm(ctx, req)
	case TargetTerraform:
		return h.terraform(ctx, req)
	case TargetCloud:
		return h.cloud(ctx, req)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedTarget, t)
	}
}

func (h *deployHandler) docker(ctx context.Context, req Request) (string, error) {
	if h.deps.Docker == nil {
		return "", unavailable("docker")
	}
	app := req.app()
	if app == "" {
		return "", missing("app")
	}
	image := req.entity(nlp.FieldImage)
	if image == "" {
		image = app
	}
	n, ok, err := req.replicas()
	if err != nil {
		return "", err
	}
	replicas := 1
	if ok {
		replicas = int(n)
	}

	extra := map[string]any{string(nlp.FieldTarget): TargetDocker, string(nlp.FieldImage): image}
	if current, err := h.deps.Docker.List(ctx, app); err == nil && len(current) > 0 && current[0].Image != image {
		extra[memPreviousImage] = current[0].Image
	}

	infos, err := h.deps.Docker.Run(ctx, app, image, replicas)
	if err != nil {
		return "", opError("deploy", "docker run", SeverityCritical, err)
	}
	out := fmt.Sprintf("Deployed %s with docker: %d container(s) running %s", app, len(infos), image)
	req.Finish(nlp.WorkflowDeploy, "docker-run", out, extra)
	return out, nil
}

func (h *deployHandler) kubernetes(ctx context.Context, req Request) (string, error) {
	if h.deps.Kube == nil {
		return "", unavailable("kubernetes")
	}
	app := req.app()
	if app == "" {
		return "", missing("app")
	}
	ns := req.namespace()
	spec := kube.DeploymentSpec{
		Name:      app,
		Namespace: ns,
		Image:     req.entity(nlp.FieldImage),
	}
	n, ok, err := req.replicas()
	if err != nil {
		return "", err
	}
	if ok {
		spec.Replicas = &n
	}

	change, err := h.deps.Kube.ApplyDeployment(ctx, spec)
	if err != nil {
		return "", opError("deploy", "k8s apply", SeverityCritical, err)
	}
	verb := "Updated"
	if change.Created {
		verb = "Created"
	}
	image := change.Image
	if image == "" {
		image = app
	}
	out := fmt.Sprintf("%s deployment %s/%s (image %s, %d replicas)", verb, ns, app, image, change.Replicas)
	req.Finish(nlp.WorkflowDeploy, "k8s-apply", out, map[string]any{string(nlp.FieldTarget): TargetK8s})
	return out, nil
}

func (h *deployHandler) helm(ctx context.Context, req Request) (string, error) {
	if h.deps.Helm == nil {
		return "", unavailable("helm")
	}
	app := req.app()
	if app == "" {
		return "", missing("app")
	}
	n, ok, err := req.replicas()
	if err != nil {
		return "", err
	}
	values := map[string]any{}
	if ok {
		values["replicaCount"] = int(n)
	}
	if img := req.entity(nlp.FieldImage); img != "" {
		repo, tag, _ := strings.Cut(img, ":")
		values["image"] = map[string]any{"repository": repo, "tag": tag}
	}

	rel, err := h.deps.Helm.InstallOrUpgrade(ctx, helm.ReleaseSpec{
		Name:      app,
		Namespace: req.namespace(),
		ChartPath: helm.ChartPath(h.deps.Settings.ChartsDir, app),
		Values:    values,
	})
	if err != nil {
		return "", opError("deploy", "helm install", SeverityCritical, err)
	}
	verb := "Installed"
	if rel.Upgraded {
		verb = "Upgraded"
	}
	out := fmt.Sprintf("%s release %s in %s (revision %d, %s)", verb, rel.Name, rel.Namespace, rel.Revision, rel.Status)
	req.Finish(nlp.WorkflowDeploy, "helm-install", out, map[string]any{string(nlp.FieldTarget): TargetHelm})
	return out, nil
}

func (h *deployHandler) terraform(ctx context.Context, req Request) (string, error) {
	if h.deps.Terraform == nil {
		return "", unavailable("terraform")
	}
	applied, err := h.deps.Terraform.Apply(ctx)
	if err != nil {
		return "", opError("deploy", "terraform apply", SeverityCritical, err)
	}
	out := "Terraform apply complete\n" + tail(applied, 5)
	req.Finish(nlp.WorkflowDeploy, "terraform-apply", "terraform apply complete",
		map[string]any{string(nlp.FieldTarget): TargetTerraform})
	return strings.TrimRight(out, "\n"), nil
}

func (h *deployHandler) cloud(ctx context.Context, req Request) (string, error) {
	if h.deps.Cloud == nil {
		return "", unavailable("cloud")
	}
	cluster := req.entity(nlp.FieldCluster)
	if cluster == "" {
		cluster = "eks"
	}
	provider := req.entity(nlp.FieldProvider)
	if _, err := h.deps.Cloud.UpdateKubeconfig(ctx, provider, cluster); err != nil {
		return "", opError("deploy", "update kubeconfig", SeverityCritical, err)
	}
	out := fmt.Sprintf("Kubeconfig updated for cluster %s", cluster)

	if req.app() != "" && h.deps.Kube != nil {
		k8sOut, err := h.kubernetes(ctx, req)
		if err != nil {
			return "", err
		}
		out += "\n" + k8sOut
	}
	req.Finish(nlp.WorkflowDeploy, "cloud-bootstrap", out, map[string]any{string(nlp.FieldTarget): TargetCloud})
	return out, nil
}
