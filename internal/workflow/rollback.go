package workflow

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/opsagent/internal/nlp"
	"github.com/fyrsmithlabs/opsagent/internal/tools/helm"
)

type rollbackHandler struct {
	deps Deps
}

// NewRollback builds the rollback handler.
func NewRollback(deps Deps) (Handler, error) {
	deps = deps.withDefaults()
	return &rollbackHandler{deps: deps}, nil
}

func (h *rollbackHandler) Execute(ctx context.Context, req Request) (string, error) {
	switch t := target(req, h.deps.Settings); t {
	case TargetK8s, TargetCloud:
		return h.kubernetes(ctx, req)
	case TargetHelm:
		return h.helm(ctx, req)
	case TargetDocker:
		return h.docker(ctx, req)
	case TargetTerraform:
		return h.terraform(ctx, req)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedTarget, t)
	}
}

func (h *rollbackHandler) kubernetes(ctx context.Context, req Request) (string, error) {
	if h.deps.Kube == nil {
		return "", unavailable("kubernetes")
	}
	app := req.app()
	if app == "" {
		return "", missing("app")
	}
	ns := req.namespace()
	rev := int64(helm.ParseRevision(req.entity(nlp.FieldVersion)))
	restored, err := h.deps.Kube.RolloutUndo(ctx, ns, app, rev)
	if err != nil {
		return "", opError("rollback", "k8s rollout undo", SeverityCritical, err)
	}
	out := fmt.Sprintf("Rolled back deployment %s/%s to revision %d", ns, app, restored)
	req.Finish(nlp.WorkflowRollback, "k8s-rollout-undo", out, nil)
	return out, nil
}

func (h *rollbackHandler) helm(ctx context.Context, req Request) (string, error) {
	if h.deps.Helm == nil {
		return "", unavailable("helm")
	}
	app := req.app()
	if app == "" {
		return "", missing("app")
	}
	ns := req.namespace()
	rev := helm.ParseRevision(req.entity(nlp.FieldVersion))
	if err := h.deps.Helm.Rollback(ctx, ns, app, rev); err != nil {
		return "", opError("rollback", "helm rollback", SeverityCritical, err)
	}
	to := "the previous revision"
	if rev > 0 {
		to = fmt.Sprintf("revision %d", rev)
	}
	out := fmt.Sprintf("Rolled back release %s in %s to %s", app, ns, to)
	req.Finish(nlp.WorkflowRollback, "helm-rollback", out, nil)
	return out, nil
}

// docker redeploys the image recorded before the last deploy, or removes
// the app's containers when none was recorded.
func (h *rollbackHandler) docker(ctx context.Context, req Request) (string, error) {
	if h.deps.Docker == nil {
		return "", unavailable("docker")
	}
	app := req.app()
	if app == "" {
		return "", missing("app")
	}

	previous := ""
	if req.Memory != nil {
		previous = req.Memory.GetString(memPreviousImage)
	}
	if previous == "" {
		n, err := h.deps.Docker.Remove(ctx, app)
		if err != nil {
			return "", opError("rollback", "docker remove", SeverityCritical, err)
		}
		out := fmt.Sprintf("Removed %d container(s) for %s; no previous image recorded", n, app)
		req.Finish(nlp.WorkflowRollback, "docker-remove", out, nil)
		return out, nil
	}

	replicas := 1
	if current, err := h.deps.Docker.List(ctx, app); err == nil && len(current) > 0 {
		replicas = len(current)
	}
	infos, err := h.deps.Docker.Run(ctx, app, previous, replicas)
	if err != nil {
		return "", opError("rollback", "docker run", SeverityCritical, err)
	}
	out := fmt.Sprintf("Rolled back %s to %s: %d container(s) running", app, previous, len(infos))
	req.Finish(nlp.WorkflowRollback, "docker-rerun", out, map[string]any{string(nlp.FieldImage): previous})
	if req.Memory != nil {
		req.Memory.Clear(memPreviousImage)
	}
	return out, nil
}

func (h *rollbackHandler) terraform(ctx context.Context, req Request) (string, error) {
	if h.deps.Terraform == nil {
		return "", unavailable("terraform")
	}
	if h.deps.Approver == nil || !h.deps.Approver.ApproveDestroy(ctx, TargetTerraform) {
		return "", &BlockedError{Reason: "terraform destroy not approved (set safety.allow_destroy)"}
	}
	destroyed, err := h.deps.Terraform.Destroy(ctx)
	if err != nil {
		return "", opError("rollback", "terraform destroy", SeverityCritical, err)
	}
	req.Finish(nlp.WorkflowRollback, "terraform-destroy", "terraform destroy complete", nil)
	return "Terraform destroy complete\n" + tail(destroyed, 5), nil
}
