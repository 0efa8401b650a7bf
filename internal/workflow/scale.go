package workflow

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/opsagent/internal/nlp"
)

type scaleHandler struct {
	deps Deps
}

// NewScale builds the scale handler. docker targets scale replica
// containers; every other target scales the Kubernetes deployment.
func NewScale(deps Deps) (Handler, error) {
	deps = deps.withDefaults()
	return &scaleHandler{deps: deps}, nil
}

func (h *scaleHandler) Execute(ctx context.Context, req Request) (string, error) {
	app := req.app()
	if app == "" {
		return "", missing("app")
	}
	replicas, ok, err := req.replicas()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", missing("replicas")
	}

	if target(req, h.deps.Settings) == TargetDocker {
		if h.deps.Docker == nil {
			return "", unavailable("docker")
		}
		before, err := h.deps.Docker.Scale(ctx, app, int(replicas))
		if err != nil {
			return "", opError("scale", "docker scale", SeverityCritical, err)
		}
		out := fmt.Sprintf("Scaled %s from %d to %d container(s)", app, before, replicas)
		req.Finish(nlp.WorkflowScale, "docker-scale", out, nil)
		return out, nil
	}

	if h.deps.Kube == nil {
		return "", unavailable("kubernetes")
	}
	ns := req.namespace()
	before, err := h.deps.Kube.Scale(ctx, ns, app, replicas)
	if err != nil {
		return "", opError("scale", "k8s scale", SeverityCritical, err)
	}
	out := fmt.Sprintf("Scaled %s/%s from %d to %d replicas", ns, app, before, replicas)
	req.Finish(nlp.WorkflowScale, "k8s-scale", out, nil)
	return out, nil
}
