package workflow

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/opsagent/internal/nlp"
	"github.com/fyrsmithlabs/opsagent/internal/tools/cicd"
	"github.com/fyrsmithlabs/opsagent/internal/tools/kube"
)

// Handlers in this file only read cluster and pipeline state.

type debugHandler struct {
	deps Deps
}

// NewDebug builds the debug handler. It needs Kubernetes; monitoring and
// CI are used when configured.
func NewDebug(deps Deps) (Handler, error) {
	deps = deps.withDefaults()
	if deps.Kube == nil {
		return nil, unavailable("kubernetes")
	}
	return &debugHandler{deps: deps}, nil
}

func (h *debugHandler) Execute(ctx context.Context, req Request) (string, error) {
	ns := req.namespace()
	app := req.app()

	pods, err := h.deps.Kube.ListPods(ctx, ns, app)
	if err != nil {
		return "", opError("debug", "list pods", SeverityCritical, err)
	}

	var rep report
	rep.add("pods", formatPods(pods))
	if bad, ok := firstUnhealthy(pods); ok {
		logs, err := h.deps.Kube.Logs(ctx, ns, bad.Name, h.deps.Settings.LogTail)
		if err != nil {
			logs = h.degraded(ctx, "pod logs", err)
		}
		rep.add("logs "+bad.Name, logs)
	}
	rep.add("restarts", restarts(ctx, h.deps, ns, app, pods))
	rep.add("alerts", alerts(ctx, h.deps, ns))
	if repo := req.entity(nlp.FieldRepo); repo != "" && h.deps.CICD != nil {
		rep.add("pipeline", pipelineSummary(ctx, h.deps, repo))
	}

	raw := rep.String()
	subject := ns
	if app != "" {
		subject = ns + "/" + app
	}
	unhealthy := countUnhealthy(pods)
	req.Finish(nlp.WorkflowDebug, "debug-collect",
		fmt.Sprintf("%d of %d pods unhealthy in %s", unhealthy, len(pods), subject), nil)
	return explain(ctx, req, "debug results for "+subject, raw), nil
}

func (h *debugHandler) degraded(ctx context.Context, what string, err error) string {
	h.deps.Logger.Warn(ctx, "debug signal unavailable", zap.String("signal", what), zap.Error(err))
	return "unavailable: " + err.Error()
}

type logsHandler struct {
	deps Deps
}

// NewLogs builds the logs handler.
func NewLogs(deps Deps) (Handler, error) {
	deps = deps.withDefaults()
	if deps.Kube == nil {
		return nil, unavailable("kubernetes")
	}
	return &logsHandler{deps: deps}, nil
}

func (h *logsHandler) Execute(ctx context.Context, req Request) (string, error) {
	app := req.app()
	if app == "" {
		return "", missing("app")
	}
	ns := req.namespace()
	pods, err := h.deps.Kube.ListPods(ctx, ns, app)
	if err != nil {
		return "", opError("logs", "list pods", SeverityCritical, err)
	}
	if len(pods) == 0 {
		return "", opError("logs", "find pods", SeverityCritical, fmt.Errorf("no pods for %s in %s", app, ns))
	}

	limit := h.deps.Settings.MaxLogPods
	if limit < 1 {
		limit = 1
	}
	var rep report
	for i, p := range pods {
		if i == limit {
			break
		}
		logs, err := h.deps.Kube.Logs(ctx, ns, p.Name, h.deps.Settings.LogTail)
		if err != nil {
			return "", opError("logs", "read logs of "+p.Name, SeverityCritical, err)
		}
		rep.add(p.Name, logs)
	}
	req.Finish(nlp.WorkflowLogs, "k8s-logs",
		fmt.Sprintf("read logs of %d pod(s) for %s/%s", min(limit, len(pods)), ns, app), nil)
	return rep.String(), nil
}

type clusterHealthHandler struct {
	deps Deps
}

// NewClusterHealth builds the cluster_health handler.
func NewClusterHealth(deps Deps) (Handler, error) {
	deps = deps.withDefaults()
	if deps.Kube == nil {
		return nil, unavailable("kubernetes")
	}
	return &clusterHealthHandler{deps: deps}, nil
}

func (h *clusterHealthHandler) Execute(ctx context.Context, req Request) (string, error) {
	// An explicit namespace narrows the check; otherwise every namespace.
	ns := req.entity(nlp.FieldNamespace)
	pods, err := h.deps.Kube.ListPods(ctx, ns, "")
	if err != nil {
		return "", opError("cluster_health", "list pods", SeverityCritical, err)
	}
	svcs, err := h.deps.Kube.ListServices(ctx, ns)
	if err != nil {
		return "", opError("cluster_health", "list services", SeverityCritical, err)
	}

	unhealthy := countUnhealthy(pods)
	var rep report
	rep.add("summary", fmt.Sprintf("%d pods, %d unhealthy, %d services", len(pods), unhealthy, len(svcs)))
	rep.add("pods", formatPods(pods))
	rep.add("services", formatServices(svcs))
	rep.add("restarts", restarts(ctx, h.deps, ns, "", pods))
	rep.add("alerts", alerts(ctx, h.deps, ns))

	scope := ns
	if scope == "" {
		scope = "all namespaces"
	}
	req.Finish(nlp.WorkflowClusterHealth, "health-check",
		fmt.Sprintf("%d of %d pods unhealthy in %s", unhealthy, len(pods), scope), nil)
	return explain(ctx, req, "Kubernetes cluster health for "+scope, rep.String()), nil
}

type pipelineHandler struct {
	deps Deps
}

// NewPipelineDebug builds the pipeline_debug handler.
func NewPipelineDebug(deps Deps) (Handler, error) {
	deps = deps.withDefaults()
	if deps.CICD == nil {
		return nil, unavailable("github")
	}
	return &pipelineHandler{deps: deps}, nil
}

func (h *pipelineHandler) Execute(ctx context.Context, req Request) (string, error) {
	repo, err := cicd.ResolveRepo(req.entity(nlp.FieldRepo), h.deps.Settings.DefaultRepo, h.deps.Settings.RepoPath)
	if err != nil {
		return "", opError("pipeline_debug", "resolve repository", SeverityCritical, err)
	}
	runs, err := h.deps.CICD.RecentRuns(ctx, repo, 5)
	if err != nil {
		return "", opError("pipeline_debug", "list runs", SeverityCritical, err)
	}

	var rep report
	rep.add("pipeline-runs "+repo, formatRuns(runs))
	failed, ok := firstFailed(runs)
	if ok {
		jobs, err := h.deps.CICD.FailedJobs(ctx, repo, failed.ID)
		if err != nil {
			rep.add("failed-jobs", "unavailable: "+err.Error())
		} else {
			rep.add(fmt.Sprintf("failed-jobs run #%d", failed.Number), formatJobs(jobs))
		}
	}
	if h.deps.Monitor != nil {
		rep.add("alerts", alerts(ctx, h.deps, req.entity(nlp.FieldNamespace)))
	}

	result := fmt.Sprintf("no failing runs in %s", repo)
	if ok {
		result = fmt.Sprintf("run #%d of %s failed", failed.Number, repo)
	}
	req.Finish(nlp.WorkflowPipelineDebug, "github-actions", result,
		map[string]any{string(nlp.FieldRepo): repo})
	return explain(ctx, req, "CI pipeline status for "+repo, rep.String()), nil
}

func pipelineSummary(ctx context.Context, deps Deps, repo string) string {
	runs, err := deps.CICD.RecentRuns(ctx, repo, 3)
	if err != nil {
		return "unavailable: " + err.Error()
	}
	return formatRuns(runs)
}

func formatRuns(runs []cicd.Run) string {
	var b strings.Builder
	for _, r := range runs {
		conclusion := r.Conclusion
		if conclusion == "" {
			conclusion = r.Status
		}
		fmt.Fprintf(&b, "#%d %s on %s: %s", r.Number, r.Name, r.Branch, conclusion)
		if r.URL != "" {
			fmt.Fprintf(&b, " %s", r.URL)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func formatJobs(jobs []cicd.Job) string {
	var b strings.Builder
	for _, j := range jobs {
		fmt.Fprintf(&b, "%s: %s", j.Name, j.Conclusion)
		if len(j.FailedSteps) > 0 {
			fmt.Fprintf(&b, " (steps: %s)", strings.Join(j.FailedSteps, ", "))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func firstFailed(runs []cicd.Run) (cicd.Run, bool) {
	for _, r := range runs {
		if r.Failed() {
			return r, true
		}
	}
	return cicd.Run{}, false
}

func firstUnhealthy(pods []kube.PodInfo) (kube.PodInfo, bool) {
	for _, p := range pods {
		if !p.Healthy() {
			return p, true
		}
	}
	return kube.PodInfo{}, false
}

func countUnhealthy(pods []kube.PodInfo) int {
	n := 0
	for _, p := range pods {
		if !p.Healthy() {
			n++
		}
	}
	return n
}

// restarts prefers Prometheus counts over the window and falls back to
// the pods' lifetime counters.
func restarts(ctx context.Context, deps Deps, ns, app string, pods []kube.PodInfo) string {
	if deps.Monitor == nil {
		return podRestarts(pods)
	}
	counts, err := deps.Monitor.Restarts(ctx, ns, app, deps.Settings.RestartWindow)
	if err != nil {
		deps.Logger.Warn(ctx, "restart query failed", zap.Error(err))
		return podRestarts(pods)
	}
	return formatRestarts(counts)
}

func alerts(ctx context.Context, deps Deps, ns string) string {
	if deps.Monitor == nil {
		return "monitoring not configured"
	}
	firing, err := deps.Monitor.FiringAlerts(ctx, ns)
	if err != nil {
		deps.Logger.Warn(ctx, "alert query failed", zap.Error(err))
		return "unavailable: " + err.Error()
	}
	return formatAlerts(firing)
}
