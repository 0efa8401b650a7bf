// Package workflow binds workflow identifiers to handlers and runs them.
//
// A Handler receives the Plan, the entities resolved against session Memory,
// and the session's Context and Memory. It returns one line of text or an
// error. The Executor converts every outcome, panics included, into a Result
// whose Kind tells callers what happened.
package workflow

import (
	"context"
	"time"

	"github.com/fyrsmithlabs/opsagent/internal/logging"
	"github.com/fyrsmithlabs/opsagent/internal/nlp"
	"github.com/fyrsmithlabs/opsagent/internal/planner"
	"github.com/fyrsmithlabs/opsagent/internal/session"
	"github.com/fyrsmithlabs/opsagent/internal/tools/cicd"
	"github.com/fyrsmithlabs/opsagent/internal/tools/cost"
	"github.com/fyrsmithlabs/opsagent/internal/tools/docker"
	"github.com/fyrsmithlabs/opsagent/internal/tools/helm"
	"github.com/fyrsmithlabs/opsagent/internal/tools/kube"
	"github.com/fyrsmithlabs/opsagent/internal/tools/monitor"
)

// Explainer turns raw tool output into an operator-facing explanation.
type Explainer interface {
	Explain(ctx context.Context, topic, text string) (string, error)
}

// Terraform applies and destroys infrastructure.
type Terraform interface {
	Apply(ctx context.Context) (string, error)
	Destroy(ctx context.Context) (string, error)
}

// Cloud fetches cluster credentials.
type Cloud interface {
	UpdateKubeconfig(ctx context.Context, provider, cluster string) (string, error)
}

// Approver decides on destructive sub-actions.
type Approver interface {
	ApproveDestroy(ctx context.Context, target string) bool
}

// Settings are the configured defaults handlers fall back on.
type Settings struct {
	DefaultTarget string
	ChartsDir     string
	DefaultRepo   string
	RepoPath      string
	CostWindow    string
	LogTail       int64
	RestartWindow time.Duration
	MaxLogPods    int
}

// DefaultSettings returns the settings used when none are configured.
func DefaultSettings() Settings {
	return Settings{
		DefaultTarget: "k8s",
		ChartsDir:     "./charts",
		RepoPath:      ".",
		CostWindow:    "7d",
		LogTail:       50,
		RestartWindow: time.Hour,
		MaxLogPods:    3,
	}
}

// Deps are the backends handlers are built from. Nil backends are not
// configured.
type Deps struct {
	Kube      kube.Client
	Docker    docker.Client
	Helm      helm.Client
	CICD      cicd.Client
	Monitor   monitor.Client
	Cost      cost.Client
	Terraform Terraform
	Cloud     Cloud
	Approver  Approver
	Settings  Settings
	Logger    *logging.Logger
}

// Request is the input of one handler run.
type Request struct {
	Plan      planner.Plan
	Entities  nlp.Entities
	Context   *session.Context
	Memory    *session.Memory
	Explainer Explainer
}

// Handler executes one workflow.
type Handler interface {
	Execute(ctx context.Context, req Request) (string, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req Request) (string, error)

// Execute implements Handler.
func (f HandlerFunc) Execute(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// Factory builds a handler from the configured backends. It fails when a
// backend the workflow always needs is missing.
type Factory func(Deps) (Handler, error)

// Phases written to the Context phase slot.
const (
	PhaseRunning   = "running"
	PhaseCompleted = "completed"
	PhaseFailed    = "failed"
)

// Statuses written to the Context status slot.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Finish records a completed run: Context gets the workflow, phase, action,
// result and status; Memory gets the resolved entities plus extra facts. A
// guessed app is not remembered.
func (r Request) Finish(id nlp.WorkflowID, action, result string, extra map[string]any) {
	if r.Context != nil {
		_ = r.Context.Update(map[session.Slot]any{
			session.SlotWorkflow:   string(id),
			session.SlotPhase:      PhaseCompleted,
			session.SlotLastAction: action,
			session.SlotLastResult: result,
			session.SlotStatus:     StatusOK,
		})
	}
	if r.Memory == nil {
		return
	}
	facts := make(map[string]any, len(r.Entities)+len(extra))
	for f, v := range r.Entities {
		if f == nlp.FieldApp && r.app() == "" {
			continue
		}
		facts[string(f)] = v
	}
	for k, v := range extra {
		facts[k] = v
	}
	r.Memory.Update(facts)
}

func (r Request) entity(f nlp.Field) string {
	return r.Entities.String(f)
}

// app returns the app to act on. An app guessed by the extractor's fallback
// is only used when it came back from memory; otherwise it is dropped.
func (r Request) app() string {
	app := r.entity(nlp.FieldApp)
	if app == "" || !r.Plan.Inferred[nlp.FieldApp] {
		return app
	}
	if r.Memory != nil && r.Memory.GetString(string(nlp.FieldApp)) == app {
		return app
	}
	return ""
}

// replicas returns the requested replica count and whether one was given.
// A count outside the int32 range is an error.
func (r Request) replicas() (int32, bool, error) {
	n, ok := r.Entities.Int(nlp.FieldReplicas)
	if !ok {
		return 0, false, nil
	}
	if !nlp.ValidReplicas(n) {
		return 0, true, invalid("replicas", n)
	}
	return int32(n), true, nil
}

func (r Request) namespace() string {
	if ns := r.entity(nlp.FieldNamespace); ns != "" {
		return ns
	}
	return "default"
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = logging.NewNop()
	}
	if d.Settings == (Settings{}) {
		d.Settings = DefaultSettings()
	}
	return d
}
