package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/opsagent/internal/logging"
	"github.com/fyrsmithlabs/opsagent/internal/nlp"
	"github.com/fyrsmithlabs/opsagent/internal/planner"
	"github.com/fyrsmithlabs/opsagent/internal/session"
)

const instrumentationName = "github.com/fyrsmithlabs/opsagent/internal/workflow"

// Executor looks up and runs the handler bound to a plan's workflow.
type Executor struct {
	registry  *Registry
	deps      Deps
	explainer Explainer
	logger    *logging.Logger

	runs     metric.Int64Counter
	duration metric.Float64Histogram
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithExplainer sets the model handlers may use to explain raw output.
func WithExplainer(x Explainer) ExecutorOption {
	return func(e *Executor) { e.explainer = x }
}

// WithMeterProvider records run metrics on mp instead of the global provider.
func WithMeterProvider(mp metric.MeterProvider) ExecutorOption {
	return func(e *Executor) { e.initMetrics(mp) }
}

// NewExecutor creates an Executor over registry. A nil registry means
// DefaultRegistry.
func NewExecutor(registry *Registry, deps Deps, opts ...ExecutorOption) *Executor {
	if registry == nil {
		registry = DefaultRegistry()
	}
	deps = deps.withDefaults()
	e := &Executor{
		registry: registry,
		deps:     deps,
		logger:   deps.Logger.Named("executor"),
	}
	e.initMetrics(otel.GetMeterProvider())
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Executor) initMetrics(mp metric.MeterProvider) {
	meter := mp.Meter(instrumentationName)

	var err error
	e.runs, err = meter.Int64Counter(
		"opsagent.workflow.runs",
		metric.WithDescription("Workflow dispatches by workflow and result kind"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		e.logger.Warn(context.Background(), "failed to create workflow run counter", zap.Error(err))
	}
	e.duration, err = meter.Float64Histogram(
		"opsagent.workflow.duration",
		metric.WithDescription("Duration of workflow handler runs"),
		metric.WithUnit("s"),
	)
	if err != nil {
		e.logger.Warn(context.Background(), "failed to create workflow duration histogram", zap.Error(err))
	}
}

// Registry returns the registry the executor dispatches through.
func (e *Executor) Registry() *Registry { return e.registry }

// Run dispatches plan against sess. It never panics and never returns an
// error: every failure is reported through the Result kind. sess may be nil,
// in which case nothing is recorded or recalled.
func (e *Executor) Run(ctx context.Context, plan planner.Plan, sess *session.Session) Result {
	id := plan.Workflow
	if id == "" || id == nlp.WorkflowUnknown {
		e.logger.Debug(ctx, "no workflow for intent", zap.String("intent", string(plan.Intent)))
		return UnknownIntent(plan.Intent)
	}
	factory, ok := e.registry.Lookup(id)
	if !ok {
		e.logger.Info(ctx, "workflow not implemented", zap.String("workflow", string(id)))
		return NotImplemented(id)
	}

	ctx = logging.WithWorkflow(ctx, string(id))
	req := Request{Plan: plan, Explainer: e.explainer}
	var recall planner.Recall
	if sess != nil {
		req.Context = sess.Context
		req.Memory = sess.Memory
		recall = sess.Memory
	}
	req.Entities = plan.Resolve(recall)
	if req.Context != nil {
		_ = req.Context.Update(map[session.Slot]any{
			session.SlotWorkflow: string(id),
			session.SlotPhase:    PhaseRunning,
		})
	}

	start := time.Now()
	out, err := e.execute(ctx, factory, req)
	res := e.result(ctx, id, req, out, err)
	e.record(ctx, res, time.Since(start))
	return res
}

func (e *Executor) execute(ctx context.Context, factory Factory, req Request) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	h, err := factory(e.deps)
	if err != nil {
		return "", err
	}
	if h == nil {
		return "", errors.New("factory returned no handler")
	}
	return h.Execute(ctx, req)
}

func (e *Executor) result(ctx context.Context, id nlp.WorkflowID, req Request, out string, err error) Result {
	if err == nil {
		e.logger.Info(ctx, "workflow completed")
		return OK(id, out)
	}

	var blocked *BlockedError
	if errors.As(err, &blocked) {
		e.markFailed(req, id, blocked.Reason, "blocked")
		e.logger.Warn(ctx, "workflow blocked", zap.String("reason", blocked.Reason))
		return Blocked(id, blocked.Reason)
	}

	e.markFailed(req, id, err.Error(), StatusError)
	fields := []zap.Field{zap.Error(err)}
	var opErr *OperationError
	if errors.As(err, &opErr) {
		fields = append(fields, zap.String("operation", opErr.Operation), zap.String("severity", string(opErr.Severity)))
	}
	e.logger.Error(ctx, "workflow failed", fields...)
	return ExecutionFailed(id, err)
}

func (e *Executor) markFailed(req Request, id nlp.WorkflowID, msg, status string) {
	if req.Context == nil {
		return
	}
	_ = req.Context.Update(map[session.Slot]any{
		session.SlotWorkflow:   string(id),
		session.SlotPhase:      PhaseFailed,
		session.SlotLastResult: msg,
		session.SlotStatus:     status,
	})
}

func (e *Executor) record(ctx context.Context, res Result, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("workflow", string(res.Workflow)),
		attribute.String("kind", string(res.Kind)),
	)
	if e.runs != nil {
		e.runs.Add(ctx, 1, attrs)
	}
	if e.duration != nil {
		e.duration.Record(ctx, elapsed.Seconds(), attrs)
	}
}
