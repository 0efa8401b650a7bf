// Package router turns one line of operator text into one Result.
//
// Process runs the pipeline plan, safety check, then dispatch, and reports
// every outcome as a workflow.Result. It never returns an error and never
// panics. After each request it publishes an audit event and fires the
// after_dispatch hook.
package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/opsagent/internal/audit"
	"github.com/fyrsmithlabs/opsagent/internal/hooks"
	"github.com/fyrsmithlabs/opsagent/internal/logging"
	"github.com/fyrsmithlabs/opsagent/internal/planner"
	"github.com/fyrsmithlabs/opsagent/internal/safety"
	"github.com/fyrsmithlabs/opsagent/internal/secrets"
	"github.com/fyrsmithlabs/opsagent/internal/session"
	"github.com/fyrsmithlabs/opsagent/internal/telemetry"
	"github.com/fyrsmithlabs/opsagent/internal/workflow"
)

const instrumentationName = "github.com/fyrsmithlabs/opsagent/internal/router"

// ErrEmptyInput is returned by Preview for blank text.
var ErrEmptyInput = errors.New("empty input")

// Dispatcher runs a plan against a session.
type Dispatcher interface {
	Run(ctx context.Context, plan planner.Plan, sess *session.Session) workflow.Result
}

// Router wires the planner, the safety gate and the dispatcher together.
type Router struct {
	planner    *planner.Planner
	gate       *safety.Gate
	dispatcher Dispatcher

	audit  audit.Publisher
	hooks  *hooks.HookManager
	scrub  *secrets.Scrubber
	logger *logging.Logger

	tracer   trace.Tracer
	requests metric.Int64Counter
}

// Option configures a Router.
type Option func(*Router)

// WithAudit publishes one event per request to p.
func WithAudit(p audit.Publisher) Option {
	return func(r *Router) {
		if p != nil {
			r.audit = p
		}
	}
}

// WithHooks fires after_dispatch on hm.
func WithHooks(hm *hooks.HookManager) Option {
	return func(r *Router) { r.hooks = hm }
}

// WithScrubber redacts secrets from rendered results.
func WithScrubber(s *secrets.Scrubber) Option {
	return func(r *Router) { r.scrub = s }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithTelemetry records spans and request counts on t's providers.
func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(r *Router) {
		r.tracer = t.Tracer(instrumentationName)
		r.initMetrics(t.MeterProvider())
	}
}

// New creates a Router. A nil gate means the default gate; a nil planner
// means planner.New with the router's logger.
func New(p *planner.Planner, gate *safety.Gate, d Dispatcher, opts ...Option) *Router {
	r := &Router{
		planner:    p,
		gate:       gate,
		dispatcher: d,
		audit:      audit.Nop{},
		logger:     logging.NewNop(),
		tracer:     otel.Tracer(instrumentationName),
	}
	r.initMetrics(otel.GetMeterProvider())
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.Named("router")
	if r.planner == nil {
		r.planner = planner.New(r.logger)
	}
	if r.gate == nil {
		r.gate = safety.Default()
	}
	return r
}

func (r *Router) initMetrics(mp metric.MeterProvider) {
	var err error
	r.requests, err = mp.Meter(instrumentationName).Int64Counter(
		"opsagent.router.requests",
		metric.WithDescription("Processed requests by result kind"),
		metric.WithUnit("{request}"),
	)
	if err != nil && r.logger != nil {
		r.logger.Warn(context.Background(), "failed to create router request counter", zap.Error(err))
	}
}

// Gate returns the safety gate consulted before dispatch.
func (r *Router) Gate() *safety.Gate { return r.gate }

// Preview is a plan with the safety decision it would receive.
type Preview struct {
	Plan     planner.Plan    `json:"plan"`
	Decision safety.Decision `json:"decision"`
	Policy   safety.Policy   `json:"policy"`
}

// Preview plans text and checks it without dispatching. The decision is
// reported even when the policy is off.
func (r *Router) Preview(ctx context.Context, text string) (Preview, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Preview{}, ErrEmptyInput
	}
	plan := r.planner.CreatePlan(ctx, text)
	return Preview{Plan: plan, Decision: r.gate.Check(plan), Policy: r.gate.Policy()}, nil
}

// Process handles one request. sess may be nil for a stateless request.
func (r *Router) Process(ctx context.Context, sess *session.Session, text string) (res workflow.Result) {
	if sess != nil {
		ctx = logging.WithSessionID(ctx, sess.ID)
	}
	ctx, span := r.tracer.Start(ctx, "router.process")
	defer span.End()

	var plan planner.Plan
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error(ctx, "request panicked", zap.Any("panic", rec), zap.Stack("stack"))
			res = workflow.RouterFailed(fmt.Errorf("%v", rec))
			res.Intent, res.Workflow = plan.Intent, plan.Workflow
		}
		res = r.redact(res)
		r.finish(ctx, span, sess, plan, res)
	}()

	text = strings.TrimSpace(text)
	if text == "" {
		return workflow.InvalidInput()
	}

	plan = r.planner.CreatePlan(ctx, text)
	span.SetAttributes(
		attribute.String("intent", string(plan.Intent)),
		attribute.String("workflow", string(plan.Workflow)),
	)

	if r.gate.Enforced() {
		if d := r.gate.Check(plan); !d.Allowed {
			r.logger.Warn(ctx, "request blocked",
				zap.String("reason", d.Reason),
				zap.String("keyword", d.Keyword),
				zap.String("resource", d.Resource),
			)
			res = workflow.Blocked(plan.Workflow, d.Reason)
			res.Intent = plan.Intent
			return res
		}
	}

	if sess != nil {
		release, err := sess.Acquire(ctx)
		if err != nil {
			return workflow.RouterFailed(fmt.Errorf("acquire session %s: %w", sess.ID, err))
		}
		defer release()
		sess.Touch(time.Now())
	}

	res = r.dispatcher.Run(ctx, plan, sess)
	if res.Intent == "" {
		res.Intent = plan.Intent
	}
	return res
}

// redact scrubs the fields Message renders.
func (r *Router) redact(res workflow.Result) workflow.Result {
	if !r.scrub.Enabled() {
		return res
	}
	res.Output = r.scrub.Clean(res.Output)
	res.Reason = r.scrub.Clean(res.Reason)
	if res.Err != nil {
		if msg := r.scrub.Clean(res.Err.Error()); msg != res.Err.Error() {
			res.Err = errors.New(msg)
		}
	}
	return res
}

func (r *Router) finish(ctx context.Context, span trace.Span, sess *session.Session, plan planner.Plan, res workflow.Result) {
	kind := string(res.Kind)
	span.SetAttributes(attribute.String("kind", kind))
	switch res.Kind {
	case workflow.KindExecutionError, workflow.KindRouterError:
		span.SetStatus(codes.Error, res.ErrorText())
	}
	if r.requests != nil {
		r.requests.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
	}

	var sessionID string
	if sess != nil {
		sessionID = sess.ID
	}
	event := audit.Event{
		SessionID: sessionID,
		Raw:       plan.Raw,
		Intent:    string(plan.Intent),
		Workflow:  string(plan.Workflow),
		Kind:      kind,
		Allowed:   res.Kind != workflow.KindBlocked,
	}
	if err := r.audit.Publish(ctx, event); err != nil {
		r.logger.Warn(ctx, "audit publish failed", zap.Error(err))
	}

	err := r.hooks.Execute(ctx, hooks.HookAfterDispatch, map[string]interface{}{
		hooks.KeySessionID: sessionID,
		hooks.KeyIntent:    string(plan.Intent),
		hooks.KeyWorkflow:  string(plan.Workflow),
		hooks.KeyKind:      kind,
	})
	if err != nil {
		r.logger.Warn(ctx, "after_dispatch hook failed", zap.Error(err))
	}
}
