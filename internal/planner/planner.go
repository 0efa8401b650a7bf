// Package planner composes intent classification, entity extraction and
// workflow mapping into a Plan.
package planner

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/opsagent/internal/logging"
	"github.com/fyrsmithlabs/opsagent/internal/nlp"
)

// Plan is the interpretation of one request. Plans are values: callers must
// not mutate Entities or Inferred after CreatePlan returns. Use Resolve to
// obtain a merged copy.
type Plan struct {
	Raw      string             `json:"raw"`
	Intent   nlp.Intent         `json:"intent"`
	Workflow nlp.WorkflowID     `json:"workflow"`
	Entities nlp.Entities       `json:"entities"`
	Inferred map[nlp.Field]bool `json:"inferred,omitempty"`
}

// Recall is the read side of a session memory.
type Recall interface {
	Get(key string) (any, bool)
}

// ResolvableFields are the entity fields Resolve may fill from memory.
var ResolvableFields = []nlp.Field{
	nlp.FieldApp,
	nlp.FieldNamespace,
	nlp.FieldReplicas,
	nlp.FieldImage,
	nlp.FieldVersion,
	nlp.FieldProvider,
	nlp.FieldCluster,
	nlp.FieldTarget,
	nlp.FieldRepo,
}

// Resolve returns the plan's entities with omitted fields filled from mem.
// Values from the request win, except an app obtained through the fallback
// heuristic, which yields to a remembered app. The Plan is not modified.
func (p Plan) Resolve(mem Recall) nlp.Entities {
	out := p.Entities.Clone()
	if mem == nil {
		return out
	}
	for _, f := range ResolvableFields {
		if out.Has(f) && !p.Inferred[f] {
			continue
		}
		v, ok := mem.Get(string(f))
		if !ok || !validValue(f, v) {
			continue
		}
		out[f] = v
	}
	return out
}

func validValue(f nlp.Field, v any) bool {
	if f == nlp.FieldReplicas {
		n, ok := v.(int)
		return ok && nlp.ValidReplicas(n)
	}
	s, ok := v.(string)
	return ok && s != ""
}

// InferredFields returns the inferred field names in sorted order.
func (p Plan) InferredFields() []string {
	out := make([]string, 0, len(p.Inferred))
	for f, ok := range p.Inferred {
		if ok {
			out = append(out, string(f))
		}
	}
	sort.Strings(out)
	return out
}

// Planner builds Plans. Safe for concurrent use.
type Planner struct {
	classifier *nlp.Classifier
	extractor  *nlp.Extractor
	logger     *logging.Logger
}

// New creates a Planner. logger may be nil.
func New(logger *logging.Logger) *Planner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Planner{
		classifier: nlp.NewClassifier(),
		extractor:  nlp.NewExtractor(),
		logger:     logger.Named("planner"),
	}
}

// CreatePlan interprets raw. It never fails; a request nothing matches yields
// an UNKNOWN intent, the unknown workflow and no entities.
func (p *Planner) CreatePlan(ctx context.Context, raw string) Plan {
	intent, keyword := p.classifier.Explain(raw)
	ext := p.extractor.Parse(raw)

	plan := Plan{
		Raw:      raw,
		Intent:   intent,
		Workflow: nlp.MapIntent(intent),
		Entities: ext.Entities,
		Inferred: ext.Inferred,
	}

	p.logger.Debug(ctx, "plan created",
		zap.String("intent", string(plan.Intent)),
		zap.String("keyword", keyword),
		zap.String("workflow", string(plan.Workflow)),
		zap.Int("entities", len(plan.Entities)),
		zap.Strings("inferred", plan.InferredFields()),
	)
	return plan
}
