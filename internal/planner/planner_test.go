package planner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/opsagent/internal/logging"
	"github.com/fyrsmithlabs/opsagent/internal/nlp"
)

type fakeRecall map[string]any

func (f fakeRecall) Get(key string) (any, bool) {
	v, ok := f[key]
	return v, ok
}

func TestPlanner_CreatePlan(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		intent   nlp.Intent
		workflow nlp.WorkflowID
		entities nlp.Entities
	}{
		{
			name:     "deploy with scale",
			raw:      "deploy nginx in prod scaled to 3",
			intent:   nlp.IntentDeploy,
			workflow: nlp.WorkflowDeploy,
			entities: nlp.Entities{nlp.FieldApp: "nginx", nlp.FieldNamespace: "prod", nlp.FieldReplicas: 3},
		},
		{
			name:     "debug beats pipeline",
			raw:      "why is the pipeline failing for backend",
			intent:   nlp.IntentDebug,
			workflow: nlp.WorkflowDebug,
			entities: nlp.Entities{nlp.FieldApp: "backend"},
		},
		{
			name:     "unknown",
			raw:      "42",
			intent:   nlp.IntentUnknown,
			workflow: nlp.WorkflowUnknown,
			entities: nlp.Entities{},
		},
	}

	p := New(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := p.CreatePlan(context.Background(), tt.raw)
			assert.Equal(t, tt.raw, plan.Raw)
			assert.Equal(t, tt.intent, plan.Intent)
			assert.Equal(t, tt.workflow, plan.Workflow)
			assert.Equal(t, tt.entities, plan.Entities)
		})
	}
}

func TestPlanner_LogsDecision(t *testing.T) {
	tl := logging.NewTestLogger()
	p := New(tl.Logger)

	p.CreatePlan(context.Background(), "scale backend to 5")

	tl.AssertLogged(t, zapcore.DebugLevel, "plan created")
	tl.AssertField(t, "plan created", "intent", "SCALE")
	tl.AssertField(t, "plan created", "keyword", "scale")
}

func TestPlan_Resolve(t *testing.T) {
	t.Run("memory fills omitted fields", func(t *testing.T) {
		plan := New(nil).CreatePlan(context.Background(), "scale nginx to 4")
		got := plan.Resolve(fakeRecall{"namespace": "staging", "replicas": 9})

		assert.Equal(t, "nginx", got.String(nlp.FieldApp))
		assert.Equal(t, "staging", got.String(nlp.FieldNamespace))
		n, _ := got.Int(nlp.FieldReplicas)
		assert.Equal(t, 4, n)
	})

	t.Run("explicit zero replicas not replaced", func(t *testing.T) {
		plan := New(nil).CreatePlan(context.Background(), "scale nginx to 0 in prod")
		got := plan.Resolve(fakeRecall{"replicas": 3})
		n, ok := got.Int(nlp.FieldReplicas)
		require.True(t, ok)
		assert.Equal(t, 0, n)
	})

	t.Run("remembered zero replicas usable", func(t *testing.T) {
		plan := New(nil).CreatePlan(context.Background(), "scale nginx")
		got := plan.Resolve(fakeRecall{"replicas": 0})
		n, ok := got.Int(nlp.FieldReplicas)
		require.True(t, ok)
		assert.Equal(t, 0, n)
	})

	t.Run("out of range remembered replicas ignored", func(t *testing.T) {
		plan := New(nil).CreatePlan(context.Background(), "scale nginx")
		got := plan.Resolve(fakeRecall{"replicas": 4294967297})
		assert.False(t, got.Has(nlp.FieldReplicas))
	})

	t.Run("remembered app overrides inferred app", func(t *testing.T) {
		plan := New(nil).CreatePlan(context.Background(), "rollback please")
		assert.True(t, plan.Inferred[nlp.FieldApp])

		got := plan.Resolve(fakeRecall{"app": "redis"})
		assert.Equal(t, "redis", got.String(nlp.FieldApp))
	})

	t.Run("inferred app kept without memory", func(t *testing.T) {
		plan := New(nil).CreatePlan(context.Background(), "rollback please")
		got := plan.Resolve(fakeRecall{})
		assert.Equal(t, "rollback", got.String(nlp.FieldApp))
	})

	t.Run("wrongly typed memory values ignored", func(t *testing.T) {
		plan := New(nil).CreatePlan(context.Background(), "42")
		got := plan.Resolve(fakeRecall{"replicas": "three", "namespace": 7, "image": ""})
		assert.Empty(t, got)
	})

	t.Run("plan untouched", func(t *testing.T) {
		plan := New(nil).CreatePlan(context.Background(), "deploy api")
		_ = plan.Resolve(fakeRecall{"namespace": "prod"})
		assert.False(t, plan.Entities.Has(nlp.FieldNamespace))
	})

	t.Run("nil memory", func(t *testing.T) {
		plan := New(nil).CreatePlan(context.Background(), "deploy api")
		assert.Equal(t, plan.Entities, plan.Resolve(nil))
	})
}
