package nlp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifier_Classify(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Intent
	}{
		{"deploy", "deploy nginx in prod scaled to 3", IntentDeploy},
		{"uppercase", "DEPLOY NGINX", IntentDeploy},
		{"deploy beats debug", "deploy even though it fails", IntentDeploy},
		{"rollback", "rollback api to previous version", IntentRollback},
		{"debug beats pipeline", "why is the pipeline failing for backend", IntentDebug},
		{"scale", "scale backend to 5 in prod", IntentScale},
		{"build", "build image for api", IntentBuild},
		{"logs", "show logs for nginx", IntentLogs},
		{"cost", "how much does prod cost", IntentCost},
		{"pipeline", "check github actions for acme/payments", IntentPipeline},
		{"status", "cluster health", IntentStatus},
		{"unknown", "hello there", IntentUnknown},
		{"empty", "", IntentUnknown},
	}

	c := NewClassifier()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.text))
		})
	}
}

func TestClassifier_DeployKeywordWinsWithoutEarlierCategory(t *testing.T) {
	c := NewClassifier()
	for _, kw := range Keywords(IntentDeploy) {
		assert.Equal(t, IntentDeploy, c.Classify("please "+kw+" it now"), kw)
	}
}

func TestClassifier_Explain(t *testing.T) {
	intent, kw := NewClassifier().Explain("Why is the pipeline failing")
	assert.Equal(t, IntentDebug, intent)
	assert.Equal(t, "fail", kw)
}

func TestAllIntents(t *testing.T) {
	assert.Equal(t, []Intent{
		IntentDeploy, IntentRollback, IntentDebug, IntentScale, IntentBuild,
		IntentLogs, IntentCost, IntentPipeline, IntentStatus, IntentUnknown,
	}, AllIntents())
	assert.Nil(t, Keywords(IntentUnknown))
}

func TestMapIntent(t *testing.T) {
	tests := map[Intent]WorkflowID{
		IntentDeploy:            WorkflowDeploy,
		IntentRollback:          WorkflowRollback,
		IntentDebug:             WorkflowDebug,
		IntentBuild:             WorkflowBuild,
		IntentLogs:              WorkflowLogs,
		IntentCost:              WorkflowCostAnalysis,
		IntentPipeline:          WorkflowPipelineDebug,
		IntentScale:             WorkflowScale,
		IntentStatus:            WorkflowClusterHealth,
		IntentUnknown:           WorkflowUnknown,
		Intent(""):              WorkflowUnknown,
		Intent("UPGRADE"):       WorkflowUnknown,
		Intent("deploy"):        WorkflowUnknown,
		Intent("SECURITY_SCAN"): WorkflowUnknown,
	}
	for intent, want := range tests {
		assert.Equal(t, want, MapIntent(intent), "intent %q", intent)
	}
}

func TestWorkflowID_Known(t *testing.T) {
	for _, intent := range AllIntents() {
		id := MapIntent(intent)
		assert.Equal(t, intent != IntentUnknown, id.Known(), "workflow %q", id)
	}
	assert.False(t, WorkflowID("security_scan").Known())
	assert.False(t, WorkflowID("").Known())
}

func TestExtractor_Parse(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		want     Entities
		inferred bool
	}{
		{
			name: "deploy scenario",
			text: "deploy nginx in prod scaled to 3",
			want: Entities{FieldApp: "nginx", FieldNamespace: "prod", FieldReplicas: 3},
		},
		{
			name: "image version provider cluster",
			text: "deploy myimage nginx:1.27 v2 on aws eks",
			want: Entities{
				FieldApp:      "nginx",
				FieldImage:    "nginx:1.27",
				FieldVersion:  "v2",
				FieldProvider: "aws",
				FieldCluster:  "eks",
			},
		},
		{
			name: "replica count rule",
			text: "run 3 replicas of redis",
			want: Entities{FieldApp: "redis", FieldReplicas: 3},
		},
		{
			name: "scale app to count",
			text: "scale backend to 5 in prod",
			want: Entities{FieldApp: "backend", FieldReplicas: 5, FieldNamespace: "prod"},
		},
		{
			name: "count rule beats scale rule",
			text: "scale to 4 with 2 pods for api",
			want: Entities{FieldApp: "api", FieldReplicas: 2},
		},
		{
			name:     "zero replicas kept",
			text:     "scale to 0",
			want:     Entities{FieldApp: "scale", FieldReplicas: 0},
			inferred: true,
		},
		{
			name: "scale app to zero",
			text: "scale nginx to 0 in prod",
			want: Entities{FieldApp: "nginx", FieldNamespace: "prod", FieldReplicas: 0},
		},
		{
			name: "zero replica count",
			text: "0 replicas of api",
			want: Entities{FieldApp: "api", FieldReplicas: 0},
		},
		{
			name: "count above int32 kept for callers to reject",
			text: "scale nginx to 4294967297",
			want: Entities{FieldApp: "nginx", FieldReplicas: 4294967297},
		},
		{
			name: "max int32 count",
			text: "scale nginx to 2147483647",
			want: Entities{FieldApp: "nginx", FieldReplicas: 2147483647},
		},
		{
			name: "overflowing digits clamp",
			text: "scale nginx to 99999999999999999999999",
			want: Entities{FieldApp: "nginx", FieldReplicas: math.MaxInt},
		},
		{
			name:     "app fallback",
			text:     "restart payments service",
			want:     Entities{FieldApp: "restart"},
			inferred: true,
		},
		{
			name: "target helm",
			text: "deploy api with helm",
			want: Entities{FieldApp: "api", FieldTarget: "helm"},
		},
		{
			name: "target kubernetes",
			text: "deploy api on kubernetes",
			want: Entities{FieldApp: "api", FieldTarget: "k8s"},
		},
		{
			name:     "repo token",
			text:     "pipeline for acme/payments failing",
			want:     Entities{FieldApp: "pipeline", FieldRepo: "acme/payments"},
			inferred: true,
		},
		{
			name: "image with path is not a repo",
			text: "deploy library/nginx:1.25",
			want: Entities{FieldApp: "nginx", FieldImage: "library/nginx:1.25"},
		},
		{
			name: "no alphabetic token",
			text: "12 34",
			want: Entities{},
		},
		{
			name: "empty",
			text: "",
			want: Entities{},
		},
	}

	x := NewExtractor()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := x.Parse(tt.text)
			assert.Equal(t, tt.want, got.Entities)
			assert.Equal(t, tt.inferred, got.Inferred[FieldApp])
		})
	}
}

func TestExtractor_NeverStoresEmptyValues(t *testing.T) {
	inputs := []string{
		"", " ", "delete everything", "v", ":", "0 replicas", "scale", "a/b:",
		"deploy nginx in prod scaled to 3", "why is the pipeline failing for backend",
	}
	x := NewExtractor()
	for _, in := range inputs {
		for f, v := range x.Parse(in).Entities {
			switch val := v.(type) {
			case string:
				assert.NotEmpty(t, val, "field %s for %q", f, in)
			case int:
				assert.GreaterOrEqual(t, val, 0, "field %s for %q", f, in)
			default:
				t.Fatalf("unexpected value type %T for %s", v, f)
			}
		}
	}
}

func TestValidReplicas(t *testing.T) {
	assert.True(t, ValidReplicas(0))
	assert.True(t, ValidReplicas(math.MaxInt32))
	assert.False(t, ValidReplicas(math.MaxInt32+1))
	assert.False(t, ValidReplicas(-1))
}

func TestEntities_Accessors(t *testing.T) {
	e := Entities{FieldApp: "nginx", FieldReplicas: 3}

	assert.Equal(t, "nginx", e.String(FieldApp))
	assert.Equal(t, "", e.String(FieldReplicas))
	n, ok := e.Int(FieldReplicas)
	require.True(t, ok)
	assert.Equal(t, 3, n)
	assert.True(t, e.Has(FieldApp))
	assert.False(t, e.Has(FieldImage))

	c := e.Clone()
	c[FieldApp] = "redis"
	assert.Equal(t, "nginx", e.String(FieldApp))

	var nilEntities Entities
	assert.NotNil(t, nilEntities.Clone())
}
