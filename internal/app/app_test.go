package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/fyrsmithlabs/opsagent/internal/audit"
	"github.com/fyrsmithlabs/opsagent/internal/config"
	"github.com/fyrsmithlabs/opsagent/internal/logging"
	"github.com/fyrsmithlabs/opsagent/internal/tools/kube"
	"github.com/fyrsmithlabs/opsagent/internal/workflow"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.LLM.Provider = "none"
	cfg.Kube.Enabled = false
	cfg.Docker.Enabled = false
	cfg.Helm.Enabled = false
	return cfg
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Safety.Policy = "sometimes"

	_, err := New(context.Background(), cfg, "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "safety.policy")
}

func TestApp_Services(t *testing.T) {
	ctx := context.Background()
	rec := &audit.Recorder{}
	a, err := New(ctx, testConfig(), "test",
		WithLogger(logging.NewNop()),
		WithAudit(rec),
		WithDeps(workflow.Deps{Kube: kube.New(fake.NewSimpleClientset())}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	reg, err := a.Services()
	require.NoError(t, err)
	require.NotNil(t, reg.Router())
	require.NotNil(t, reg.Sessions())
	assert.True(t, reg.Gate().Enforced())
	assert.True(t, reg.Scrubber().Enabled())

	cloud, local := reg.Models()
	assert.Empty(t, cloud)
	assert.Empty(t, local)

	sess, err := reg.Sessions().Create(ctx)
	require.NoError(t, err)

	res := reg.Router().Process(ctx, sess, "deploy nginx")
	require.Equal(t, workflow.KindOK, res.Kind, res.Message())
	assert.Equal(t, "Created deployment default/nginx (image nginx, 1 replicas)", res.Message())

	res = reg.Router().Process(ctx, sess, "delete namespace prod")
	assert.Equal(t, workflow.KindBlocked, res.Kind)

	events := rec.Events()
	require.Len(t, events, 2)
	assert.Equal(t, sess.ID, events[0].SessionID)
}

func TestApp_ServicesAreShared(t *testing.T) {
	a, err := New(context.Background(), testConfig(), "test",
		WithLogger(logging.NewNop()),
		WithDeps(workflow.Deps{}),
	)
	require.NoError(t, err)

	first, err := a.Services()
	require.NoError(t, err)
	second, err := a.Services()
	require.NoError(t, err)
	assert.Same(t, first.Router(), second.Router())
	assert.Same(t, first.Sessions(), second.Sessions())

	require.NoError(t, a.Close(context.Background()))
}

func TestBuildDeps_SkipsUnconfigured(t *testing.T) {
	cfg := testConfig()
	cfg.GitHub.BaseURL = "https://github.example.com/api/v3"
	cfg.Cost.KubecostURL = "not a url"

	deps := buildDeps(context.Background(), cfg, nil, logging.NewNop())
	assert.Nil(t, deps.Kube)
	assert.Nil(t, deps.Docker)
	assert.Nil(t, deps.Helm)
	assert.Nil(t, deps.Monitor)
	assert.Nil(t, deps.Cost, "invalid kubecost url is left out")
	assert.NotNil(t, deps.CICD)
	assert.NotNil(t, deps.Terraform)
	assert.Equal(t, "k8s", deps.Settings.DefaultTarget)
	assert.Equal(t, "7d", deps.Settings.CostWindow)
}
