package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fyrsmithlabs/opsagent/internal/hooks"
	"github.com/fyrsmithlabs/opsagent/internal/router"
	"github.com/fyrsmithlabs/opsagent/internal/safety"
	"github.com/fyrsmithlabs/opsagent/internal/session"
	"github.com/fyrsmithlabs/opsagent/internal/workflow"
)

func TestNewRegistry(t *testing.T) {
	var _ Registry = (*registry)(nil)
}

func TestRegistryAccessors(t *testing.T) {
	reg := NewRegistry(Options{})

	assert.Nil(t, reg.Router())
	assert.Nil(t, reg.Sessions())
	assert.Nil(t, reg.Executor())
	assert.Nil(t, reg.Gate())
	assert.Nil(t, reg.Hooks())
	assert.Nil(t, reg.Scrubber())
	cloud, local := reg.Models()
	assert.Empty(t, cloud)
	assert.Empty(t, local)
}

func TestRegistryWithServices(t *testing.T) {
	hm := hooks.NewHookManager(nil)
	exec := workflow.NewExecutor(nil, workflow.Deps{})
	gate := safety.Default()
	rt := router.New(nil, gate, exec)
	store := session.NewStore(session.StoreConfig{MaxSessions: 4}, hm, nil)

	reg := NewRegistry(Options{
		Router:     rt,
		Sessions:   store,
		Executor:   exec,
		Hooks:      hm,
		CloudModel: "claude-sonnet-4-5",
		LocalModel: "llama3",
	})

	assert.Same(t, rt, reg.Router())
	assert.Same(t, store, reg.Sessions())
	assert.Same(t, exec, reg.Executor())
	assert.Same(t, gate, reg.Gate(), "gate falls back to the router's")
	assert.Same(t, hm, reg.Hooks())

	cloud, local := reg.Models()
	assert.Equal(t, "claude-sonnet-4-5", cloud)
	assert.Equal(t, "llama3", local)
}
