package services

import (
	"github.com/fyrsmithlabs/opsagent/internal/hooks"
	"github.com/fyrsmithlabs/opsagent/internal/router"
	"github.com/fyrsmithlabs/opsagent/internal/safety"
	"github.com/fyrsmithlabs/opsagent/internal/secrets"
	"github.com/fyrsmithlabs/opsagent/internal/session"
	"github.com/fyrsmithlabs/opsagent/internal/workflow"
)

// Registry provides access to the opsagent services.
type Registry interface {
	Router() *router.Router
	Sessions() *session.Store
	Executor() *workflow.Executor
	Gate() *safety.Gate
	Hooks() *hooks.HookManager
	Scrubber() *secrets.Scrubber
	Models() (cloud, local string)
}

// Options configures the registry with service instances.
type Options struct {
	Router   *router.Router
	Sessions *session.Store
	Executor *workflow.Executor
	Gate     *safety.Gate
	Hooks    *hooks.HookManager
	Scrubber *secrets.Scrubber

	// CloudModel and LocalModel name the explanation models, empty when
	// none is configured.
	CloudModel string
	LocalModel string
}

type registry struct {
	router   *router.Router
	sessions *session.Store
	executor *workflow.Executor
	gate     *safety.Gate
	hooks    *hooks.HookManager
	scrubber *secrets.Scrubber
	cloud    string
	local    string
}

// NewRegistry creates a new service registry. A nil Gate falls back to the
// router's gate.
func NewRegistry(opts Options) Registry {
	gate := opts.Gate
	if gate == nil && opts.Router != nil {
		gate = opts.Router.Gate()
	}
	return &registry{
		router:   opts.Router,
		sessions: opts.Sessions,
		executor: opts.Executor,
		gate:     gate,
		hooks:    opts.Hooks,
		scrubber: opts.Scrubber,
		cloud:    opts.CloudModel,
		local:    opts.LocalModel,
	}
}

func (r *registry) Router() *router.Router        { return r.router }
func (r *registry) Sessions() *session.Store      { return r.sessions }
func (r *registry) Executor() *workflow.Executor  { return r.executor }
func (r *registry) Gate() *safety.Gate            { return r.gate }
func (r *registry) Hooks() *hooks.HookManager     { return r.hooks }
func (r *registry) Scrubber() *secrets.Scrubber   { return r.scrubber }
func (r *registry) Models() (cloud, local string) { return r.cloud, r.local }
