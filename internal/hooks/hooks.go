package hooks

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// HookType represents different lifecycle hooks
type HookType string

const (
	// HookSessionStart is called when a new session is created
	HookSessionStart HookType = "session_start"

	// HookSessionEnd is called when a session is deleted or expires
	HookSessionEnd HookType = "session_end"

	// HookBeforeClear is called before a session's context is cleared
	HookBeforeClear HookType = "before_clear"

	// HookAfterClear is called after a session's context is cleared
	HookAfterClear HookType = "after_clear"

	// HookAfterDispatch is called after each processed request
	HookAfterDispatch HookType = "after_dispatch"
)

// Data keys set by the built-in emitters.
const (
	KeySessionID = "session_id"
	KeyReason    = "reason"
	KeyIntent    = "intent"
	KeyWorkflow  = "workflow"
	KeyKind      = "kind"
)

// HookHandler is a function that handles a hook event
type HookHandler func(ctx context.Context, data map[string]interface{}) error

// HookManager manages lifecycle hooks. Safe for concurrent use.
type HookManager struct {
	config *Config

	mu       sync.RWMutex
	handlers map[HookType][]HookHandler
}

// NewHookManager creates a new hook manager. A nil config uses DefaultConfig.
func NewHookManager(config *Config) *HookManager {
	if config == nil {
		config = DefaultConfig()
	}
	return &HookManager{
		config:   config,
		handlers: make(map[HookType][]HookHandler),
	}
}

// RegisterHandler registers a handler for a hook type
func (h *HookManager) RegisterHandler(hookType HookType, handler HookHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[hookType] = append(h.handlers[hookType], handler)
}

// Execute runs all handlers for hookType in registration order. Each handler
// gets its own copy of data and, when configured, its own timeout.
func (h *HookManager) Execute(ctx context.Context, hookType HookType, data map[string]interface{}) error {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	handlers := append([]HookHandler(nil), h.handlers[hookType]...)
	h.mu.RUnlock()

	var errs []error
	for _, handler := range handlers {
		if err := h.run(ctx, handler, data); err != nil {
			err = fmt.Errorf("hook %s failed: %w", hookType, err)
			if h.config.StopOnError {
				return err
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *HookManager) run(ctx context.Context, handler HookHandler, data map[string]interface{}) (err error) {
	if h.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.Timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()

	cp := make(map[string]interface{}, len(data))
	for k, v := range data {
		cp[k] = v
	}
	return handler(ctx, cp)
}

// Count returns the number of handlers registered for hookType.
func (h *HookManager) Count(hookType HookType) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.handlers[hookType])
}

// Config returns the hook configuration
func (h *HookManager) Config() *Config {
	return h.config
}
