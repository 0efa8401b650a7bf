package session

import (
	"errors"
	"fmt"
	"sync"
)

// Slot names one of the fixed execution-state fields of a Context.
type Slot string

const (
	SlotWorkflow   Slot = "workflow"
	SlotPhase      Slot = "phase"
	SlotLastAction Slot = "last_action"
	SlotLastResult Slot = "last_result"
	SlotStatus     Slot = "status"
)

// Slots lists every Context slot.
var Slots = []Slot{SlotWorkflow, SlotPhase, SlotLastAction, SlotLastResult, SlotStatus}

// ErrUnknownSlot is returned when a write names a slot outside Slots.
var ErrUnknownSlot = errors.New("unknown context slot")

func validSlot(s Slot) bool {
	switch s {
	case SlotWorkflow, SlotPhase, SlotLastAction, SlotLastResult, SlotStatus:
		return true
	}
	return false
}

// Context is the short-lived execution state of a session: what ran last and
// how it went. Every slot starts nil and only the latest value is kept.
type Context struct {
	mu     sync.RWMutex
	values map[Slot]any
}

// NewContext returns a Context with every slot nil.
func NewContext() *Context {
	return &Context{values: baseline()}
}

func baseline() map[Slot]any {
	m := make(map[Slot]any, len(Slots))
	for _, s := range Slots {
		m[s] = nil
	}
	return m
}

// Set writes one slot.
func (c *Context) Set(slot Slot, value any) error {
	if !validSlot(slot) {
		return fmt.Errorf("%w: %q", ErrUnknownSlot, slot)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[slot] = value
	return nil
}

// Update overwrites the given slots and leaves the others as they are. If
// any key is not a slot nothing is written.
func (c *Context) Update(values map[Slot]any) error {
	for s := range values {
		if !validSlot(s) {
			return fmt.Errorf("%w: %q", ErrUnknownSlot, s)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for s, v := range values {
		c.values[s] = v
	}
	return nil
}

// Get returns the value of slot, or nil.
func (c *Context) Get(slot Slot) any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.values[slot]
}

// GetString returns the slot value when it is a string.
func (c *Context) GetString(slot Slot) string {
	s, _ := c.Get(slot).(string)
	return s
}

// GetAll returns a copy holding all five slots.
func (c *Context) GetAll() map[Slot]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[Slot]any, len(c.values))
	for s, v := range c.values {
		out[s] = v
	}
	return out
}

// Clear resets every slot to nil. Calling it repeatedly is harmless.
func (c *Context) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values = baseline()
}
