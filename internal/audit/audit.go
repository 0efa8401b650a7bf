// Package audit publishes one event per dispatched request.
//
// Events go to NATS on the subject
//
//	{prefix}.{session_id}.{kind}
//
// so consumers can subscribe per session (opsagent.dispatch.<id>.>) or per
// outcome (opsagent.dispatch.*.blocked).
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/opsagent/internal/logging"
	"github.com/fyrsmithlabs/opsagent/internal/secrets"
)

// DefaultSubjectPrefix is used when no prefix is configured.
const DefaultSubjectPrefix = "opsagent.dispatch"

// Event describes one dispatch.
type Event struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Raw       string    `json:"raw"`
	Intent    string    `json:"intent"`
	Workflow  string    `json:"workflow"`
	Kind      string    `json:"kind"`
	Allowed   bool      `json:"allowed"`
	At        time.Time `json:"at"`
}

// Publisher records dispatch events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop drops every event.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, Event) error { return nil }

// NATS publishes events as JSON on a NATS connection.
type NATS struct {
	nc     *nats.Conn
	prefix string
	scrub  *secrets.Scrubber
	owned  bool
	logger *logging.Logger
}

// NewNATS publishes on an existing connection. The caller keeps ownership
// of nc. scrub may be nil.
func NewNATS(nc *nats.Conn, prefix string, scrub *secrets.Scrubber, logger *logging.Logger) *NATS {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &NATS{nc: nc, prefix: strings.TrimSuffix(prefix, "."), scrub: scrub, logger: logger.Named("audit")}
}

// Connect dials url and returns a publisher that closes the connection on
// Close.
func Connect(url, prefix string, scrub *secrets.Scrubber, logger *logging.Logger) (*NATS, error) {
	nc, err := nats.Connect(url,
		nats.Name("opsagent"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats at %s: %w", url, err)
	}
	p := NewNATS(nc, prefix, scrub, logger)
	p.owned = true
	return p, nil
}

// Subject returns the subject e is published on.
func (p *NATS) Subject(e Event) string {
	return p.prefix + "." + token(e.SessionID) + "." + token(e.Kind)
}

// token makes s usable as a single subject token.
func token(s string) string {
	if s == "" {
		return "none"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, s)
}

// Publish fills in ID and At when unset, redacts Raw and publishes.
func (p *NATS) Publish(ctx context.Context, e Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	e.Raw = p.scrub.Clean(e.Raw)

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	subject := p.Subject(e)
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	p.logger.Debug(ctx, "audit event published", zap.String("subject", subject), zap.String("event_id", e.ID))
	return nil
}

// Flush waits until the server has processed published events.
func (p *NATS) Flush(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		return p.nc.Flush()
	}
	return p.nc.FlushWithContext(ctx)
}

// Close drains the connection if Connect opened it.
func (p *NATS) Close() error {
	if !p.owned || p.nc == nil {
		return nil
	}
	return p.nc.Drain()
}

// Shutdown flushes pending events and closes an owned connection.
func (p *NATS) Shutdown(ctx context.Context) error {
	if p.nc == nil || p.nc.IsClosed() {
		return nil
	}
	if err := p.Flush(ctx); err != nil {
		p.logger.Warn(ctx, "audit flush failed", zap.Error(err))
	}
	return p.Close()
}

// Recorder keeps events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Publish implements Publisher.
func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}
