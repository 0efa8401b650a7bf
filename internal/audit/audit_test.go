package audit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/opsagent/internal/secrets"
)

func startNATS(t *testing.T) *natsserver.Server {
	t.Helper()
	srv, err := natsserver.NewServer(&natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	})
	require.NoError(t, err)
	go srv.Start()
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("nats server not ready")
	}
	t.Cleanup(func() {
		srv.Shutdown()
		srv.WaitForShutdown()
	})
	return srv
}

func TestNATS_Publish(t *testing.T) {
	srv := startNATS(t)
	sub, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	defer sub.Close()

	msgs := make(chan *nats.Msg, 4)
	s, err := sub.ChanSubscribe("opsagent.dispatch.>", msgs)
	require.NoError(t, err)
	defer func() { _ = s.Unsubscribe() }()
	require.NoError(t, sub.Flush())

	scrub, err := secrets.New(secrets.DefaultConfig())
	require.NoError(t, err)
	pub, err := Connect(srv.ClientURL(), "", scrub, nil)
	require.NoError(t, err)
	defer func() { _ = pub.Close() }()

	ctx := context.Background()
	require.NoError(t, pub.Publish(ctx, Event{
		SessionID: "0b5c",
		Raw:       "deploy api with token ghp_" + "abcdefghijklmnopqrstuvwxyz0123456789",
		Intent:    "DEPLOY",
		Workflow:  "deploy",
		Kind:      "ok",
		Allowed:   true,
	}))
	require.NoError(t, pub.Flush(ctx))

	select {
	case msg := <-msgs:
		assert.Equal(t, "opsagent.dispatch.0b5c.ok", msg.Subject)
		var got Event
		require.NoError(t, json.Unmarshal(msg.Data, &got))
		assert.NotEmpty(t, got.ID)
		assert.False(t, got.At.IsZero())
		assert.Equal(t, "deploy api with token [REDACTED]", got.Raw)
		assert.Equal(t, "deploy", got.Workflow)
		assert.True(t, got.Allowed)
	case <-time.After(5 * time.Second):
		t.Fatal("no audit event received")
	}
}

func TestSubject(t *testing.T) {
	p := NewNATS(nil, "ops.audit.", nil, nil)
	tests := []struct {
		session, kind, want string
	}{
		{"abc", "blocked", "ops.audit.abc.blocked"},
		{"", "ok", "ops.audit.none.ok"},
		{"a.b*c>", "unknown_intent", "ops.audit.a_b_c_.unknown_intent"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Subject(Event{SessionID: tt.session, Kind: tt.kind}))
		})
	}
}

func TestRecorder(t *testing.T) {
	var r Recorder
	require.NoError(t, r.Publish(context.Background(), Event{Kind: "ok"}))
	require.NoError(t, Nop{}.Publish(context.Background(), Event{}))
	events := r.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "ok", events[0].Kind)
}
