package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/client-go/kubernetes/fake"

	httpapi "github.com/fyrsmithlabs/opsagent/internal/http"
	"github.com/fyrsmithlabs/opsagent/internal/nlp"
	"github.com/fyrsmithlabs/opsagent/internal/router"
	"github.com/fyrsmithlabs/opsagent/internal/session"
	"github.com/fyrsmithlabs/opsagent/internal/tools/kube"
	"github.com/fyrsmithlabs/opsagent/internal/workflow"
)

func newTestREPL(in io.Reader) (*repl, *bytes.Buffer) {
	var out bytes.Buffer
	exec := workflow.NewExecutor(nil, workflow.Deps{Kube: kube.New(fake.NewSimpleClientset())})
	return &repl{
		router:  router.New(nil, nil, exec),
		session: session.New(),
		in:      in,
		out:     &out,
		styles:  newStyles(&out),
		policy:  "enforce",
	}, &out
}

func TestREPL_Run(t *testing.T) {
	r, out := newTestREPL(strings.NewReader("deploy nginx\n\nhelp\ndelete namespace prod\nQUIT\ndeploy api\n"))

	require.NoError(t, r.run(context.Background()))

	got := out.String()
	assert.Contains(t, got, "safety policy: enforce")
	assert.Contains(t, got, "Created deployment default/nginx (image nginx, 1 replicas)")
	assert.Contains(t, got, "Invalid query.")
	assert.Contains(t, got, "Recognized requests")
	assert.Contains(t, got, "Safety blocked: destructive action 'delete namespace' blocked")
	assert.NotContains(t, got, "default/api", "input after quit is never read")

	assert.Equal(t, "nginx", r.session.Memory.GetString(string(nlp.FieldApp)))
}

func TestREPL_OneLinePerRequest(t *testing.T) {
	r, out := newTestREPL(strings.NewReader("deploy nginx\nhello there\n"))

	require.NoError(t, r.run(context.Background()))

	got := out.String()
	assert.Equal(t, 3, strings.Count(got, prompt), "two requests then EOF")
	assert.Contains(t, got, prompt+"Unknown intent: UNKNOWN\n")
}

func TestREPL_LongLine(t *testing.T) {
	long := "deploy nginx " + strings.Repeat("x", 100*1024)
	r, out := newTestREPL(strings.NewReader(long + "\nhello there\n"))

	require.NoError(t, r.run(context.Background()))

	got := out.String()
	assert.Contains(t, got, "Created deployment default/nginx")
	assert.Contains(t, got, "Unknown intent: UNKNOWN")
}

func TestREPL_StopsOnCancel(t *testing.T) {
	pr, pw := io.Pipe()
	t.Cleanup(func() { _ = pw.Close() })

	r, _ := newTestREPL(pr)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- r.run(ctx) }()
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("repl did not stop")
	}
}

func TestIsExit(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{"exit", true},
		{"EXIT", true},
		{"Quit", true},
		{" q ", true},
		{"quit now", false},
		{"deploy q", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			assert.Equal(t, tt.want, isExit(tt.line))
		})
	}
}

func TestREPL_Banner(t *testing.T) {
	tests := []struct {
		name         string
		cloud, local string
		want         string
	}{
		{"both", "claude-3-5-haiku-latest", "llama3", "models: claude-3-5-haiku-latest, llama3 (fallback)"},
		{"local only", "", "llama3", "model: llama3"},
		{"none", "", "", "explanations off"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newTestREPL(strings.NewReader(""))
			r.cloud, r.local = tt.cloud, tt.local
			assert.Contains(t, r.banner(), tt.want)
		})
	}
}

func TestWritePlan(t *testing.T) {
	preview, err := router.New(nil, nil, nil).Preview(context.Background(), "deploy nginx in prod scaled to 3")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, writePlan(&buf, preview))

	var got struct {
		Plan struct {
			Intent   string         `json:"intent"`
			Workflow string         `json:"workflow"`
			Entities map[string]any `json:"entities"`
		} `json:"plan"`
		Decision struct {
			Allowed bool   `json:"allowed"`
			Reason  string `json:"reason"`
		} `json:"decision"`
		Policy string `json:"policy"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "DEPLOY", got.Plan.Intent)
	assert.Equal(t, "deploy", got.Plan.Workflow)
	assert.Equal(t, "nginx", got.Plan.Entities["app"])
	assert.Equal(t, "prod", got.Plan.Entities["namespace"])
	assert.Equal(t, float64(3), got.Plan.Entities["replicas"])
	assert.True(t, got.Decision.Allowed)
	assert.Equal(t, "enforce", got.Policy)
}

func TestRunHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/health", r.URL.Path)
		_ = json.NewEncoder(w).Encode(httpapi.HealthResponse{
			Status:   "ok",
			Version:  "1.2.3",
			Policy:   "enforce",
			Sessions: 2,
			Models:   map[string]string{"local": "llama3", "cloud": "gpt-4o-mini"},
		})
	}))
	defer srv.Close()

	prev := serverURL
	serverURL = srv.URL
	t.Cleanup(func() { serverURL = prev })

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	cmd.SetContext(context.Background())

	require.NoError(t, runHealth(cmd, nil))
	got := out.String()
	assert.Contains(t, got, "Server Status:   ok")
	assert.Contains(t, got, "Active Sessions: 2")
	assert.Less(t, strings.Index(got, "Model (cloud)"), strings.Index(got, "Model (local)"))
}

func TestRunHealth_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "draining", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	prev := serverURL
	serverURL = srv.URL
	t.Cleanup(func() { serverURL = prev })

	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	err := runHealth(cmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestPrintVersion(t *testing.T) {
	var buf bytes.Buffer
	printVersion(&buf)
	assert.Contains(t, buf.String(), "Version:    dev")
}
