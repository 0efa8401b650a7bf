package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/fyrsmithlabs/opsagent/internal/config"
)

type fakeModel struct {
	reply   string
	err     error
	prompts []string
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	for _, m := range messages {
		for _, p := range m.Parts {
			if text, ok := p.(llms.TextContent); ok {
				f.prompts = append(f.prompts, text.Text)
			}
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.reply}}}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func TestGenerate_Routing(t *testing.T) {
	tests := []struct {
		name      string
		cloud     *fakeModel
		local     *fakeModel
		want      string
		wantErr   string
		localUsed bool
	}{
		{
			name:  "cloud answers",
			cloud: &fakeModel{reply: "cloud says hi"},
			local: &fakeModel{reply: "local says hi"},
			want:  "cloud says hi",
		},
		{
			name:      "cloud fails, local answers",
			cloud:     &fakeModel{err: errors.New("401 unauthorized")},
			local:     &fakeModel{reply: "local says hi"},
			want:      "local says hi",
			localUsed: true,
		},
		{
			name:      "empty cloud reply falls back",
			cloud:     &fakeModel{reply: "   "},
			local:     &fakeModel{reply: "local says hi"},
			want:      "local says hi",
			localUsed: true,
		},
		{
			name:      "local only",
			local:     &fakeModel{reply: "local says hi"},
			want:      "local says hi",
			localUsed: true,
		},
		{
			name:      "both fail",
			cloud:     &fakeModel{err: errors.New("overloaded")},
			local:     &fakeModel{err: errors.New("connection refused")},
			wantErr:   "connection refused",
			localUsed: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cloud, local llms.Model
			if tt.cloud != nil {
				cloud = tt.cloud
			}
			if tt.local != nil {
				local = tt.local
			}
			h := NewHybrid(cloud, local, Options{}, nil)

			out, err := h.Generate(context.Background(), "hello")
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, out)
			}
			if tt.local != nil {
				assert.Equal(t, tt.localUsed, len(tt.local.prompts) > 0)
			}
		})
	}
}

func TestGenerate_NoModel(t *testing.T) {
	_, err := NewHybrid(nil, nil, Options{}, nil).Generate(context.Background(), "hello")
	require.ErrorIs(t, err, ErrNoModel)
}

func TestGenerate_RateLimited(t *testing.T) {
	m := &fakeModel{reply: "ok"}
	h := NewHybrid(m, nil, Options{RateLimit: 0.001, Burst: 1}, nil)

	_, err := h.Generate(context.Background(), "first")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = h.Generate(ctx, "second")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limiter")
	assert.Len(t, m.prompts, 1)
}

func TestExplain_Prompt(t *testing.T) {
	m := &fakeModel{reply: "The api pod is crash looping."}
	h := NewHybrid(m, nil, Options{}, nil)

	out, err := h.Explain(context.Background(), "debug results for prod/api", "[pods]\napi-1 Running not-ready")
	require.NoError(t, err)
	assert.Equal(t, "The api pod is crash looping.", out)
	require.Len(t, m.prompts, 1)
	assert.Contains(t, m.prompts[0], "debug results for prod/api")
	assert.True(t, strings.HasSuffix(m.prompts[0], "[pods]\napi-1 Running not-ready"))
}

func TestExplainPrompt_KeepsTail(t *testing.T) {
	text := strings.Repeat("a", maxInputChars) + "END"
	p := explainPrompt("logs", text)
	assert.True(t, strings.HasSuffix(p, "END"))
	assert.Less(t, len(p), maxInputChars+500)
}

func TestNew_Providers(t *testing.T) {
	t.Run("none", func(t *testing.T) {
		_, err := New(config.LLMConfig{Provider: "none"}, nil)
		require.ErrorIs(t, err, ErrDisabled)
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := New(config.LLMConfig{Provider: "bard"}, nil)
		require.Error(t, err)
	})

	t.Run("cloud provider needs a key", func(t *testing.T) {
		_, err := New(config.LLMConfig{Provider: "anthropic"}, nil)
		require.Error(t, err)
	})

	t.Run("auto without key is local only", func(t *testing.T) {
		h, err := New(config.LLMConfig{Provider: "auto", OllamaURL: "http://127.0.0.1:11434"}, nil)
		require.NoError(t, err)
		cloud, local := h.Models()
		assert.Empty(t, cloud)
		assert.Equal(t, "ollama", local)
	})

	t.Run("auto with key and gpt model", func(t *testing.T) {
		h, err := New(config.LLMConfig{Provider: "auto", APIKey: "sk-test", Model: "gpt-4o-mini"}, nil)
		require.NoError(t, err)
		cloud, _ := h.Models()
		assert.Equal(t, "openai", cloud)
	})

	t.Run("auto with key defaults to anthropic", func(t *testing.T) {
		h, err := New(config.LLMConfig{Provider: "auto", APIKey: "sk-ant-test"}, nil)
		require.NoError(t, err)
		cloud, _ := h.Models()
		assert.Equal(t, "anthropic", cloud)
	})
}
