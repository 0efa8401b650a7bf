// Package llm explains workflow output with a language model.
//
// HybridLLM prefers a cloud model (Anthropic or OpenAI) and falls back to a
// local Ollama model when the cloud call fails or no cloud model is
// configured. All calls share one rate limiter.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/opsagent/internal/config"
	"github.com/fyrsmithlabs/opsagent/internal/logging"
)

// Providers accepted in llm.provider.
const (
	ProviderAuto      = "auto"
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
	ProviderNone      = "none"
)

const (
	defaultAnthropicModel = "claude-3-5-sonnet-20241022"
	defaultOpenAIModel    = "gpt-4o-mini"
	defaultLocalModel     = "llama3"
	defaultMaxTokens      = 512
	defaultTimeout        = 60 * time.Second

	// maxInputChars bounds the tool output sent in one prompt.
	maxInputChars = 12000
)

var (
	// ErrDisabled is returned by New when llm.provider is none.
	ErrDisabled = errors.New("llm disabled")
	// ErrNoModel is returned when neither a cloud nor a local model is set.
	ErrNoModel = errors.New("no language model configured")
)

// Options tune a HybridLLM.
type Options struct {
	MaxTokens int
	RateLimit float64 // requests per second, <= 0 means unlimited
	Burst     int
	Timeout   time.Duration
}

// HybridLLM routes prompts to a cloud model with a local fallback.
type HybridLLM struct {
	cloud     llms.Model
	local     llms.Model
	cloudName string
	localName string

	limiter   *rate.Limiter
	maxTokens int
	timeout   time.Duration
	logger    *logging.Logger
}

// NewHybrid wraps already constructed models. Either may be nil.
func NewHybrid(cloud, local llms.Model, opts Options, logger *logging.Logger) *HybridLLM {
	if logger == nil {
		logger = logging.NewNop()
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	return &HybridLLM{
		cloud:     cloud,
		local:     local,
		cloudName: "cloud",
		localName: "local",
		limiter:   rate.NewLimiter(limit, opts.Burst),
		maxTokens: opts.MaxTokens,
		timeout:   opts.Timeout,
		logger:    logger.Named("llm"),
	}
}

// New builds the models named by cfg. With provider auto, a set API key
// selects OpenAI for gpt-* models and Anthropic otherwise, and Ollama is
// always configured as the fallback.
func New(cfg config.LLMConfig, logger *logging.Logger) (*HybridLLM, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = ProviderAuto
	}
	if provider == ProviderNone {
		return nil, ErrDisabled
	}

	var (
		cloud     llms.Model
		cloudName string
		err       error
	)
	switch provider {
	case ProviderAuto:
		if cfg.APIKey.IsSet() {
			cloudName = ProviderAnthropic
			if strings.HasPrefix(cfg.Model, "gpt") {
				cloudName = ProviderOpenAI
			}
		}
	case ProviderAnthropic, ProviderOpenAI:
		if !cfg.APIKey.IsSet() {
			return nil, fmt.Errorf("llm.api_key required for provider %s", provider)
		}
		cloudName = provider
	case ProviderOllama:
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}

	switch cloudName {
	case ProviderAnthropic:
		cloud, err = anthropic.New(
			anthropic.WithToken(cfg.APIKey.Value()),
			anthropic.WithModel(orDefault(cfg.Model, defaultAnthropicModel)),
		)
	case ProviderOpenAI:
		cloud, err = openai.New(
			openai.WithToken(cfg.APIKey.Value()),
			openai.WithModel(orDefault(cfg.Model, defaultOpenAIModel)),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s model: %w", cloudName, err)
	}

	localOpts := []ollama.Option{ollama.WithModel(orDefault(cfg.LocalModel, defaultLocalModel))}
	if cfg.OllamaURL != "" {
		localOpts = append(localOpts, ollama.WithServerURL(cfg.OllamaURL))
	}
	local, err := ollama.New(localOpts...)
	if err != nil {
		return nil, fmt.Errorf("create ollama model: %w", err)
	}

	h := NewHybrid(cloud, local, Options{
		MaxTokens: cfg.MaxTokens,
		RateLimit: cfg.RateLimit,
		Burst:     cfg.Burst,
		Timeout:   cfg.Timeout.Duration(),
	}, logger)
	if cloudName != "" {
		h.cloudName = cloudName
	}
	h.localName = ProviderOllama
	return h, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// Generate sends prompt to the cloud model, then to the local model if the
// cloud call fails.
func (h *HybridLLM) Generate(ctx context.Context, prompt string) (string, error) {
	if h.cloud == nil && h.local == nil {
		return "", ErrNoModel
	}
	if err := h.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	var errs []error
	for _, m := range []struct {
		name  string
		model llms.Model
	}{{h.cloudName, h.cloud}, {h.localName, h.local}} {
		if m.model == nil {
			continue
		}
		out, err := h.call(ctx, m.model, prompt)
		if err == nil {
			return out, nil
		}
		h.logger.Warn(ctx, "model call failed", zap.String("model", m.name), zap.Error(err))
		errs = append(errs, fmt.Errorf("%s: %w", m.name, err))
		if ctx.Err() != nil {
			break
		}
	}
	return "", errors.Join(errs...)
}

func (h *HybridLLM) call(ctx context.Context, model llms.Model, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	out, err := llms.GenerateFromSinglePrompt(ctx, model, prompt,
		llms.WithMaxTokens(h.maxTokens),
		llms.WithTemperature(0.2),
	)
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", errors.New("empty response")
	}
	return out, nil
}

// Explain asks for a short operator-facing explanation of text, which is
// raw output gathered about topic.
func (h *HybridLLM) Explain(ctx context.Context, topic, text string) (string, error) {
	return h.Generate(ctx, explainPrompt(topic, text))
}

func explainPrompt(topic, text string) string {
	if len(text) > maxInputChars {
		text = text[len(text)-maxInputChars:]
	}
	var b strings.Builder
	b.WriteString("You are assisting a DevOps engineer. Explain the following ")
	b.WriteString(topic)
	b.WriteString(" in simple language. Name the most likely cause of any problem and one concrete next step. ")
	b.WriteString("Answer in at most five sentences.\n\n")
	b.WriteString(text)
	return b.String()
}

// Models reports which models are configured, for status output.
func (h *HybridLLM) Models() (cloud, local string) {
	if h.cloud != nil {
		cloud = h.cloudName
	}
	if h.local != nil {
		local = h.localName
	}
	return cloud, local
}
