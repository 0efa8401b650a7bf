// Package config loads opsagent configuration from a YAML file and
// OPSAGENT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Config holds the complete opsagent configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Logging    LoggingConfig    `koanf:"logging"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
	Safety     SafetyConfig     `koanf:"safety"`
	Session    SessionConfig    `koanf:"session"`
	Deploy     DeployConfig     `koanf:"deploy"`
	LLM        LLMConfig        `koanf:"llm"`
	Kube       KubeConfig       `koanf:"kube"`
	Docker     DockerConfig     `koanf:"docker"`
	Helm       HelmConfig       `koanf:"helm"`
	GitHub     GitHubConfig     `koanf:"github"`
	Prometheus PrometheusConfig `koanf:"prometheus"`
	Cost       CostConfig       `koanf:"cost"`
	Terraform  TerraformConfig  `koanf:"terraform"`
	NATS       NATSConfig       `koanf:"nats"`
	Secrets    SecretsConfig    `koanf:"secrets"`
	Hooks      HooksConfig      `koanf:"hooks"`
}

// ServerConfig holds HTTP server configuration for opsagentd.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig selects log level and encoding.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// TelemetryConfig holds OpenTelemetry export settings.
type TelemetryConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Endpoint    string  `koanf:"endpoint"`
	Protocol    string  `koanf:"protocol"` // grpc or http/protobuf
	Insecure    bool    `koanf:"insecure"`
	ServiceName string  `koanf:"service_name"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// SafetyConfig controls the destructive-action gate.
type SafetyConfig struct {
	// Policy is "enforce" (check every plan before dispatch) or "off"
	// (the gate is only consulted by workflows for sub-actions).
	Policy       string   `koanf:"policy"`
	AllowDestroy bool     `koanf:"allow_destroy"`
	Destructive  []string `koanf:"destructive"`
	Protected    []string `koanf:"protected"`
}

// SessionConfig bounds the per-session state kept by opsagentd.
type SessionConfig struct {
	IdleTimeout Duration `koanf:"idle_timeout"`
	MaxSessions int      `koanf:"max_sessions"`
}

// DeployConfig holds defaults used by the deploy and rollback workflows.
type DeployConfig struct {
	DefaultTarget string `koanf:"default_target"`
	ChartsDir     string `koanf:"charts_dir"`
}

// LLMConfig configures the explanation model.
type LLMConfig struct {
	// Provider is auto, anthropic, openai, ollama or none. auto picks a cloud
	// provider when an API key is set and falls back to the local model.
	Provider   string   `koanf:"provider"`
	Model      string   `koanf:"model"`
	APIKey     Secret   `koanf:"api_key"`
	LocalModel string   `koanf:"local_model"`
	OllamaURL  string   `koanf:"ollama_url"`
	MaxTokens  int      `koanf:"max_tokens"`
	RateLimit  float64  `koanf:"rate_limit"` // requests per second
	Burst      int      `koanf:"burst"`
	Timeout    Duration `koanf:"timeout"`
}

// KubeConfig points at the cluster used by Kubernetes workflows.
type KubeConfig struct {
	Enabled    bool   `koanf:"enabled"`
	Kubeconfig string `koanf:"kubeconfig"`
	Context    string `koanf:"context"`
}

// DockerConfig enables the local Docker backend.
type DockerConfig struct {
	Enabled bool   `koanf:"enabled"`
	Host    string `koanf:"host"`
}

// HelmConfig configures the Helm backend.
type HelmConfig struct {
	Enabled bool     `koanf:"enabled"`
	Driver  string   `koanf:"driver"`
	Timeout Duration `koanf:"timeout"`
}

// GitHubConfig configures pipeline lookups.
type GitHubConfig struct {
	Token       Secret `koanf:"token"`
	BaseURL     string `koanf:"base_url"`
	DefaultRepo string `koanf:"default_repo"`
	RepoPath    string `koanf:"repo_path"`
}

// PrometheusConfig points at the alerting backend.
type PrometheusConfig struct {
	URL string `koanf:"url"`
}

// CostConfig points at a Kubecost allocation API.
type CostConfig struct {
	KubecostURL string `koanf:"kubecost_url"`
	Window      string `koanf:"window"`
}

// TerraformConfig locates the terraform binary and working directory.
type TerraformConfig struct {
	Binary string `koanf:"binary"`
	Dir    string `koanf:"dir"`
}

// NATSConfig enables dispatch audit events.
type NATSConfig struct {
	URL           string `koanf:"url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// SecretsConfig controls output scrubbing.
type SecretsConfig struct {
	Enabled       bool   `koanf:"enabled"`
	AllowlistFile string `koanf:"allowlist_file"`
}

// HooksConfig controls session lifecycle hook execution.
type HooksConfig struct {
	// StopOnError aborts the remaining handlers of an event after the first
	// failure. Otherwise every handler runs and failures are joined.
	StopOnError bool     `koanf:"stop_on_error"`
	Timeout     Duration `koanf:"timeout"`
	// ClearMemoryWithContext also wipes Memory when a session's Context is
	// cleared.
	ClearMemoryWithContext bool `koanf:"clear_memory_with_context"`
}

// Default returns the configuration used when no file or environment
// override is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "localhost",
			Port:            9191,
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Telemetry: TelemetryConfig{
			Endpoint:    "localhost:4317",
			Protocol:    "grpc",
			Insecure:    true,
			ServiceName: "opsagent",
			SampleRate:  1.0,
		},
		Safety: SafetyConfig{
			Policy: "enforce",
		},
		Session: SessionConfig{
			IdleTimeout: Duration(30 * time.Minute),
			MaxSessions: 256,
		},
		Deploy: DeployConfig{
			DefaultTarget: "k8s",
			ChartsDir:     "./charts",
		},
		LLM: LLMConfig{
			Provider:   "auto",
			LocalModel: "llama3",
			OllamaURL:  "http://localhost:11434",
			MaxTokens:  512,
			RateLimit:  1,
			Burst:      2,
			Timeout:    Duration(60 * time.Second),
		},
		Kube: KubeConfig{
			Enabled: true,
		},
		Docker: DockerConfig{
			Enabled: true,
		},
		Helm: HelmConfig{
			Enabled: true,
			Driver:  "secret",
			Timeout: Duration(5 * time.Minute),
		},
		GitHub: GitHubConfig{
			RepoPath: ".",
		},
		Cost: CostConfig{
			Window: "7d",
		},
		Terraform: TerraformConfig{
			Binary: "terraform",
			Dir:    "./infra",
		},
		NATS: NATSConfig{
			SubjectPrefix: "opsagent.dispatch",
		},
		Secrets: SecretsConfig{
			Enabled: true,
		},
		Hooks: HooksConfig{
			Timeout: Duration(5 * time.Second),
		},
	}
}

var (
	validTargets   = []string{"docker", "k8s", "helm", "terraform", "cloud"}
	validProviders = []string{"auto", "anthropic", "openai", "ollama", "none"}
)

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must be positive"))
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format))
	}

	if c.Telemetry.Enabled {
		if c.Telemetry.Endpoint == "" {
			errs = append(errs, errors.New("telemetry.endpoint is required when telemetry is enabled"))
		}
		if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
			errs = append(errs, fmt.Errorf("telemetry.sample_rate must be between 0 and 1, got %v", c.Telemetry.SampleRate))
		}
	}

	switch c.Safety.Policy {
	case "enforce", "off":
	default:
		errs = append(errs, fmt.Errorf("safety.policy must be enforce or off, got %q", c.Safety.Policy))
	}

	if c.Session.MaxSessions < 1 {
		errs = append(errs, fmt.Errorf("session.max_sessions must be positive, got %d", c.Session.MaxSessions))
	}

	if !slices.Contains(validTargets, c.Deploy.DefaultTarget) {
		errs = append(errs, fmt.Errorf("deploy.default_target must be one of %s, got %q",
			strings.Join(validTargets, ", "), c.Deploy.DefaultTarget))
	}

	if !slices.Contains(validProviders, c.LLM.Provider) {
		errs = append(errs, fmt.Errorf("llm.provider must be one of %s, got %q",
			strings.Join(validProviders, ", "), c.LLM.Provider))
	}
	if (c.LLM.Provider == "anthropic" || c.LLM.Provider == "openai") && !c.LLM.APIKey.IsSet() {
		errs = append(errs, fmt.Errorf("llm.api_key is required for provider %s", c.LLM.Provider))
	}
	if c.LLM.RateLimit <= 0 {
		errs = append(errs, errors.New("llm.rate_limit must be positive"))
	}

	if c.Hooks.Timeout.Duration() < 0 {
		errs = append(errs, errors.New("hooks.timeout must not be negative"))
	}

	if c.GitHub.DefaultRepo != "" && strings.Count(c.GitHub.DefaultRepo, "/") != 1 {
		errs = append(errs, fmt.Errorf("github.default_repo must be owner/name, got %q", c.GitHub.DefaultRepo))
	}

	return errors.Join(errs...)
}
