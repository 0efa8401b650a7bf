package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024

	// EnvPrefix prefixes every environment override. Nested keys use a
	// double underscore: OPSAGENT_LLM__API_KEY -> llm.api_key.
	EnvPrefix = "OPSAGENT_"
)

// DefaultPath returns ~/.config/opsagent/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "opsagent", "config.yaml"), nil
}

// LoadWithFile loads configuration in three layers, later layers winning:
// built-in defaults, the YAML file at configPath (DefaultPath when empty),
// then OPSAGENT_* environment variables.
//
// A missing file is not an error. An existing file must live under
// ~/.config/opsagent/ or /etc/opsagent/, be at most 1MB and carry 0600 or
// 0400 permissions.
func LoadWithFile(configPath string) (*Config, error) {
	if configPath == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		configPath = p
	}

	if err := validateConfigPath(configPath); err != nil {
		return nil, fmt.Errorf("config path validation failed: %w", err)
	}

	content, err := readConfigFile(configPath)
	if err != nil {
		return nil, err
	}
	return load(content)
}

// LoadBytes loads configuration from YAML content plus the environment.
// It skips the file checks and is meant for tests and embedded defaults.
func LoadBytes(content []byte) (*Config, error) {
	return load(content)
}

func load(content []byte) (*Config, error) {
	k := koanf.New(".")

	if len(content) > 0 {
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// envKey maps OPSAGENT_SAFETY__ALLOW_DESTROY to safety.allow_destroy.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	// Stat the open descriptor so the checked file is the one we read.
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if err := validateConfigFileProperties(info); err != nil {
		return nil, fmt.Errorf("config file validation failed: %w", err)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

// EnsureConfigDir creates ~/.config/opsagent with 0700 permissions.
func EnsureConfigDir() error {
	p, err := DefaultPath()
	if err != nil {
		return err
	}
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", dir, err)
	}
	return nil
}

func allowedConfigDirs() ([]string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	return []string{
		filepath.Join(home, ".config", "opsagent"),
		"/etc/opsagent",
	}, nil
}

// validateConfigPath rejects paths outside the allowed config directories.
// It runs even when the file does not exist yet.
func validateConfigPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		resolved = absPath
	}

	dirs, err := allowedConfigDirs()
	if err != nil {
		return err
	}
	for _, dir := range dirs {
		if resolved == dir || strings.HasPrefix(resolved, dir+string(filepath.Separator)) {
			return nil
		}
	}
	return fmt.Errorf("config file must be in ~/.config/opsagent/ or /etc/opsagent/, got %s", path)
}

func validateConfigFileProperties(info os.FileInfo) error {
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	return nil
}

// applyDefaults fills values a config file may have zeroed explicitly.
func applyDefaults(cfg *Config) {
	d := Default()
	if cfg.Server.Host == "" {
		cfg.Server.Host = d.Server.Host
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = d.Server.ShutdownTimeout
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = d.Telemetry.ServiceName
	}
	if cfg.Session.IdleTimeout == 0 {
		cfg.Session.IdleTimeout = d.Session.IdleTimeout
	}
	if cfg.LLM.Burst < 1 {
		cfg.LLM.Burst = 1
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = d.LLM.MaxTokens
	}
	if cfg.Helm.Driver == "" {
		cfg.Helm.Driver = d.Helm.Driver
	}
	if cfg.Terraform.Binary == "" {
		cfg.Terraform.Binary = d.Terraform.Binary
	}
	if cfg.NATS.SubjectPrefix == "" {
		cfg.NATS.SubjectPrefix = d.NATS.SubjectPrefix
	}
	cfg.Safety.Policy = strings.ToLower(cfg.Safety.Policy)
	cfg.Deploy.DefaultTarget = strings.ToLower(cfg.Deploy.DefaultTarget)
}
