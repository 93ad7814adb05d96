// Package config loads run configuration from an optional YAML file with
// environment overrides. Credentials are never stored in the file: the
// provider SDKs read their API keys from the environment directly.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/skillprobe/telemetry"
)

// Provider names accepted by Config.Provider.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderMock      = "mock"
)

// Config is the full run configuration.
type Config struct {
	// Provider selects the generation backend: openai, anthropic or mock.
	Provider string `yaml:"provider"`

	// Model is the model identifier passed to the backend. Empty selects
	// the adapter's default.
	Model string `yaml:"model"`

	// SkillsDir is the root directory scanned for skill subdirectories.
	SkillsDir string `yaml:"skills_dir"`

	// Skill is the name of the skill driving the plugin path.
	Skill string `yaml:"skill"`

	// OutputPath is the transcript document location.
	OutputPath string `yaml:"output_path"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// LogFormat is text or json.
	LogFormat string `yaml:"log_format"`

	// Telemetry configures exporter selection.
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// Default returns the development defaults.
func Default() Config {
	return Config{
		Provider:   ProviderMock,
		SkillsDir:  "skills",
		Skill:      "answer",
		OutputPath: "transcript.txt",
		LogLevel:   "info",
		LogFormat:  "text",
		Telemetry:  telemetry.DefaultConfig(),
	}
}

// Load builds a Config from defaults, an optional YAML file and environment
// overrides, in that order of precedence (env wins).
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overlays environment variables onto the config.
func (c *Config) applyEnv() {
	c.Provider = getEnvOr("SKILLPROBE_PROVIDER", c.Provider)
	c.Model = getEnvOr("SKILLPROBE_MODEL", c.Model)
	c.SkillsDir = getEnvOr("SKILLPROBE_SKILLS_DIR", c.SkillsDir)
	c.Skill = getEnvOr("SKILLPROBE_SKILL", c.Skill)
	c.OutputPath = getEnvOr("SKILLPROBE_OUTPUT", c.OutputPath)
	c.LogLevel = getEnvOr("SKILLPROBE_LOG_LEVEL", c.LogLevel)
	c.Telemetry.TraceExporter = getEnvOr("OTEL_TRACES_EXPORTER", c.Telemetry.TraceExporter)
	c.Telemetry.MetricExporter = getEnvOr("OTEL_METRICS_EXPORTER", c.Telemetry.MetricExporter)
}

// Validate rejects configurations that cannot produce a run.
func (c Config) Validate() error {
	switch c.Provider {
	case ProviderOpenAI, ProviderAnthropic, ProviderMock:
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}
	if c.Skill == "" {
		return fmt.Errorf("skill name must not be empty")
	}
	if c.OutputPath == "" {
		return fmt.Errorf("output path must not be empty")
	}
	return nil
}

// getEnvOr returns the environment variable value or the fallback.
func getEnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
