// Package skillprobe provides a high-level façade over the instrumentation
// pipeline: it compares a skill-mediated invocation against a direct chat
// invocation of the same question, streaming both answers live while
// recording token counts, timing and a durable transcript. Most applications
// interact with this package by:
//  1. Creating a Probe via New() from a config.Config
//  2. Calling Run() with the question and optional context text
//  3. Calling Shutdown() so batched telemetry is flushed
//
// The façade constructs the telemetry providers, tokenizer, backend adapter
// and skill registry once and hands them to the run coordinator; nothing is
// installed as process-global state.
package skillprobe

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/hupe1980/skillprobe/backend"
	anthropicbackend "github.com/hupe1980/skillprobe/backend/anthropic"
	openaibackend "github.com/hupe1980/skillprobe/backend/openai"
	"github.com/hupe1980/skillprobe/config"
	"github.com/hupe1980/skillprobe/logging"
	"github.com/hupe1980/skillprobe/runner"
	"github.com/hupe1980/skillprobe/skill"
	"github.com/hupe1980/skillprobe/telemetry"
	"github.com/hupe1980/skillprobe/tokenizer"
)

// Options configures the Probe beyond what config.Config carries.
type Options struct {
	// Console receives the live streamed answer text. Defaults to os.Stdout.
	Console io.Writer

	// Logger overrides the logger built from the config's level/format.
	Logger logging.Logger

	// Backend overrides the backend built from the config's provider.
	// Useful for tests and dry runs.
	Backend backend.Backend
}

// Probe is the assembled comparison tool for one configuration.
type Probe struct {
	cfg         config.Config
	providers   *telemetry.Providers
	registry    *skill.Registry
	coordinator *runner.Coordinator
	logger      logging.Logger
}

// New assembles a Probe from the given configuration.
func New(ctx context.Context, cfg config.Config, optFns ...func(o *Options)) (*Probe, error) {
	opts := Options{Console: os.Stdout}
	for _, fn := range optFns {
		fn(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NewLogger(&logging.LoggerConfig{
			Level:  logging.ParseLevel(cfg.LogLevel),
			Format: cfg.LogFormat,
		})
	}

	providers, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	metrics, err := telemetry.NewMetrics(providers.Meter())
	if err != nil {
		return nil, fmt.Errorf("create metrics: %w", err)
	}

	be := opts.Backend
	if be == nil {
		be = buildBackend(cfg)
	}

	registry, err := skill.LoadDir(cfg.SkillsDir)
	if err != nil {
		return nil, fmt.Errorf("load skills: %w", err)
	}

	coordinator := runner.New(
		tokenizer.New(tokenizer.EncodingApprox),
		metrics,
		providers.Tracer(),
		be,
		cfg.Model,
		cfg.OutputPath,
		func(o *runner.Options) {
			o.Console = opts.Console
			o.Logger = logger
		},
	)

	return &Probe{
		cfg:         cfg,
		providers:   providers,
		registry:    registry,
		coordinator: coordinator,
		logger:      logger,
	}, nil
}

// Run compares the two paths for one question and returns the summary.
func (p *Probe) Run(ctx context.Context, question, contextText string) (*runner.Summary, error) {
	sk, err := p.registry.Resolve(p.cfg.Skill)
	if err != nil {
		return nil, err
	}
	return p.coordinator.Run(ctx, sk, question, contextText)
}

// Shutdown flushes telemetry. Call before process exit.
func (p *Probe) Shutdown(ctx context.Context) error {
	return p.providers.Shutdown(ctx)
}

// buildBackend maps the configured provider to a backend adapter.
func buildBackend(cfg config.Config) backend.Backend {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return openaibackend.NewBackend(func(o *openaibackend.Options) {
			if cfg.Model != "" {
				o.Model = cfg.Model
			}
		})
	case config.ProviderAnthropic:
		return anthropicbackend.NewBackend(func(o *anthropicbackend.Options) {
			if cfg.Model != "" {
				o.Model = anthropicbackend.ModelName(cfg.Model)
			}
		})
	default:
		return backend.NewMockBackend()
	}
}
