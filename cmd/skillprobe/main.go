// Command skillprobe runs one dual-path comparison: the configured skill
// answers the question on the plugin path, then the same question goes out
// as a direct chat request, and both streamed answers are measured and
// persisted to a transcript document.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hupe1980/skillprobe"
	"github.com/hupe1980/skillprobe/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath  string
		contextText string
		skillName   string
		provider    string
		model       string
		outputPath  string
	)

	cmd := &cobra.Command{
		Use:   "skillprobe \"question\"",
		Short: "Compare a skill-mediated answer against a direct chat answer",
		Long: `skillprobe asks the same question twice — once through a named skill
(prompt template bound to the question and optional context), once as a plain
chat request — and records a comparable transcript with token counts and
timing for both, streamed live while the answers arrive.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if skillName != "" {
				cfg.Skill = skillName
			}
			if provider != "" {
				cfg.Provider = provider
			}
			if model != "" {
				cfg.Model = model
			}
			if outputPath != "" {
				cfg.OutputPath = outputPath
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			probe, err := skillprobe.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := probe.Shutdown(context.Background()); err != nil {
					fmt.Fprintln(os.Stderr, "telemetry shutdown:", err)
				}
			}()

			summary, err := probe.Run(ctx, args[0], contextText)
			if summary != nil {
				fmt.Fprintf(os.Stderr, "\ntranscript written to %s (run %s)\n", cfg.OutputPath, summary.RunID)
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	cmd.Flags().StringVar(&contextText, "context", "", "context text bound to the skill template")
	cmd.Flags().StringVar(&skillName, "skill", "", "skill name for the plugin path")
	cmd.Flags().StringVar(&provider, "provider", "", "generation backend: openai, anthropic or mock")
	cmd.Flags().StringVar(&model, "model", "", "model identifier passed to the backend")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "transcript output path")

	return cmd
}
