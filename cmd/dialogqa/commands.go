package main

import (
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"dialog-insights-go/internal/config"
	"dialog-insights-go/internal/logger"
	"dialog-insights-go/internal/metrics"
	"dialog-insights-go/internal/pipeline"
)

// app is the state shared by all subcommands of one invocation.
type app struct {
	cfgFile  string
	logLevel string

	cfg     *config.Config
	log     *logrus.Entry
	metrics *metrics.Metrics
	deps    pipeline.Deps
}

func (a *app) runner() *pipeline.Runner {
	return pipeline.New(a.cfg, a.deps, a.log, a.metrics)
}

func newRootCmd() *cobra.Command {
	return newRootCmdWith(&app{})
}

func newRootCmdWith(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "dialogqa",
		Short: "Dialog quality pipeline: fetch or transcribe, analyze, report",
		Long: `dialogqa collects customer-support dialogs, scores them against a quality
rubric with an LLM and summarizes the results.

Stages hand off through files:
  fetch       chat API          -> chats.json
  transcribe  directory of .wav -> transcripts.json
  analyze     chats/transcripts -> output_GPT_chat.json
  report      analysis          -> report.xlsx

Settings come from --config (YAML), then .env and the environment
(OPENAI_API_KEY, CHAT_SOURCE_URL, ASSEMBLYAI_API_KEY, ...), then flags.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.cfgFile)
			if err != nil {
				return err
			}
			if a.logLevel != "" {
				cfg.LogLevel = a.logLevel
			}
			a.cfg = cfg

			base := logger.New(cmd.ErrOrStderr(), cfg.LogLevel)
			a.log = base.WithFields(logrus.Fields{
				"run_id":  uuid.New().String(),
				"command": cmd.Name(),
			})
			a.metrics = metrics.New()
			return nil
		},
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "YAML config file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "debug|info|warn|error")

	root.AddCommand(
		newFetchCmd(a),
		newTranscribeCmd(a),
		newAnalyzeCmd(a),
		newReportCmd(a),
		newRunCmd(a),
	)
	return root
}

func newFetchCmd(a *app) *cobra.Command {
	var count int
	var output string

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download dialogs without media from the chat API",
		Example: `  dialogqa fetch --count 100
  CHAT_SOURCE_URL=https://chats.example/api dialogqa fetch -o chats.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("count") {
				a.cfg.Fetch.TargetCount = count
			}
			if output != "" {
				a.cfg.Fetch.OutputPath = output
			}
			return finish(a, a.runner().Fetch(cmd.Context()))
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 0, "number of dialogs to keep")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file")
	return cmd
}

func newTranscribeCmd(a *app) *cobra.Command {
	var dir, output, provider string

	cmd := &cobra.Command{
		Use:   "transcribe",
		Short: "Transcribe every recording in a directory",
		Example: `  dialogqa transcribe --dir calls
  dialogqa transcribe --provider aws`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir != "" {
				a.cfg.Transcribe.Directory = dir
			}
			if output != "" {
				a.cfg.Transcribe.OutputPath = output
			}
			if provider != "" {
				a.cfg.Transcribe.Provider = provider
			}
			return finish(a, a.runner().Transcribe(cmd.Context()))
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "directory with recordings")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file")
	cmd.Flags().StringVar(&provider, "provider", "", "assemblyai|aws")
	return cmd
}

func newAnalyzeCmd(a *app) *cobra.Command {
	var input, output string
	var pool int

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Score dialogs with the LLM rubric",
		Example: `  dialogqa analyze
  dialogqa analyze -i transcripts.json -o output_GPT_audio.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if input != "" {
				a.cfg.Analyze.InputPath = input
			}
			if output != "" {
				a.cfg.Analyze.OutputPath = output
			}
			if pool > 0 {
				a.cfg.Analyze.PoolSize = pool
			}
			return finish(a, a.runner().Analyze(cmd.Context()))
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "chats or transcripts file")
	cmd.Flags().StringVarP(&output, "output", "o", "", "analysis output file")
	cmd.Flags().IntVar(&pool, "pool-size", 0, "concurrent LLM requests")
	return cmd
}

func newReportCmd(a *app) *cobra.Command {
	var input, output string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Aggregate an analysis file into an Excel report",
		RunE: func(cmd *cobra.Command, args []string) error {
			if input != "" {
				a.cfg.Report.InputPath = input
			}
			if output != "" {
				a.cfg.Report.OutputPath = output
			}
			return finish(a, a.runner().Report())
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "analysis file")
	cmd.Flags().StringVarP(&output, "output", "o", "", "xlsx output file")
	return cmd
}

func newRunCmd(a *app) *cobra.Command {
	var audio bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run all stages in order",
		Example: `  dialogqa run            # fetch -> analyze -> report
  dialogqa run --audio    # transcribe -> analyze -> report`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return finish(a, a.runner().Run(cmd.Context(), audio))
		},
	}
	cmd.Flags().BoolVar(&audio, "audio", false, "start from recordings instead of the chat API")
	return cmd
}

// finish ends every subcommand: it logs a fatal stage error once (cobra prints
// it as well) and writes the metrics textfile whether or not the stage failed.
func finish(a *app, err error) error {
	if err != nil {
		a.log.WithError(err).Error("command failed")
	}
	if a.cfg.MetricsFile != "" {
		if werr := a.metrics.WriteTextfile(a.cfg.MetricsFile); werr != nil {
			a.log.WithError(werr).Warn("metrics not written")
		}
	}
	return err
}
