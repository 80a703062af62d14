// Package pipeline chains the stages: each one reads the file the previous
// stage wrote. Stages never overlap.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"dialog-insights-go/internal/config"
	"dialog-insights-go/internal/fetcher"
	"dialog-insights-go/internal/llm"
	"dialog-insights-go/internal/metrics"
	"dialog-insights-go/internal/processor"
	"dialog-insights-go/internal/report"
	"dialog-insights-go/internal/transcription"
)

// Deps overrides the external collaborators. Nil fields are built from config.
type Deps struct {
	Source    fetcher.Source
	Completer llm.Completer
	Provider  transcription.Provider
}

type Runner struct {
	cfg     *config.Config
	deps    Deps
	log     *logrus.Entry
	metrics *metrics.Metrics
}

func New(cfg *config.Config, deps Deps, log *logrus.Entry, m *metrics.Metrics) *Runner {
	return &Runner{cfg: cfg, deps: deps, log: log, metrics: m}
}

func (r *Runner) Fetch(ctx context.Context) error {
	fc := r.cfg.Fetch
	if err := fc.Validate(); err != nil {
		return err
	}
	src := r.deps.Source
	if src == nil {
		src = fetcher.NewHTTPSource(fc, r.log)
	}
	_, err := fetcher.New(src, fc, r.log, r.metrics.Stage("fetch")).Fetch(ctx, fc.TargetCount)
	return err
}

func (r *Runner) Transcribe(ctx context.Context) error {
	tc := r.cfg.Transcribe
	if err := tc.Validate(); err != nil {
		return err
	}
	p := r.deps.Provider
	if p == nil {
		var err error
		if p, err = transcription.NewProvider(ctx, tc, r.log); err != nil {
			return err
		}
	}
	_, err := transcription.New(p, tc, r.log, r.metrics.Stage("transcribe")).Transcribe(ctx)
	return err
}

func (r *Runner) Analyze(ctx context.Context) error {
	ac := r.cfg.Analyze
	if err := ac.Validate(); err != nil {
		return err
	}
	c := r.deps.Completer
	if c == nil {
		c = llm.NewOpenAIClient(ac, r.log)
	}
	_, err := processor.New(c, ac, r.log, r.metrics.Stage("analyze")).Process(ctx)
	return err
}

func (r *Runner) Report() error {
	rc := r.cfg.Report
	if err := rc.Validate(); err != nil {
		return err
	}
	_, err := report.Run(rc, r.log, r.metrics.Stage("report"))
	return err
}

// Run executes fetch (or transcribe when audio is set), analyze and report,
// wiring each stage's output path into the next stage's input.
func (r *Runner) Run(ctx context.Context, audio bool) error {
	type stage struct {
		name string
		run  func(context.Context) error
	}
	first := stage{"fetch", r.Fetch}
	r.cfg.Analyze.InputPath = r.cfg.Fetch.OutputPath
	if audio {
		first = stage{"transcribe", r.Transcribe}
		r.cfg.Analyze.InputPath = r.cfg.Transcribe.OutputPath
	}
	r.cfg.Report.InputPath = r.cfg.Analyze.OutputPath

	stages := []stage{
		first,
		{"analyze", r.Analyze},
		{"report", func(context.Context) error { return r.Report() }},
	}
	for _, s := range stages {
		if err := ctx.Err(); err != nil {
			return err
		}
		log := r.log.WithField("stage", s.name)
		start := time.Now()
		log.Info("stage started")
		if err := s.run(ctx); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
		log.WithField("duration_ms", time.Since(start).Milliseconds()).Info("stage finished")
	}
	return nil
}
