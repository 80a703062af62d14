// Package processor runs the rubric analysis over every dialog of an input file.
package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"dialog-insights-go/internal/config"
	"dialog-insights-go/internal/extractor"
	"dialog-insights-go/internal/llm"
	"dialog-insights-go/internal/metrics"
	"dialog-insights-go/internal/store"
	"dialog-insights-go/internal/types"
	"dialog-insights-go/internal/workerpool"
)

type Processor struct {
	llm     llm.Completer
	cfg     config.AnalyzeConfig
	log     *logrus.Entry
	metrics *metrics.Stage
}

func New(c llm.Completer, cfg config.AnalyzeConfig, log *logrus.Entry, m *metrics.Stage) *Processor {
	return &Processor{
		llm:     c,
		cfg:     cfg,
		log:     log.WithField("component", "processor"),
		metrics: m,
	}
}

// Process analyzes every dialog of the input file and writes the successful
// results to the output file. A dialog that fails is logged and left out; only
// input and output file errors abort the batch.
func (p *Processor) Process(ctx context.Context) ([]types.AnalysisResult, error) {
	var in types.ChatsFile
	if err := store.ReadJSON(p.cfg.InputPath, &in); err != nil {
		return nil, err
	}
	log := p.log.WithFields(logrus.Fields{
		"input":   p.cfg.InputPath,
		"dialogs": len(in.Data),
		"model":   p.cfg.ModelID,
	})
	log.Info("analysis started")
	start := time.Now()

	res, err := workerpool.Map(ctx, in.Data, workerpool.Options{
		Size:    p.cfg.PoolSize,
		Policy:  workerpool.Isolate,
		Log:     p.log,
		Metrics: p.metrics,
	}, p.analyze)
	if err != nil {
		return nil, err
	}

	for _, f := range res.Failures {
		p.log.WithFields(logrus.Fields{
			"dialog_id": in.Data[f.Index].ID.String(),
			"index":     f.Index,
		}).WithError(f.Err).Error("dialog analysis failed")
	}

	if err := store.WriteJSON(p.cfg.OutputPath, res.Values); err != nil {
		return nil, err
	}
	p.metrics.SetWritten(len(res.Values))

	log.WithFields(logrus.Fields{
		"analyzed":    len(res.Values),
		"failed":      len(res.Failures),
		"output":      p.cfg.OutputPath,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("analysis saved")
	return res.Values, nil
}

func (p *Processor) analyze(ctx context.Context, d types.Dialog) (types.AnalysisResult, error) {
	req := extractor.BuildRequest(p.cfg.ModelID, p.cfg.MaxTokens, d)
	resp, err := p.llm.Complete(ctx, req)
	if err != nil {
		return types.AnalysisResult{}, err
	}
	raw, err := extractor.ParseResponse(resp.Text)
	if err != nil {
		return types.AnalysisResult{}, fmt.Errorf("parse response (finish_reason=%s): %w", resp.FinishReason, err)
	}
	return types.AnalysisResult{DialogID: d.ID, Response: raw}, nil
}
