package transcription

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"dialog-insights-go/internal/config"
	"dialog-insights-go/internal/metrics"
	"dialog-insights-go/internal/store"
	"dialog-insights-go/internal/types"
	"dialog-insights-go/internal/workerpool"
)

type Transcriber struct {
	provider Provider
	cfg      config.TranscribeConfig
	log      *logrus.Entry
	metrics  *metrics.Stage
}

func New(p Provider, cfg config.TranscribeConfig, log *logrus.Entry, m *metrics.Stage) *Transcriber {
	return &Transcriber{
		provider: p,
		cfg:      cfg,
		log:      log.WithField("component", "transcriber"),
		metrics:  m,
	}
}

// Transcribe runs every recording of the configured directory through the
// provider. The first failure cancels the batch and nothing is written.
func (t *Transcriber) Transcribe(ctx context.Context) (*types.TranscriptsFile, error) {
	files, err := ListAudio(t.cfg.Directory, t.cfg.Extension)
	if err != nil {
		return nil, err
	}
	log := t.log.WithFields(logrus.Fields{
		"directory": t.cfg.Directory,
		"files":     len(files),
		"pool_size": t.cfg.PoolSize,
	})
	log.Info("transcription started")
	start := time.Now()

	opts := Options{LanguageCode: t.cfg.LanguageCode, DualChannel: t.cfg.DualChannel}
	res, err := workerpool.Map(ctx, files, workerpool.Options{
		Size:    t.cfg.PoolSize,
		Policy:  workerpool.FailFast,
		Log:     t.log,
		Metrics: t.metrics,
	}, func(ctx context.Context, path string) (types.TranscriptionResult, error) {
		tr, err := t.provider.Transcribe(ctx, path, opts)
		if err != nil {
			return types.TranscriptionResult{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		return *tr, nil
	})
	if err != nil {
		log.WithError(err).WithField("skipped", res.Skipped).Error("transcription aborted")
		return nil, err
	}

	out := types.TranscriptsFile{Data: res.Values}
	if err := store.WriteJSON(t.cfg.OutputPath, out); err != nil {
		return nil, err
	}
	t.metrics.SetWritten(len(out.Data))

	log.WithFields(logrus.Fields{
		"transcripts": len(out.Data),
		"output":      t.cfg.OutputPath,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("transcripts saved")
	return &out, nil
}

// ListAudio returns the files in dir whose extension matches ext
// (case-insensitive), sorted by name.
func ListAudio(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list audio directory: %w", err)
	}
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ext != "" && strings.ToLower(filepath.Ext(e.Name())) != ext {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}
