// Package fetcher pulls chat dialogs from the remote source and persists the
// ones without media attachments.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"dialog-insights-go/internal/config"
	"dialog-insights-go/internal/metrics"
	"dialog-insights-go/internal/store"
	"dialog-insights-go/internal/types"
)

var ErrInvalidCount = errors.New("dialog count must be > 0")

type Fetcher struct {
	src      Source
	out      string
	maxPages int
	log      *logrus.Entry
	metrics  *metrics.Stage
}

func New(src Source, cfg config.FetchConfig, log *logrus.Entry, m *metrics.Stage) *Fetcher {
	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = config.Default().Fetch.MaxPages
	}
	return &Fetcher{
		src:      src,
		out:      cfg.OutputPath,
		maxPages: maxPages,
		log:      log.WithField("component", "fetcher"),
		metrics:  m,
	}
}

// Fetch pages through the source until count dialogs survive the filter, then
// overwrites the output file with exactly count of them. A failing page ends
// the loop early and whatever was gathered is still written.
func (f *Fetcher) Fetch(ctx context.Context, count int) (*types.ChatsFile, error) {
	if count <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidCount, count)
	}
	log := f.log.WithField("target", count)

	acc := types.ChatsFile{Data: make([]types.Dialog, 0, count)}
	pages := 0
	for page := 1; len(acc.Data) < count; page++ {
		if page > f.maxPages {
			log.WithField("max_pages", f.maxPages).Warn("page limit reached before target")
			break
		}

		start := time.Now()
		items, err := f.src.FetchPage(ctx, page)
		f.metrics.ObserveTask(time.Since(start), err)
		if err != nil {
			log.WithField("page", page).WithError(err).Warn("chat source failed, stopping with partial result")
			break
		}
		pages++
		if len(items) == 0 {
			log.WithField("page", page).Info("chat source exhausted")
			break
		}

		kept := FilterDialogs(items)
		acc.Data = append(acc.Data, kept...)
		log.WithFields(logrus.Fields{
			"page":      page,
			"received":  len(items),
			"kept":      len(kept),
			"collected": len(acc.Data),
		}).Debug("page filtered")
	}

	if len(acc.Data) > count {
		acc.Data = acc.Data[:count]
	}
	if err := store.WriteJSON(f.out, acc); err != nil {
		return nil, err
	}
	f.metrics.SetWritten(len(acc.Data))

	log.WithFields(logrus.Fields{
		"pages":   pages,
		"written": len(acc.Data),
		"output":  f.out,
	}).Info("chats saved")
	return &acc, nil
}

// FilterDialogs drops every dialog that has at least one message with a URL.
func FilterDialogs(dialogs []types.Dialog) []types.Dialog {
	out := make([]types.Dialog, 0, len(dialogs))
	for _, d := range dialogs {
		if d.HasMedia() {
			continue
		}
		out = append(out, d)
	}
	return out
}
