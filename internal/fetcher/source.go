package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/sirupsen/logrus"

	"dialog-insights-go/internal/config"
	"dialog-insights-go/internal/logger"
	"dialog-insights-go/internal/types"
)

// Source returns one page of dialogs. Pages are numbered from 1; an empty
// page means the source has nothing more to give.
type Source interface {
	FetchPage(ctx context.Context, page int) ([]types.Dialog, error)
}

// StatusError is a non-200 answer from the chat source.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("chat source returned %d: %s", e.StatusCode, e.Body)
}

// HTTPSource reads `{"data": [...]}` pages from the chat API. Items keep
// their original JSON.
type HTTPSource struct {
	baseURL   string
	pageParam string
	apiKey    string
	client    *http.Client
	log       *logrus.Entry
}

func NewHTTPSource(cfg config.FetchConfig, log *logrus.Entry) *HTTPSource {
	return &HTTPSource{
		baseURL:   cfg.SourceURL,
		pageParam: cfg.PageParam,
		apiKey:    cfg.APIKey,
		client:    &http.Client{Timeout: cfg.Timeout},
		log:       log.WithField("component", "chat-source"),
	}
}

func (s *HTTPSource) FetchPage(ctx context.Context, page int) ([]types.Dialog, error) {
	u, err := url.Parse(s.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse source url: %w", err)
	}
	if s.pageParam != "" {
		q := u.Query()
		q.Set(s.pageParam, strconv.Itoa(page))
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}
	log := logger.WithRequest(s.log, req).WithField("page", page)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chat source request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	// Items are decoded one by one so a single odd item does not cost the page.
	var body struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode chat page %d: %w", page, err)
	}
	dialogs := make([]types.Dialog, 0, len(body.Data))
	for i, item := range body.Data {
		var d types.Dialog
		if err := json.Unmarshal(item, &d); err != nil {
			log.WithField("item", i).WithError(err).Warn("chat item skipped")
			continue
		}
		dialogs = append(dialogs, d)
	}
	log.WithFields(logrus.Fields{
		"items":   len(body.Data),
		"decoded": len(dialogs),
	}).Debug("chat page received")
	return dialogs, nil
}
