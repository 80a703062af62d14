package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"dialog-insights-go/internal/config"
	"dialog-insights-go/internal/logger"
	"dialog-insights-go/internal/types"
)

var errPending = errors.New("transcript not ready")

type uploadResponse struct {
	UploadURL string `json:"upload_url"`
}

type transcriptRequest struct {
	AudioURL     string `json:"audio_url"`
	LanguageCode string `json:"language_code,omitempty"`
	DualChannel  bool   `json:"dual_channel"`
}

type transcriptResponse struct {
	ID         string `json:"id"`
	Status     string `json:"status"` // queued | processing | completed | error
	Error      string `json:"error,omitempty"`
	Utterances []struct {
		Speaker string `json:"speaker"`
		Text    string `json:"text"`
		Start   int64  `json:"start"`
		End     int64  `json:"end"`
	} `json:"utterances"`
}

// AssemblyAI uploads the file, creates a transcript and polls it until it
// completes or errors.
type AssemblyAI struct {
	baseURL string
	apiKey  string
	poll    time.Duration
	client  *http.Client
	log     *logrus.Entry
}

func NewAssemblyAI(cfg config.TranscribeConfig, log *logrus.Entry) *AssemblyAI {
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = config.Default().Transcribe.PollInterval
	}
	return &AssemblyAI{
		baseURL: strings.TrimRight(cfg.AssemblyAI.BaseURL, "/"),
		apiKey:  cfg.AssemblyAI.APIKey,
		poll:    poll,
		client:  &http.Client{},
		log:     log.WithField("component", "assemblyai"),
	}
}

func (a *AssemblyAI) Transcribe(ctx context.Context, path string, opts Options) (*types.TranscriptionResult, error) {
	log := a.log.WithField("file", path)

	audioURL, err := a.upload(ctx, path)
	if err != nil {
		return nil, err
	}

	var created transcriptResponse
	body, _ := json.Marshal(transcriptRequest{
		AudioURL:     audioURL,
		LanguageCode: opts.LanguageCode,
		DualChannel:  opts.DualChannel,
	})
	if err := a.do(ctx, http.MethodPost, "/v2/transcript", "application/json", bytes.NewReader(body), &created); err != nil {
		return nil, fmt.Errorf("create transcript: %w", err)
	}
	log = log.WithField("transcript_id", created.ID)
	log.Info("transcript queued")

	op := func() (*transcriptResponse, error) {
		var tr transcriptResponse
		if err := a.do(ctx, http.MethodGet, "/v2/transcript/"+created.ID, "", nil, &tr); err != nil {
			return nil, backoff.Permanent(err)
		}
		switch tr.Status {
		case "completed":
			return &tr, nil
		case "error":
			return nil, backoff.Permanent(fmt.Errorf("%w: %s", ErrTranscriptFailed, tr.Error))
		default:
			return nil, errPending
		}
	}
	notify := func(_ error, wait time.Duration) {
		log.WithField("next_poll", wait).Debug("transcript pending")
	}
	b := backoff.WithContext(backoff.NewConstantBackOff(a.poll), ctx)

	tr, err := backoff.RetryNotifyWithData(op, b, notify)
	if err != nil {
		return nil, err
	}

	res := &types.TranscriptionResult{ID: tr.ID, Utterances: make([]types.Utterance, 0, len(tr.Utterances))}
	for _, u := range tr.Utterances {
		res.Utterances = append(res.Utterances, types.Utterance{Speaker: u.Speaker, Text: u.Text, Start: u.Start, End: u.End})
	}
	log.WithField("utterances", len(res.Utterances)).Info("transcript completed")
	return res, nil
}

func (a *AssemblyAI) upload(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var up uploadResponse
	if err := a.do(ctx, http.MethodPost, "/v2/upload", "application/octet-stream", f, &up); err != nil {
		return "", fmt.Errorf("upload %s: %w", path, err)
	}
	if up.UploadURL == "" {
		return "", fmt.Errorf("upload %s: empty upload_url", path)
	}
	return up.UploadURL, nil
}

func (a *AssemblyAI) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("authorization", a.apiKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	logger.WithRequest(a.log, req).Debug("assemblyai request")

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("assemblyai %s %s: status %d: %s", method, path, resp.StatusCode, truncate(string(raw), 512))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode assemblyai response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
