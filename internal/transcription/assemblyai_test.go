package transcription

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dialog-insights-go/internal/config"
)

func nullLog() *logrus.Entry {
	l, _ := logtest.NewNullLogger()
	return logrus.NewEntry(l)
}

func writeAudio(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte("RIFF-"+name), 0o644))
	return p
}

func assemblyCfg(url string) config.TranscribeConfig {
	cfg := config.Default().Transcribe
	cfg.AssemblyAI = config.AssemblyAIConfig{APIKey: "aai-key", BaseURL: url}
	cfg.PollInterval = time.Millisecond
	return cfg
}

// fakeAssembly serves upload, create and poll; the transcript turns
// finalStatus after pending polls.
func fakeAssembly(t *testing.T, pending int32, finalStatus string) (*httptest.Server, *int32, chan map[string]any) {
	t.Helper()
	var polls int32
	created := make(chan map[string]any, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/upload", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "aai-key", r.Header.Get("authorization"))
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), "RIFF")
		fmt.Fprint(w, `{"upload_url":"https://cdn.example/abc"}`)
	})
	mux.HandleFunc("/v2/transcript", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		created <- req
		fmt.Fprint(w, `{"id":"tr_1","status":"queued"}`)
	})
	mux.HandleFunc("/v2/transcript/tr_1", func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&polls, 1)
		switch {
		case n <= pending:
			fmt.Fprint(w, `{"id":"tr_1","status":"processing"}`)
		case finalStatus == "error":
			fmt.Fprint(w, `{"id":"tr_1","status":"error","error":"audio too short"}`)
		default:
			fmt.Fprint(w, `{"id":"tr_1","status":"completed","utterances":[
				{"speaker":"1","text":"Добрий день","start":0,"end":1200},
				{"speaker":"2","text":"Вітаю","start":1300,"end":2000}]}`)
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &polls, created
}

func TestAssemblyAITranscribe(t *testing.T) {
	srv, polls, created := fakeAssembly(t, 2, "completed")
	path := writeAudio(t, t.TempDir(), "call.wav")

	res, err := NewAssemblyAI(assemblyCfg(srv.URL), nullLog()).
		Transcribe(context.Background(), path, Options{LanguageCode: "uk", DualChannel: true})
	require.NoError(t, err)

	assert.Equal(t, "tr_1", res.ID)
	require.Len(t, res.Utterances, 2)
	assert.Equal(t, "1", res.Utterances[0].Speaker)
	assert.Equal(t, "Добрий день", res.Utterances[0].Text)
	assert.EqualValues(t, 2000, res.Utterances[1].End)
	assert.EqualValues(t, 3, atomic.LoadInt32(polls))

	req := <-created
	assert.Equal(t, "https://cdn.example/abc", req["audio_url"])
	assert.Equal(t, "uk", req["language_code"])
	assert.Equal(t, true, req["dual_channel"])
}

func TestAssemblyAIErrorStatusIsPermanent(t *testing.T) {
	srv, polls, _ := fakeAssembly(t, 1, "error")
	path := writeAudio(t, t.TempDir(), "call.wav")

	_, err := NewAssemblyAI(assemblyCfg(srv.URL), nullLog()).Transcribe(context.Background(), path, Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTranscriptFailed)
	assert.Contains(t, err.Error(), "audio too short")
	assert.EqualValues(t, 2, atomic.LoadInt32(polls), "no polling after error")
}

func TestAssemblyAIUploadRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":"Authentication error"}`)
	}))
	defer srv.Close()
	path := writeAudio(t, t.TempDir(), "call.wav")

	_, err := NewAssemblyAI(assemblyCfg(srv.URL), nullLog()).Transcribe(context.Background(), path, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestAssemblyAIPollingStopsOnCancel(t *testing.T) {
	srv, _, _ := fakeAssembly(t, 1<<30, "completed")
	path := writeAudio(t, t.TempDir(), "call.wav")
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewAssemblyAI(assemblyCfg(srv.URL), nullLog()).Transcribe(ctx, path, Options{})
	assert.Error(t, err)
}
