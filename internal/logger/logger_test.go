package logger

import (
	"bytes"
	"errors"
	"net/http"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, logrus.WarnLevel, ParseLevel("WARN"))
	assert.Equal(t, logrus.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, logrus.InfoLevel, ParseLevel(""))
	assert.Equal(t, logrus.InfoLevel, ParseLevel("verbose"))
}

func TestNewJSON(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	var buf bytes.Buffer

	log := New(&buf, "warn")
	log.Info("dropped")
	log.WithError(errors.New("boom")).Warn("kept")

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, `"error":"boom"`)
	assert.Contains(t, out, `"msg":"kept"`)
}

func TestWithRequestSetsRequestID(t *testing.T) {
	l, hook := logtest.NewNullLogger()
	req, err := http.NewRequest(http.MethodGet, "https://user:pw@chats.example/api?page=2", nil)
	require.NoError(t, err)

	WithRequest(logrus.NewEntry(l), req).Info("outbound")

	id := req.Header.Get(RequestIDHeader)
	require.NotEmpty(t, id)
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, id, entry.Data["req_id"])
	assert.Equal(t, http.MethodGet, entry.Data["method"])
	assert.NotContains(t, entry.Data["url"], "pw", "credentials are redacted")
}

func TestWithRequestKeepsExistingID(t *testing.T) {
	l, _ := logtest.NewNullLogger()
	req, err := http.NewRequest(http.MethodPost, "http://llm.local/chat/completions", nil)
	require.NoError(t, err)
	req.Header.Set(RequestIDHeader, "fixed-id")

	entry := WithRequest(logrus.NewEntry(l), req)
	assert.Equal(t, "fixed-id", entry.Data["req_id"])
}
