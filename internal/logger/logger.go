package logger

import (
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// RequestIDHeader is set on every outbound request so provider logs can be correlated.
const RequestIDHeader = "X-Request-ID"

type Logger struct {
	*logrus.Entry
}

// New builds a logger writing to w at the given level ("" falls back to
// LOG_LEVEL).
func New(w io.Writer, level string) *Logger {
	base := logrus.New()

	// Local env = pretty console; others = JSON
	env := os.Getenv("ENVIRONMENT")
	if env == "" || env == "local" {
		base.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339Nano,
			ForceColors:     true,
		})
	} else {
		base.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})
	}

	base.SetOutput(w)

	if level == "" {
		level = os.Getenv("LOG_LEVEL")
	}
	base.SetLevel(ParseLevel(level))

	return &Logger{Entry: logrus.NewEntry(base)}
}

// ParseLevel maps a config level to logrus, defaulting to info.
func ParseLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// WithRequest tags an outbound request with a request id and returns an entry
// carrying the request metadata.
func WithRequest(log *logrus.Entry, r *http.Request) *logrus.Entry {
	reqID := r.Header.Get(RequestIDHeader)
	if reqID == "" {
		reqID = uuid.New().String()
		r.Header.Set(RequestIDHeader, reqID)
	}

	return log.WithFields(logrus.Fields{
		"req_id": reqID,
		"method": r.Method,
		"url":    r.URL.Redacted(),
	})
}
