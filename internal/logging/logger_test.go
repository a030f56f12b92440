package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithFields_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, false).WithFields(map[string]any{"user_id": "u-1"})

	logger.Info("session created", "session_id", "abc")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "session created", entry["msg"])
	assert.Equal(t, "u-1", entry["user_id"])
	assert.Equal(t, "abc", entry["session_id"])
}

func TestProductionLoggerSkipsDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, false)

	logger.Debug("noise")
	assert.Empty(t, buf.String())
}

func TestGetLoggerFromContext_Fallback(t *testing.T) {
	assert.NotNil(t, GetLoggerFromContext(context.Background()))

	custom := Discard()
	ctx := WithLogger(context.Background(), custom)
	assert.Same(t, custom, GetLoggerFromContext(ctx))
}

func TestRequestLogger_InjectsLoggerAndLogsStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, false)

	var injected *Logger
	h := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		injected = GetLoggerFromContext(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.NotNil(t, injected)
	assert.NotSame(t, logger, injected)
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Contains(t, buf.String(), `"status":418`)
	assert.Contains(t, buf.String(), `"level":"WARN"`)
	assert.Contains(t, buf.String(), `"path":"/health"`)
}
