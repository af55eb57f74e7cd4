package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func recoveryUnderTest(buf *bytes.Buffer, h http.HandlerFunc) http.Handler {
	logger := slog.New(slog.NewJSONHandler(buf, nil))
	// 本番と同じく、RequestIDはRecoveryの内側
	return NewRecoveryMiddleware(logger)(NewRequestIDMiddleware()(h))
}

func TestRecoveryMiddleware_PanicBecomes500(t *testing.T) {
	var buf bytes.Buffer
	h := recoveryUnderTest(&buf, func(w http.ResponseWriter, r *http.Request) {
		panic("nil map in chart aggregation")
	})

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/portfolios/p1/chart", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if body := decodeErrorBody(t, w); body.Code != "INTERNAL_ERROR" {
		t.Errorf("code = %q, want INTERNAL_ERROR", body.Code)
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log is not JSON: %v\n%s", err, buf.String())
	}
	if entry["msg"] != "panic recovered" || entry["path"] != "/api/portfolios/p1/chart" {
		t.Errorf("unexpected log entry: %v", entry)
	}
	if id, _ := entry["request_id"].(string); id == "" || id != w.Header().Get(RequestIDHeader) {
		t.Errorf("request_id = %q, want the response X-Request-ID %q", id, w.Header().Get(RequestIDHeader))
	}
	if stack, _ := entry["stack"].(string); !strings.Contains(stack, "goroutine") {
		t.Error("stack trace missing from log")
	}
}

func TestRecoveryMiddleware_PanicAfterWriteKeepsResponse(t *testing.T) {
	var buf bytes.Buffer
	h := recoveryUnderTest(&buf, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("date,value\n"))
		panic("export interrupted")
	})

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/portfolios/p1/export", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want the already-sent 200", w.Code)
	}
	if got := w.Body.String(); got != "date,value\n" {
		t.Errorf("body = %q, error JSON must not be appended", got)
	}
	if !strings.Contains(buf.String(), `"response_started":true`) {
		t.Errorf("log should flag the started response: %s", buf.String())
	}
}

func TestRecoveryMiddleware_RepanicsOnAbortHandler(t *testing.T) {
	var buf bytes.Buffer
	h := recoveryUnderTest(&buf, func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	})

	defer func() {
		v := recover()
		err, ok := v.(error)
		if !ok || !errors.Is(err, http.ErrAbortHandler) {
			t.Errorf("recovered %v, want http.ErrAbortHandler", v)
		}
		if buf.Len() != 0 {
			t.Errorf("abort must not be logged as a panic: %s", buf.String())
		}
	}()
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	t.Error("ServeHTTP returned normally")
}

func TestRecoveryMiddleware_NilLoggerUsesDefault(t *testing.T) {
	h := NewRecoveryMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(errors.New("boom"))
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/portfolios/p1", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}
