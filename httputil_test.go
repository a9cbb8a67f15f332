package relay

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/naivary/relay/logger"
	"golang.org/x/exp/slog"
)

// syncBuffer guards the log output written by the server goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func debugLogger(w *syncBuffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{kind: KindValidation, want: http.StatusBadRequest},
		{kind: KindNotFound, want: http.StatusNotFound},
		{kind: KindUpstream, want: http.StatusInternalServerError},
		{kind: KindAuth, want: http.StatusInternalServerError},
		{kind: KindInternal, want: http.StatusInternalServerError},
	}
	for _, tc := range tests {
		if got := statusFor(E(tc.kind, "op", ErrEmptyMessage)); got != tc.want {
			t.Errorf("kind %s. Got: %d. Expected: %d", tc.kind, got, tc.want)
		}
	}
}

func TestWriteErrorLogging(t *testing.T) {
	var out syncBuffer
	h := &HTTPHandler{logger: debugLogger(&out)}
	r := httptest.NewRequest(http.MethodPost, "/speech-chat", nil)
	r = r.WithContext(logger.WithRequestID(context.Background(), "req-1"))

	w := httptest.NewRecorder()
	h.writeError(w, r, E(KindValidation, "speech relay", ErrEmptyMessage))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("statuscode is not %d. Got: %d", http.StatusBadRequest, w.Code)
	}
	w = httptest.NewRecorder()
	h.writeError(w, r, E(KindTransient, "publish", ErrObjectNotFound))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected two log lines. Got: %s", out.String())
	}
	if !strings.Contains(lines[0], "level=DEBUG") || !strings.Contains(lines[0], "rejected") {
		t.Fatalf("client errors should be logged at debug. Got: %s", lines[0])
	}
	if !strings.Contains(lines[1], "level=ERROR") || !strings.Contains(lines[1], "request_id=req-1") {
		t.Fatalf("server errors should be logged as errors with the request id. Got: %s", lines[1])
	}
}

func TestSpeechChatLogsMissingResponse(t *testing.T) {
	var out syncBuffer
	rl := tEnv.relay(t, tEnv.storage(t), nil, fastOptions())
	h := NewHTTPHandler(rl, HTTPHandlerOptions{Logger: debugLogger(&out)})

	r := httptest.NewRequest(http.MethodPost, "/speech-chat", strings.NewReader(`{"message": "hello"}`))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("statuscode is not %d. Got: %d", http.StatusOK, w.Code)
	}
	if !strings.Contains(out.String(), "level=WARN") || !strings.Contains(out.String(), string(StatusMissing)) {
		t.Fatalf("missing response should be logged as a warning. Got: %s", out.String())
	}
}
