// Package testutil provides shared test helpers for the server packages.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stocky-devel/stocky/internal/monitoring"
)

// DefaultWait bounds how long Recv waits before failing a test.
const DefaultWait = 2 * time.Second

// LogBuffer collects lines written through monitoring.Logf.
type LogBuffer struct {
	mu    sync.Mutex
	lines []string
}

// Lines returns a copy of the captured lines.
func (b *LogBuffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.lines...)
}

// Contains reports whether any captured line contains substr.
func (b *LogBuffer) Contains(substr string) bool {
	for _, l := range b.Lines() {
		if strings.Contains(l, substr) {
			return true
		}
	}
	return false
}

func (b *LogBuffer) logf(format string, args ...any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = append(b.lines, fmt.Sprintf(format, args...))
}

// CaptureLogs redirects monitoring output into a buffer for the duration of
// the test. Tests using it must not run in parallel.
func CaptureLogs(t *testing.T) *LogBuffer {
	t.Helper()
	buf := &LogBuffer{}
	prev := monitoring.Logf
	monitoring.SetLogger(buf.logf)
	t.Cleanup(func() { monitoring.SetLogger(prev) })
	return buf
}

// Recv waits up to DefaultWait for a value on ch.
func Recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(DefaultWait):
		t.Fatal("timed out waiting for value")
		var zero T
		return zero
	}
}

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// NewLoopbackRequest creates a test request appearing to come from
// localhost, which the /debug/ routes require.
func NewLoopbackRequest(method, path string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "127.0.0.1:40000"
	return req
}
