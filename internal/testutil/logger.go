// Package testutil provides loggers and a Postgres connection for tests.
package testutil

import (
	"bytes"
	"sync"

	"github.com/johnrirwin/orbitsafe/internal/logging"
)

// NullLogger returns a logger that discards most output
func NullLogger() *logging.Logger {
	return logging.New(logging.LevelError)
}

// CaptureLogger returns a debug logger and the buffer it writes to.
func CaptureLogger() (*logging.Logger, *SyncBuffer) {
	buf := &SyncBuffer{}
	return logging.NewWithOutput(logging.LevelDebug, buf), buf
}

// SyncBuffer is a bytes.Buffer safe for concurrent writers.
type SyncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *SyncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *SyncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
