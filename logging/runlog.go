package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// RunLog appends one JSON record per event to a writer, producing a JSONL
// trail of a relay session or a plan run. Records carry a timestamp, an
// event name and an arbitrary data payload:
//
//	{"t":"2026-08-30T12:00:00Z","event":"controller_step","data":{...}}
//
// RunLog is safe for concurrent use.
type RunLog struct {
	mu sync.Mutex
	w  io.Writer
	c  io.Closer
}

type runRecord struct {
	T     string         `json:"t"`
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}

// NewRunLog wraps an arbitrary writer. Close is a no-op unless the writer is
// also an io.Closer.
func NewRunLog(w io.Writer) *RunLog {
	l := &RunLog{w: w}
	if c, ok := w.(io.Closer); ok {
		l.c = c
	}
	return l
}

// OpenRunLog opens (creating if needed) a JSONL file in append mode.
func OpenRunLog(path string) (*RunLog, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open run log: %w", err)
	}
	return NewRunLog(f), nil
}

// Event appends one record. Marshal failures are returned, not logged, so
// callers can decide whether a broken trail matters to them.
func (l *RunLog) Event(event string, data map[string]any) error {
	rec := runRecord{T: time.Now().UTC().Format(time.RFC3339), Event: event, Data: data}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("run log marshal: %w", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.w.Write(append(raw, '\n')); err != nil {
		return fmt.Errorf("run log write: %w", err)
	}
	return nil
}

// Close releases the underlying file, if any.
func (l *RunLog) Close() error {
	if l.c == nil {
		return nil
	}
	return l.c.Close()
}
