package audit

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"mcp-pii-proxy/internal/logger"
)

// Sink emits one audit Entry per line, as UTF-8 JSON, flushed immediately
// after each write so no record is buffered past a crash.
type Sink interface {
	Emit(e Entry) error
	Close() error
}

// noopSink is used when AUDIT_ENABLED=false: emission is a deliberate
// silent no-op, not an error — disabling audit is an explicit operator
// choice, not a failure.
type noopSink struct{}

func (noopSink) Emit(Entry) error { return nil }
func (noopSink) Close() error     { return nil }

// NewNoopSink returns a Sink that discards every entry.
func NewNoopSink() Sink { return noopSink{} }

// fileSink appends one JSON line per Emit call to an append-only file,
// serializing writes with a mutex (concurrent tool calls may finish in
// any order) and syncing after each write.
type fileSink struct {
	mu  sync.Mutex
	w   io.WriteCloser
	log *logger.Logger
}

// NewFileSink opens (creating if necessary) path in append mode for
// audit output.
func NewFileSink(path string, log *logger.Logger) (Sink, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("audit: open %q: %w", path, err)
	}
	log.Infof("open", "audit sink writing to %s", path)
	return &fileSink{w: f, log: log}, nil
}

func (s *fileSink) Emit(e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("audit: marshal entry: %w", err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(data); err != nil {
		return fmt.Errorf("audit: write entry: %w", err)
	}
	if f, ok := s.w.(*os.File); ok {
		if err := f.Sync(); err != nil {
			s.log.Warnf("sync", "audit sync failed: %v", err)
		}
	}
	return nil
}

func (s *fileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Close()
}
