package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mcp-pii-proxy/internal/logger"
)

func testLogger() *logger.Logger {
	return logger.New("AUDIT_TEST", "error")
}

func TestFileSink_EmitWritesOneJSONLinePerEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	sink, err := NewFileSink(path, testLogger())
	if err != nil {
		t.Fatalf("NewFileSink: %v", err)
	}
	defer sink.Close()

	e1 := Entry{Timestamp: time.Now().UTC(), UpstreamTool: "a", ComplianceProfile: "GDPR", Status: StatusSuccess}
	e2 := Entry{Timestamp: time.Now().UTC(), UpstreamTool: "b", ComplianceProfile: "GDPR", Status: StatusSuccess}

	if err := sink.Emit(e1); err != nil {
		t.Fatalf("Emit e1: %v", err)
	}
	if err := sink.Emit(e2); err != nil {
		t.Fatalf("Emit e2: %v", err)
	}
	sink.Close()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &decoded); err != nil {
		t.Errorf("line 1 not valid JSON: %v", err)
	}
	if decoded["upstream_tool"] != "a" {
		t.Errorf("line 1 upstream_tool = %v, want a", decoded["upstream_tool"])
	}
}

func TestFileSink_AppendsAcrossReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")

	sink1, err := NewFileSink(path, testLogger())
	if err != nil {
		t.Fatalf("NewFileSink: %v", err)
	}
	sink1.Emit(Entry{UpstreamTool: "first", Status: StatusSuccess})
	sink1.Close()

	sink2, err := NewFileSink(path, testLogger())
	if err != nil {
		t.Fatalf("NewFileSink (reopen): %v", err)
	}
	sink2.Emit(Entry{UpstreamTool: "second", Status: StatusSuccess})
	sink2.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	lineCount := 0
	for _, b := range data {
		if b == '\n' {
			lineCount++
		}
	}
	if lineCount != 2 {
		t.Errorf("expected 2 lines after reopen+append, got %d", lineCount)
	}
}

func TestNoopSink_NeverErrors(t *testing.T) {
	s := NewNoopSink()
	if err := s.Emit(Entry{}); err != nil {
		t.Errorf("noop Emit should never error: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("noop Close should never error: %v", err)
	}
}
