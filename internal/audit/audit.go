// Package audit defines the structured audit record emitted once per
// tool invocation, and the sink that writes it out as a single JSON line.
// The audit record is built strictly after the PII middleware has
// finished mutating the response, so the audit stream structurally can
// never contain raw PII — this is enforced by the middleware ordering
// (internal/middleware), not by any check in this package.
package audit

import (
	"encoding/json"
	"time"

	"mcp-pii-proxy/internal/envelope"
)

// maxInputParamBytes is the length cap on the serialized input
// parameters field (spec.md §6).
const maxInputParamBytes = 500

const truncatedSuffix = "...[truncated]"

// Status is the outcome recorded for a tool invocation.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Entry is one audit record: all fields required unless noted.
type Entry struct {
	Timestamp         time.Time
	UpstreamTool      string
	ComplianceProfile string
	InputParameters   string
	OutputSizeBytes   int
	RedactionCount    int
	RedactedTypes     []string
	ExecutionTimeMs   int64
	Status            Status
	ErrorMessage      string // optional
}

// New builds an Entry from the pieces the audit middleware observes:
// the tool name and profile known up front, the serialized (and
// length-capped) input parameters, the elapsed wall-clock time, and
// whatever the PII middleware accumulated in the response annotation.
func New(tool, profileName string, rawInputParams string, elapsed time.Duration, resp *envelope.ToolResponse, summary *envelope.RedactionSummary, callErr error) Entry {
	e := Entry{
		Timestamp:         time.Now().UTC(),
		UpstreamTool:      tool,
		ComplianceProfile: profileName,
		InputParameters:   capInputParams(rawInputParams),
		ExecutionTimeMs:   elapsed.Milliseconds(),
		Status:            StatusSuccess,
	}
	if summary != nil {
		e.RedactionCount = summary.Count
		e.RedactedTypes = summary.TypeList()
	}
	if resp != nil {
		e.OutputSizeBytes = responseSize(resp)
	}
	if callErr != nil || (resp != nil && resp.IsError) {
		e.Status = StatusError
		if callErr != nil {
			e.ErrorMessage = callErr.Error()
		}
	}
	return e
}

// capInputParams enforces the 500-byte cap, appending the literal
// "...[truncated]" marker when the input was cut short.
func capInputParams(s string) string {
	if len(s) <= maxInputParamBytes {
		return s
	}
	cut := maxInputParamBytes
	for cut > 0 && !isUTF8Boundary(s, cut) {
		cut--
	}
	return s[:cut] + truncatedSuffix
}

func isUTF8Boundary(s string, i int) bool {
	if i == 0 || i == len(s) {
		return true
	}
	return s[i]&0xC0 != 0x80
}

// responseSize reports the UTF-8 byte size of the serialized response
// (spec.md §4.7): the full content sequence, including non-text blocks
// (image/audio/embedded-resource) and the JSON framing around them, not
// just the text carried by text blocks.
func responseSize(resp *envelope.ToolResponse) int {
	data, err := json.Marshal(resp)
	if err != nil {
		return 0
	}
	return len(data)
}

// auditJSON is the exact wire shape for one audit line (field order and
// names matter: spec.md §6's byte-exact example).
type auditJSON struct {
	Timestamp         string   `json:"timestamp"`
	UpstreamTool      string   `json:"upstream_tool"`
	ComplianceProfile string   `json:"compliance_profile"`
	InputParameters   string   `json:"input_parameters"`
	OutputSizeBytes   int      `json:"output_size_bytes"`
	RedactionCount    int      `json:"redaction_count"`
	RedactedTypes     []string `json:"redacted_types"`
	ExecutionTimeMs   int64    `json:"execution_time_ms"`
	Status            string   `json:"status"`
	ErrorMessage      string   `json:"error_message,omitempty"`
}

// MarshalJSON renders the entry in the spec's exact field order.
func (e Entry) MarshalJSON() ([]byte, error) {
	types := e.RedactedTypes
	if types == nil {
		types = []string{}
	}
	return json.Marshal(auditJSON{
		Timestamp:         e.Timestamp.Format("2006-01-02T15:04:05.000Z"),
		UpstreamTool:      e.UpstreamTool,
		ComplianceProfile: e.ComplianceProfile,
		InputParameters:   e.InputParameters,
		OutputSizeBytes:   e.OutputSizeBytes,
		RedactionCount:    e.RedactionCount,
		RedactedTypes:     types,
		ExecutionTimeMs:   e.ExecutionTimeMs,
		Status:            string(e.Status),
		ErrorMessage:      e.ErrorMessage,
	})
}
