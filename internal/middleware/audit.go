package middleware

import (
	"context"
	"encoding/json"
	"time"

	"mcp-pii-proxy/internal/audit"
	"mcp-pii-proxy/internal/envelope"
	"mcp-pii-proxy/internal/logger"
	"mcp-pii-proxy/internal/metrics"
)

// NewAudit builds the audit middleware layer (spec.md §4.7). It is always
// the outermost layer of the tool pipeline: its timer starts first and its
// log line is written last, after the PII layer beneath it has already
// mutated the response and attached the RedactionSummary annotation. m may
// be nil, in which case audit emission counts are simply not reported
// through /metrics.
func NewAudit(sink audit.Sink, profileName string, m *metrics.Metrics, log *logger.Logger) ToolLayer {
	return func(ctx context.Context, req *envelope.ToolRequest, next ToolNext) (*envelope.ToolResponse, error) {
		start := time.Now()
		inputParams := serializeArguments(req.Arguments)

		resp, err := next(ctx, req)
		elapsed := time.Since(start)

		entry := audit.New(req.ToolName, profileName, inputParams, elapsed, resp, req.Annotations, err)
		if emitErr := sink.Emit(entry); emitErr != nil {
			log.Errorf("emit", "failed to write audit entry for %s: %v", req.ToolName, emitErr)
			if m != nil {
				m.AuditEmitFailures.Add(1)
			}
		} else if m != nil {
			m.AuditEntriesEmitted.Add(1)
		}

		if err != nil {
			return nil, err
		}
		return resp, nil
	}
}

// serializeArguments renders the tool arguments the same way they would
// appear in the audit log, independent of whatever the call actually does
// with them. A marshal failure degrades to an empty object rather than
// aborting the request — the audit trail must never block the call it is
// observing.
func serializeArguments(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	data, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(data)
}
