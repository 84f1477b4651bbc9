// Package middleware implements the PII tool/resource middlewares and the
// audit middleware on top of the composition kernel, wiring the pattern
// engine, the NER wrapper, and the compliance-profile registry into the
// tool and resource pipelines described in spec.md §2.
package middleware

import (
	"context"
	"time"

	"mcp-pii-proxy/internal/envelope"
	"mcp-pii-proxy/internal/kernel"
	"mcp-pii-proxy/internal/metrics"
	"mcp-pii-proxy/internal/ner"
	"mcp-pii-proxy/internal/patterns"
	"mcp-pii-proxy/internal/profile"
)

// ToolLayer is the kernel.Layer specialization for the tool pipeline.
type ToolLayer = kernel.Layer[*envelope.ToolRequest, *envelope.ToolResponse]

// ToolNext is the kernel.Next specialization for the tool pipeline.
type ToolNext = kernel.Next[*envelope.ToolRequest, *envelope.ToolResponse]

// Overrides is the minimal surface the PII middlewares need from a runtime
// override store (SPEC_FULL.md's supplemented OverrideRegistry): whether
// comprehend is force-enabled/disabled, and which entity types an operator
// has suppressed from stage 2 regardless of what the compliance profile
// allows. Accepting this narrow interface rather than a concrete registry
// type keeps the middleware package decoupled from internal/management.
type Overrides interface {
	ComprehendEnabled(configDefault bool) bool
	IsSuppressed(entityType string) bool
}

// Features gates runtime-toggleable behavior that sits alongside the
// immutable compliance profile: comprehend_enabled (spec.md §4.4) and,
// via Overrides, any additional runtime entity-type suppression. Overrides
// may be nil, in which case ComprehendEnabled and the profile's allowlist
// apply unmodified. Metrics may also be nil, in which case redaction counts
// and NER latency/errors are simply not reported through /metrics.
type Features struct {
	ComprehendEnabled bool
	Language          string
	Overrides         Overrides
	Metrics           *metrics.Metrics
}

// effectiveComprehend resolves whether stage 2 should run for this call,
// letting a live override win over the value features was constructed
// with.
func (f Features) effectiveComprehend() bool {
	if f.Overrides == nil {
		return f.ComprehendEnabled
	}
	return f.Overrides.ComprehendEnabled(f.ComprehendEnabled)
}

// effectiveAllowlist removes any entity types an operator has suppressed
// at runtime from the profile's stage-2 allowlist. A nil allowlist (DORA,
// PCI_DSS) stays nil: those profiles never run stage 2 regardless.
func (f Features) effectiveAllowlist(allowed map[string]struct{}) map[string]struct{} {
	if f.Overrides == nil || allowed == nil {
		return allowed
	}
	filtered := make(map[string]struct{}, len(allowed))
	for t := range allowed {
		if !f.Overrides.IsSuppressed(t) {
			filtered[t] = struct{}{}
		}
	}
	return filtered
}

// NewPIITool builds the PII tool middleware layer (spec.md §4.5). client
// may be nil when comprehend is disabled entirely; it is only consulted
// when it is non-nil, profile.Stage2 is true, and comprehend is enabled
// (a runtime override in features.Overrides, when set, takes precedence
// over features.ComprehendEnabled).
func NewPIITool(prof profile.Profile, features Features, client ner.Client) ToolLayer {
	return func(ctx context.Context, req *envelope.ToolRequest, next ToolNext) (*envelope.ToolResponse, error) {
		resp, err := next(ctx, req)
		if err != nil {
			return nil, err
		}
		if resp == nil || !resp.HasContent {
			return resp, err // legacy shape: pass through unchanged
		}
		if resp.IsError {
			return resp, nil // error responses are treated as non-PII by contract
		}

		summary := envelope.NewRedactionSummary()
		newContent := make([]envelope.ContentBlock, len(resp.Content))
		for i, block := range resp.Content {
			if block.Type != envelope.BlockText {
				newContent[i] = block
				continue
			}
			masked, err := redactText(ctx, block.Text, prof, features, client, summary)
			if err != nil {
				return nil, err
			}
			newContent[i] = envelope.ContentBlock{Type: envelope.BlockText, Text: masked}
		}

		req.Annotations = summary
		return &envelope.ToolResponse{
			Content:    newContent,
			IsError:    resp.IsError,
			HasContent: resp.HasContent,
		}, nil
	}
}

// redactText runs stage 1 (when prof.Stage1) then, on the already-masked
// result, stage 2 (when prof.Stage2 and comprehend is enabled), folding
// both into summary. Stage 1 always completes before stage 2 begins on
// the same string (spec.md §5 ordering guarantee).
func redactText(ctx context.Context, text string, prof profile.Profile, features Features, client ner.Client, summary *envelope.RedactionSummary) (string, error) {
	masked := text

	if prof.Stage1 {
		redacted, perTag := patterns.RedactStringPerTag(masked)
		masked = redacted
		var stage1Count int64
		for tag, n := range perTag {
			summary.Add(tag, n)
			stage1Count += int64(n)
		}
		if features.Metrics != nil && stage1Count > 0 {
			features.Metrics.RedactionsStage1.Add(stage1Count)
		}
	}

	if prof.Stage2 && features.effectiveComprehend() && client != nil {
		language := features.Language
		if language == "" {
			language = "en"
		}
		start := time.Now()
		redacted, perTag, err := ner.RedactTextPerType(ctx, client, masked, language, features.effectiveAllowlist(prof.EntityTypes))
		if features.Metrics != nil {
			features.Metrics.RecordNerLatency(time.Since(start))
		}
		if err != nil {
			if features.Metrics != nil {
				features.Metrics.ErrorsNer.Add(1)
			}
			return "", err
		}
		masked = redacted
		var stage2Count int64
		for tag, n := range perTag {
			summary.Add(tag, n)
			stage2Count += int64(n)
		}
		if features.Metrics != nil && stage2Count > 0 {
			features.Metrics.RedactionsStage2.Add(stage2Count)
		}
	}

	return masked, nil
}
