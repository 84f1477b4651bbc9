// Package ner implements stage 2 of the redaction pipeline: contextual,
// span-based PII redaction via an external named-entity-recognition
// provider. The provider itself is an opaque collaborator (see Client);
// this package owns only chunking, the cheap pre-filter, and
// descending-offset span replacement.
package ner

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// maxChunkBytes is the maximum UTF-8 byte length of text sent to the
// provider in a single contains_pii or detect_pii call (spec.md §4.3).
const maxChunkBytes = 4500

// Entity is one PII span located by Client.DetectPII. Offsets are
// whatever index model the provider reports; this package treats them as
// opaque positions into the chunk's string representation and never
// reinterprets them (spec.md design notes: "byte vs code-unit accounting").
type Entity struct {
	Type        string
	BeginOffset int
	EndOffset   int
}

// Client is the opaque NER provider handle. Implementations must be safe
// for concurrent use by multiple requests (spec.md §5).
type Client interface {
	// ContainsPII is a cheap yes/no-style probe: it returns the set of PII
	// labels present in text, or none. It is always called with at most
	// the first maxChunkBytes of the input.
	ContainsPII(ctx context.Context, text, language string) ([]string, error)

	// DetectPII locates PII entity spans in text.
	DetectPII(ctx context.Context, text, language string) ([]Entity, error)
}

// AllowedTypes is the default stage-2 entity-type allowlist (spec.md §4.3),
// excluding categories already covered by stage 1 (cards, IBANs, SSNs,
// emails, phones).
var AllowedTypes = map[string]struct{}{
	"NAME":                {},
	"ADDRESS":             {},
	"DATE_TIME":           {},
	"AGE":                 {},
	"USERNAME":            {},
	"PASSWORD":            {},
	"IP_ADDRESS":          {},
	"BANK_ACCOUNT_NUMBER": {},
	"PASSPORT_NUMBER":     {},
	"DRIVER_ID":           {},
	"AWS_ACCESS_KEY":      {},
	"MAC_ADDRESS":         {},
}

// RedactText runs the two-step NER algorithm over text: a cheap pre-filter
// over the first maxChunkBytes, then (only if that probe reports any
// label) full chunked detection and descending-offset replacement.
//
// allowed restricts which entity types are actually replaced; pass nil to
// use AllowedTypes. language is forwarded to the client unchanged (e.g.
// "en").
//
// If the client's calls fail, RedactText returns the error wrapped with %w
// (errors.Is still matches it) — the core does not retry at this layer
// (spec.md §4.3). If text is empty, it
// is returned as-is with zero count.
func RedactText(ctx context.Context, client Client, text, language string, allowed map[string]struct{}) (masked string, count int, types map[string]struct{}, err error) {
	masked, perType, err := RedactTextPerType(ctx, client, text, language, allowed)
	if err != nil {
		return "", 0, nil, err
	}
	types = make(map[string]struct{}, len(perType))
	for t, n := range perType {
		types[t] = struct{}{}
		count += n
	}
	return masked, count, types, nil
}

// RedactTextPerType is the per-entity-type-count form of RedactText, used
// by the PII middlewares to attribute an exact count to each type tag
// (spec.md §8 property 3) rather than one aggregate count across all
// types found in a chunk set.
func RedactTextPerType(ctx context.Context, client Client, text, language string, allowed map[string]struct{}) (masked string, perType map[string]int, err error) {
	perType = make(map[string]int)
	if text == "" {
		return text, perType, nil
	}
	if allowed == nil {
		allowed = AllowedTypes
	}

	probe := firstNBytes(text, maxChunkBytes)
	labels, err := client.ContainsPII(ctx, probe, language)
	if err != nil {
		return "", nil, fmt.Errorf("ner: contains_pii probe: %w", err)
	}
	if len(labels) == 0 {
		return text, perType, nil
	}

	chunks := splitIntoChunks(text, maxChunkBytes)
	redactedChunks := make([]string, len(chunks))
	for i, chunk := range chunks {
		entities, derr := client.DetectPII(ctx, chunk, language)
		if derr != nil {
			return "", nil, fmt.Errorf("ner: detect_pii chunk %d: %w", i, derr)
		}
		redacted, chunkPerType := applySpansPerType(chunk, entities, allowed)
		redactedChunks[i] = redacted
		for t, n := range chunkPerType {
			perType[t] += n
		}
	}

	return strings.Join(redactedChunks, "\n"), perType, nil
}

// applySpans filters entities by the allowlist and replaces them in
// descending begin-offset order, so that replacing a later span never
// invalidates the offset of an earlier one. This is a correctness
// requirement, not an optimization — a left-to-right splice would shift
// every offset after the first replacement.
func applySpans(chunk string, entities []Entity, allowed map[string]struct{}) (string, int, map[string]struct{}) {
	out, perType := applySpansPerType(chunk, entities, allowed)
	types := make(map[string]struct{}, len(perType))
	count := 0
	for t, n := range perType {
		types[t] = struct{}{}
		count += n
	}
	return out, count, types
}

// applySpansPerType is the per-type-count form of applySpans.
func applySpansPerType(chunk string, entities []Entity, allowed map[string]struct{}) (string, map[string]int) {
	perType := make(map[string]int)
	filtered := make([]Entity, 0, len(entities))
	for _, e := range entities {
		if _, ok := allowed[e.Type]; !ok {
			continue
		}
		if e.BeginOffset < 0 || e.EndOffset > len(chunk) || e.BeginOffset >= e.EndOffset {
			continue // malformed span from the provider; skip rather than corrupt the text
		}
		filtered = append(filtered, e)
	}
	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].BeginOffset > filtered[j].BeginOffset
	})

	out := chunk
	for _, e := range filtered {
		replacement := fmt.Sprintf("[REDACTED:%s]", e.Type)
		out = out[:e.BeginOffset] + replacement + out[e.EndOffset:]
		perType[e.Type]++
	}
	return out, perType
}

// firstNBytes returns the first n bytes of s without splitting a UTF-8
// rune (so the truncated probe is still valid UTF-8).
func firstNBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	b := s[:n]
	for len(b) > 0 && !isUTF8Boundary(s, len(b)) {
		b = b[:len(b)-1]
	}
	return b
}

func isUTF8Boundary(s string, i int) bool {
	if i == 0 || i == len(s) {
		return true
	}
	// A byte is a continuation byte iff its top two bits are 10.
	return s[i]&0xC0 != 0x80
}

// splitIntoChunks splits text into chunks of at most maxBytes UTF-8 bytes
// each, preferring newline boundaries. When a single line exceeds the
// limit, it binary-searches a byte-safe split point within that line.
func splitIntoChunks(text string, maxBytes int) []string {
	if len(text) <= maxBytes {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
		}
	}

	lines := strings.Split(text, "\n")
	for _, line := range lines {
		for len(line) > maxBytes {
			// A single line exceeds the limit on its own: flush whatever is
			// pending, then binary-search a safe split point within the line.
			flush()
			cut := safeSplitPoint(line, maxBytes)
			chunks = append(chunks, line[:cut])
			line = line[cut:]
		}
		if current.Len() > 0 && current.Len()+1+len(line) > maxBytes {
			flush()
		}
		if current.Len() > 0 {
			current.WriteByte('\n')
		}
		current.WriteString(line)
	}
	flush()
	return chunks
}

// safeSplitPoint binary-searches for an index <= maxBytes that does not
// split a UTF-8 rune in line. The result is always a rune boundary but is
// not always the largest one <= maxBytes, since the boundary test is not
// monotonic over the index.
func safeSplitPoint(line string, maxBytes int) int {
	if maxBytes >= len(line) {
		return len(line)
	}
	lo, hi := 0, maxBytes
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if isUTF8Boundary(line, mid) {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	if lo == 0 {
		// Degenerate case (e.g. maxBytes lands mid-rune all the way down):
		// advance to the next boundary so we always make forward progress.
		for lo < len(line) && !isUTF8Boundary(line, lo) {
			lo++
		}
		if lo == 0 {
			lo = 1
		}
	}
	return lo
}
