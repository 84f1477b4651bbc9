package backend

import (
	"github.com/mark3labs/mcp-go/mcp"

	"mcp-pii-proxy/internal/envelope"
)

// The conversions in backend.go translate inbound wire types (an upstream's
// responses) into envelope types. These do the reverse: they translate
// envelope types back into mcp-go wire types for the proxy's own
// client-facing listener in cmd/proxy, which mirrors the upstream's
// catalog rather than exposing a fixed tool set of its own.

// ToMCPTool converts a discovered upstream tool into the mcp-go Tool the
// proxy's own listener advertises under the same name.
func ToMCPTool(t envelope.ToolDescriptor) mcp.Tool {
	return mcp.Tool{
		Name:        t.Name,
		Description: t.Description,
		InputSchema: InputSchemaFromMap(t.InputSchema),
	}
}

// InputSchemaFromMap rebuilds an mcp.ToolInputSchema from the plain map
// shape envelope.ToolDescriptor carries (the inverse of schemaToMap).
func InputSchemaFromMap(m map[string]any) mcp.ToolInputSchema {
	schema := mcp.ToolInputSchema{Type: "object"}
	if m == nil {
		return schema
	}
	if v, ok := m["type"].(string); ok {
		schema.Type = v
	}
	if v, ok := m["properties"].(map[string]any); ok {
		schema.Properties = v
	}
	if v, ok := m["required"].([]string); ok {
		schema.Required = v
	}
	return schema
}

// ToMCPResource converts a discovered upstream resource descriptor into
// the mcp-go Resource the proxy's own listener advertises.
func ToMCPResource(r envelope.ResourceDescriptor) mcp.Resource {
	return mcp.Resource{
		URI:         r.URI,
		Name:        r.Name,
		Description: r.Description,
		MIMEType:    r.MIMEType,
	}
}

// FromEnvelopeToolResponse converts an already-redacted ToolResponse into
// the mcp-go result shape returned to the proxy's own caller.
func FromEnvelopeToolResponse(resp *envelope.ToolResponse) *mcp.CallToolResult {
	if resp == nil || !resp.HasContent {
		return &mcp.CallToolResult{}
	}
	content := make([]mcp.Content, 0, len(resp.Content))
	for _, b := range resp.Content {
		content = append(content, FromEnvelopeContentBlock(b))
	}
	return &mcp.CallToolResult{Content: content, IsError: resp.IsError}
}

// FromEnvelopeContentBlock converts one ContentBlock back into mcp-go's
// Content interface. Non-text variants carry their original concrete
// mcp-go type in Opaque (set by toEnvelopeContentBlock when the block was
// first read from an upstream), so this is a plain type assertion rather
// than a reconstruction.
func FromEnvelopeContentBlock(b envelope.ContentBlock) mcp.Content {
	if b.Type == envelope.BlockText {
		return mcp.TextContent{Type: "text", Text: b.Text}
	}
	if c, ok := b.Opaque.(mcp.Content); ok {
		return c
	}
	return mcp.TextContent{Type: "text", Text: b.Text}
}

// FromEnvelopeResourceResponse converts an already-redacted
// ResourceResponse into the mcp-go contents slice returned to the
// proxy's own caller.
func FromEnvelopeResourceResponse(resp *envelope.ResourceResponse) []mcp.ResourceContents {
	if resp == nil {
		return nil
	}
	out := make([]mcp.ResourceContents, 0, len(resp.Contents))
	for _, item := range resp.Contents {
		if item.IsText {
			out = append(out, mcp.TextResourceContents{URI: item.URI, MIMEType: item.MIMEType, Text: item.Text})
			continue
		}
		blob, _ := item.Blob.(string)
		out = append(out, mcp.BlobResourceContents{URI: item.URI, MIMEType: item.MIMEType, Blob: blob})
	}
	return out
}
