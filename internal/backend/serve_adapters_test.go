package backend

import (
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"mcp-pii-proxy/internal/envelope"
)

func TestToMCPTool_RoundTripsSchema(t *testing.T) {
	desc := envelope.ToolDescriptor{
		Name:        "elastic_search",
		Description: "search",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"index": map[string]any{"type": "string"}},
			"required":   []string{"index"},
		},
	}
	tool := ToMCPTool(desc)
	if tool.Name != "elastic_search" || tool.Description != "search" {
		t.Errorf("unexpected tool: %+v", tool)
	}
	if tool.InputSchema.Type != "object" {
		t.Errorf("schema type = %q, want object", tool.InputSchema.Type)
	}
	if len(tool.InputSchema.Required) != 1 || tool.InputSchema.Required[0] != "index" {
		t.Errorf("unexpected required: %v", tool.InputSchema.Required)
	}
}

func TestInputSchemaFromMap_NilDefaultsToObject(t *testing.T) {
	schema := InputSchemaFromMap(nil)
	if schema.Type != "object" {
		t.Errorf("type = %q, want object", schema.Type)
	}
}

func TestToMCPResource(t *testing.T) {
	desc := envelope.ResourceDescriptor{URI: "es://cluster/settings", Name: "settings", MIMEType: "text/plain"}
	r := ToMCPResource(desc)
	if r.URI != desc.URI || r.MIMEType != "text/plain" {
		t.Errorf("unexpected resource: %+v", r)
	}
}

func TestFromEnvelopeToolResponse_TextContent(t *testing.T) {
	resp := &envelope.ToolResponse{
		HasContent: true,
		Content:    []envelope.ContentBlock{{Type: envelope.BlockText, Text: "masked"}},
	}
	result := FromEnvelopeToolResponse(resp)
	if len(result.Content) != 1 {
		t.Fatalf("expected 1 content item, got %d", len(result.Content))
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok || tc.Text != "masked" {
		t.Errorf("unexpected content: %+v", result.Content[0])
	}
}

func TestFromEnvelopeToolResponse_NoContent(t *testing.T) {
	result := FromEnvelopeToolResponse(&envelope.ToolResponse{HasContent: false})
	if len(result.Content) != 0 {
		t.Errorf("expected empty content, got %+v", result.Content)
	}
}

func TestFromEnvelopeContentBlock_OpaqueImagePassesThrough(t *testing.T) {
	img := mcp.ImageContent{Type: "image", Data: "b64", MIMEType: "image/png"}
	block := envelope.ContentBlock{Type: envelope.BlockImage, Opaque: img}
	c := FromEnvelopeContentBlock(block)
	if _, ok := c.(mcp.ImageContent); !ok {
		t.Errorf("expected opaque image content to round-trip, got %T", c)
	}
}

func TestFromEnvelopeResourceResponse_TextAndBlob(t *testing.T) {
	resp := &envelope.ResourceResponse{
		Contents: []envelope.ResourceItem{
			{URI: "a", MIMEType: "text/plain", IsText: true, Text: "hello"},
			{URI: "b", MIMEType: "application/octet-stream", IsText: false, Blob: "deadbeef"},
		},
	}
	out := FromEnvelopeResourceResponse(resp)
	if len(out) != 2 {
		t.Fatalf("expected 2 items, got %d", len(out))
	}
	if tc, ok := out[0].(mcp.TextResourceContents); !ok || tc.Text != "hello" {
		t.Errorf("unexpected item 0: %+v", out[0])
	}
	if bc, ok := out[1].(mcp.BlobResourceContents); !ok || bc.Blob != "deadbeef" {
		t.Errorf("unexpected item 1: %+v", out[1])
	}
}

func TestFromEnvelopeResourceResponse_Nil(t *testing.T) {
	if out := FromEnvelopeResourceResponse(nil); out != nil {
		t.Errorf("expected nil, got %+v", out)
	}
}
