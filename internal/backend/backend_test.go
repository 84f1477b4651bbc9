package backend

import (
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"mcp-pii-proxy/internal/envelope"
)

func TestToEnvelopeToolResponse_TextContent(t *testing.T) {
	result := &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: "hello"},
		},
	}
	resp := toEnvelopeToolResponse(result)
	if !resp.HasContent {
		t.Fatal("expected HasContent true")
	}
	if len(resp.Content) != 1 || resp.Content[0].Text != "hello" {
		t.Errorf("unexpected content: %+v", resp.Content)
	}
	if resp.Content[0].Type != envelope.BlockText {
		t.Errorf("type = %v, want BlockText", resp.Content[0].Type)
	}
}

func TestToEnvelopeToolResponse_NilResultIsLegacyShape(t *testing.T) {
	resp := toEnvelopeToolResponse(nil)
	if resp.HasContent {
		t.Error("nil result should map to HasContent=false (legacy shape)")
	}
}

func TestToEnvelopeToolResponse_ErrorFlagPreserved(t *testing.T) {
	result := &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: "boom"}},
	}
	resp := toEnvelopeToolResponse(result)
	if !resp.IsError {
		t.Error("expected IsError to be preserved")
	}
}

func TestToEnvelopeContentBlock_ImagePassesThroughOpaque(t *testing.T) {
	img := mcp.ImageContent{Type: "image", Data: "base64data", MIMEType: "image/png"}
	block := toEnvelopeContentBlock(img)
	if block.Type != envelope.BlockImage {
		t.Errorf("type = %v, want BlockImage", block.Type)
	}
	if block.Text != "" {
		t.Errorf("image block should have no Text, got %q", block.Text)
	}
	if _, ok := block.Opaque.(mcp.ImageContent); !ok {
		t.Errorf("opaque payload lost its concrete type: %T", block.Opaque)
	}
}

func TestToEnvelopeResourceResponse_TextAndBlob(t *testing.T) {
	result := &mcp.ReadResourceResult{
		Contents: []mcp.ResourceContents{
			mcp.TextResourceContents{URI: "doc://1", MIMEType: "text/plain", Text: "plain text"},
			mcp.BlobResourceContents{URI: "doc://2", MIMEType: "application/octet-stream", Blob: "deadbeef"},
		},
	}
	resp := toEnvelopeResourceResponse(result)
	if len(resp.Contents) != 2 {
		t.Fatalf("expected 2 items, got %d", len(resp.Contents))
	}
	if !resp.Contents[0].IsText || resp.Contents[0].Text != "plain text" {
		t.Errorf("item 0 = %+v, want text item", resp.Contents[0])
	}
	if resp.Contents[1].IsText {
		t.Errorf("item 1 should not be text: %+v", resp.Contents[1])
	}
}

func TestToEnvelopeResourceResponse_Nil(t *testing.T) {
	resp := toEnvelopeResourceResponse(nil)
	if resp.Contents != nil {
		t.Errorf("expected empty Contents for nil result, got %+v", resp.Contents)
	}
}

func TestSchemaToMap_PropertiesAndRequired(t *testing.T) {
	schema := mcp.ToolInputSchema{
		Type:       "object",
		Properties: map[string]any{"index": map[string]any{"type": "string"}},
		Required:   []string{"index"},
	}
	m := schemaToMap(schema)
	if m["type"] != "object" {
		t.Errorf("type = %v, want object", m["type"])
	}
	if _, ok := m["properties"]; !ok {
		t.Error("expected properties key to be present")
	}
	if _, ok := m["required"]; !ok {
		t.Error("expected required key to be present")
	}
}

func TestSchemaToMap_EmptyPropertiesOmitted(t *testing.T) {
	m := schemaToMap(mcp.ToolInputSchema{Type: "object"})
	if _, ok := m["properties"]; ok {
		t.Error("expected properties key to be omitted when empty")
	}
	if _, ok := m["required"]; ok {
		t.Error("expected required key to be omitted when empty")
	}
}
