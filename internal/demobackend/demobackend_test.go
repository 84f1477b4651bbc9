package demobackend

import (
	"context"
	"strings"
	"testing"

	"mcp-pii-proxy/internal/envelope"
)

func TestElasticSearch_ContainsPII(t *testing.T) {
	h := New()
	req := &envelope.ToolRequest{ToolName: "elastic_search", Arguments: map[string]any{"index": "transactions-*"}}
	resp, err := h.CallTool(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.IsError {
		t.Fatal("expected success response")
	}
	if !strings.Contains(resp.Content[0].Text, "jane.doe@example.com") {
		t.Error("expected canned search results to contain a seeded email")
	}
}

func TestClusterHealth(t *testing.T) {
	h := New()
	resp, err := h.CallTool(context.Background(), &envelope.ToolRequest{ToolName: "cluster_health"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(resp.Content[0].Text, "status=green") {
		t.Errorf("unexpected cluster_health body: %s", resp.Content[0].Text)
	}
}

func TestListAlerts(t *testing.T) {
	h := New()
	resp, err := h.CallTool(context.Background(), &envelope.ToolRequest{ToolName: "list_alerts"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(resp.Content[0].Text, "high_cpu") {
		t.Errorf("unexpected list_alerts body: %s", resp.Content[0].Text)
	}
}

func TestUnknownTool_ReturnsErrorResponseNotGoError(t *testing.T) {
	h := New()
	resp, err := h.CallTool(context.Background(), &envelope.ToolRequest{ToolName: "delete_everything"})
	if err != nil {
		t.Fatalf("expected no Go error, got %v", err)
	}
	if !resp.IsError {
		t.Error("expected IsError=true for unknown tool")
	}
}

func TestReadResource_ClusterSettings(t *testing.T) {
	h := New()
	resp, err := h.ReadResource(context.Background(), &envelope.ResourceRequest{URI: "es://cluster/settings"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Contents[0].IsText || !strings.Contains(resp.Contents[0].Text, "ops-lead@example.com") {
		t.Errorf("unexpected resource body: %+v", resp.Contents[0])
	}
}

func TestReadResource_UnknownURI(t *testing.T) {
	h := New()
	_, err := h.ReadResource(context.Background(), &envelope.ResourceRequest{URI: "es://nope"})
	if err == nil {
		t.Fatal("expected an error for an unknown resource URI")
	}
}

func TestListTools_ThreeCannedTools(t *testing.T) {
	h := New()
	tools, err := h.ListTools(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tools) != 3 {
		t.Fatalf("expected 3 tools, got %d", len(tools))
	}
	names := map[string]bool{}
	for _, tl := range tools {
		names[tl.Name] = true
	}
	for _, want := range []string{"elastic_search", "cluster_health", "list_alerts"} {
		if !names[want] {
			t.Errorf("expected tool %q in catalog", want)
		}
	}
}

func TestListResources_OneCannedResource(t *testing.T) {
	h := New()
	resources, err := h.ListResources(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resources) != 1 || resources[0].URI != "es://cluster/settings" {
		t.Errorf("unexpected resources: %+v", resources)
	}
}

func TestClose_NeverErrors(t *testing.T) {
	h := New()
	if err := h.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
