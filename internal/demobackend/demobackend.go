// Package demobackend is a minimal in-process upstream implementing
// backend.Handle without a real Elasticsearch cluster behind it. It
// exists so the full onion (audit → pii-tool → backend) can be
// exercised end to end — in tests and in the proxy's "-demo" run mode
// — without standing up a real MCP server.
package demobackend

import (
	"context"
	"fmt"

	"mcp-pii-proxy/internal/envelope"
)

// Handle is a canned upstream exposing three tools modeled on an
// Elasticsearch-fronting MCP server: elastic_search, cluster_health,
// list_alerts.
type Handle struct{}

// New returns a ready-to-use demo backend.
func New() *Handle {
	return &Handle{}
}

// CallTool dispatches to one of the three canned tools. Unknown tool
// names return an error-shaped ToolResponse (IsError: true) rather
// than a Go error, mirroring how a real MCP server reports a tool
// execution failure (as opposed to a protocol error).
func (h *Handle) CallTool(_ context.Context, req *envelope.ToolRequest) (*envelope.ToolResponse, error) {
	switch req.ToolName {
	case "elastic_search":
		return h.elasticSearch(req.Arguments), nil
	case "cluster_health":
		return h.clusterHealth(), nil
	case "list_alerts":
		return h.listAlerts(), nil
	default:
		return errorResponse(fmt.Sprintf("unknown tool %q", req.ToolName)), nil
	}
}

// ReadResource serves one canned document: the cluster's runtime
// settings, which (deliberately, for exercising the resource pipeline)
// includes an administrator contact email in its body text.
func (h *Handle) ReadResource(_ context.Context, req *envelope.ResourceRequest) (*envelope.ResourceResponse, error) {
	if req.URI != "es://cluster/settings" {
		return nil, fmt.Errorf("demobackend: unknown resource %q", req.URI)
	}
	return &envelope.ResourceResponse{
		Contents: []envelope.ResourceItem{
			{
				URI:      req.URI,
				MIMEType: "text/plain",
				IsText:   true,
				Text:     "cluster.name: prod-transactions\nadmin.contact: ops-lead@example.com\nadmin.phone: +1 415 555 0134",
			},
		},
	}, nil
}

// ListTools reports the three canned tools' descriptors, mirroring what
// a real upstream's tools/list would return.
func (h *Handle) ListTools(_ context.Context) ([]envelope.ToolDescriptor, error) {
	return []envelope.ToolDescriptor{
		{
			Name:        "elastic_search",
			Description: "Search the transactions index and return matching hits.",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"index": map[string]any{"type": "string"}},
			},
		},
		{
			Name:        "cluster_health",
			Description: "Report overall cluster health.",
			InputSchema: map[string]any{"type": "object"},
		},
		{
			Name:        "list_alerts",
			Description: "List currently open cluster alerts.",
			InputSchema: map[string]any{"type": "object"},
		},
	}, nil
}

// ListResources reports the one canned resource's descriptor.
func (h *Handle) ListResources(_ context.Context) ([]envelope.ResourceDescriptor, error) {
	return []envelope.ResourceDescriptor{
		{
			URI:         "es://cluster/settings",
			Name:        "cluster-settings",
			Description: "Runtime cluster settings, including administrator contact info.",
			MIMEType:    "text/plain",
		},
	}, nil
}

// Close is a no-op; there is no connection to tear down.
func (h *Handle) Close() error { return nil }

func (h *Handle) elasticSearch(args map[string]any) *envelope.ToolResponse {
	index, _ := args["index"].(string)
	if index == "" {
		index = "transactions-*"
	}
	text := fmt.Sprintf(
		"3 hits in %s\n"+
			"1) customer=Jane Doe email=jane.doe@example.com card=4532 0151 1283 0366 amount=412.50\n"+
			"2) customer=Miguel Santos ssn=523-44-1212 phone=+1 408 555 0199 amount=89.00\n"+
			"3) customer=no PII in this row amount=15.25",
		index,
	)
	return textResponse(text)
}

func (h *Handle) clusterHealth() *envelope.ToolResponse {
	return textResponse("status=green nodes=3 active_shards=42 unassigned_shards=0")
}

func (h *Handle) listAlerts() *envelope.ToolResponse {
	text := "2 open alerts\n" +
		"1) high_cpu node=es-data-2 reported_by=oncall+sre@example.com\n" +
		"2) disk_watermark node=es-data-1"
	return textResponse(text)
}

func textResponse(text string) *envelope.ToolResponse {
	return &envelope.ToolResponse{
		Content:    []envelope.ContentBlock{{Type: envelope.BlockText, Text: text}},
		HasContent: true,
	}
}

func errorResponse(msg string) *envelope.ToolResponse {
	return &envelope.ToolResponse{
		Content:    []envelope.ContentBlock{{Type: envelope.BlockText, Text: msg}},
		IsError:    true,
		HasContent: true,
	}
}
