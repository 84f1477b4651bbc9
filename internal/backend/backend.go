// Package backend wires the two external operations the core consumes —
// call_tool and read_resource — against a real upstream MCP server via
// github.com/mark3labs/mcp-go, translating between its wire types and
// this repository's transport-agnostic internal/envelope types. Which
// transport (stdio subprocess vs HTTP/SSE) is selected at construction
// time and is otherwise invisible to the rest of the core.
package backend

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"mcp-pii-proxy/internal/envelope"
	"mcp-pii-proxy/internal/logger"
)

// Handle is the upstream backend contract the core's terminal operations
// bind against (spec.md §6). ListTools and ListResources are consulted
// once at startup so the proxy's own client-facing listener can mirror
// the upstream's catalog instead of exposing a fixed set of its own.
type Handle interface {
	CallTool(ctx context.Context, req *envelope.ToolRequest) (*envelope.ToolResponse, error)
	ReadResource(ctx context.Context, req *envelope.ResourceRequest) (*envelope.ResourceResponse, error)
	ListTools(ctx context.Context) ([]envelope.ToolDescriptor, error)
	ListResources(ctx context.Context) ([]envelope.ResourceDescriptor, error)
	Close() error
}

// mcpHandle adapts a mark3labs/mcp-go client.Client to Handle.
type mcpHandle struct {
	client *client.Client
	log    *logger.Logger
}

// NewStdio spawns command as a subprocess backend speaking MCP over
// stdio (spec.md §6's UPSTREAM_MCP_COMMAND).
func NewStdio(ctx context.Context, command string, args []string, env []string, log *logger.Logger) (Handle, error) {
	c, err := client.NewStdioMCPClient(command, env, args...)
	if err != nil {
		return nil, fmt.Errorf("backend: start stdio client %q: %w", command, err)
	}
	if err := initialize(ctx, c); err != nil {
		return nil, err
	}
	log.Infof("connect", "stdio backend started: %s %v", command, args)
	return &mcpHandle{client: c, log: log}, nil
}

// NewHTTP connects to url as an HTTP/SSE backend (spec.md §6's
// UPSTREAM_MCP_URL), tuning the underlying transport for HTTP/2 the way
// this repository's predecessor tuned its MITM-terminated connections —
// repurposed here for the proxy's own outbound upstream connection
// rather than a terminated client connection.
func NewHTTP(ctx context.Context, url string, log *logger.Logger) (Handle, error) {
	httpClient := newH2TunedClient()
	c, err := client.NewSSEMCPClient(url, client.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("backend: connect SSE client %q: %w", url, err)
	}
	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("backend: start SSE client %q: %w", url, err)
	}
	if err := initialize(ctx, c); err != nil {
		return nil, err
	}
	log.Infof("connect", "HTTP/SSE backend connected: %s", url)
	return &mcpHandle{client: c, log: log}, nil
}

func initialize(ctx context.Context, c *client.Client) error {
	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "mcp-pii-proxy",
		Version: "0.1.0",
	}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		return fmt.Errorf("backend: initialize: %w", err)
	}
	return nil
}

func (h *mcpHandle) CallTool(ctx context.Context, req *envelope.ToolRequest) (*envelope.ToolResponse, error) {
	toolReq := mcp.CallToolRequest{}
	toolReq.Params.Name = req.ToolName
	toolReq.Params.Arguments = req.Arguments

	result, err := h.client.CallTool(ctx, toolReq)
	if err != nil {
		return nil, fmt.Errorf("backend: call_tool %s: %w", req.ToolName, err)
	}
	return toEnvelopeToolResponse(result), nil
}

func (h *mcpHandle) ReadResource(ctx context.Context, req *envelope.ResourceRequest) (*envelope.ResourceResponse, error) {
	resReq := mcp.ReadResourceRequest{}
	resReq.Params.URI = req.URI

	result, err := h.client.ReadResource(ctx, resReq)
	if err != nil {
		return nil, fmt.Errorf("backend: read_resource %s: %w", req.URI, err)
	}
	return toEnvelopeResourceResponse(result), nil
}

func (h *mcpHandle) ListTools(ctx context.Context) ([]envelope.ToolDescriptor, error) {
	result, err := h.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("backend: list_tools: %w", err)
	}
	out := make([]envelope.ToolDescriptor, 0, len(result.Tools))
	for _, t := range result.Tools {
		out = append(out, envelope.ToolDescriptor{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schemaToMap(t.InputSchema),
		})
	}
	return out, nil
}

func (h *mcpHandle) ListResources(ctx context.Context) ([]envelope.ResourceDescriptor, error) {
	result, err := h.client.ListResources(ctx, mcp.ListResourcesRequest{})
	if err != nil {
		return nil, fmt.Errorf("backend: list_resources: %w", err)
	}
	out := make([]envelope.ResourceDescriptor, 0, len(result.Resources))
	for _, r := range result.Resources {
		out = append(out, envelope.ResourceDescriptor{
			URI:         r.URI,
			Name:        r.Name,
			Description: r.Description,
			MIMEType:    r.MIMEType,
		})
	}
	return out, nil
}

// schemaToMap flattens an mcp.ToolInputSchema into the plain map shape
// envelope.ToolDescriptor carries, so the rest of the core never needs to
// import mcp-go's schema types.
func schemaToMap(schema mcp.ToolInputSchema) map[string]any {
	m := map[string]any{"type": schema.Type}
	if len(schema.Properties) > 0 {
		m["properties"] = schema.Properties
	}
	if len(schema.Required) > 0 {
		m["required"] = schema.Required
	}
	return m
}

func (h *mcpHandle) Close() error {
	return h.client.Close()
}

// toEnvelopeToolResponse converts an mcp-go CallToolResult into the
// core's transport-agnostic ToolResponse, preserving opaque non-text
// content (images, embedded resources) unexamined.
func toEnvelopeToolResponse(result *mcp.CallToolResult) *envelope.ToolResponse {
	if result == nil {
		return &envelope.ToolResponse{HasContent: false}
	}
	blocks := make([]envelope.ContentBlock, 0, len(result.Content))
	for _, c := range result.Content {
		blocks = append(blocks, toEnvelopeContentBlock(c))
	}
	return &envelope.ToolResponse{
		Content:    blocks,
		IsError:    result.IsError,
		HasContent: true,
	}
}

func toEnvelopeContentBlock(c mcp.Content) envelope.ContentBlock {
	switch v := c.(type) {
	case mcp.TextContent:
		return envelope.ContentBlock{Type: envelope.BlockText, Text: v.Text}
	case mcp.ImageContent:
		return envelope.ContentBlock{Type: envelope.BlockImage, Opaque: v}
	case mcp.AudioContent:
		return envelope.ContentBlock{Type: envelope.BlockAudio, Opaque: v}
	case mcp.EmbeddedResource:
		return envelope.ContentBlock{Type: envelope.BlockEmbeddedResource, Opaque: v}
	default:
		return envelope.ContentBlock{Type: envelope.BlockEmbeddedResource, Opaque: v}
	}
}

func toEnvelopeResourceResponse(result *mcp.ReadResourceResult) *envelope.ResourceResponse {
	if result == nil {
		return &envelope.ResourceResponse{}
	}
	items := make([]envelope.ResourceItem, 0, len(result.Contents))
	for _, c := range result.Contents {
		switch v := c.(type) {
		case mcp.TextResourceContents:
			items = append(items, envelope.ResourceItem{
				URI: v.URI, MIMEType: v.MIMEType, IsText: true, Text: v.Text,
			})
		case mcp.BlobResourceContents:
			items = append(items, envelope.ResourceItem{
				URI: v.URI, MIMEType: v.MIMEType, IsText: false, Blob: v.Blob,
			})
		}
	}
	return &envelope.ResourceResponse{Contents: items}
}
