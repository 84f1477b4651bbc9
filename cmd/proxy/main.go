// Command proxy is the MCP anonymizing proxy.
//
// It sits between an MCP client (an LLM agent) and a real upstream MCP
// server, mirroring the upstream's tool and resource catalog on its own
// client-facing listener while running every call_tool and
// resources/read result through a two-stage PII/payment-card redaction
// pipeline before the agent ever sees it. Every tool invocation is
// recorded to an append-only audit log after redaction has already run,
// never before.
//
// Usage:
//
//	# Spawn and proxy a stdio upstream
//	UPSTREAM_MCP_COMMAND=/path/to/upstream-mcp-server ./proxy
//
//	# Proxy an HTTP/SSE upstream
//	UPSTREAM_MCP_URL=https://upstream.example.com/mcp ./proxy
//
//	# Exercise the full pipeline against the canned demo backend
//	./proxy -demo
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"mcp-pii-proxy/internal/audit"
	"mcp-pii-proxy/internal/backend"
	"mcp-pii-proxy/internal/config"
	"mcp-pii-proxy/internal/demobackend"
	"mcp-pii-proxy/internal/envelope"
	"mcp-pii-proxy/internal/kernel"
	"mcp-pii-proxy/internal/logger"
	"mcp-pii-proxy/internal/management"
	"mcp-pii-proxy/internal/metrics"
	"mcp-pii-proxy/internal/middleware"
	"mcp-pii-proxy/internal/ner"
	"mcp-pii-proxy/internal/nercache"
	"mcp-pii-proxy/internal/profile"
)

func main() {
	demo := flag.Bool("demo", false, "serve the canned in-process demo backend instead of a real upstream")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	log := logger.New("PROXY", cfg.LogLevel)
	printBanner(cfg, *demo)

	prof := profile.Get(cfg.ComplianceProfile, log)
	m := metrics.New()
	overrides := management.NewOverrideRegistry("overrides.json", log)

	nerClient := buildNERClient(cfg, prof, overrides, m, log)

	var sink audit.Sink
	if cfg.AuditEnabled {
		sink, err = audit.NewFileSink("audit.log", log)
		if err != nil {
			fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
			os.Exit(1)
		}
	} else {
		sink = audit.NewNoopSink()
	}
	defer sink.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	upstream, err := buildUpstream(ctx, cfg, *demo, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer upstream.Close()

	mgmt := management.New(cfg, overrides, m, os.Getenv("MANAGEMENT_TOKEN"), log)
	go func() {
		if err := mgmt.ListenAndServe(); err != nil {
			log.Fatalf("listen", "management API: %v", err)
		}
	}()

	features := middleware.Features{
		ComprehendEnabled: cfg.ComprehendEnabled,
		Language:          "en",
		Overrides:         overrides,
		Metrics:           m,
	}

	toolPipeline := kernel.Compose(
		[]middleware.ToolLayer{
			middleware.NewAudit(sink, string(prof.Name), m, log),
			middleware.NewPIITool(prof, features, nerClient),
		},
		middleware.ToolNext(func(ctx context.Context, req *envelope.ToolRequest) (*envelope.ToolResponse, error) {
			start := time.Now()
			resp, err := upstream.CallTool(ctx, req)
			m.RecordUpstreamLatency(time.Since(start))
			if err != nil {
				m.ErrorsUpstream.Add(1)
				return nil, err
			}
			m.ToolCallsTotal.Add(1)
			return resp, nil
		}),
	)

	resourcePipeline := kernel.Compose(
		[]middleware.ResourceLayer{
			middleware.NewPIIResource(prof, features, nerClient),
		},
		middleware.ResourceNext(func(ctx context.Context, req *envelope.ResourceRequest) (*envelope.ResourceResponse, error) {
			start := time.Now()
			resp, err := upstream.ReadResource(ctx, req)
			m.RecordUpstreamLatency(time.Since(start))
			if err != nil {
				m.ErrorsUpstream.Add(1)
				return nil, err
			}
			m.ResourceReadsTotal.Add(1)
			return resp, nil
		}),
	)

	srv, err := buildMCPServer(ctx, upstream, toolPipeline, resourcePipeline, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Info("shutdown", "shutting down…")
		cancel()
	}()

	log.Info("listen", "serving MCP over stdio")
	stdio := mcpserver.NewStdioServer(srv)
	if err := stdio.Listen(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
		log.Fatalf("serve", "stdio server: %v", err)
	}
}

// buildNERClient constructs the stage-2 NER client according to config and
// the runtime override, wrapped in an S3-FIFO cache keyed on the
// compliance profile's allowlist fingerprint (spec.md §5's cache-key
// requirement). It returns nil when comprehend is disabled — callers must
// treat a nil client as "stage 2 never runs", which middleware.NewPIITool
// and middleware.NewPIIResource already do.
func buildNERClient(cfg *config.Config, prof profile.Profile, overrides *management.OverrideRegistry, m *metrics.Metrics, log *logger.Logger) ner.Client {
	if !overrides.ComprehendEnabled(cfg.ComprehendEnabled) {
		return nil
	}
	underlying, err := ner.NewComprehendClient(context.Background(), cfg.AWSRegion)
	if err != nil {
		log.Warnf("ner_init", "comprehend client unavailable, stage 2 disabled: %v", err)
		return nil
	}
	store := nercache.NewS3FIFOStore(nercache.NewMemoryStore(), 10_000, log)
	return nercache.NewCachedClient(underlying, store, prof.AllowlistFingerprint(), m, log)
}

// buildUpstream selects the backend.Handle implementation named by config
// (spec.md §6): a spawned stdio subprocess, an HTTP/SSE connection, or —
// in -demo mode — the in-process canned backend.
func buildUpstream(ctx context.Context, cfg *config.Config, demo bool, log *logger.Logger) (backend.Handle, error) {
	if demo {
		return demobackend.New(), nil
	}
	if cfg.UpstreamCommand != "" {
		return backend.NewStdio(ctx, cfg.UpstreamCommand, cfg.UpstreamArgs, os.Environ(), log)
	}
	return backend.NewHTTP(ctx, cfg.UpstreamURL, log)
}

// buildMCPServer mirrors the upstream's tool and resource catalog onto a
// new client-facing MCP server, registering one handler per discovered
// tool/resource that runs the call through the redaction pipeline instead
// of forwarding directly — this is what makes the proxy transparent: the
// agent sees the same catalog the upstream advertises, just with every
// response already redacted.
func buildMCPServer(
	ctx context.Context,
	upstream backend.Handle,
	toolPipeline kernel.Next[*envelope.ToolRequest, *envelope.ToolResponse],
	resourcePipeline kernel.Next[*envelope.ResourceRequest, *envelope.ResourceResponse],
	log *logger.Logger,
) (*mcpserver.MCPServer, error) {
	srv := mcpserver.NewMCPServer("mcp-pii-proxy", "0.1.0")

	tools, err := upstream.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("list upstream tools: %w", err)
	}
	for _, t := range tools {
		name := t.Name
		srv.AddTool(backend.ToMCPTool(t), func(toolCtx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			resp, err := toolPipeline(toolCtx, &envelope.ToolRequest{ToolName: name, Arguments: request.Params.Arguments})
			if err != nil {
				return nil, err
			}
			return backend.FromEnvelopeToolResponse(resp), nil
		})
		log.Infof("catalog", "registered tool %q", name)
	}

	resources, err := upstream.ListResources(ctx)
	if err != nil {
		return nil, fmt.Errorf("list upstream resources: %w", err)
	}
	for _, r := range resources {
		uri := r.URI
		srv.AddResource(backend.ToMCPResource(r), func(resCtx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
			resp, err := resourcePipeline(resCtx, &envelope.ResourceRequest{URI: uri})
			if err != nil {
				return nil, err
			}
			return backend.FromEnvelopeResourceResponse(resp), nil
		})
		log.Infof("catalog", "registered resource %q", uri)
	}

	return srv, nil
}

func printBanner(cfg *config.Config, demo bool) {
	mode := "real upstream"
	if demo {
		mode = "canned demo backend"
	}
	fmt.Printf(`
╔══════════════════════════════════════════════════════╗
║              MCP Anonymizing Proxy (Go)               ║
╚══════════════════════════════════════════════════════╝
  Compliance profile : %s
  Audit enabled       : %v
  Comprehend enabled  : %v
  Backend mode        : %s
  Management port     : %d

  Check status:
    curl http://127.0.0.1:%d/status
`, cfg.ComplianceProfile, cfg.AuditEnabled, cfg.ComprehendEnabled, mode, cfg.ManagementPort, cfg.ManagementPort)
}
