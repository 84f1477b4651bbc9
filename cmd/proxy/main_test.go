package main

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"mcp-pii-proxy/internal/config"
	"mcp-pii-proxy/internal/logger"
	"mcp-pii-proxy/internal/management"
	"mcp-pii-proxy/internal/profile"
)

func testLog() *logger.Logger {
	return logger.New("PROXY_TEST", "error")
}

func testProfile(t *testing.T) profile.Profile {
	t.Helper()
	return profile.Get("GDPR", testLog())
}

func testOverrides(t *testing.T) *management.OverrideRegistry {
	t.Helper()
	return management.NewOverrideRegistry("", testLog())
}

func TestPrintBanner_ContainsExpectedFields(t *testing.T) {
	cfg := &config.Config{
		ComplianceProfile: "GDPR",
		AuditEnabled:      true,
		ComprehendEnabled: false,
		ManagementPort:    8090,
	}

	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	printBanner(cfg, false)

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	buf.ReadFrom(r)
	out := buf.String()

	for _, want := range []string{"GDPR", "8090", "real upstream"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in banner output, got:\n%s", want, out)
		}
	}
}

func TestPrintBanner_DemoMode(t *testing.T) {
	cfg := &config.Config{ComplianceProfile: "full", ManagementPort: 8090}

	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	printBanner(cfg, true)

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	buf.ReadFrom(r)
	out := buf.String()

	if !strings.Contains(out, "canned demo backend") {
		t.Errorf("expected demo mode label, got:\n%s", out)
	}
}

func TestBuildNERClient_DisabledReturnsNil(t *testing.T) {
	cfg := &config.Config{ComprehendEnabled: false}
	prof := testProfile(t)
	overrides := testOverrides(t)

	client := buildNERClient(cfg, prof, overrides, nil, testLog())
	if client != nil {
		t.Errorf("expected nil client when comprehend disabled, got %T", client)
	}
}
