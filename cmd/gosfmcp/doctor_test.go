package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	sfmcp "github.com/rickchristie/snowflake-mcp"
)

func TestDoctorValidConfig(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := validServerConfig()
	cfg.ErrorPrompts = []sfmcp.ErrorPromptRule{
		{Pattern: "does not exist", Message: "Check the table name."},
	}
	path := writeConfigFile(t, dir, cfg)

	var buf bytes.Buffer
	if err := doctor(&buf, false, path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	output := buf.String()

	if strings.Contains(output, "✗") {
		t.Fatalf("expected no failed checks, got:\n%s", output)
	}
	if !strings.Contains(output, "✓") {
		t.Fatalf("expected passed checks, got:\n%s", output)
	}
	for _, check := range []string{
		"Config file is valid JSON",
		"connection.account is set (myorg-myaccount)",
		"server.transport is stdio or http (http)",
		"server.port is > 0 (8080)",
		"All regex patterns compile",
	} {
		if !strings.Contains(output, check) {
			t.Fatalf("expected check %q in output:\n%s", check, output)
		}
	}

	if !strings.Contains(output, "Agent Connection Snippets") {
		t.Fatalf("expected agent snippets section, got:\n%s", output)
	}
	for _, agent := range []string{"Claude Code", "Copilot CLI", "Gemini CLI", "OpenCode", "Cursor", "Windsurf"} {
		if !strings.Contains(output, agent) {
			t.Fatalf("expected snippet for %q in output:\n%s", agent, output)
		}
	}
	if !strings.Contains(output, `"snowflake"`) {
		t.Fatalf("expected server name in snippets, got:\n%s", output)
	}
}

func TestDoctorMissingConfig(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := doctor(&buf, false, "/nonexistent/config.json"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	output := buf.String()

	if !strings.Contains(output, "✗") {
		t.Fatalf("expected failed check, got:\n%s", output)
	}
	if !strings.Contains(output, "Config file readable") {
		t.Fatalf("expected readable check, got:\n%s", output)
	}
	if !strings.Contains(output, "Fix the issues above") {
		t.Fatalf("expected fix instruction, got:\n%s", output)
	}
	if strings.Contains(output, "Agent Connection Snippets") {
		t.Fatalf("expected no snippets for broken config, got:\n%s", output)
	}
}

func TestDoctorInvalidJSON(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	var buf bytes.Buffer
	if err := doctor(&buf, false, path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	output := buf.String()

	if !strings.Contains(output, "✗") {
		t.Fatalf("expected failed check, got:\n%s", output)
	}
	if !strings.Contains(output, "Config file is valid JSON") {
		t.Fatalf("expected JSON check, got:\n%s", output)
	}
	if strings.Contains(output, "Agent Connection Snippets") {
		t.Fatalf("expected no snippets for broken config, got:\n%s", output)
	}
}

func TestDoctorMissingAccount(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := validServerConfig()
	cfg.Connection.Account = ""
	path := writeConfigFile(t, dir, cfg)

	var buf bytes.Buffer
	if err := doctor(&buf, false, path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	output := buf.String()

	if !strings.Contains(output, "✗ connection.account is set") {
		t.Fatalf("expected failed account check, got:\n%s", output)
	}
	if !strings.Contains(output, "Fix the issues above") {
		t.Fatalf("expected fix instruction, got:\n%s", output)
	}
}

func TestDoctorInvalidTransport(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := validServerConfig()
	cfg.Server.Transport = "websocket"
	path := writeConfigFile(t, dir, cfg)

	var buf bytes.Buffer
	if err := doctor(&buf, false, path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	output := buf.String()

	if !strings.Contains(output, `server.transport is stdio or http (got "websocket")`) {
		t.Fatalf("expected failed transport check, got:\n%s", output)
	}
	if strings.Contains(output, "Agent Connection Snippets") {
		t.Fatalf("expected no snippets for broken config, got:\n%s", output)
	}
}

func TestDoctorInvalidRegex(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := validServerConfig()
	cfg.ErrorPrompts = []sfmcp.ErrorPromptRule{
		{Pattern: "[invalid", Message: "broken"},
	}
	path := writeConfigFile(t, dir, cfg)

	var buf bytes.Buffer
	if err := doctor(&buf, false, path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	output := buf.String()

	if !strings.Contains(output, "error_prompts[0] regex compiles") {
		t.Fatalf("expected failed regex check, got:\n%s", output)
	}
	if !strings.Contains(output, "✗") {
		t.Fatalf("expected failed check, got:\n%s", output)
	}
	if !strings.Contains(output, "Fix the issues above") {
		t.Fatalf("expected fix instruction, got:\n%s", output)
	}
}

func TestDoctorPortInSnippets(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := validServerConfig()
	cfg.Server.Port = 9999
	path := writeConfigFile(t, dir, cfg)

	var buf bytes.Buffer
	if err := doctor(&buf, false, path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	output := buf.String()

	// The URL appears once per snippet: Claude Code command, Claude Code
	// .mcp.json, Copilot CLI, Gemini CLI, OpenCode, Cursor, Windsurf.
	count := strings.Count(output, "http://localhost:9999/mcp")
	if count != 7 {
		t.Fatalf("expected URL with port 9999 in all 7 snippets, found %d:\n%s", count, output)
	}
}

func TestDoctorStdioSnippets(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := validServerConfig()
	cfg.Server.Transport = "stdio"
	cfg.Server.Port = 0
	path := writeConfigFile(t, dir, cfg)

	var buf bytes.Buffer
	if err := doctor(&buf, false, path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	output := buf.String()

	if strings.Contains(output, "✗") {
		t.Fatalf("expected no failed checks for stdio with no port, got:\n%s", output)
	}
	// The port check only applies to the http transport.
	if strings.Contains(output, "server.port is > 0") {
		t.Fatalf("expected no port check for stdio transport, got:\n%s", output)
	}
	if !strings.Contains(output, "claude mcp add snowflake -- gosfmcp serve") {
		t.Fatalf("expected stdio claude command, got:\n%s", output)
	}
	if !strings.Contains(output, `"command": "gosfmcp"`) {
		t.Fatalf("expected command-based snippets, got:\n%s", output)
	}
	if strings.Contains(output, "http://localhost") {
		t.Fatalf("expected no URL snippets for stdio transport, got:\n%s", output)
	}
}

func TestDoctorCortexCatalogValid(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	servicesPath := filepath.Join(dir, "service_config.yaml")
	services := `search_services:
  - service_name: product_search
    database_name: ANALYTICS
    schema_name: PUBLIC
analyst_services:
  - service_name: sales
    semantic_model: "@ANALYTICS.PUBLIC.MODELS/sales.yaml"
cortex_complete:
  default_model: mistral-large2
  models:
    - mistral-large2
    - llama3.1-70b
`
	if err := os.WriteFile(servicesPath, []byte(services), 0644); err != nil {
		t.Fatalf("failed to write services file: %v", err)
	}

	cfg := validServerConfig()
	cfg.Cortex.ServicesPath = servicesPath
	path := writeConfigFile(t, dir, cfg)

	var buf bytes.Buffer
	if err := doctor(&buf, false, path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	output := buf.String()

	if strings.Contains(output, "✗") {
		t.Fatalf("expected no failed checks, got:\n%s", output)
	}
	if !strings.Contains(output, "Cortex service catalog loads") {
		t.Fatalf("expected catalog check, got:\n%s", output)
	}
}

func TestDoctorCortexCatalogBrokenSection(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	servicesPath := filepath.Join(dir, "service_config.yaml")
	services := `search_services: "not a list"
analyst_services:
  - service_name: sales
    semantic_model: "@ANALYTICS.PUBLIC.MODELS/sales.yaml"
`
	if err := os.WriteFile(servicesPath, []byte(services), 0644); err != nil {
		t.Fatalf("failed to write services file: %v", err)
	}

	cfg := validServerConfig()
	cfg.Cortex.ServicesPath = servicesPath
	path := writeConfigFile(t, dir, cfg)

	var buf bytes.Buffer
	if err := doctor(&buf, false, path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	output := buf.String()

	if !strings.Contains(output, "cortex search_services loads") {
		t.Fatalf("expected failed search_services check, got:\n%s", output)
	}
	if !strings.Contains(output, "Fix the issues above") {
		t.Fatalf("expected fix instruction, got:\n%s", output)
	}
	if strings.Contains(output, "Agent Connection Snippets") {
		t.Fatalf("expected no snippets for broken config, got:\n%s", output)
	}
}
