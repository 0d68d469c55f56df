package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/authgate/authgate/internal/control"
)

func TestStatus_Properties(t *testing.T) {
	cmd := NewStatusCmd()

	if cmd.Use != "status" {
		t.Errorf("Use = %q, want %q", cmd.Use, "status")
	}

	if !strings.Contains(cmd.Short, "status") {
		t.Error("Short description should mention status")
	}

	if !strings.Contains(cmd.Long, "health") {
		t.Error("Long description should mention health")
	}
}

func TestStatus_Flags(t *testing.T) {
	cmd := NewStatusCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--help"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if !strings.Contains(buf.String(), "--json") {
		t.Error("Help missing --json flag")
	}
}

func TestStatus_NotRunning(t *testing.T) {
	// Use a temporary directory with no sockets
	tmpDir := createStatusSocketTempDir(t, "not-running")
	t.Setenv("XDG_RUNTIME_DIR", tmpDir)

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"status"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	output := buf.String()

	if !strings.Contains(output, "server") {
		t.Error("Output should mention server process")
	}
	if !strings.Contains(output, "stopped") && !strings.Contains(output, "not running") {
		t.Errorf("Output should indicate the server is stopped, got: %s", output)
	}
}

func TestStatus_ServerRunning(t *testing.T) {
	tmpDir := createStatusSocketTempDir(t, "running")
	t.Setenv("XDG_RUNTIME_DIR", tmpDir)

	startMockControlServer(t)

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"status"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	output := buf.String()

	if !strings.Contains(output, "server") {
		t.Error("Output should mention server process")
	}
	if !strings.Contains(output, "running") && !strings.Contains(output, "healthy") {
		t.Errorf("Output should indicate server is running/healthy, got: %s", output)
	}
}

func TestStatus_JSONOutput(t *testing.T) {
	tmpDir := createStatusSocketTempDir(t, "json-output")
	t.Setenv("XDG_RUNTIME_DIR", tmpDir)

	startMockControlServer(t)

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"status", "--json"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	output := buf.String()

	var result map[string]any
	if err := json.Unmarshal([]byte(output), &result); err != nil {
		t.Fatalf("Output should be valid JSON, got error: %v, output: %s", err, output)
	}

	serverStatus, ok := result["server"].(map[string]any)
	if !ok {
		t.Fatalf("server should be an object, got: %v", result)
	}
	if serverStatus["running"] != true {
		t.Errorf("server should be running, got: %v", serverStatus)
	}
}

// =============================================================================
// Helper Functions
// =============================================================================

// createStatusSocketTempDir creates a temp directory in /tmp directly (not
// TMPDIR) because Unix sockets may not work in sandboxed temp directories.
func createStatusSocketTempDir(t *testing.T, name string) string {
	t.Helper()
	tmpDir, err := os.MkdirTemp("/tmp", "authgate-status-"+name+"-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(tmpDir) })
	return tmpDir
}

// startMockControlServer starts a control socket for the "server" component
// and registers cleanup.
func startMockControlServer(t *testing.T) *control.Server {
	t.Helper()
	server := control.NewServer("server", nil)
	if err := server.Start(); err != nil {
		t.Fatalf("failed to start control server: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Stop(ctx)
	})
	return server
}

// =============================================================================
// Unit Tests for internal functions
// =============================================================================

func TestQueryProcessStatus_SocketNotFound(t *testing.T) {
	tmpDir := createStatusSocketTempDir(t, "not-found")
	t.Setenv("XDG_RUNTIME_DIR", tmpDir)

	status := queryProcessStatus("server")

	if status.Running {
		t.Error("status.Running should be false when socket doesn't exist")
	}
	if status.Error == "" {
		t.Error("status.Error should contain error message when socket doesn't exist")
	}
}

func TestQueryProcessStatus_SocketExists(t *testing.T) {
	tmpDir := createStatusSocketTempDir(t, "exists")
	t.Setenv("XDG_RUNTIME_DIR", tmpDir)

	startMockControlServer(t)

	status := queryProcessStatus("server")

	if !status.Running {
		t.Error("status.Running should be true when socket exists and responds")
	}
	if status.Health != "healthy" {
		t.Errorf("status.Health = %q, want %q", status.Health, "healthy")
	}
	if status.PID <= 0 {
		t.Errorf("status.PID = %d, should be positive", status.PID)
	}
}

func TestQueryProcessStatus_SocketExistsButNotResponding(t *testing.T) {
	tmpDir := createStatusSocketTempDir(t, "not-responding")
	t.Setenv("XDG_RUNTIME_DIR", tmpDir)

	runtimeDir := tmpDir + "/authgate"
	if err := os.MkdirAll(runtimeDir, 0o700); err != nil {
		t.Fatalf("failed to create runtime dir: %v", err)
	}

	// A plain file, not a real socket
	socketPath := runtimeDir + "/authgate-server.sock"
	if err := os.WriteFile(socketPath, []byte("not a socket"), 0o600); err != nil {
		t.Fatalf("failed to create fake socket: %v", err)
	}

	status := queryProcessStatus("server")

	if status.Running {
		t.Error("status.Running should be false when socket doesn't respond")
	}
	if status.Error == "" {
		t.Error("status.Error should contain error message")
	}
}

func TestFormatStatusTable(t *testing.T) {
	statuses := map[string]ProcessStatus{
		"server": {
			Component:     "server",
			Running:       true,
			Health:        "healthy",
			PID:           12345,
			UptimeSeconds: 3600,
		},
	}

	output := formatStatusTable(statuses)

	if !strings.Contains(output, "server") {
		t.Error("table should contain 'server'")
	}
	if !strings.Contains(output, "running") {
		t.Error("table should indicate running status")
	}
	if !strings.Contains(output, "1h 0m") {
		t.Errorf("table should contain formatted uptime, got: %s", output)
	}
}

func TestFormatStatusTable_Stopped(t *testing.T) {
	statuses := map[string]ProcessStatus{
		"server": {
			Component: "server",
			Running:   false,
			Error:     "socket not found",
		},
	}

	output := formatStatusTable(statuses)

	if !strings.Contains(output, "stopped") {
		t.Error("table should indicate stopped status")
	}
	if !strings.Contains(output, "socket not found") {
		t.Error("table should show the error reason")
	}
}

func TestFormatStatusJSON(t *testing.T) {
	statuses := map[string]ProcessStatus{
		"server": {
			Component:     "server",
			Running:       true,
			Health:        "healthy",
			PID:           12345,
			UptimeSeconds: 3600,
		},
	}

	output, err := formatStatusJSON(statuses)
	if err != nil {
		t.Fatalf("formatStatusJSON() error = %v", err)
	}

	var result map[string]any
	if err := json.Unmarshal([]byte(output), &result); err != nil {
		t.Fatalf("output should be valid JSON: %v", err)
	}

	serverStatus, ok := result["server"].(map[string]any)
	if !ok {
		t.Fatal("server should be an object")
	}
	if serverStatus["running"] != true {
		t.Error("server.running should be true")
	}
	if serverStatus["health"] != "healthy" {
		t.Errorf("server.health = %v, want %q", serverStatus["health"], "healthy")
	}
}

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		seconds int64
		want    string
	}{
		{30, "30s"},
		{90, "1m 30s"},
		{3600, "1h 0m"},
		{7320, "2h 2m"},
	}

	for _, tt := range tests {
		if got := formatUptime(tt.seconds); got != tt.want {
			t.Errorf("formatUptime(%d) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}

func TestCreateUnixHTTPClient(t *testing.T) {
	tmpDir := createStatusSocketTempDir(t, "http-client")
	t.Setenv("XDG_RUNTIME_DIR", tmpDir)

	startMockControlServer(t)

	socketPath := tmpDir + "/authgate/authgate-server.sock"
	client := createUnixHTTPClient(socketPath)

	resp, err := client.Get("http://localhost/health")
	if err != nil {
		t.Fatalf("GET /health error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
}

func TestCreateUnixHTTPClient_Timeout(t *testing.T) {
	tmpDir := createStatusSocketTempDir(t, "http-timeout")
	t.Setenv("XDG_RUNTIME_DIR", tmpDir)

	runtimeDir := tmpDir + "/authgate"
	if err := os.MkdirAll(runtimeDir, 0o700); err != nil {
		t.Fatalf("failed to create runtime dir: %v", err)
	}

	socketPath := runtimeDir + "/authgate-server.sock"
	client := createUnixHTTPClient(socketPath)

	// A listener that accepts but never responds
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	defer func() { _ = listener.Close() }()

	if _, err := client.Get("http://localhost/health"); err == nil {
		t.Error("expected timeout error")
	}
}
