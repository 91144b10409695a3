package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/eca/internal/config"
)

// testConfig is the environment-free configuration used by CLI tests.
func testConfig() config.Config {
	return config.Config{
		Store:         config.StoreMemory,
		DBPath:        "eca.db",
		RedisAddr:     "localhost:6379",
		RedisPrefix:   "eca:",
		MaxNodeVisits: 1000,
		HTTPAddr:      ":0",
		LogLevel:      "error",
		LogFormat:     "text",
	}
}

// execute runs the root command with args and returns stdout, stderr and
// the command error.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCommand(testConfig())
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// tempDB returns a fresh SQLite path for commands that persist.
func tempDB(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "eca.db")
}

// decodeResponse parses JSON output and decodes its data into target.
func decodeResponse(t *testing.T, out string, target any) CLIResponse {
	t.Helper()
	var raw struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
		Error  *CLIError       `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &raw), out)
	if target != nil && len(raw.Data) > 0 {
		require.NoError(t, json.Unmarshal(raw.Data, target))
	}
	return CLIResponse{Status: raw.Status, Error: raw.Error}
}
