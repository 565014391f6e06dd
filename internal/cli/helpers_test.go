package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// postModel moderates title and body; slug is stored and owner untracked.
const postModel = `package models

model: post: {
	tracked:  ["title", "body"]
	stored:   ["slug"]
	auto_approve: {staff: true, new: false, by_request: false}
}
`

// writeModels writes src as models.cue into a fresh directory.
func writeModels(t *testing.T, src string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "models.cue"), []byte(src), 0644))
	return dir
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// workspace returns the flags opening an engine over modelsDir and a
// database that persists across commands in the test.
func workspace(t *testing.T, modelsDir string) []string {
	t.Helper()
	db := filepath.Join(t.TempDir(), "approval.db")
	return []string{"--db", db, "--models", modelsDir, "--env-file", ""}
}

// sandboxJSON mirrors the JSON rendering of a sandbox.
type sandboxJSON struct {
	ID         string         `json:"id"`
	Status     string         `json:"status"`
	Pending    map[string]any `json:"pending"`
	Stored     map[string]any `json:"stored"`
	Authors    []string       `json:"authors"`
	IsNew      bool           `json:"is_new"`
	ResolvedBy string         `json:"resolved_by"`
	Rule       string         `json:"rule"`
	Reason     string         `json:"reason"`
}

// recordJSON mirrors RecordState.
type recordJSON struct {
	Live      map[string]any `json:"live"`
	Effective map[string]any `json:"effective"`
	Approved  bool           `json:"approved"`
	Version   int64          `json:"version"`
	Sandbox   *sandboxJSON   `json:"sandbox"`
}

// decodeData decodes a JSON success response into v.
func decodeData(t *testing.T, out string, v any) {
	t.Helper()
	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(t, "ok", resp.Status, out)
	require.NoError(t, json.Unmarshal(resp.Data, v))
}
