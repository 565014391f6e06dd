package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/approval/internal/ir"
)

func TestModerationFlow(t *testing.T) {
	ws := workspace(t, writeModels(t, postModel))
	run := func(args ...string) (string, error) {
		return execute(t, append(append([]string{"--format", "json"}, args...), ws...)...)
	}

	out, err := run("submit", "--type", "post", "--id", "1", "--set", "title=Hello", "--set", "slug=hello", "--actor", "alice")
	require.NoError(t, err, out)
	var sb sandboxJSON
	decodeData(t, out, &sb)
	require.NotEmpty(t, sb.ID)
	assert.Equal(t, "pending", sb.Status)
	assert.Equal(t, map[string]any{"title": "Hello"}, sb.Pending)
	assert.Equal(t, map[string]any{"slug": "hello"}, sb.Stored)
	assert.Equal(t, []string{"alice"}, sb.Authors)
	assert.True(t, sb.IsNew)

	out, err = run("pending")
	require.NoError(t, err, out)
	var list []sandboxJSON
	decodeData(t, out, &list)
	require.Len(t, list, 1)
	assert.Equal(t, sb.ID, list[0].ID)

	out, err = run("show", "--type", "post", "--id", "1")
	require.NoError(t, err, out)
	var state recordJSON
	decodeData(t, out, &state)
	assert.False(t, state.Approved)
	assert.Equal(t, map[string]any{"slug": "hello"}, state.Live)
	assert.Equal(t, map[string]any{"title": "Hello", "slug": "hello"}, state.Effective)
	require.NotNil(t, state.Sandbox)
	assert.Equal(t, sb.ID, state.Sandbox.ID)

	out, err = run("resolve", sb.ID, "--approve", "--resolver", "mod", "--reason", "fine")
	require.NoError(t, err, out)
	decodeData(t, out, &state)
	assert.True(t, state.Approved)
	assert.Equal(t, map[string]any{"title": "Hello", "slug": "hello"}, state.Live)

	out, err = run("pending")
	require.NoError(t, err, out)
	list = nil
	decodeData(t, out, &list)
	assert.Empty(t, list)

	out, err = run("pending", "--all")
	require.NoError(t, err, out)
	decodeData(t, out, &list)
	require.Len(t, list, 1)
	assert.Equal(t, "approved", list[0].Status)
	assert.Equal(t, "mod", list[0].ResolvedBy)
	assert.Equal(t, "fine", list[0].Reason)

	out, err = run("resolve", sb.ID, "--deny", "--resolver", "mod")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeInvalidState)
	assert.Contains(t, out, `"code":"E202"`)
}

func TestSubmitByStaffIsAutoApproved(t *testing.T) {
	ws := workspace(t, writeModels(t, postModel))

	args := append([]string{"--format", "json", "submit", "--type", "post", "--id", "1", "--set", "title=Hi", "--actor", "mod", "--staff", "mod"}, ws...)
	out, err := execute(t, args...)
	require.NoError(t, err, out)

	var sb sandboxJSON
	decodeData(t, out, &sb)
	assert.Equal(t, "approved", sb.Status)
	assert.Equal(t, string(ir.SystemPolicy), sb.ResolvedBy)
	assert.Equal(t, "staff_author", sb.Rule)
}

func TestSubmitDraftThenSubmit(t *testing.T) {
	ws := workspace(t, writeModels(t, postModel))

	out, err := execute(t, append([]string{"--format", "json", "submit", "--type", "post", "--id", "1", "--set", "body=draft text", "--actor", "alice", "--draft"}, ws...)...)
	require.NoError(t, err, out)
	var sb sandboxJSON
	decodeData(t, out, &sb)
	assert.Equal(t, "draft", sb.Status)

	out, err = execute(t, append([]string{"--format", "json", "pending"}, ws...)...)
	require.NoError(t, err, out)
	var list []sandboxJSON
	decodeData(t, out, &list)
	assert.Empty(t, list, "drafts are not awaiting moderation")

	out, err = execute(t, append([]string{"--format", "json", "submit-draft", sb.ID}, ws...)...)
	require.NoError(t, err, out)
	decodeData(t, out, &sb)
	assert.Equal(t, "pending", sb.Status)
}

func TestSubmitNoChanges(t *testing.T) {
	ws := workspace(t, writeModels(t, postModel))

	out, err := execute(t, append([]string{"submit", "--type", "post", "--id", "1", "--set", "slug=a", "--actor", "alice"}, ws...)...)
	require.NoError(t, err, out)

	out, err = execute(t, append([]string{"submit", "--type", "post", "--id", "1", "--set", "slug=a", "--actor", "alice"}, ws...)...)
	require.NoError(t, err, out)
	assert.Contains(t, out, "post/1: no pending changes")
}

func TestShowText(t *testing.T) {
	ws := workspace(t, writeModels(t, postModel))

	_, err := execute(t, append([]string{"submit", "--type", "post", "--id", "7", "--set", "title=Hi", "--actor", "alice"}, ws...)...)
	require.NoError(t, err)

	out, err := execute(t, append([]string{"show", "--type", "post", "--id", "7"}, ws...)...)
	require.NoError(t, err, out)
	assert.Contains(t, out, "record    post/7")
	assert.Contains(t, out, "approved  false")
	assert.Contains(t, out, `effective {"title":"Hi"}`)
	assert.Contains(t, out, "(pending)")
	assert.Contains(t, out, "authors   alice")
}

func TestEngineCommandErrors(t *testing.T) {
	models := writeModels(t, postModel)
	db := filepath.Join(t.TempDir(), "approval.db")

	tests := []struct {
		name string
		args []string
		exit int
		code string
	}{
		{
			name: "missing db",
			args: []string{"pending", "--models", models, "--env-file", ""},
			exit: ExitCommandError,
			code: ErrCodeBadInput,
		},
		{
			name: "missing models",
			args: []string{"pending", "--db", db, "--env-file", ""},
			exit: ExitCommandError,
			code: ErrCodeBadInput,
		},
		{
			name: "models dir not found",
			args: []string{"pending", "--db", db, "--models", "/nonexistent/models", "--env-file", ""},
			exit: ExitCommandError,
			code: ErrCodeNotFound,
		},
		{
			name: "unregistered type",
			args: []string{"submit", "--type", "comment", "--id", "1", "--set", "body=x", "--db", db, "--models", models, "--env-file", ""},
			exit: ExitFailure,
			code: ErrCodeConfig,
		},
		{
			name: "malformed assignment",
			args: []string{"submit", "--type", "post", "--id", "1", "--set", "=x", "--db", db, "--models", models, "--env-file", ""},
			exit: ExitCommandError,
			code: ErrCodeBadInput,
		},
		{
			name: "float value",
			args: []string{"submit", "--type", "post", "--id", "1", "--set", "title=1.5", "--db", db, "--models", models, "--env-file", ""},
			exit: ExitCommandError,
			code: ErrCodeBadInput,
		},
		{
			name: "unknown sandbox",
			args: []string{"submit-draft", "nope", "--db", db, "--models", models, "--env-file", ""},
			exit: ExitFailure,
			code: ErrCodeInvalidState,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, tt.exit, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.code)
			assert.Contains(t, out, "Error ["+tt.code+"]")
		})
	}
}

func TestResolveRequiresDecision(t *testing.T) {
	ws := workspace(t, writeModels(t, postModel))

	_, err := execute(t, append([]string{"resolve", "sb", "--resolver", "mod"}, ws...)...)
	require.Error(t, err)

	_, err = execute(t, append([]string{"resolve", "sb", "--resolver", "mod", "--approve", "--deny"}, ws...)...)
	require.Error(t, err)
}

func TestEnvFileDefaults(t *testing.T) {
	models := writeModels(t, postModel)
	db := filepath.Join(t.TempDir(), "approval.db")
	envFile := filepath.Join(t.TempDir(), "approval.env")
	require.NoError(t, os.WriteFile(envFile, []byte("APPROVAL_DB="+db+"\nAPPROVAL_MODELS="+models+"\n"), 0644))

	// Restored by t.Setenv's cleanup; godotenv skips variables already set.
	for _, key := range []string{EnvDB, EnvModels} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	out, err := execute(t, "--env-file", envFile, "submit", "--type", "post", "--id", "1", "--set", "title=Hi", "--actor", "alice")
	require.NoError(t, err, out)
	assert.Contains(t, out, "(pending)")

	_, err = os.Stat(db)
	assert.NoError(t, err)
}

func TestEnvFileMissingIsIgnored(t *testing.T) {
	require.NoError(t, loadDotEnv(filepath.Join(t.TempDir(), "missing.env")))
}

func TestParseAssignments(t *testing.T) {
	got, err := parseAssignments([]string{
		"title=Hello world",
		`quoted="Hi"`,
		"count=42",
		"flag=true",
		"nothing=null",
		`tags=["a","b"]`,
		`meta={"k":1}`,
		"empty=",
	})
	require.NoError(t, err)
	assert.Equal(t, ir.Fields{
		"title":   ir.IRString("Hello world"),
		"quoted":  ir.IRString("Hi"),
		"count":   ir.IRInt(42),
		"flag":    ir.IRBool(true),
		"nothing": ir.IRNull{},
		"tags":    ir.IRArray{ir.IRString("a"), ir.IRString("b")},
		"meta":    ir.IRObject{"k": ir.IRInt(1)},
		"empty":   ir.IRString(""),
	}, got)

	for _, bad := range []string{"novalue", "=x", "price=1.5"} {
		_, err := parseAssignments([]string{bad})
		assert.Error(t, err, bad)
	}
}
