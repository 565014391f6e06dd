package authz

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/approval/internal/approval"
	"github.com/roach88/approval/internal/ir"
)

var (
	_ approval.PrivilegeChecker = (*Authorizer)(nil)
	_ approval.ForbiddenChecker = (*Authorizer)(nil)
)

func TestAuthorizer_InMemory(t *testing.T) {
	a, err := New()
	require.NoError(t, err)
	require.NoError(t, a.Grant("role:staff"))
	require.NoError(t, a.AddRole("alice", "role:staff"))
	require.NoError(t, a.Forbid("mallory", "post/*"))

	ctx := context.Background()
	post := ir.RecordRef{Type: "post", ID: "7"}
	comment := ir.RecordRef{Type: "comment", ID: "7"}

	ok, err := a.IsPrivileged(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = a.IsPrivileged(ctx, "bob")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = a.IsForbidden(ctx, "mallory", post)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = a.IsForbidden(ctx, "mallory", comment)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = a.IsForbidden(ctx, "alice", post)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAuthorizer_FromFiles(t *testing.T) {
	dir := t.TempDir()
	policy := filepath.Join(dir, "policy.csv")
	require.NoError(t, os.WriteFile(policy, []byte(
		"p, role:staff, *, privileged\n"+
			"p, role:banned, *, forbidden\n"+
			"g, alice, role:staff\n"+
			"g, eve, role:banned\n",
	), 0o644))

	a, err := NewFromFiles("", policy)
	require.NoError(t, err)

	ctx := context.Background()
	ok, err := a.IsPrivileged(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = a.IsForbidden(ctx, "eve", ir.RecordRef{Type: "any", ID: "1"})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAuthorizer_MissingModelFile(t *testing.T) {
	_, err := NewFromFiles(filepath.Join(t.TempDir(), "nope.conf"), "policy.csv")
	assert.Error(t, err)
}
