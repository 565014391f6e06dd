package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/approval/internal/ir"
)

var testTime = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

// createTestStore creates a new SQLite store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestLive creates a live record at version 1.
func createTestLive(typ, id string, fields ir.Fields) *ir.LiveRecord {
	return &ir.LiveRecord{
		Ref:       ir.RecordRef{Type: typ, ID: id},
		Fields:    fields,
		Version:   1,
		CreatedAt: testTime,
		UpdatedAt: testTime,
	}
}

// createTestSandbox creates a pending sandbox at revision 1.
func createTestSandbox(id, typ, recordID string, pending ir.Fields) *ir.SandboxRecord {
	return &ir.SandboxRecord{
		ID:        id,
		Ref:       ir.RecordRef{Type: typ, ID: recordID},
		Pending:   pending,
		Stored:    ir.Fields{},
		Status:    ir.StatusPending,
		Authors:   ir.NewIdentities("alice"),
		Revision:  1,
		Digest:    "digest-" + id,
		CreatedAt: testTime,
		UpdatedAt: testTime,
	}
}
