package approval

import (
	"context"

	"github.com/roach88/approval/internal/ir"
)

// RecordStore is the persistence the engine depends on.
//
// Reads return (nil, nil) when the record does not exist. AtomicCommit must
// apply every op or none, and must reject the whole commit when any op's
// Expect differs from the persisted version or revision. The engine relies
// on this to keep the live record and its sandbox consistent.
type RecordStore interface {
	ReadLive(ctx context.Context, ref ir.RecordRef) (*ir.LiveRecord, error)
	ReadOpenSandbox(ctx context.Context, ref ir.RecordRef) (*ir.SandboxRecord, error)
	ReadSandbox(ctx context.Context, id string) (*ir.SandboxRecord, error)
	Write(ctx context.Context, op ir.Op) error
	AtomicCommit(ctx context.Context, ops []ir.Op) error
}

// Locker serialises operations per live record.
// The returned function releases the key.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}
