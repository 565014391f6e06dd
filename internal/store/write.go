package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/roach88/approval/internal/ir"
)

const tracerName = "github.com/roach88/approval/internal/store"

// Write applies a single op. It is AtomicCommit with one element.
func (s *Store) Write(ctx context.Context, op ir.Op) error {
	return s.AtomicCommit(ctx, []ir.Op{op})
}

// AtomicCommit applies every op in one transaction or none of them.
// A stale Expect, or a second open sandbox for the same record, rolls the
// transaction back and returns an error wrapping ErrConflict.
func (s *Store) AtomicCommit(ctx context.Context, ops []ir.Op) (err error) {
	if len(ops) == 0 {
		return nil
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "store.AtomicCommit")
	span.SetAttributes(attribute.Int("db.ops", len(ops)), attribute.String("db.system", "sqlite"))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i, op := range ops {
		if err := applyOp(ctx, tx, op); err != nil {
			return fmt.Errorf("op %d (%s %s): %w", i, op.Kind, op.Ref(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func applyOp(ctx context.Context, tx *sqlx.Tx, op ir.Op) error {
	switch op.Kind {
	case ir.OpPutLive:
		if op.Live == nil {
			return errors.New("put_live without record")
		}
		return putLive(ctx, tx, op.Live, op.Expect)
	case ir.OpPutSandbox:
		if op.Sandbox == nil {
			return errors.New("put_sandbox without record")
		}
		return putSandbox(ctx, tx, op.Sandbox, op.Expect)
	case ir.OpDeleteSandbox:
		if op.Sandbox == nil {
			return errors.New("delete_sandbox without record")
		}
		return deleteSandbox(ctx, tx, op.Sandbox.ID, op.Expect)
	default:
		return fmt.Errorf("unknown op kind %q", op.Kind)
	}
}

func putLive(ctx context.Context, tx *sqlx.Tx, live *ir.LiveRecord, expect int64) error {
	row, err := toLiveRow(live)
	if err != nil {
		return err
	}

	if expect == 0 {
		ib := sqlbuilder.SQLite.NewInsertBuilder()
		ib.InsertInto("live_records")
		ib.Cols(liveColumns...)
		ib.Values(row.RecordType, row.RecordID, row.Fields, row.Approved, row.Version, row.CreatedAt, row.UpdatedAt)
		query, args := ib.Build()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return classify(err)
		}
		return nil
	}

	ub := sqlbuilder.SQLite.NewUpdateBuilder()
	ub.Update("live_records")
	ub.Set(
		ub.Assign("fields", row.Fields),
		ub.Assign("approved", row.Approved),
		ub.Assign("version", row.Version),
		ub.Assign("updated_at", row.UpdatedAt),
	)
	ub.Where(
		ub.Equal("record_type", row.RecordType),
		ub.Equal("record_id", row.RecordID),
		ub.Equal("version", expect),
	)
	return execExpectOne(ctx, tx, ub)
}

func putSandbox(ctx context.Context, tx *sqlx.Tx, sb *ir.SandboxRecord, expect int64) error {
	row, err := toSandboxRow(sb)
	if err != nil {
		return err
	}

	if expect == 0 {
		ib := sqlbuilder.SQLite.NewInsertBuilder()
		ib.InsertInto("sandboxes")
		ib.Cols(sandboxColumns...)
		ib.Values(
			row.ID, row.RecordType, row.RecordID, row.Status, row.Pending, row.Stored, row.Authors,
			row.IsNew, row.Revision, row.Digest, row.CreatedAt, row.UpdatedAt,
			row.ResolvedAt, row.ResolvedBy, row.Reason, row.Rule,
		)
		query, args := ib.Build()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return classify(err)
		}
		return nil
	}

	ub := sqlbuilder.SQLite.NewUpdateBuilder()
	ub.Update("sandboxes")
	ub.Set(
		ub.Assign("status", row.Status),
		ub.Assign("pending", row.Pending),
		ub.Assign("stored", row.Stored),
		ub.Assign("authors", row.Authors),
		ub.Assign("is_new", row.IsNew),
		ub.Assign("revision", row.Revision),
		ub.Assign("digest", row.Digest),
		ub.Assign("updated_at", row.UpdatedAt),
		ub.Assign("resolved_at", row.ResolvedAt),
		ub.Assign("resolved_by", row.ResolvedBy),
		ub.Assign("reason", row.Reason),
		ub.Assign("rule", row.Rule),
	)
	ub.Where(
		ub.Equal("id", row.ID),
		ub.Equal("revision", expect),
	)
	return execExpectOne(ctx, tx, ub)
}

func deleteSandbox(ctx context.Context, tx *sqlx.Tx, id string, expect int64) error {
	db := sqlbuilder.SQLite.NewDeleteBuilder()
	db.DeleteFrom("sandboxes")
	db.Where(
		db.Equal("id", id),
		db.Equal("revision", expect),
	)
	return execExpectOne(ctx, tx, db)
}

// execExpectOne runs a conditional statement that must touch exactly one row.
func execExpectOne(ctx context.Context, tx *sqlx.Tx, b sqlbuilder.Builder) error {
	query, args := b.Build()
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return classify(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n != 1 {
		return ErrConflict
	}
	return nil
}

// classify maps unique and primary key violations to ErrConflict.
func classify(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}
