package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/huandu/go-sqlbuilder"

	"github.com/roach88/approval/internal/ir"
)

// ReadLive returns the live record for ref, or nil if it does not exist.
func (s *Store) ReadLive(ctx context.Context, ref ir.RecordRef) (*ir.LiveRecord, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(liveColumns...)
	sb.From("live_records")
	sb.Where(
		sb.Equal("record_type", ref.Type),
		sb.Equal("record_id", ref.ID),
	)

	query, args := sb.Build()
	var row liveRow
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("read live %s: %w", ref, err)
	}
	return row.toRecord()
}

// ReadOpenSandbox returns the draft or pending sandbox for ref, or nil.
func (s *Store) ReadOpenSandbox(ctx context.Context, ref ir.RecordRef) (*ir.SandboxRecord, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(sandboxColumns...)
	sb.From("sandboxes")
	sb.Where(
		sb.Equal("record_type", ref.Type),
		sb.Equal("record_id", ref.ID),
		sb.In("status", string(ir.StatusDraft), string(ir.StatusPending)),
	)

	query, args := sb.Build()
	var row sandboxRow
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("read open sandbox %s: %w", ref, err)
	}
	return row.toRecord()
}

// ReadSandbox returns the sandbox with the given ID, or nil.
func (s *Store) ReadSandbox(ctx context.Context, id string) (*ir.SandboxRecord, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(sandboxColumns...)
	sb.From("sandboxes")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var row sandboxRow
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("read sandbox %s: %w", id, err)
	}
	return row.toRecord()
}

// Filter narrows ListSandboxes. Zero values match everything.
type Filter struct {
	Type     string
	ID       string
	Statuses []ir.Status
	Limit    int
}

// ListSandboxes returns sandboxes matching f, oldest first.
// Ordering is deterministic: ORDER BY created_at ASC, id ASC.
func (s *Store) ListSandboxes(ctx context.Context, f Filter) ([]*ir.SandboxRecord, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(sandboxColumns...)
	sb.From("sandboxes")
	var where []string
	if f.Type != "" {
		where = append(where, sb.Equal("record_type", f.Type))
	}
	if f.ID != "" {
		where = append(where, sb.Equal("record_id", f.ID))
	}
	if len(f.Statuses) > 0 {
		statuses := make([]any, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		where = append(where, sb.In("status", statuses...))
	}
	if len(where) > 0 {
		sb.Where(where...)
	}
	sb.OrderBy("created_at ASC", "id COLLATE BINARY ASC")
	if f.Limit > 0 {
		sb.Limit(f.Limit)
	}

	query, args := sb.Build()
	var rows []sandboxRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list sandboxes: %w", err)
	}

	out := make([]*ir.SandboxRecord, 0, len(rows))
	for _, r := range rows {
		rec, err := r.toRecord()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
