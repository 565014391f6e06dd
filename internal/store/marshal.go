package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/approval/internal/ir"
)

const timeLayout = time.RFC3339Nano

// liveRow is the live_records row shape.
type liveRow struct {
	RecordType string `db:"record_type"`
	RecordID   string `db:"record_id"`
	Fields     string `db:"fields"`
	Approved   bool   `db:"approved"`
	Version    int64  `db:"version"`
	CreatedAt  string `db:"created_at"`
	UpdatedAt  string `db:"updated_at"`
}

var liveColumns = []string{"record_type", "record_id", "fields", "approved", "version", "created_at", "updated_at"}

// sandboxRow is the sandboxes row shape.
type sandboxRow struct {
	ID         string         `db:"id"`
	RecordType string         `db:"record_type"`
	RecordID   string         `db:"record_id"`
	Status     string         `db:"status"`
	Pending    string         `db:"pending"`
	Stored     string         `db:"stored"`
	Authors    string         `db:"authors"`
	IsNew      bool           `db:"is_new"`
	Revision   int64          `db:"revision"`
	Digest     string         `db:"digest"`
	CreatedAt  string         `db:"created_at"`
	UpdatedAt  string         `db:"updated_at"`
	ResolvedAt sql.NullString `db:"resolved_at"`
	ResolvedBy string         `db:"resolved_by"`
	Reason     string         `db:"reason"`
	Rule       string         `db:"rule"`
}

var sandboxColumns = []string{
	"id", "record_type", "record_id", "status", "pending", "stored", "authors",
	"is_new", "revision", "digest", "created_at", "updated_at",
	"resolved_at", "resolved_by", "reason", "rule",
}

// marshalFields converts Fields to canonical JSON TEXT for storage.
func marshalFields(f ir.Fields) (string, error) {
	if f == nil {
		f = ir.Fields{}
	}
	data, err := ir.MarshalCanonical(ir.IRObject(f))
	if err != nil {
		return "", fmt.Errorf("marshal fields: %w", err)
	}
	return string(data), nil
}

// unmarshalFields parses JSON TEXT into Fields. Integers are decoded via
// json.Number so values beyond 2^53 survive.
func unmarshalFields(data string) (ir.Fields, error) {
	if data == "" || data == "{}" {
		return ir.Fields{}, nil
	}
	var obj ir.IRObject
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal fields: %w", err)
	}
	return ir.Fields(obj), nil
}

func marshalAuthors(ids ir.Identities) (string, error) {
	if ids == nil {
		ids = ir.Identities{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return "", fmt.Errorf("marshal authors: %w", err)
	}
	return string(data), nil
}

func unmarshalAuthors(data string) (ir.Identities, error) {
	var ids []ir.Identity
	if err := json.Unmarshal([]byte(data), &ids); err != nil {
		return nil, fmt.Errorf("unmarshal authors: %w", err)
	}
	return ir.NewIdentities(ids...), nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

func toLiveRow(l *ir.LiveRecord) (liveRow, error) {
	fields, err := marshalFields(l.Fields)
	if err != nil {
		return liveRow{}, err
	}
	return liveRow{
		RecordType: l.Ref.Type,
		RecordID:   l.Ref.ID,
		Fields:     fields,
		Approved:   l.Approved,
		Version:    l.Version,
		CreatedAt:  formatTime(l.CreatedAt),
		UpdatedAt:  formatTime(l.UpdatedAt),
	}, nil
}

func (r liveRow) toRecord() (*ir.LiveRecord, error) {
	fields, err := unmarshalFields(r.Fields)
	if err != nil {
		return nil, err
	}
	created, err := parseTime(r.CreatedAt)
	if err != nil {
		return nil, err
	}
	updated, err := parseTime(r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &ir.LiveRecord{
		Ref:       ir.RecordRef{Type: r.RecordType, ID: r.RecordID},
		Fields:    fields,
		Approved:  r.Approved,
		Version:   r.Version,
		CreatedAt: created,
		UpdatedAt: updated,
	}, nil
}

func toSandboxRow(sb *ir.SandboxRecord) (sandboxRow, error) {
	pending, err := marshalFields(sb.Pending)
	if err != nil {
		return sandboxRow{}, err
	}
	stored, err := marshalFields(sb.Stored)
	if err != nil {
		return sandboxRow{}, err
	}
	authors, err := marshalAuthors(sb.Authors)
	if err != nil {
		return sandboxRow{}, err
	}
	row := sandboxRow{
		ID:         sb.ID,
		RecordType: sb.Ref.Type,
		RecordID:   sb.Ref.ID,
		Status:     string(sb.Status),
		Pending:    pending,
		Stored:     stored,
		Authors:    authors,
		IsNew:      sb.IsNew,
		Revision:   sb.Revision,
		Digest:     sb.Digest,
		CreatedAt:  formatTime(sb.CreatedAt),
		UpdatedAt:  formatTime(sb.UpdatedAt),
		ResolvedBy: string(sb.ResolvedBy),
		Reason:     sb.Reason,
		Rule:       sb.Rule,
	}
	if sb.ResolvedAt != nil {
		row.ResolvedAt = sql.NullString{String: formatTime(*sb.ResolvedAt), Valid: true}
	}
	return row, nil
}

func (r sandboxRow) toRecord() (*ir.SandboxRecord, error) {
	pending, err := unmarshalFields(r.Pending)
	if err != nil {
		return nil, err
	}
	stored, err := unmarshalFields(r.Stored)
	if err != nil {
		return nil, err
	}
	authors, err := unmarshalAuthors(r.Authors)
	if err != nil {
		return nil, err
	}
	created, err := parseTime(r.CreatedAt)
	if err != nil {
		return nil, err
	}
	updated, err := parseTime(r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	sb := &ir.SandboxRecord{
		ID:         r.ID,
		Ref:        ir.RecordRef{Type: r.RecordType, ID: r.RecordID},
		Pending:    pending,
		Stored:     stored,
		Status:     ir.Status(r.Status),
		Authors:    authors,
		IsNew:      r.IsNew,
		Revision:   r.Revision,
		Digest:     r.Digest,
		CreatedAt:  created,
		UpdatedAt:  updated,
		ResolvedBy: ir.Identity(r.ResolvedBy),
		Reason:     r.Reason,
		Rule:       r.Rule,
	}
	if r.ResolvedAt.Valid {
		t, err := parseTime(r.ResolvedAt.String)
		if err != nil {
			return nil, err
		}
		sb.ResolvedAt = &t
	}
	return sb, nil
}
