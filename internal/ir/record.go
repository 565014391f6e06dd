package ir

import (
	"slices"
	"time"
)

// Fields is the state of a record: field name to value.
type Fields map[string]IRValue

// Clone returns a deep copy. A nil Fields clones to an empty, non-nil map.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = Clone(v)
	}
	return out
}

// Keys returns field names in RFC 8785 order.
func (f Fields) Keys() []string {
	return IRObject(f).SortedKeys()
}

// Equal reports whether both states hold the same keys with equal values.
func (f Fields) Equal(other Fields) bool {
	return Equal(IRObject(f), IRObject(other))
}

// RecordRef identifies a live record. It is a lookup key, not ownership.
type RecordRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Key returns "type/id", the per-identity serialisation key.
func (r RecordRef) Key() string {
	return r.Type + "/" + r.ID
}

func (r RecordRef) String() string {
	return r.Key()
}

// Identity is an opaque, comparable actor token supplied by the host.
type Identity string

// SystemPolicy is the resolver recorded when the policy engine resolves a sandbox.
const SystemPolicy Identity = "system:policy"

// Identities is an author set kept sorted and free of duplicates.
type Identities []Identity

// NewIdentities builds a sorted, de-duplicated author set.
func NewIdentities(ids ...Identity) Identities {
	out := make(Identities, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		out = append(out, id)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Union returns the sorted union of both sets.
func (s Identities) Union(other Identities) Identities {
	merged := make(Identities, 0, len(s)+len(other))
	merged = append(merged, s...)
	merged = append(merged, other...)
	return NewIdentities(merged...)
}

// Contains reports whether id is in the set.
func (s Identities) Contains(id Identity) bool {
	_, found := slices.BinarySearch(s, id)
	return found
}

// Status is the lifecycle state of a sandbox.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
)

// Valid reports whether s is one of the four known states.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPending, StatusApproved, StatusDenied:
		return true
	}
	return false
}

// Terminal reports whether no transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusDenied
}

// Open reports whether s still carries un-merged changes.
func (s Status) Open() bool {
	return s == StatusDraft || s == StatusPending
}

// LiveRecord is the persisted, publicly visible entity subject to moderation.
type LiveRecord struct {
	Ref    RecordRef `json:"ref"`
	Fields Fields    `json:"fields"`

	// Approved is false for records created through the engine until a
	// sandbox for them is first approved. It drives the default overlay.
	Approved bool `json:"approved"`

	// Version is the optimistic concurrency token. 0 means not persisted.
	Version int64 `json:"version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy of the record.
func (l *LiveRecord) Clone() *LiveRecord {
	if l == nil {
		return nil
	}
	out := *l
	out.Fields = l.Fields.Clone()
	return &out
}

// SandboxRecord stages not-yet-approved values for one live record.
type SandboxRecord struct {
	ID  string    `json:"id"`
	Ref RecordRef `json:"ref"`

	// Pending holds staged values for tracked fields only.
	Pending Fields `json:"pending"`
	// Stored holds values for stored fields; they are applied to the live
	// record immediately and carried here for context.
	Stored Fields `json:"stored"`

	Status  Status     `json:"status"`
	Authors Identities `json:"authors"`

	// IsNew is true when the live record was created by the same operation
	// that opened this sandbox.
	IsNew bool `json:"is_new"`

	// Revision increments on every write; stores compare it on commit.
	Revision int64 `json:"revision"`
	// Digest is ChangeDigest over Ref, Pending and Stored.
	Digest string `json:"digest"`

	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy Identity   `json:"resolved_by,omitempty"`
	Reason     string     `json:"reason,omitempty"`
	// Rule names the policy rule that resolved the sandbox, if any.
	Rule string `json:"rule,omitempty"`
}

// Clone returns a deep copy of the sandbox.
func (s *SandboxRecord) Clone() *SandboxRecord {
	if s == nil {
		return nil
	}
	out := *s
	out.Pending = s.Pending.Clone()
	out.Stored = s.Stored.Clone()
	out.Authors = slices.Clone(s.Authors)
	if s.ResolvedAt != nil {
		t := *s.ResolvedAt
		out.ResolvedAt = &t
	}
	return &out
}

// FieldChange is one entry of a ChangeSet.
type FieldChange struct {
	Old IRValue `json:"old"`
	New IRValue `json:"new"`
	// Present is false when the baseline had no value for the field.
	Present bool `json:"present"`
}

// ChangeSet maps field names to their old and new values.
type ChangeSet map[string]FieldChange

// Empty reports whether nothing changed.
func (c ChangeSet) Empty() bool {
	return len(c) == 0
}

// Keys returns changed field names in RFC 8785 order.
func (c ChangeSet) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// Values returns the new values of the changes whose names satisfy keep.
func (c ChangeSet) Values(keep func(string) bool) Fields {
	out := make(Fields)
	for k, ch := range c {
		if keep(k) {
			out[k] = ch.New
		}
	}
	return out
}
