// Package approval implements the sandboxed edit-approval engine.
//
// Edits to tracked fields of a live record are diverted into a sandbox
// record and held until a moderator or the auto-approval policy resolves
// them. Approved sandboxes are merged into the live record in the same
// atomic commit that resolves them.
//
// Pipeline (one serialised unit per live record):
//
//	candidate -> Diff -> Classify -> sandbox (tracked) / live (stored)
//	          -> Policy -> Transition -> Apply (approved only)
//
// The engine depends on a RecordStore with atomic multi-record commit and
// on host hooks registered per record type. It never starts goroutines,
// polls or retries; every resolution is caller-triggered.
package approval
