// Package ir provides the shared data model of the approval engine: field
// values, live and sandbox records, model configuration and store operations.
//
// This package contains type definitions and pure helpers only. All other
// internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - NO float types anywhere - use int64 for numbers
//   - Value equality is type-strict (see Equal)
//   - All JSON tags use snake_case
//   - Digests use RFC 8785 canonical JSON with domain separation
package ir
