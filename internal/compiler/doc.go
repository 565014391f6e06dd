// Package compiler turns CUE model declarations into ir.ModelConfig values
// and validates them.
//
// A model is declared under the top-level "model" struct, keyed by record
// type:
//
//	model: post: {
//		tracked:  ["title", "body"]
//		stored:   ["slug"]
//		defaults: title: "Untitled"
//		auto_approve: {staff: true, new: false, by_request: false}
//		retention:     "retain"
//		authors_field: "owner"
//		rules: [{name: "short", engine: "expr", expr: "len(pending.title) < 5", decision: "approve"}]
//	}
//
// Compilation reports the first structural problem with its source
// position; Validate reports every semantic problem with an E1xx code.
package compiler
