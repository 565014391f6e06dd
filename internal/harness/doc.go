// Package harness runs YAML conformance scenarios against the approval
// engine.
//
// A scenario declares model configurations, staff and forbidden identities,
// and a list of steps. Each step submits a change, submits a draft, resolves
// a sandbox, or checks the resulting state:
//
//	name: overlay_until_approved
//	description: defaults show on a new record until a moderator approves it
//	models:
//	  - type: post
//	    tracked: [title, body]
//	    defaults: {title: Untitled}
//	steps:
//	  - submit: {type: post, id: "1", actor: alice, fields: {body: hi}}
//	  - expect: {type: post, id: "1", live: {title: Untitled}, pending: pending}
//	  - resolve: {sandbox: sb-0001, decision: approve, resolver: mod}
//
// Every scenario runs against a fresh in-memory SQLite store with a
// deterministic wall clock and sequential sandbox IDs ("sb-0001", ...), so
// the event trace it produces is stable and can be compared against a
// golden file.
package harness
