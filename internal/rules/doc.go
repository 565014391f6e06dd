// Package rules compiles and evaluates custom auto-processing rules.
//
// A rule is a boolean expression over the sandbox being submitted. Two
// engines are supported: expr-lang/expr ("expr", the default) and
// google/cel-go ("cel"). Both see the same variables:
//
//	authors      list of author identities
//	actor        request actor identity, "" when none
//	is_new       whether the live record was created by this submission
//	pending      staged tracked values
//	stored       stored values
//	live         the live record's fields
//	record_type  live record type
//	id           live record id
package rules
