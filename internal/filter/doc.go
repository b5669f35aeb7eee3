// Package filter parses statement filter expressions and evaluates them
// against the attribute store.
//
// Expressions use a small subset of CEL:
//
//	statementType == 'ComputationRegistration'
//	attributes.size > 400 && attributes.label == 'train'
//	!(attributes.stage == 'draft') || attributes.reviewed == 1
//
// Parse produces a Filter tree. SQLCompiler turns the tree into a
// parameterized WHERE fragment for SQLite, and Match evaluates it in
// memory for key-value backends. Both agree on strict typing: strings and
// numbers never compare equal.
package filter
