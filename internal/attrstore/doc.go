// Package attrstore indexes statements with free-form JSON attributes and
// answers filter queries over them.
//
// Two backends implement Store. SQLiteStore compiles filters to SQL with
// filter.SQLCompiler; BadgerStore keeps one key per statement and
// evaluates filters in memory with filter.Match. Both apply the same strict
// typing rule: a string attribute never matches a numeric comparison and a
// number never matches a string.
package attrstore
