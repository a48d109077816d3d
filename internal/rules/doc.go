// Package rules evaluates automation conditions and applies actions to a
// record's attribute map.
//
// Conditions fold strictly left to right by Order; the connector on item i
// joins it to the running result of the items before it. Actions run in Order
// on a working copy, so later actions observe earlier writes. A failing
// action never aborts the ones after it.
package rules
