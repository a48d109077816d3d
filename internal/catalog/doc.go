// Package catalog loads workflow, notebook-job and data-sync-job declarations
// from a YAML or JSON file and installs them into a store.
//
// Keys may be written in snake_case or camelCase; they are folded to the
// camelCase schema once, here, and nowhere else. Family schedule types go
// through a schedule.Normalizer.
package catalog
