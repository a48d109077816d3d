// Package storage persists automations, records, schedule state and the run
// journal.
//
// Drivers:
//   - memory: process-local, lost on exit
//   - file: memory plus a JSON Lines journal compacted into a snapshot
//   - sqlite: modernc.org/sqlite database file
package storage
