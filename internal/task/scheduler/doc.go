// Package scheduler decides when automations fire and hands the work to the
// task engine.
//
// The scheduler is responsible only for:
//   - polling persisted schedule state for due workflows and jobs
//   - turning data-sync completion events into workflow signals
//   - manual triggers and enable/disable
//
// Rule evaluation happens in internal/trigger; running notebook and
// data-sync jobs belongs to a JobRunner.
package scheduler
