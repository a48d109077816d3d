// Package schedule holds the canonical schedule model and next-run math.
//
// Three entity families (workflows, notebook jobs, data-sync jobs) declare
// their frequency in their own vocabulary. The Normalizer maps those onto the
// canonical Frequency set and the Calculator derives the next firing instant.
//
// The calculator is pure and total: it never panics and never returns an
// error. Out-of-range parameters fall back to defaults; use Params.Validate to
// surface them.
package schedule
