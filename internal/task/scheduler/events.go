package scheduler

import (
	"context"

	"autosched/internal/automation"
	"autosched/internal/eventbus"
	"autosched/internal/trigger"
	logx "autosched/pkg/logx"
)

// onSyncCompleted fans a data-sync completion out to every subscribed
// event-based workflow.
func (s *Service) onSyncCompleted(ctx context.Context, ev eventbus.Event) {
	sc, ok := ev.Data.(eventbus.SyncCompleted)
	if !ok {
		if p, okp := ev.Data.(*eventbus.SyncCompleted); okp && p != nil {
			sc, ok = *p, true
		}
	}
	if !ok {
		s.log.Warn("ignoring malformed sync event", logx.String("type", ev.Type))
		return
	}
	s.HandleSyncCompleted(ctx, sc)
}

// HandleSyncCompleted dispatches EVENT signals for sc and returns the ids of
// the workflows it dispatched.
func (s *Service) HandleSyncCompleted(ctx context.Context, sc eventbus.SyncCompleted) []string {
	sourceType := sc.SourceType
	if sourceType == "" {
		sourceType = automation.SourceDataSync
	}
	wfs, err := s.store.ListWorkflows(ctx)
	if err != nil {
		s.log.Warn("listing workflows for sync event failed", logx.Err(err))
		return nil
	}
	at := sc.CompletedAt
	if at.IsZero() {
		at = s.now()
	}
	var ids []string
	for _, w := range wfs {
		if w.TriggerType != automation.TriggerEvent || !w.EventSubscription.Matches(sourceType, sc.SourceID) {
			continue
		}
		sig := trigger.Signal{
			Kind:       trigger.Event,
			SourceType: sourceType,
			SourceID:   sc.SourceID,
			RecordIDs:  append([]string(nil), sc.RecordIDs...),
			At:         at,
		}
		if err := s.dispatch(w.Ref(), sig); err != nil {
			s.reportEnqueueError(w.Ref().String(), err)
			continue
		}
		ids = append(ids, w.ID)
	}
	s.log.Debug("sync event handled", logx.String("source_id", sc.SourceID), logx.Int("workflows", len(ids)))
	return ids
}
