// Package automation defines the schedulable entities: rule-bearing workflows
// and the plain scheduled jobs of the notebook and data-sync families.
package automation

import (
	"errors"
	"fmt"
	"strings"

	"autosched/internal/rules"
	"autosched/internal/schedule"
)

type TriggerType string

const (
	TriggerScheduled TriggerType = "SCHEDULED"
	TriggerEvent     TriggerType = "EVENT_BASED"
	TriggerManual    TriggerType = "MANUAL"
)

// SourceDataSync is the only event source type workflows subscribe to.
const SourceDataSync = "DATA_SYNC"

type EventSubscription struct {
	SourceType string `json:"sourceType"`
	SourceID   string `json:"sourceId"`
}

// Matches reports whether an event from sourceType/sourceID targets s.
func (s *EventSubscription) Matches(sourceType, sourceID string) bool {
	if s == nil {
		return false
	}
	return strings.EqualFold(s.SourceType, sourceType) && s.SourceID == sourceID
}

// Workflow is a rule-bearing automation over the records of one data model.
type Workflow struct {
	ID                string             `json:"id"`
	Name              string             `json:"name"`
	DataModelID       string             `json:"dataModelId"`
	TriggerType       TriggerType        `json:"triggerType"`
	Status            schedule.Status    `json:"status"`
	Conditions        []rules.Condition  `json:"conditions"`
	Actions           []rules.Action     `json:"actions"`
	Schedule          *schedule.Spec     `json:"schedule,omitempty"`
	EventSubscription *EventSubscription `json:"eventSubscription,omitempty"`
}

// Scheduled reports whether the workflow fires from its own schedule.
func (w Workflow) Scheduled() bool {
	return w.TriggerType == TriggerScheduled && w.Schedule != nil
}

// Job is a notebook or data-sync job. The engine only schedules it; running
// it belongs to an external runner.
type Job struct {
	Family       schedule.Family `json:"family"`
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	ScheduleType string          `json:"scheduleType"` // as written, before normalization
	Schedule     schedule.Spec   `json:"schedule"`
}

var ErrInvalid = errors.New("invalid automation")

// Validate checks structural rules. Schedule parameter ranges are not
// checked here; the calculator falls back to defaults for those.
func (w Workflow) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w %q: %s", ErrInvalid, w.ID, fmt.Sprintf(format, args...)))
	}
	if strings.TrimSpace(w.ID) == "" {
		bad("id required")
	}
	if strings.TrimSpace(w.DataModelID) == "" {
		bad("dataModelId required")
	}
	switch w.TriggerType {
	case TriggerScheduled:
		if w.Schedule == nil {
			bad("scheduled workflow needs a schedule")
		}
		if w.EventSubscription != nil {
			bad("scheduled workflow cannot carry an event subscription")
		}
	case TriggerEvent:
		if w.EventSubscription == nil || strings.TrimSpace(w.EventSubscription.SourceID) == "" {
			bad("event-based workflow needs an event subscription with a source id")
		} else if !strings.EqualFold(w.EventSubscription.SourceType, SourceDataSync) {
			bad("unsupported event source type %q", w.EventSubscription.SourceType)
		}
		if w.Schedule != nil {
			bad("event-based workflow cannot carry a schedule")
		}
	case TriggerManual:
		if w.Schedule != nil || w.EventSubscription != nil {
			bad("manual workflow takes neither schedule nor event subscription")
		}
	default:
		bad("unknown trigger type %q", w.TriggerType)
	}
	switch w.Status {
	case schedule.StatusActive, schedule.StatusPaused:
	default:
		bad("unknown status %q", w.Status)
	}
	for i, a := range w.Actions {
		if strings.TrimSpace(a.TargetAttributeID) == "" {
			bad("action %d: target attribute required", i)
		}
	}
	return errors.Join(errs...)
}

func (j Job) Validate() error {
	var errs []error
	if strings.TrimSpace(j.ID) == "" {
		errs = append(errs, fmt.Errorf("%w: job id required", ErrInvalid))
	}
	switch j.Family {
	case schedule.FamilyNotebook, schedule.FamilyDataSync:
	default:
		errs = append(errs, fmt.Errorf("%w %q: family %q is not a job family", ErrInvalid, j.ID, j.Family))
	}
	return errors.Join(errs...)
}
