package automation

import (
	"fmt"
	"strings"

	"autosched/internal/schedule"
)

// Ref identifies any schedulable entity across families. Its String form is
// used as the storage key for schedule state and as the lock key.
type Ref struct {
	Family schedule.Family
	ID     string
}

func (r Ref) String() string { return string(r.Family) + ":" + r.ID }

// ParseRef parses "family:id".
func ParseRef(s string) (Ref, error) {
	fam, id, ok := strings.Cut(s, ":")
	if !ok || id == "" {
		return Ref{}, fmt.Errorf("invalid ref %q (want family:id)", s)
	}
	f, err := schedule.ParseFamily(fam)
	if err != nil {
		return Ref{}, err
	}
	return Ref{Family: f, ID: id}, nil
}

func WorkflowRef(id string) Ref { return Ref{Family: schedule.FamilyWorkflow, ID: id} }

func (w Workflow) Ref() Ref { return WorkflowRef(w.ID) }

func (j Job) Ref() Ref { return Ref{Family: j.Family, ID: j.ID} }
