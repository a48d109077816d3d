package trigger

import "fmt"

// State is a resolution state. Every resolution starts and ends in Idle.
type State string

const (
	Idle       State = "IDLE"
	Due        State = "DUE"
	Evaluating State = "EVALUATING"
	Applied    State = "APPLIED"
	Skipped    State = "SKIPPED"
	Failed     State = "FAILED"
)

// IsTerminal reports whether s ends a run.
func IsTerminal(s State) bool {
	switch s {
	case Applied, Skipped, Failed:
		return true
	default:
		return false
	}
}

func isAllowedTransition(from, to State) bool {
	switch from {
	case Idle:
		return to == Due
	case Due:
		return to == Evaluating
	case Evaluating:
		return IsTerminal(to)
	case Applied, Skipped, Failed:
		return to == Idle
	default:
		return false
	}
}

// machine records the path of a single resolution.
type machine struct {
	cur  State
	path []State
}

func newMachine() *machine {
	return &machine{cur: Idle, path: []State{Idle}}
}

func (m *machine) to(next State) error {
	if !isAllowedTransition(m.cur, next) {
		return fmt.Errorf("disallowed transition %s -> %s", m.cur, next)
	}
	m.cur = next
	m.path = append(m.path, next)
	return nil
}
