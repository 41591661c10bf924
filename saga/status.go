package saga

// Status is the lifecycle state of a saga.
//
//	NEW -> RUNNING -> COMPLETED
//	NEW, RUNNING -> FAILED -> COMPENSATED
type Status string

const (
	// StatusNew: row created, no step executed yet.
	StatusNew Status = "NEW"
	// StatusRunning: at least one step recorded its partial result.
	StatusRunning Status = "RUNNING"
	// StatusCompleted: every step is done.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed: a step failed with nothing undone (yet).
	StatusFailed Status = "FAILED"
	// StatusCompensated: a step failed and every earlier side effect was undone.
	StatusCompensated Status = "COMPENSATED"
)

// IsTerminal reports whether no further transition is expected.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCompensated:
		return true
	default:
		return false
	}
}

func (s Status) String() string {
	return string(s)
}

// transitions lists the statuses reachable from each status. Saving a saga
// under its current status is always allowed and records progress.
var transitions = map[Status][]Status{
	StatusNew:     {StatusRunning, StatusFailed},
	StatusRunning: {StatusCompleted, StatusFailed},
	StatusFailed:  {StatusCompensated},
}

// CanTransitionTo reports whether a saga in s may be saved as next.
func (s Status) CanTransitionTo(next Status) bool {
	if s == next {
		return true
	}

	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}

	return false
}
