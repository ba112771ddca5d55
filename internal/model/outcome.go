package model

// Outcome is what one worker attempt reports back to the scheduler.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeFailed
	OutcomeCancelled
	// OutcomeRetry asks for another attempt; it counts against the attempt budget.
	OutcomeRetry
	// OutcomeSuspended parks the job until it is resumed; it does not count.
	OutcomeSuspended
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailed:
		return "failed"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeRetry:
		return "retry"
	case OutcomeSuspended:
		return "suspended"
	default:
		return "unknown"
	}
}

// IsFinal reports whether the scheduler can forget the job after this outcome.
func (o Outcome) IsFinal() bool {
	return o == OutcomeSuccess || o == OutcomeFailed || o == OutcomeCancelled
}

// Action is the control offered next to a progress notification.
type Action string

const (
	ActionPause  Action = "pause"
	ActionResume Action = "resume"
	ActionCancel Action = "cancel"
)

// Notice is one progress notification for a running job.
type Notice struct {
	JobID   string
	Title   string
	Percent int
	Speed   string
	ETA     string
	Paused  bool
}

// Actions lists the controls for the notice: pause or resume, then cancel.
func (n Notice) Actions() []Action {
	if n.Paused {
		return []Action{ActionResume, ActionCancel}
	}
	return []Action{ActionPause, ActionCancel}
}
