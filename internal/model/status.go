package model

import "fmt"

// Status is the lifecycle state of a single Job record.
type Status string

const (
	StatusPending     Status = "pending"
	StatusDownloading Status = "downloading"
	StatusPaused      Status = "paused"
	StatusSuccess     Status = "success"
	StatusFailed      Status = "failed"
	StatusCancelled   Status = "cancelled"
)

// Edges a record may take. Terminal states have no outgoing edges; a new attempt
// after a terminal state is a new record.
var allowedTransitions = map[Status]map[Status]bool{
	"": {
		StatusPending: true,
	},
	StatusPending: {
		StatusPending:     true,
		StatusDownloading: true,
		StatusPaused:      true, // paused while still queued
		StatusCancelled:   true,
	},
	StatusDownloading: {
		StatusDownloading: true,
		StatusPaused:      true,
		StatusSuccess:     true,
		StatusFailed:      true,
		StatusCancelled:   true,
	},
	StatusPaused: {
		StatusPaused:    true,
		StatusPending:   true,
		StatusCancelled: true,
	},
	StatusSuccess:   {},
	StatusFailed:    {},
	StatusCancelled: {},
}

func (s Status) String() string {
	return string(s)
}

// IsTerminal reports whether no further transition is possible for the record.
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusCancelled
}

func IsKnownStatus(s Status) bool {
	_, ok := allowedTransitions[s]
	return ok && s != ""
}

func CanTransition(from, to Status) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

// ParseStatus maps user input to a Status.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !IsKnownStatus(s) {
		return "", fmt.Errorf("unknown status %q", raw)
	}
	return s, nil
}
