package models

// Status is a report's position in the review workflow
type Status string

const (
	StatusPendingReview Status = "Pending Review"
	StatusInReview      Status = "In Review"
	StatusAccepted      Status = "Accepted"
	StatusRejected      Status = "Rejected"
	StatusDuplicate     Status = "Duplicate"
	StatusInformative   Status = "Informative"
	StatusNotApplicable Status = "Not Applicable"
)

// Statuses lists every status in workflow order
var Statuses = []Status{
	StatusPendingReview,
	StatusInReview,
	StatusAccepted,
	StatusRejected,
	StatusDuplicate,
	StatusInformative,
	StatusNotApplicable,
}

var terminalStatuses = []Status{
	StatusAccepted,
	StatusRejected,
	StatusDuplicate,
	StatusInformative,
	StatusNotApplicable,
}

// allowedTransitions maps a status to the statuses it may move to.
// Terminal statuses have no entry.
var allowedTransitions = map[Status][]Status{
	StatusPendingReview: append([]Status{StatusInReview}, terminalStatuses...),
	StatusInReview:      terminalStatuses,
}

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition may leave s
func (s Status) Terminal() bool {
	for _, t := range terminalStatuses {
		if s == t {
			return true
		}
	}
	return false
}

// NextStatuses returns the statuses reachable from s in one step
func (s Status) NextStatuses() []Status {
	next := allowedTransitions[s]
	out := make([]Status, len(next))
	copy(out, next)
	return out
}

// CanTransition reports whether from -> to is in the transition table
func CanTransition(from, to Status) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}
