// Package lifecycle defines the job assignment state machine and the service
// that drives jobs through it.
//
// Valid status graph:
//
//	PENDING ──► ASSIGNED ──► IN_DISCUSSION ──► QUOTE_SENT ──► QUOTE_ACCEPTED ──► PAID ──► IN_PROGRESS ──► COMPLETED
//	    ▲           │                              │      └──► QUOTE_REJECTED ──┐              │
//	    └───────────┘ (provider rejects)           └───────────────◄────────────┘       SUPPORT_PENDING
//
// CANCELLED and REJECTED are reachable from the pre-payment states.
// COMPLETED, CANCELLED and REJECTED are terminal.
package lifecycle

import "fmt"

// Status values for the job lifecycle.
type Status string

const (
	StatusPending        Status = "PENDING"
	StatusAssigned       Status = "ASSIGNED"
	StatusInDiscussion   Status = "IN_DISCUSSION"
	StatusQuoteSent      Status = "QUOTE_SENT"
	StatusQuoteAccepted  Status = "QUOTE_ACCEPTED"
	StatusQuoteRejected  Status = "QUOTE_REJECTED"
	StatusPaid           Status = "PAID"
	StatusInProgress     Status = "IN_PROGRESS"
	StatusCompleted      Status = "COMPLETED"
	StatusCancelled      Status = "CANCELLED"
	StatusRejected       Status = "REJECTED"
	StatusSupportPending Status = "SUPPORT_PENDING"
)

// validTransitions lists every allowed (from → to) pair.
var validTransitions = map[Status][]Status{
	StatusPending:        {StatusAssigned, StatusCancelled, StatusRejected},
	StatusAssigned:       {StatusInDiscussion, StatusPending, StatusQuoteSent, StatusCancelled, StatusRejected},
	StatusInDiscussion:   {StatusQuoteSent, StatusCancelled, StatusRejected},
	StatusQuoteSent:      {StatusQuoteAccepted, StatusQuoteRejected, StatusCancelled, StatusRejected},
	StatusQuoteAccepted:  {StatusPaid, StatusRejected},
	StatusQuoteRejected:  {StatusQuoteSent, StatusRejected},
	StatusPaid:           {StatusInProgress, StatusSupportPending},
	StatusInProgress:     {StatusCompleted, StatusSupportPending},
	StatusSupportPending: {StatusInProgress},
	// COMPLETED, CANCELLED and REJECTED are terminal — no outgoing transitions
}

// allStatuses is used by ParseStatus; keep in sync with the constants above.
var allStatuses = []Status{
	StatusPending, StatusAssigned, StatusInDiscussion, StatusQuoteSent,
	StatusQuoteAccepted, StatusQuoteRejected, StatusPaid, StatusInProgress,
	StatusCompleted, StatusCancelled, StatusRejected, StatusSupportPending,
}

// ParseStatus converts a raw string to a Status, returning an error for
// unknown values.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	for _, known := range allStatuses {
		if st == known {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown job status %q", s)
}

// IsTransitionAllowed returns true when moving from → to is permitted by the
// state machine.
func IsTransitionAllowed(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false // terminal state — no outgoing transitions
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a status has no outgoing transitions.
func IsTerminal(s Status) bool {
	_, ok := validTransitions[s]
	return !ok
}

// cancellableFrom are the only statuses a customer may cancel from.
var cancellableFrom = map[Status]bool{
	StatusPending:      true,
	StatusAssigned:     true,
	StatusInDiscussion: true,
	StatusQuoteSent:    true,
}

// IsCancellable reports whether a job in status s may be cancelled.
func IsCancellable(s Status) bool { return cancellableFrom[s] }

// quotableFrom are the statuses a provider may submit a quote from.
var quotableFrom = map[Status]bool{
	StatusAssigned:      true,
	StatusInDiscussion:  true,
	StatusQuoteRejected: true,
}

// IsQuotable reports whether a quote may be submitted in status s.
func IsQuotable(s Status) bool { return quotableFrom[s] }

// CarriesProvider reports whether a job in status s holds an assigned
// provider reference.
func CarriesProvider(s Status) bool {
	switch s {
	case StatusPending, StatusCancelled, StatusRejected:
		return false
	}
	return true
}
