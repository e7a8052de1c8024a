package enums

import "fmt"

// TicketStatus maps to the complaint_ticket_status enum in Postgres.
type TicketStatus string

const (
	TicketStatusInQueue        TicketStatus = "in_queue"
	TicketStatusAssigned       TicketStatus = "assigned"
	TicketStatusInReview       TicketStatus = "in_review"
	TicketStatusNeedMoreInfo   TicketStatus = "need_more_info"
	TicketStatusResolved       TicketStatus = "resolved"
	TicketStatusAppealable     TicketStatus = "appealable"
	TicketStatusAppealInReview TicketStatus = "appeal_in_review"
	TicketStatusClosed         TicketStatus = "closed"
)

var validTicketStatuses = []TicketStatus{
	TicketStatusInQueue,
	TicketStatusAssigned,
	TicketStatusInReview,
	TicketStatusNeedMoreInfo,
	TicketStatusResolved,
	TicketStatusAppealable,
	TicketStatusAppealInReview,
	TicketStatusClosed,
}

// ticketTransitions is the single source of truth for the ticket state
// machine. Call sites never hand-roll status checks.
var ticketTransitions = map[TicketStatus][]TicketStatus{
	TicketStatusInQueue:        {TicketStatusAssigned},
	TicketStatusAssigned:       {TicketStatusInReview, TicketStatusNeedMoreInfo, TicketStatusResolved},
	TicketStatusInReview:       {TicketStatusNeedMoreInfo, TicketStatusResolved},
	TicketStatusNeedMoreInfo:   {TicketStatusInReview, TicketStatusResolved},
	TicketStatusResolved:       {TicketStatusAppealable},
	TicketStatusAppealable:     {TicketStatusAppealInReview, TicketStatusClosed},
	TicketStatusAppealInReview: {TicketStatusClosed},
	TicketStatusClosed:         nil,
}

// String implements fmt.Stringer.
func (t TicketStatus) String() string {
	return string(t)
}

// IsValid reports whether the value is a known TicketStatus.
func (t TicketStatus) IsValid() bool {
	for _, candidate := range validTicketStatuses {
		if candidate == t {
			return true
		}
	}
	return false
}

// IsOpen reports whether the ticket still blocks escrow release.
func (t TicketStatus) IsOpen() bool {
	return t != TicketStatusClosed
}

// CanTransitionTo reports whether the state machine allows moving to next.
func (t TicketStatus) CanTransitionTo(next TicketStatus) bool {
	for _, candidate := range ticketTransitions[t] {
		if candidate == next {
			return true
		}
	}
	return false
}

// ParseTicketStatus converts raw input into a TicketStatus.
func ParseTicketStatus(value string) (TicketStatus, error) {
	for _, candidate := range validTicketStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ticket status %q", value)
}
