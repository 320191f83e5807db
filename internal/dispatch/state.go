package dispatch

import "github.com/ajayykmr/billing-notifier/internal/models"

// Phase is the dispatcher's position in the send cycle.
type Phase int

const (
	Idle Phase = iota
	AwaitingConfirmation
	Sending
	Result
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case AwaitingConfirmation:
		return "awaiting_confirmation"
	case Sending:
		return "sending"
	case Result:
		return "result"
	default:
		return "unknown"
	}
}

// State is a snapshot of the dispatcher. Which fields are meaningful
// depends on Phase:
//
//	Idle                  none
//	AwaitingConfirmation  Segment, Message (the held draft), DispatchID
//	Sending               Segment, Message, DispatchID
//	Result                Segment, Success, Detail, DispatchID
type State struct {
	Phase      Phase
	Segment    models.Segment
	Message    string
	DispatchID string
	Success    bool
	Detail     string
}
