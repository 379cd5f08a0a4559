package session

import "fmt"

// State is the per-turn state of a Session.
type State int

const (
	Idle State = iota
	Sending
	Streaming
	Committed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Sending:
		return "sending"
	case Streaming:
		return "streaming"
	case Committed:
		return "committed"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// InFlight reports whether a turn is being sent or streamed.
func (s State) InFlight() bool {
	return s == Sending || s == Streaming
}

// event drives the state machine.
type event int

const (
	evSubmit event = iota
	evToken
	evComplete
	evFail
	evCancel
	evReset
)

func (e event) String() string {
	switch e {
	case evSubmit:
		return "submit"
	case evToken:
		return "token"
	case evComplete:
		return "complete"
	case evFail:
		return "fail"
	case evCancel:
		return "cancel"
	case evReset:
		return "reset"
	}
	return fmt.Sprintf("event(%d)", int(e))
}

// next is the transition function. It is total: every (state, event) pair
// yields either a successor and true, or the unchanged state and false.
func next(s State, e event) (State, bool) {
	switch s {
	case Idle:
		if e == evSubmit {
			return Sending, true
		}
	case Sending:
		switch e {
		case evToken:
			return Streaming, true
		case evComplete:
			return Committed, true
		case evFail:
			return Failed, true
		case evCancel:
			return Idle, true
		}
	case Streaming:
		switch e {
		case evToken:
			return Streaming, true
		case evComplete:
			return Committed, true
		case evFail:
			return Failed, true
		case evCancel:
			return Idle, true
		}
	case Committed, Failed:
		if e == evReset {
			return Idle, true
		}
	}
	return s, false
}
