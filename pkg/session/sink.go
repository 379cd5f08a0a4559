package session

import "github.com/papercomputeco/studio/pkg/history"

// Sink is the Presentation Sink: it renders committed turns and incremental
// updates. Calls are serialized and arrive in order, from the goroutine running
// Submit, except OnState for cancellation which runs on the goroutine calling
// Cancel. A Sink must not call Submit or Cancel itself.
type Sink interface {
	// OnState reports every state transition.
	OnState(from, to State)

	// OnTurn reports a turn committed to the conversation.
	OnTurn(turn history.Turn)

	// OnToken reports one incremental token of the in-flight answer.
	OnToken(token string)

	// OnError reports a terminal failure of the current turn, exactly once.
	OnError(err error)
}

// SinkFuncs adapts optional functions to a Sink. Nil fields are ignored.
type SinkFuncs struct {
	State func(from, to State)
	Turn  func(turn history.Turn)
	Token func(token string)
	Error func(err error)
}

var _ Sink = SinkFuncs{}

func (f SinkFuncs) OnState(from, to State) {
	if f.State != nil {
		f.State(from, to)
	}
}

func (f SinkFuncs) OnTurn(turn history.Turn) {
	if f.Turn != nil {
		f.Turn(turn)
	}
}

func (f SinkFuncs) OnToken(token string) {
	if f.Token != nil {
		f.Token(token)
	}
}

func (f SinkFuncs) OnError(err error) {
	if f.Error != nil {
		f.Error(err)
	}
}
