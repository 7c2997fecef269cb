package chat

import (
	"context"

	"github.com/qmuntal/stateless"

	"github.com/comigor/jenesi-go/internal/logger"
)

// State of the streaming session.
type State string

const (
	StateIdle       State = "Idle"
	StateDispatched State = "Dispatched" // request sent, no stream handle yet
	StateStreaming  State = "Streaming"  // placeholder appended, fragments arriving
	StateCompleted  State = "Completed"
	StateFailed     State = "Failed"
)

// Trigger moves the session between states.
type Trigger string

const (
	TriggerDispatch Trigger = "Dispatch"
	TriggerOpen     Trigger = "Open"
	TriggerExhaust  Trigger = "Exhaust"
	TriggerFail     Trigger = "Fail"
	TriggerSettle   Trigger = "Settle"
	// TriggerAbandon drops an in-flight session when the log is cleared.
	TriggerAbandon Trigger = "Abandon"
)

// Active reports whether a session is in flight.
func (s State) Active() bool {
	return s == StateDispatched || s == StateStreaming
}

// newSessionFSM builds the session state machine:
//
//	Idle -> Dispatched -> Streaming -> Completed -> Idle
//	             |             |
//	             +----> Failed <+ -> Idle
//
// Completed and Failed only permit Settle, so a terminal state always hands
// control back to Idle before the next Dispatch.
func newSessionFSM() *stateless.StateMachine {
	fsm := stateless.NewStateMachine(StateIdle)

	fsm.Configure(StateIdle).
		Permit(TriggerDispatch, StateDispatched)

	fsm.Configure(StateDispatched).
		Permit(TriggerOpen, StateStreaming).
		Permit(TriggerFail, StateFailed).
		Permit(TriggerAbandon, StateIdle)

	fsm.Configure(StateStreaming).
		Permit(TriggerExhaust, StateCompleted).
		Permit(TriggerFail, StateFailed).
		Permit(TriggerAbandon, StateIdle)

	fsm.Configure(StateCompleted).
		Permit(TriggerSettle, StateIdle)

	fsm.Configure(StateFailed).
		Permit(TriggerSettle, StateIdle)

	fsm.OnTransitioned(func(_ context.Context, t stateless.Transition) {
		logger.L.Debug("session transition", "from", t.Source, "to", t.Destination, "trigger", t.Trigger)
	})
	return fsm
}
