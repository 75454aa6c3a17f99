package fsm

import "fmt"

type State string

type Event string

const (
	StateIdle       State = "idle"
	StatePermission State = "permission"
	StateListening  State = "listening"
	StateProcessing State = "processing"
	StateError      State = "error"
)

const (
	EventStart    Event = "start"
	EventGranted  Event = "granted"
	EventDenied   Event = "denied"
	EventHeard    Event = "heard"
	EventSubmit   Event = "submit"
	EventExecuted Event = "executed"
	EventFinished Event = "finished"
	EventStop     Event = "stop"
	EventEnded    Event = "ended"
	EventFail     Event = "fail"
	EventReset    Event = "reset"
)

// Transition returns the voice session state reached from current on event.
//
// Submit feeds typed text straight into processing without a listening run.
// Stop during processing keeps the processing state; the in-flight command
// completes and then finishes into idle instead of resuming listening.
func Transition(current State, event Event) (State, error) {
	if event == EventFail {
		return StateError, nil
	}

	switch current {
	case StateIdle:
		switch event {
		case EventStart:
			return StatePermission, nil
		case EventSubmit:
			return StateProcessing, nil
		case EventStop, EventReset:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StatePermission:
		switch event {
		case EventGranted:
			return StateListening, nil
		case EventDenied, EventStop:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateListening:
		switch event {
		case EventHeard, EventSubmit:
			return StateProcessing, nil
		case EventStop, EventEnded:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateProcessing:
		switch event {
		case EventExecuted:
			return StateListening, nil
		case EventFinished:
			return StateIdle, nil
		case EventStop:
			return StateProcessing, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateError:
		switch event {
		case EventReset, EventStop:
			return StateIdle, nil
		case EventStart:
			return StatePermission, nil
		case EventSubmit:
			return StateProcessing, nil
		default:
			return current, invalidTransition(current, event)
		}
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
