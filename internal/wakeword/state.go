package wakeword

import "fmt"

// State is the detector lifecycle state.
type State string

// Event drives detector state transitions.
type Event string

const (
	StateIdle         State = "idle"
	StateInitializing State = "initializing"
	StateListening    State = "listening"
	StateRestarting   State = "restarting"
	StateStopped      State = "stopped"
)

const (
	EventInitialize  Event = "initialize"
	EventInitialized Event = "initialized"
	EventStart       Event = "start"
	EventRestart     Event = "restart"
	EventResume      Event = "resume"
	EventStop        Event = "stop"
	EventFail        Event = "fail"
	EventDenied      Event = "denied"
	EventCleanup     Event = "cleanup"
)

// Transition returns the state reached from current on event.
//
// Stopped is the ready state of an initialized detector that is not listening.
// A denied microphone drops the detector back to idle, so it must be
// initialized again before the next start.
func Transition(current State, event Event) (State, error) {
	if event == EventCleanup {
		return StateIdle, nil
	}
	if event == EventDenied && current != StateInitializing {
		return StateIdle, nil
	}

	switch current {
	case StateIdle:
		switch event {
		case EventInitialize:
			return StateInitializing, nil
		case EventStop:
			return StateIdle, nil
		}
	case StateInitializing:
		switch event {
		case EventInitialized:
			return StateStopped, nil
		case EventFail:
			return StateIdle, nil
		}
	case StateStopped:
		switch event {
		case EventStart:
			return StateListening, nil
		case EventInitialize:
			return StateInitializing, nil
		case EventStop, EventFail:
			return StateStopped, nil
		}
	case StateListening:
		switch event {
		case EventRestart:
			return StateRestarting, nil
		case EventStop, EventFail:
			return StateStopped, nil
		}
	case StateRestarting:
		switch event {
		case EventResume:
			return StateListening, nil
		case EventRestart:
			return StateRestarting, nil
		case EventStop, EventFail:
			return StateStopped, nil
		}
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
	return current, fmt.Errorf("invalid transition: %s --(%s)--> ?", current, event)
}
