package orchestrator

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-life/common"
)

// EventKind identifies an input event.
type EventKind int

const (
	// EventSingleStep arms exactly one step on the next frame.
	EventSingleStep EventKind = iota + 1
	// EventToggleRun flips between paused and running.
	EventToggleRun
	// EventExit marks the orchestrator done.
	EventExit
	// EventResize reconfigures the swap surface to Width x Height.
	EventResize
	// EventRunStart enters running mode (press in hold-to-run).
	EventRunStart
	// EventRunStop enters paused mode (release in hold-to-run).
	EventRunStop
	// EventReset reseeds the grid and resets the parity.
	EventReset
)

func (k EventKind) String() string {
	switch k {
	case EventSingleStep:
		return "single-step"
	case EventToggleRun:
		return "toggle-run"
	case EventExit:
		return "exit"
	case EventResize:
		return "resize"
	case EventRunStart:
		return "run-start"
	case EventRunStop:
		return "run-stop"
	case EventReset:
		return "reset"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is one input event. Width and Height are only read for EventResize.
type Event struct {
	Kind   EventKind
	Width  int
	Height int
}

// Resize returns an EventResize for a framebuffer of width x height pixels.
func Resize(width, height int) Event {
	return Event{Kind: EventResize, Width: width, Height: height}
}

// DefaultQueueCapacity is the number of events an EventQueue buffers between frames.
const DefaultQueueCapacity = 256

// EventQueue carries events from the window goroutine to the render goroutine.
// Push never blocks; it is safe to call from window callbacks.
type EventQueue struct {
	events chan Event
}

// NewEventQueue creates a queue buffering up to capacity events.
//
// Parameters:
//   - capacity: the buffer size, DefaultQueueCapacity if <= 0
//
// Returns:
//   - *EventQueue: the queue
func NewEventQueue(capacity int) *EventQueue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &EventQueue{events: make(chan Event, capacity)}
}

// Push enqueues an event. When the queue is full the event is dropped and false is returned.
//
// Parameters:
//   - ev: the event
//
// Returns:
//   - bool: true if the event was queued
func (q *EventQueue) Push(ev Event) bool {
	select {
	case q.events <- ev:
		return true
	default:
		common.Logger().Warn("event queue full, dropping event", "event", ev.Kind)
		return false
	}
}

// Len returns the number of queued events.
func (q *EventQueue) Len() int {
	return len(q.events)
}

// drain removes and returns every event queued so far, oldest first.
func (q *EventQueue) drain() []Event {
	var out []Event
	for {
		select {
		case ev := <-q.events:
			out = append(out, ev)
		default:
			return out
		}
	}
}
