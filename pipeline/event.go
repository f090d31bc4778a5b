package pipeline

import (
	"time"

	"github.com/use-agent/leadscrape/models"
)

// State is a run's position in the scrape loop.
type State string

const (
	StateInit        State = "init"
	StateSearching   State = "searching"
	StateExtracting  State = "extracting"
	StatePersisting  State = "persisting"
	StatePaginating  State = "paginating"
	StateDone        State = "done"
	StateInterrupted State = "interrupted"
	StateFailed      State = "failed"
)

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateInterrupted || s == StateFailed
}

// EventKind classifies an Event.
type EventKind string

const (
	// EventStateChanged is published on every transition, terminal ones included.
	EventStateChanged EventKind = "state.changed"

	// EventChallengeDetected is published when a challenge blocks the run.
	EventChallengeDetected EventKind = "challenge.detected"

	// EventChallengeCleared is published when a blocking challenge disappears.
	EventChallengeCleared EventKind = "challenge.cleared"

	// EventPagePersisted is published after a page's batch reached the sink.
	EventPagePersisted EventKind = "page.persisted"
)

// Event is a snapshot of a run published to observers. Stats is a copy;
// observers never see the orchestrator's own counters.
type Event struct {
	Kind  EventKind
	RunID string
	Query string
	State State
	Stats models.RunStats
	Page  int // page number for EventPagePersisted
	Batch int // records in the page for EventPagePersisted
	Err   error
	At    time.Time
}

// Observer receives run events on the pipeline goroutine. Implementations
// that do slow work hand it off to their own goroutines.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// Observe implements Observer.
func (f ObserverFunc) Observe(e Event) { f(e) }
