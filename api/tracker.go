package api

import (
	"sync"

	"github.com/use-agent/leadscrape/models"
	"github.com/use-agent/leadscrape/pipeline"
)

// Tracker keeps the latest run status from pipeline events. It is safe for
// concurrent use: the pipeline writes while HTTP handlers read.
type Tracker struct {
	mu     sync.RWMutex
	status models.RunStatusResponse
}

// NewTracker returns a tracker reporting an idle run.
func NewTracker() *Tracker {
	return &Tracker{status: models.RunStatusResponse{State: "idle"}}
}

// Observe implements pipeline.Observer.
func (t *Tracker) Observe(e pipeline.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status.RunID != e.RunID {
		t.status = models.RunStatusResponse{RunID: e.RunID, StartedAt: e.At.Unix()}
	}
	t.status.Query = e.Query
	t.status.State = string(e.State)
	t.status.Stats = e.Stats

	switch e.Kind {
	case pipeline.EventChallengeDetected:
		t.status.ChallengeOpen = true
	case pipeline.EventChallengeCleared:
		t.status.ChallengeOpen = false
	case pipeline.EventStateChanged:
		if e.State.Terminal() {
			t.status.ChallengeOpen = false
			if e.State == pipeline.StateFailed {
				t.status.Error = models.Detail(e.Err)
			}
		}
	}
}

// Snapshot returns a copy of the current status.
func (t *Tracker) Snapshot() models.RunStatusResponse {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s := t.status
	if s.Error != nil {
		detail := *s.Error
		s.Error = &detail
	}
	return s
}
