// Package webhook notifies an operator endpoint about run progress.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/use-agent/leadscrape/models"
	"github.com/use-agent/leadscrape/pipeline"
)

// Event types sent to the endpoint.
const (
	TypeChallengeDetected = "challenge.detected"
	TypePagePersisted     = "page.persisted"
	TypeRunCompleted      = "run.completed"
	TypeRunFailed         = "run.failed"
	TypeRunInterrupted    = "run.interrupted"
)

// SignatureHeader carries "sha256=<hex>" when a secret is configured.
const SignatureHeader = "X-Leadscrape-Signature"

// Event is the payload sent to webhook endpoints.
type Event struct {
	Type      string  `json:"type"`
	RunID     string  `json:"run_id"`
	Timestamp int64   `json:"timestamp"`
	Data      Payload `json:"data"`
}

// Payload describes the run at the time of the event.
type Payload struct {
	Query string              `json:"query"`
	State string              `json:"state"`
	Stats models.RunStats     `json:"stats"`
	Page  int                 `json:"page,omitempty"`
	Batch int                 `json:"batch,omitempty"`
	Error *models.ErrorDetail `json:"error,omitempty"`
}

// Deliver sends a webhook event synchronously.
// The request body is signed with HMAC-SHA256 if secret is non-empty.
func Deliver(ctx context.Context, client *http.Client, url, secret string, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Leadscrape-Webhook/1.0")

	if secret != "" {
		req.Header.Set(SignatureHeader, "sha256="+Sign(secret, body))
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: deliver: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Notifier is a pipeline.Observer posting run events to one endpoint.
// Progress events are delivered in the background with retries; the final
// event of a run is delivered before Observe returns so it is not lost when
// the process exits.
type Notifier struct {
	url    string
	secret string
	client *http.Client
	delays []time.Duration

	wg sync.WaitGroup
}

// NewNotifier creates a notifier. Retry intervals are 1s, 5s and 30s.
func NewNotifier(url, secret string) *Notifier {
	return &Notifier{
		url:    url,
		secret: secret,
		client: &http.Client{Timeout: 10 * time.Second},
		delays: []time.Duration{0, 1 * time.Second, 5 * time.Second, 30 * time.Second},
	}
}

// Observe implements pipeline.Observer.
func (n *Notifier) Observe(e pipeline.Event) {
	typ, ok := eventType(e)
	if !ok {
		return
	}

	ev := &Event{
		Type:      typ,
		RunID:     e.RunID,
		Timestamp: e.At.Unix(),
		Data: Payload{
			Query: e.Query,
			State: string(e.State),
			Stats: e.Stats,
			Page:  e.Page,
			Batch: e.Batch,
			Error: models.Detail(e.Err),
		},
	}

	if e.Kind == pipeline.EventStateChanged {
		n.deliver(ev, n.delays[:1])
		return
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.deliver(ev, n.delays)
	}()
}

// Wait blocks until background deliveries finish or ctx is done.
func (n *Notifier) Wait(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("webhook deliveries still pending at shutdown")
	}
}

func (n *Notifier) deliver(event *Event, delays []time.Duration) {
	for attempt, delay := range delays {
		if delay > 0 {
			time.Sleep(delay)
		}
		ctx, cancel := context.WithTimeout(context.Background(), n.client.Timeout)
		err := Deliver(ctx, n.client, n.url, n.secret, event)
		cancel()
		if err == nil {
			slog.Debug("webhook delivered",
				"url", n.url,
				"event", event.Type,
				"run_id", event.RunID,
				"attempt", attempt+1,
			)
			return
		}
		slog.Warn("webhook delivery failed",
			"url", n.url,
			"event", event.Type,
			"run_id", event.RunID,
			"attempt", attempt+1,
			"error", err,
		)
	}
	slog.Error("webhook delivery exhausted all retries",
		"url", n.url,
		"event", event.Type,
		"run_id", event.RunID,
	)
}

// eventType maps a pipeline event to a webhook type. Most transitions are
// not sent.
func eventType(e pipeline.Event) (string, bool) {
	switch e.Kind {
	case pipeline.EventChallengeDetected:
		return TypeChallengeDetected, true
	case pipeline.EventPagePersisted:
		return TypePagePersisted, true
	case pipeline.EventStateChanged:
		switch e.State {
		case pipeline.StateDone:
			return TypeRunCompleted, true
		case pipeline.StateFailed:
			return TypeRunFailed, true
		case pipeline.StateInterrupted:
			return TypeRunInterrupted, true
		}
	}
	return "", false
}
