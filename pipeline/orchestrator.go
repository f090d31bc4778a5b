// Package pipeline drives a browsing surface through search, per-result
// visits, phone extraction and pagination, persisting each page as it goes.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/use-agent/leadscrape/config"
	"github.com/use-agent/leadscrape/models"
	"github.com/use-agent/leadscrape/sink"
	"github.com/use-agent/leadscrape/surface"
)

// Report summarises a finished run.
type Report struct {
	RunID      string
	Query      string
	State      State
	Stats      models.RunStats
	StartedAt  time.Time
	FinishedAt time.Time

	// Err is the error that ended the run, if any. It is set for interrupted
	// runs too, although Run itself returns nil for them.
	Err error
}

// Orchestrator runs the scrape loop. It owns the run's stats and closes the
// surface when the run ends. An Orchestrator runs once.
type Orchestrator struct {
	surface   surface.Surface
	sink      sink.Sink
	observers []Observer
	delay     time.Duration

	search    *SearchController
	extractor *ResultExtractor
	paginator *Paginator

	report     *Report
	lastActive State
}

// New wires the pipeline components over s and snk.
func New(s surface.Surface, snk sink.Sink, cfg *config.Config, observers ...Observer) *Orchestrator {
	o := &Orchestrator{
		surface:   s,
		sink:      snk,
		observers: observers,
		delay:     cfg.Timing.InterPageDelay,
		report:    &Report{RunID: uuid.NewString()},
	}

	challenge := NewChallengeDetector(s, cfg.Search.ChallengeMarker, cfg.Timing.ChallengeTimeout, cfg.Timing.ChallengePoll,
		func(kind EventKind) { o.emit(Event{Kind: kind}) })
	visitor := NewVisitor(s, cfg.Search.DetailBody, cfg.Timing.SettleDelay)

	o.search = NewSearchController(s, cfg.Search, cfg.Timing, challenge, cfg.Output.DiagnosticPath)
	o.extractor = NewResultExtractor(s, cfg.Search, cfg.Timing, challenge, visitor)
	o.paginator = NewPaginator(s, cfg.Search.NextPage, cfg.Timing.NextPageTimeout)
	return o
}

// RunID identifies this run in logs, events and webhooks.
func (o *Orchestrator) RunID() string { return o.report.RunID }

// Run executes the loop for q until the last page, a fatal error or the
// cancellation of ctx. Done and interrupted runs return a nil error; the
// report is always returned.
func (o *Orchestrator) Run(ctx context.Context, q models.SearchQuery) (*Report, error) {
	o.report.Query = q.String()
	o.report.StartedAt = time.Now()
	log := slog.With("run_id", o.report.RunID)

	err := o.execute(ctx, q)
	o.report.FinishedAt = time.Now()
	o.report.Err = err

	switch {
	case err == nil:
		o.enter(StateDone)
		log.Info("scraping complete", "pages", o.report.Stats.Pages, "records", o.report.Stats.Records)
		return o.report, nil
	case isInterrupt(ctx, err):
		o.report.Err = asInterrupt(ctx, err)
		o.enter(StateInterrupted)
		log.Info("scraping interrupted by user", "pages", o.report.Stats.Pages, "records", o.report.Stats.Records)
		return o.report, nil
	default:
		o.enter(StateFailed)
		log.Error("run failed", "state", o.lastActive, "error", err)
		return o.report, err
	}
}

func (o *Orchestrator) execute(ctx context.Context, q models.SearchQuery) (err error) {
	defer func() {
		if cerr := o.surface.Close(); cerr != nil {
			slog.Warn("failed to release browsing surface", "error", cerr)
		}
	}()

	o.enter(StateInit)
	// Initialize truncates the previous output; a run stopped before it
	// started leaves that output alone.
	if err := interruptedErr(ctx); err != nil {
		return err
	}
	if err := o.sink.Initialize(models.OutputHeaders); err != nil {
		return err
	}

	o.enter(StateSearching)
	if err := o.search.Search(ctx, q); err != nil {
		return err
	}

	for {
		o.enter(StateExtracting)
		slog.Info("extracting business details", "page", o.report.Stats.Pages+1)
		records, xerr := o.extractor.Extract(ctx)

		o.enter(StatePersisting)
		if err := o.persist(records); err != nil {
			return err
		}
		if xerr != nil {
			return xerr
		}

		o.enter(StatePaginating)
		advanced, err := o.paginator.Next(ctx)
		if err != nil {
			return err
		}
		if !advanced {
			return nil
		}
		if err := sleepCtx(ctx, o.delay); err != nil {
			return err
		}
	}
}

// persist appends one page's batch and counts it. A sink failure ends the
// run: continuing would drop every later page.
func (o *Orchestrator) persist(records []models.BusinessRecord) error {
	if err := o.sink.Append(records); err != nil {
		return err
	}

	o.report.Stats.Pages++
	o.report.Stats.Records += len(records)
	if len(records) > 0 {
		slog.Info("businesses saved", "page", o.report.Stats.Pages, "batch", len(records), "total", o.report.Stats.Records)
	} else {
		slog.Warn("no businesses found on this page", "page", o.report.Stats.Pages)
	}

	o.emit(Event{Kind: EventPagePersisted, Page: o.report.Stats.Pages, Batch: len(records)})
	return nil
}

// enter records a transition and publishes it.
func (o *Orchestrator) enter(s State) {
	if !s.Terminal() {
		o.lastActive = s
	}
	o.report.State = s
	slog.Debug("state transition", "run_id", o.report.RunID, "state", s)
	o.emit(Event{Kind: EventStateChanged})
}

// emit fills in the run snapshot and hands ev to every observer.
func (o *Orchestrator) emit(ev Event) {
	ev.RunID = o.report.RunID
	ev.Query = o.report.Query
	ev.State = o.report.State
	ev.Stats = o.report.Stats
	ev.At = time.Now()
	if ev.Kind == EventStateChanged && o.report.State.Terminal() {
		ev.Err = o.report.Err
	}
	for _, ob := range o.observers {
		ob.Observe(ev)
	}
}
