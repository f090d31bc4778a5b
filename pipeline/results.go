package pipeline

import (
	"context"
	"log/slog"
	"strings"

	"github.com/use-agent/leadscrape/config"
	"github.com/use-agent/leadscrape/models"
	"github.com/use-agent/leadscrape/surface"
)

// ResultExtractor turns the current results page into BusinessRecords.
type ResultExtractor struct {
	s         surface.Surface
	cfg       config.SearchConfig
	timing    config.TimingConfig
	challenge *ChallengeDetector
	visitor   *Visitor
}

// NewResultExtractor creates an extractor.
func NewResultExtractor(s surface.Surface, cfg config.SearchConfig, timing config.TimingConfig, challenge *ChallengeDetector, visitor *Visitor) *ResultExtractor {
	return &ResultExtractor{s: s, cfg: cfg, timing: timing, challenge: challenge, visitor: visitor}
}

// entry is a result whose name and link were both readable.
type entry struct {
	name string
	url  string
}

// Extract returns the page's records in entry order, then match order.
// A page without entries yields no records and no error. On interrupt it
// returns the records collected so far together with the interrupt.
func (x *ResultExtractor) Extract(ctx context.Context) ([]models.BusinessRecord, error) {
	if err := x.challenge.AwaitPresent(ctx); err != nil {
		return nil, err
	}

	entries, err := x.entries(ctx)
	if err != nil || len(entries) == 0 {
		return nil, err
	}

	var records []models.BusinessRecord
	for _, e := range entries {
		if err := interruptedErr(ctx); err != nil {
			return records, err
		}

		slog.Info("visiting business", "name", e.name, "url", e.url)
		numbers, err := x.visitor.Visit(ctx, e.url)
		if err != nil {
			return records, err
		}
		if len(numbers) == 0 {
			slog.Warn("no phone numbers found", "name", e.name)
			continue
		}
		for _, n := range numbers {
			records = append(records, models.BusinessRecord{Name: e.name, PhoneNumber: n, SourceURL: e.url})
			slog.Info("found phone", "name", e.name, "phone", n)
		}
	}
	return records, nil
}

// entries reads every entry before any is visited, so detail navigation
// cannot invalidate the handles.
func (x *ResultExtractor) entries(ctx context.Context) ([]entry, error) {
	els, err := x.s.WaitElements(ctx, x.cfg.ResultEntry, x.timing.EntriesTimeout)
	if err != nil {
		if isInterrupt(ctx, err) {
			return nil, asInterrupt(ctx, err)
		}
		slog.Error("no search results found or timeout occurred", "error", err)
		return nil, nil
	}

	out := make([]entry, 0, len(els))
	for i, el := range els {
		e, err := x.read(el)
		if err != nil {
			if isInterrupt(ctx, err) {
				return nil, asInterrupt(ctx, err)
			}
			slog.Warn("skipping incomplete result", "index", i, "error", err)
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (x *ResultExtractor) read(el surface.Element) (entry, error) {
	nameEl, err := el.Find(x.cfg.EntryName)
	if err != nil {
		return entry{}, err
	}
	name, err := nameEl.Text()
	if err != nil {
		return entry{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return entry{}, models.NewScrapeError(models.ErrCodeElementMissing, "result has an empty name", nil)
	}

	linkEl, err := el.Find(x.cfg.EntryLink)
	if err != nil {
		return entry{}, err
	}
	url, err := linkEl.Link()
	if err != nil {
		return entry{}, err
	}
	return entry{name: name, url: url}, nil
}
