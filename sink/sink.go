// Package sink persists BusinessRecords as they are collected.
package sink

import (
	"fmt"
	"strings"

	"github.com/use-agent/leadscrape/models"
)

// Sink is a flat, append-only record store.
//
// Initialize truncates any previous output and writes the header once.
// Append durably adds a batch; an empty batch is a no-op. Close releases the
// store and is safe to call more than once.
type Sink interface {
	Initialize(headers []string) error
	Append(records []models.BusinessRecord) error
	Close() error
}

// Formats accepted by Open.
const (
	FormatCSV    = "csv"
	FormatSQLite = "sqlite"
)

// Open creates the sink for format at path.
func Open(format, path string) (Sink, error) {
	switch strings.ToLower(format) {
	case FormatCSV:
		return NewCSV(path), nil
	case FormatSQLite:
		s, err := OpenSQLite(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, models.NewScrapeError(
			models.ErrCodeInvalidInput,
			fmt.Sprintf("unknown output format %q (want %s or %s)", format, FormatCSV, FormatSQLite),
			nil,
		)
	}
}

func sinkError(msg string, err error) error {
	return models.NewScrapeError(models.ErrCodeSinkFailed, msg, err)
}
