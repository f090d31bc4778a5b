package sink

import (
	"encoding/csv"
	"os"

	"github.com/jszwec/csvutil"

	"github.com/use-agent/leadscrape/models"
)

// CSV writes records to a comma-separated file. The file is reopened in
// append mode for every batch so rows already written survive a crash.
type CSV struct {
	path string
}

// NewCSV returns a CSV sink writing to path.
func NewCSV(path string) *CSV {
	return &CSV{path: path}
}

// Initialize truncates the file and writes the header row.
func (c *CSV) Initialize(headers []string) error {
	f, err := os.OpenFile(c.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return sinkError("failed to create "+c.path, err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(headers); err != nil {
		f.Close()
		return sinkError("failed to write header", err)
	}
	return finish(f, w)
}

// Append adds one row per record.
func (c *CSV) Append(records []models.BusinessRecord) error {
	if len(records) == 0 {
		return nil
	}

	f, err := os.OpenFile(c.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return sinkError("failed to open "+c.path, err)
	}
	w := csv.NewWriter(f)
	enc := csvutil.NewEncoder(w)
	enc.AutoHeader = false
	if err := enc.Encode(records); err != nil {
		f.Close()
		return sinkError("failed to encode records", err)
	}
	return finish(f, w)
}

// Close implements Sink. The file is closed after every write.
func (c *CSV) Close() error { return nil }

func finish(f *os.File, w *csv.Writer) error {
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return sinkError("failed to flush rows", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return sinkError("failed to sync file", err)
	}
	if err := f.Close(); err != nil {
		return sinkError("failed to close file", err)
	}
	return nil
}
