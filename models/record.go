package models

import (
	"strings"
)

// OutputHeaders is the fixed column schema written once at run start.
var OutputHeaders = []string{"Business Name", "Phone Number", "URL"}

// BusinessRecord is one persisted (name, phone, URL) tuple. A business with
// N distinct numbers yields N records.
type BusinessRecord struct {
	Name        string `csv:"Business Name" json:"name"`
	PhoneNumber string `csv:"Phone Number" json:"phone_number"`
	SourceURL   string `csv:"URL" json:"url"`
}

// Row returns the record's values in OutputHeaders order.
func (r BusinessRecord) Row() []string {
	return []string{r.Name, r.PhoneNumber, r.SourceURL}
}

// DefaultLocality is appended to the operator's keyword.
const DefaultLocality = " near me"

// SearchQuery is the effective query text for a run.
type SearchQuery string

// NewSearchQuery builds the query from the operator keyword and a locality
// qualifier. A blank keyword is rejected.
func NewSearchQuery(keyword, locality string) (SearchQuery, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return "", NewScrapeError(ErrCodeInvalidInput, "search keyword is empty", nil)
	}
	return SearchQuery(keyword + locality), nil
}

func (q SearchQuery) String() string { return string(q) }

// RunStats counts what a run has persisted so far.
type RunStats struct {
	// Pages is the number of result pages that went through extraction.
	Pages int `json:"pages"`

	// Records is the number of BusinessRecords handed to the sink.
	Records int `json:"records"`
}
