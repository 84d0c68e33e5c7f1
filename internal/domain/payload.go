package domain

import (
	"bytes"
	"encoding/json"
	"sort"
	"time"
)

const dateLayout = "2006-01-02"

// ScrapePayload is the input for a scrape job. FromDate and ToDate must
// both be present or both absent, and FromDate <= ToDate.
type ScrapePayload struct {
	Source   string            `json:"source"`
	Zip      string            `json:"zip"`
	FromDate string            `json:"from_date,omitempty"`
	ToDate   string            `json:"to_date,omitempty"`
	Filters  map[string]string `json:"filters,omitempty"`
}

// EnrichPayload is the input for an enrichment job.
type EnrichPayload struct {
	PropertyID string `json:"property_id"`
	Source     string `json:"source,omitempty"`
}

// Matchmaking trigger sources
const (
	MatchSourceAdmin = "admin"
	MatchSourceAuto  = "auto"
)

// MatchFilter is the criteria of a matchmaking job.
type MatchFilter struct {
	MinScore   float64 `json:"min_score,omitempty"`
	Source     string  `json:"source"`
	PropertyID string  `json:"property_id,omitempty"`
}

// MatchmakePayload is the input for a matchmaking job.
type MatchmakePayload struct {
	Filter MatchFilter `json:"filter"`
}

// ValidatePayload checks a raw payload against the schema for kind.
// Unknown kinds and unknown fields are rejected so malformed shapes
// never reach a worker.
func ValidatePayload(kind string, raw json.RawMessage) error {
	switch kind {
	case JobKindScrape:
		var p ScrapePayload
		if err := strictUnmarshal(raw, &p); err != nil {
			return NewValidationError("", err.Error())
		}
		return p.Validate()
	case JobKindEnrich:
		var p EnrichPayload
		if err := strictUnmarshal(raw, &p); err != nil {
			return NewValidationError("", err.Error())
		}
		return p.Validate()
	case JobKindMatchmake:
		var p MatchmakePayload
		if err := strictUnmarshal(raw, &p); err != nil {
			return NewValidationError("", err.Error())
		}
		return p.Validate()
	default:
		return NewValidationError("kind", "unknown job kind "+kind)
	}
}

// Validate checks the scrape payload invariants.
func (p *ScrapePayload) Validate() error {
	if p.Source == "" {
		return NewValidationError("source", "is required")
	}
	if p.Zip == "" {
		return NewValidationError("zip", "is required")
	}
	if len(p.Zip) != 5 {
		return NewValidationError("zip", "must be a 5-digit zip code")
	}
	if (p.FromDate == "") != (p.ToDate == "") {
		return NewValidationError("from_date", "from_date and to_date must both be set or both be empty")
	}
	if p.FromDate != "" {
		from, err := time.Parse(dateLayout, p.FromDate)
		if err != nil {
			return NewValidationError("from_date", "must be YYYY-MM-DD")
		}
		to, err := time.Parse(dateLayout, p.ToDate)
		if err != nil {
			return NewValidationError("to_date", "must be YYYY-MM-DD")
		}
		if from.After(to) {
			return NewValidationError("from_date", "must not be after to_date")
		}
	}
	return nil
}

// Validate checks the enrichment payload invariants.
func (p *EnrichPayload) Validate() error {
	if p.PropertyID == "" {
		return NewValidationError("property_id", "is required")
	}
	return nil
}

// Validate checks the matchmaking payload invariants.
func (p *MatchmakePayload) Validate() error {
	switch p.Filter.Source {
	case MatchSourceAdmin, MatchSourceAuto:
	default:
		return NewValidationError("filter.source", `must be "admin" or "auto"`)
	}
	if p.Filter.MinScore < 0 || p.Filter.MinScore > 100 {
		return NewValidationError("filter.min_score", "must be between 0 and 100")
	}
	if p.Filter.PropertyID == "" && p.Filter.MinScore == 0 {
		return NewValidationError("filter", "needs a property_id or a min_score")
	}
	return nil
}

// FilterKeys returns the sorted filter keys, used for result meta
// bookkeeping.
func (p *ScrapePayload) FilterKeys() []string {
	if len(p.Filters) == 0 {
		return nil
	}
	keys := make([]string, 0, len(p.Filters))
	for k := range p.Filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func strictUnmarshal(raw json.RawMessage, dest any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(dest)
}
