package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePayload_Scrape(t *testing.T) {
	tests := []struct {
		name      string
		payload   string
		wantErr   bool
		wantField string
	}{
		{
			name:    "valid minimal",
			payload: `{"source": "zillow", "zip": "08102"}`,
			wantErr: false,
		},
		{
			name:    "valid with date range and filters",
			payload: `{"source": "zillow", "zip": "08102", "from_date": "2026-01-01", "to_date": "2026-01-31", "filters": {"min_price": "100000"}}`,
			wantErr: false,
		},
		{
			name:      "missing source",
			payload:   `{"zip": "08102"}`,
			wantErr:   true,
			wantField: "source",
		},
		{
			name:      "missing zip",
			payload:   `{"source": "zillow"}`,
			wantErr:   true,
			wantField: "zip",
		},
		{
			name:      "zip wrong length",
			payload:   `{"source": "zillow", "zip": "081"}`,
			wantErr:   true,
			wantField: "zip",
		},
		{
			name:      "from_date without to_date",
			payload:   `{"source": "zillow", "zip": "08102", "from_date": "2026-01-01"}`,
			wantErr:   true,
			wantField: "from_date",
		},
		{
			name:      "to_date without from_date",
			payload:   `{"source": "zillow", "zip": "08102", "to_date": "2026-01-31"}`,
			wantErr:   true,
			wantField: "from_date",
		},
		{
			name:      "from_date after to_date",
			payload:   `{"source": "zillow", "zip": "08102", "from_date": "2026-02-01", "to_date": "2026-01-01"}`,
			wantErr:   true,
			wantField: "from_date",
		},
		{
			name:      "malformed date",
			payload:   `{"source": "zillow", "zip": "08102", "from_date": "01/01/2026", "to_date": "2026-01-31"}`,
			wantErr:   true,
			wantField: "from_date",
		},
		{
			name:    "unknown field rejected",
			payload: `{"source": "zillow", "zip": "08102", "zipcode": "08102"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePayload(JobKindScrape, json.RawMessage(tt.payload))
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, IsValidation(err))
			if tt.wantField != "" {
				var verr *ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, tt.wantField, verr.Field)
			}
		})
	}
}

func TestValidatePayload_Enrich(t *testing.T) {
	err := ValidatePayload(JobKindEnrich, json.RawMessage(`{"property_id": "p-123", "source": "countydeeds"}`))
	assert.NoError(t, err)

	err = ValidatePayload(JobKindEnrich, json.RawMessage(`{"source": "countydeeds"}`))
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestValidatePayload_Matchmake(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{
			name:    "admin with min_score",
			payload: `{"filter": {"source": "admin", "min_score": 80}}`,
			wantErr: false,
		},
		{
			name:    "auto with property_id",
			payload: `{"filter": {"source": "auto", "property_id": "p-1"}}`,
			wantErr: false,
		},
		{
			name:    "unknown trigger source",
			payload: `{"filter": {"source": "cron", "min_score": 80}}`,
			wantErr: true,
		},
		{
			name:    "score out of range",
			payload: `{"filter": {"source": "admin", "min_score": 120}}`,
			wantErr: true,
		},
		{
			name:    "empty filter",
			payload: `{"filter": {"source": "admin"}}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePayload(JobKindMatchmake, json.RawMessage(tt.payload))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsValidation(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidatePayload_UnknownKind(t *testing.T) {
	err := ValidatePayload("reindex", json.RawMessage(`{}`))
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestScrapePayload_FilterKeys(t *testing.T) {
	p := &ScrapePayload{Filters: map[string]string{"min_price": "1", "beds": "3"}}
	assert.Equal(t, []string{"beds", "min_price"}, p.FilterKeys())

	empty := &ScrapePayload{}
	assert.Nil(t, empty.FilterKeys())
}
