// Package keyword holds the transformed keyword-data shapes returned to API
// clients, normalized from the raw upstream provider responses.
package keyword

type Intent string

const (
	IntentInformational Intent = "Informational"
	IntentNavigational  Intent = "Navigational"
	IntentCommercial    Intent = "Commercial"
	IntentTransactional Intent = "Transactional"
)

type CountryVolume struct {
	Country string `json:"country"`
	Volume  int64  `json:"volume"`
}

// Overview is the per-keyword metrics summary (search volume, difficulty,
// CPC, intent, 12-month trend).
type Overview struct {
	Keyword      string          `json:"keyword"`
	Volume       int64           `json:"volume"`
	Difficulty   float64         `json:"kd"`
	CPC          float64         `json:"cpc"`
	Competition  float64         `json:"competition"`
	Intent       Intent          `json:"intent"`
	Trend        []int64         `json:"trend"`
	GlobalVolume []CountryVolume `json:"globalVolume"`
}

type Idea struct {
	Keyword    string  `json:"keyword"`
	Volume     int64   `json:"volume"`
	Difficulty float64 `json:"kd"`
	Type       string  `json:"type"`
}

// IdeaDetail is the richer idea shape from the dedicated ideas endpoint,
// carrying full metrics and the idea classification.
type IdeaDetail struct {
	Keyword     string  `json:"keyword"`
	Volume      int64   `json:"volume"`
	Difficulty  float64 `json:"kd"`
	CPC         float64 `json:"cpc"`
	Competition float64 `json:"competition"`
	Intent      Intent  `json:"intent"`
	Type        string  `json:"type"`
	Trend       []int64 `json:"trend"`
}

const (
	IdeaTypeRelated   = "related"
	IdeaTypeVariation = "variation"
	IdeaTypeQuestion  = "question"
)

type SerpResult struct {
	Position    int    `json:"position"`
	URL         string `json:"url"`
	Domain      string `json:"domain"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// Research bundles everything the batch endpoint returns per keyword.
type Research struct {
	Keyword  string       `json:"keyword,omitempty"`
	Overview *Overview    `json:"overview,omitempty"`
	Ideas    []Idea       `json:"ideas,omitempty"`
	Serp     []SerpResult `json:"serp,omitempty"`
	Error    string       `json:"error,omitempty"`
}
