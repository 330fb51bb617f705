// Package dataforseo is the client for the DataForSEO Labs and SERP APIs.
// Every endpoint is a POST of a one-element task array; results come back as
// tasks with their own status codes independent of the HTTP status.
package dataforseo

import "encoding/json"

// taskStatusOK is DataForSEO's per-task success code.
const taskStatusOK = 20000

type apiResponse struct {
	StatusCode    int       `json:"status_code"`
	StatusMessage string    `json:"status_message"`
	Tasks         []apiTask `json:"tasks"`
}

type apiTask struct {
	StatusCode    int         `json:"status_code"`
	StatusMessage string      `json:"status_message"`
	Result        []apiResult `json:"result"`
}

type apiResult struct {
	Items []json.RawMessage `json:"items"`
}

// MonthlySearch is one month of historical volume, newest first in the
// upstream payload.
type MonthlySearch struct {
	Year         int   `json:"year"`
	Month        int   `json:"month"`
	SearchVolume int64 `json:"search_volume"`
}

type KeywordInfo struct {
	SearchVolume    int64           `json:"search_volume"`
	CPC             float64         `json:"cpc"`
	Competition     float64         `json:"competition"`
	MonthlySearches []MonthlySearch `json:"monthly_searches"`
}

type KeywordProperties struct {
	KeywordDifficulty float64 `json:"keyword_difficulty"`
}

type SearchIntentInfo struct {
	MainIntent string `json:"main_intent"`
}

// KeywordItem is the shape shared by keyword_overview and
// keyword_suggestions items.
type KeywordItem struct {
	Keyword           string             `json:"keyword"`
	KeywordInfo       *KeywordInfo       `json:"keyword_info"`
	KeywordProperties *KeywordProperties `json:"keyword_properties"`
	SearchIntentInfo  *SearchIntentInfo  `json:"search_intent_info"`
}

// RelatedItem wraps a KeywordItem one level deeper, the related_keywords
// item shape.
type RelatedItem struct {
	KeywordData *KeywordItem `json:"keyword_data"`
}

// SerpItem is one SERP entry; only type "organic" entries are surfaced.
type SerpItem struct {
	Type        string `json:"type"`
	URL         string `json:"url"`
	Domain      string `json:"domain"`
	Title       string `json:"title"`
	Description string `json:"description"`
}
