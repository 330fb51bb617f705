package keywords

import (
	"fmt"
	"strings"

	"github.com/frahmantamala/keyword-research-api/internal"
)

const (
	defaultLocationCode = 2840 // United States
	defaultLanguageCode = "en"

	maxKeywordLength = 1000
)

// OverviewRequest asks for full research on one keyword.
type OverviewRequest struct {
	Keyword      string `json:"keyword"`
	LocationCode int    `json:"location_code"`
	LanguageCode string `json:"language_code"`
}

func (r *OverviewRequest) Validate() error {
	r.applyDefaults()
	return validateKeyword(r.Keyword)
}

func (r *OverviewRequest) applyDefaults() {
	if r.LocationCode == 0 {
		r.LocationCode = defaultLocationCode
	}
	if r.LanguageCode == "" {
		r.LanguageCode = defaultLanguageCode
	}
}

// BatchRequest asks for research on multiple keywords under one payment.
type BatchRequest struct {
	Keywords     []string `json:"keywords"`
	LocationCode int      `json:"location_code"`
	LanguageCode string   `json:"language_code"`
}

// Validate checks the batch shape and normalizes keywords to trimmed
// lowercase. maxKeywords comes from the pricing configuration so validation
// and pricing can never disagree about the batch ceiling.
func (r *BatchRequest) Validate(maxKeywords int) error {
	if r.LocationCode == 0 {
		r.LocationCode = defaultLocationCode
	}
	if r.LanguageCode == "" {
		r.LanguageCode = defaultLanguageCode
	}

	if len(r.Keywords) == 0 {
		return internal.NewValidationError("keywords is required", internal.ErrCodeInvalidKeyword)
	}
	if len(r.Keywords) > maxKeywords {
		return internal.NewValidationError(
			fmt.Sprintf("too many keywords (max %d)", maxKeywords),
			internal.ErrCodeTooManyKeywords)
	}

	cleaned := make([]string, 0, len(r.Keywords))
	for _, kw := range r.Keywords {
		if err := validateKeyword(kw); err != nil {
			return err
		}
		cleaned = append(cleaned, strings.ToLower(strings.TrimSpace(kw)))
	}
	r.Keywords = cleaned
	return nil
}

// IdeasRequest asks for related keywords and suggestions for a seed keyword.
type IdeasRequest struct {
	Keyword      string `json:"keyword"`
	LocationCode int    `json:"location_code"`
	LanguageCode string `json:"language_code"`
}

func (r *IdeasRequest) Validate() error {
	if r.LocationCode == 0 {
		r.LocationCode = defaultLocationCode
	}
	if r.LanguageCode == "" {
		r.LanguageCode = defaultLanguageCode
	}
	return validateKeyword(r.Keyword)
}

// SerpRequest asks for a lightweight organic SERP preview.
type SerpRequest struct {
	Keyword      string `json:"keyword"`
	LocationCode int    `json:"location_code"`
	LanguageCode string `json:"language_code"`
}

func (r *SerpRequest) Validate() error {
	if r.LocationCode == 0 {
		r.LocationCode = defaultLocationCode
	}
	if r.LanguageCode == "" {
		r.LanguageCode = defaultLanguageCode
	}
	return validateKeyword(r.Keyword)
}

func validateKeyword(kw string) error {
	trimmed := strings.TrimSpace(kw)
	if trimmed == "" {
		return internal.NewValidationError("keyword is required", internal.ErrCodeInvalidKeyword)
	}
	if len(trimmed) > maxKeywordLength {
		return internal.NewValidationError("keyword is too long", internal.ErrCodeKeywordTooLong)
	}
	return nil
}

// DataResponse is the success envelope for keyword endpoints.
type DataResponse struct {
	Data interface{} `json:"data"`
}
