// Package keywords implements the keyword research operations: transforming
// raw upstream metrics into the API's normalized shapes.
package keywords

import (
	"context"
	"log/slog"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/frahmantamala/keyword-research-api/internal"
	"github.com/frahmantamala/keyword-research-api/internal/core/datamodel/keyword"
	"github.com/frahmantamala/keyword-research-api/internal/dataforseo"
)

const (
	ideasLimit    = 50
	serpTopN      = 10
	trendMonths   = 12
	serpDepth     = 10
	ideasPerGroup = 20
)

var questionPattern = regexp.MustCompile(`(?i)^(what|how|why|when|where|which|who|can|does|is|are|do)\b`)

// UpstreamAPI is the slice of the DataForSEO client the service needs.
type UpstreamAPI interface {
	KeywordOverview(ctx context.Context, keywords []string, locationCode int, languageCode string) ([]dataforseo.KeywordItem, error)
	RelatedKeywords(ctx context.Context, keyword string, locationCode int, languageCode string, limit int) ([]dataforseo.RelatedItem, error)
	KeywordSuggestions(ctx context.Context, keyword string, locationCode int, languageCode string, limit int) ([]dataforseo.KeywordItem, error)
	SerpOrganic(ctx context.Context, keyword string, locationCode int, languageCode string) ([]dataforseo.SerpItem, error)
	SerpRegular(ctx context.Context, keyword string, locationCode int, languageCode string, depth int) ([]dataforseo.SerpItem, error)
}

type Service struct {
	upstream UpstreamAPI
	logger   *slog.Logger
}

func NewService(upstream UpstreamAPI, logger *slog.Logger) *Service {
	return &Service{
		upstream: upstream,
		logger:   logger,
	}
}

// Overview returns the full research bundle for one keyword. The overview
// fetch is required; ideas and SERP are best effort and degrade to empty.
func (s *Service) Overview(ctx context.Context, req OverviewRequest) (*keyword.Research, error) {
	var (
		wg            sync.WaitGroup
		overviewItems []dataforseo.KeywordItem
		overviewErr   error
		relatedItems  []dataforseo.RelatedItem
		serpItems     []dataforseo.SerpItem
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		overviewItems, overviewErr = s.upstream.KeywordOverview(ctx, []string{req.Keyword}, req.LocationCode, req.LanguageCode)
	}()
	go func() {
		defer wg.Done()
		var err error
		relatedItems, err = s.upstream.RelatedKeywords(ctx, req.Keyword, req.LocationCode, req.LanguageCode, ideasLimit)
		if err != nil {
			s.logger.Warn("related keywords fetch failed", "keyword", req.Keyword, "error", err)
		}
	}()
	go func() {
		defer wg.Done()
		var err error
		serpItems, err = s.upstream.SerpOrganic(ctx, req.Keyword, req.LocationCode, req.LanguageCode)
		if err != nil {
			s.logger.Warn("serp fetch failed", "keyword", req.Keyword, "error", err)
		}
	}()
	wg.Wait()

	if overviewErr != nil {
		return nil, overviewErr
	}
	if len(overviewItems) == 0 {
		return nil, internal.NewNotFoundError("no overview data found", internal.ErrCodeUpstreamData)
	}

	return &keyword.Research{
		Overview: overviewFromItem(overviewItems[0]),
		Ideas:    ideasFromRelated(relatedItems),
		Serp:     serpFromItems(serpItems, true),
	}, nil
}

// Batch returns research bundles for multiple keywords. One overview call
// covers the whole batch; ideas and SERP are fetched per keyword in parallel
// and degrade to empty per keyword. A keyword the upstream has no data for
// yields a bundle with an error marker instead of failing the batch.
func (s *Service) Batch(ctx context.Context, req BatchRequest) ([]keyword.Research, error) {
	overviewItems, err := s.upstream.KeywordOverview(ctx, req.Keywords, req.LocationCode, req.LanguageCode)
	if err != nil {
		return nil, err
	}

	overviewByKeyword := make(map[string]dataforseo.KeywordItem, len(overviewItems))
	for _, item := range overviewItems {
		if item.Keyword != "" {
			overviewByKeyword[strings.ToLower(item.Keyword)] = item
		}
	}

	type perKeyword struct {
		related []dataforseo.RelatedItem
		serp    []dataforseo.SerpItem
	}
	results := make([]perKeyword, len(req.Keywords))

	var wg sync.WaitGroup
	for i, kw := range req.Keywords {
		wg.Add(2)
		go func(i int, kw string) {
			defer wg.Done()
			related, err := s.upstream.RelatedKeywords(ctx, kw, req.LocationCode, req.LanguageCode, ideasLimit)
			if err != nil {
				s.logger.Warn("related keywords fetch failed", "keyword", kw, "error", err)
				return
			}
			results[i].related = related
		}(i, kw)
		go func(i int, kw string) {
			defer wg.Done()
			serp, err := s.upstream.SerpOrganic(ctx, kw, req.LocationCode, req.LanguageCode)
			if err != nil {
				s.logger.Warn("serp fetch failed", "keyword", kw, "error", err)
				return
			}
			results[i].serp = serp
		}(i, kw)
	}
	wg.Wait()

	out := make([]keyword.Research, 0, len(req.Keywords))
	for i, kw := range req.Keywords {
		item, ok := overviewByKeyword[kw]
		if !ok {
			out = append(out, keyword.Research{
				Keyword: kw,
				Error:   "no overview data found",
			})
			continue
		}
		out = append(out, keyword.Research{
			Overview: overviewFromItem(item),
			Ideas:    ideasFromRelated(results[i].related),
			Serp:     serpFromItems(results[i].serp, true),
		})
	}
	return out, nil
}

// Ideas merges related keywords and suggestions for a seed keyword,
// deduplicated and sorted by volume. Both sources are best effort; the call
// only fails when neither produced anything and at least one errored.
func (s *Service) Ideas(ctx context.Context, req IdeasRequest) ([]keyword.IdeaDetail, error) {
	var (
		wg             sync.WaitGroup
		related        []dataforseo.RelatedItem
		relatedErr     error
		suggestions    []dataforseo.KeywordItem
		suggestionsErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		related, relatedErr = s.upstream.RelatedKeywords(ctx, req.Keyword, req.LocationCode, req.LanguageCode, ideasPerGroup)
	}()
	go func() {
		defer wg.Done()
		suggestions, suggestionsErr = s.upstream.KeywordSuggestions(ctx, req.Keyword, req.LocationCode, req.LanguageCode, ideasPerGroup)
	}()
	wg.Wait()

	if relatedErr != nil {
		s.logger.Warn("related keywords fetch failed", "keyword", req.Keyword, "error", relatedErr)
	}
	if suggestionsErr != nil {
		s.logger.Warn("keyword suggestions fetch failed", "keyword", req.Keyword, "error", suggestionsErr)
	}
	if relatedErr != nil && suggestionsErr != nil {
		return nil, relatedErr
	}

	seen := make(map[string]bool)
	ideas := make([]keyword.IdeaDetail, 0, len(related)+len(suggestions))

	for _, item := range related {
		kd := item.KeywordData
		if kd == nil || kd.Keyword == "" || seen[kd.Keyword] {
			continue
		}
		seen[kd.Keyword] = true
		ideas = append(ideas, ideaFromItem(*kd, keyword.IdeaTypeRelated))
	}

	for _, item := range suggestions {
		if item.Keyword == "" || seen[item.Keyword] {
			continue
		}
		seen[item.Keyword] = true
		ideaType := keyword.IdeaTypeVariation
		if questionPattern.MatchString(item.Keyword) {
			ideaType = keyword.IdeaTypeQuestion
		}
		ideas = append(ideas, ideaFromItem(item, ideaType))
	}

	sort.SliceStable(ideas, func(i, j int) bool {
		return ideas[i].Volume > ideas[j].Volume
	})
	return ideas, nil
}

// Serp returns the top organic results for a keyword.
func (s *Service) Serp(ctx context.Context, req SerpRequest) ([]keyword.SerpResult, error) {
	items, err := s.upstream.SerpRegular(ctx, req.Keyword, req.LocationCode, req.LanguageCode, serpDepth)
	if err != nil {
		return nil, err
	}
	results := serpFromItems(items, false)
	if len(results) == 0 {
		return nil, internal.NewExternalError("no SERP results returned", nil)
	}
	return results, nil
}

// ----------------- TRANSFORMS -----------------

var intentByRaw = map[string]keyword.Intent{
	"informational": keyword.IntentInformational,
	"navigational":  keyword.IntentNavigational,
	"commercial":    keyword.IntentCommercial,
	"transactional": keyword.IntentTransactional,
}

func mapIntent(raw string) keyword.Intent {
	if intent, ok := intentByRaw[strings.ToLower(raw)]; ok {
		return intent
	}
	return keyword.IntentInformational
}

// trendFromMonthly takes the latest 12 months and reverses them so the trend
// reads oldest to newest.
func trendFromMonthly(monthly []dataforseo.MonthlySearch) []int64 {
	n := len(monthly)
	if n > trendMonths {
		n = trendMonths
	}
	trend := make([]int64, n)
	for i := 0; i < n; i++ {
		trend[n-1-i] = monthly[i].SearchVolume
	}
	return trend
}

func overviewFromItem(item dataforseo.KeywordItem) *keyword.Overview {
	var (
		info       dataforseo.KeywordInfo
		properties dataforseo.KeywordProperties
		intentInfo dataforseo.SearchIntentInfo
	)
	if item.KeywordInfo != nil {
		info = *item.KeywordInfo
	}
	if item.KeywordProperties != nil {
		properties = *item.KeywordProperties
	}
	if item.SearchIntentInfo != nil {
		intentInfo = *item.SearchIntentInfo
	}

	return &keyword.Overview{
		Keyword:     item.Keyword,
		Volume:      info.SearchVolume,
		Difficulty:  properties.KeywordDifficulty,
		CPC:         info.CPC,
		Competition: info.Competition,
		Intent:      mapIntent(intentInfo.MainIntent),
		Trend:       trendFromMonthly(info.MonthlySearches),
		GlobalVolume: []keyword.CountryVolume{
			{Country: "Selected Location", Volume: info.SearchVolume},
		},
	}
}

func ideaFromItem(item dataforseo.KeywordItem, ideaType string) keyword.IdeaDetail {
	var (
		info       dataforseo.KeywordInfo
		properties dataforseo.KeywordProperties
		intentInfo dataforseo.SearchIntentInfo
	)
	if item.KeywordInfo != nil {
		info = *item.KeywordInfo
	}
	if item.KeywordProperties != nil {
		properties = *item.KeywordProperties
	}
	if item.SearchIntentInfo != nil {
		intentInfo = *item.SearchIntentInfo
	}

	return keyword.IdeaDetail{
		Keyword:     item.Keyword,
		Volume:      info.SearchVolume,
		Difficulty:  properties.KeywordDifficulty,
		CPC:         info.CPC,
		Competition: info.Competition,
		Intent:      mapIntent(intentInfo.MainIntent),
		Type:        ideaType,
		Trend:       trendFromMonthly(info.MonthlySearches),
	}
}

// ideasFromRelated flattens related-keyword items into the compact idea
// shape bundled with overview responses.
func ideasFromRelated(items []dataforseo.RelatedItem) []keyword.Idea {
	ideas := make([]keyword.Idea, 0, len(items))
	for _, item := range items {
		kd := item.KeywordData
		if kd == nil || kd.Keyword == "" {
			continue
		}
		idea := keyword.Idea{
			Keyword: kd.Keyword,
			Type:    kd.Keyword,
		}
		if kd.KeywordInfo != nil {
			idea.Volume = kd.KeywordInfo.SearchVolume
		}
		if kd.KeywordProperties != nil {
			idea.Difficulty = kd.KeywordProperties.KeywordDifficulty
		}
		ideas = append(ideas, idea)
		if len(ideas) == ideasLimit {
			break
		}
	}
	return ideas
}

// serpFromItems keeps the top organic entries, renumbered from 1.
func serpFromItems(items []dataforseo.SerpItem, withDescription bool) []keyword.SerpResult {
	results := make([]keyword.SerpResult, 0, serpTopN)
	for _, item := range items {
		if item.Type != "organic" {
			continue
		}
		result := keyword.SerpResult{
			Position: len(results) + 1,
			URL:      item.URL,
			Domain:   item.Domain,
			Title:    item.Title,
		}
		if result.Domain == "" && item.URL != "" {
			if u, err := url.Parse(item.URL); err == nil {
				result.Domain = strings.TrimPrefix(u.Hostname(), "www.")
			}
		}
		if withDescription {
			result.Description = item.Description
		}
		results = append(results, result)
		if len(results) == serpTopN {
			break
		}
	}
	return results
}
