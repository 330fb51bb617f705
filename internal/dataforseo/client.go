package dataforseo

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/frahmantamala/keyword-research-api/internal"
)

const (
	pathKeywordOverview    = "/v3/dataforseo_labs/google/keyword_overview/live"
	pathRelatedKeywords    = "/v3/dataforseo_labs/google/related_keywords/live"
	pathKeywordSuggestions = "/v3/dataforseo_labs/google/keyword_suggestions/live"
	pathSerpAdvanced       = "/v3/serp/google/organic/live/advanced"
	pathSerpRegular        = "/v3/serp/google/organic/live/regular"
)

type Client struct {
	baseURL    string
	authHeader string
	httpClient *http.Client
	cache      *responseCache
	logger     *slog.Logger
}

func NewClient(cfg internal.DataForSEOConfig, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	credentials := base64.StdEncoding.EncodeToString([]byte(cfg.Username + ":" + cfg.Password))
	return &Client{
		baseURL:    cfg.BaseURL,
		authHeader: "Basic " + credentials,
		httpClient: &http.Client{Timeout: timeout},
		cache:      newResponseCache(ttl),
		logger:     logger,
	}
}

// KeywordOverview fetches metrics for up to 1000 keywords in one task.
func (c *Client) KeywordOverview(ctx context.Context, keywords []string, locationCode int, languageCode string) ([]KeywordItem, error) {
	task := map[string]interface{}{
		"keywords":      keywords,
		"location_code": locationCode,
		"language_code": languageCode,
	}
	items, err := c.fetchItems(ctx, pathKeywordOverview, task)
	if err != nil {
		return nil, err
	}
	return decodeItems[KeywordItem](items)
}

// RelatedKeywords fetches keywords related to a seed keyword.
func (c *Client) RelatedKeywords(ctx context.Context, keyword string, locationCode int, languageCode string, limit int) ([]RelatedItem, error) {
	task := map[string]interface{}{
		"keyword":       keyword,
		"location_code": locationCode,
		"language_code": languageCode,
		"limit":         limit,
	}
	items, err := c.fetchItems(ctx, pathRelatedKeywords, task)
	if err != nil {
		return nil, err
	}
	return decodeItems[RelatedItem](items)
}

// KeywordSuggestions fetches long-tail variations of a seed keyword.
func (c *Client) KeywordSuggestions(ctx context.Context, keyword string, locationCode int, languageCode string, limit int) ([]KeywordItem, error) {
	task := map[string]interface{}{
		"keyword":       keyword,
		"location_code": locationCode,
		"language_code": languageCode,
		"limit":         limit,
	}
	items, err := c.fetchItems(ctx, pathKeywordSuggestions, task)
	if err != nil {
		return nil, err
	}
	return decodeItems[KeywordItem](items)
}

// SerpOrganic fetches the full organic SERP with descriptions.
func (c *Client) SerpOrganic(ctx context.Context, keyword string, locationCode int, languageCode string) ([]SerpItem, error) {
	task := map[string]interface{}{
		"keyword":       keyword,
		"location_code": locationCode,
		"language_code": languageCode,
	}
	items, err := c.fetchItems(ctx, pathSerpAdvanced, task)
	if err != nil {
		return nil, err
	}
	return decodeItems[SerpItem](items)
}

// SerpRegular fetches a lightweight SERP for the free preview endpoint.
func (c *Client) SerpRegular(ctx context.Context, keyword string, locationCode int, languageCode string, depth int) ([]SerpItem, error) {
	task := map[string]interface{}{
		"keyword":       keyword,
		"location_code": locationCode,
		"language_code": languageCode,
		"depth":         depth,
	}
	items, err := c.fetchItems(ctx, pathSerpRegular, task)
	if err != nil {
		return nil, err
	}
	return decodeItems[SerpItem](items)
}

// fetchItems posts a one-task request and returns the first result's items.
// Responses are served from the TTL cache when the same task was fetched
// recently.
func (c *Client) fetchItems(ctx context.Context, path string, task map[string]interface{}) ([]json.RawMessage, error) {
	body, err := json.Marshal([]interface{}{task})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task: %w", err)
	}

	key := cacheKey(path, body)
	respBody, cached := c.cache.Get(key)
	if cached {
		c.logger.Debug("upstream cache hit", "path", path)
	} else {
		respBody, err = c.post(ctx, path, body)
		if err != nil {
			return nil, err
		}
	}

	var resp apiResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, internal.NewExternalError("invalid upstream response", err)
	}

	if len(resp.Tasks) == 0 {
		return nil, internal.NewExternalError("upstream returned no tasks", nil)
	}
	first := resp.Tasks[0]
	if first.StatusCode != taskStatusOK {
		c.logger.Warn("upstream task failed",
			"path", path,
			"status_code", first.StatusCode,
			"status_message", first.StatusMessage)
		return nil, internal.NewExternalError(first.StatusMessage, nil)
	}

	if !cached {
		c.cache.Set(key, respBody)
	}

	if len(first.Result) == 0 {
		return nil, nil
	}
	return first.Result[0].Items, nil
}

func (c *Client) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", c.authHeader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("upstream request failed", "path", path, "error", err)
		return nil, internal.NewExternalError("upstream request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, internal.NewExternalError("failed to read upstream response", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("upstream returned error",
			"path", path,
			"status", resp.StatusCode,
			"response", truncate(string(respBody), 512))
		return nil, internal.NewExternalError(fmt.Sprintf("upstream HTTP %d", resp.StatusCode), nil)
	}
	return respBody, nil
}

func decodeItems[T any](raw []json.RawMessage) ([]T, error) {
	items := make([]T, 0, len(raw))
	for _, r := range raw {
		var item T
		if err := json.Unmarshal(r, &item); err != nil {
			// Skip malformed items rather than failing the whole result.
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
