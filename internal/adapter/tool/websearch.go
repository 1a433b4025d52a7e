package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"prepmate/internal/domain"
)

const (
	defaultSearchCount = 5
	maxSearchCount     = 20
	searchCacheTTL     = 15 * time.Minute
	maxSearchBodySize  = 512 * 1024 // 512KB
)

// SearchBackend abstracts a web search engine.
type SearchBackend interface {
	Search(ctx context.Context, query string, count int, timeRange string) ([]SearchResult, error)
	Name() string
}

// SearchResult represents a single search result.
type SearchResult struct {
	Title   string
	URL     string
	Content string
}

// searxngResponse models the relevant portion of the SearXNG JSON response.
type searxngResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

// SearXNGBackend searches the web via a SearXNG instance.
type SearXNGBackend struct {
	client      *http.Client
	instanceURL string
	logger      *slog.Logger
}

// NewSearXNGBackend creates a search backend backed by a SearXNG instance.
func NewSearXNGBackend(instanceURL string, logger *slog.Logger) *SearXNGBackend {
	return &SearXNGBackend{
		client:      &http.Client{Timeout: 15 * time.Second},
		instanceURL: strings.TrimRight(instanceURL, "/"),
		logger:      logger,
	}
}

func (b *SearXNGBackend) Name() string { return "searxng" }

func (b *SearXNGBackend) Search(ctx context.Context, query string, count int, timeRange string) ([]SearchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.instanceURL+"/search", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	q := req.URL.Query()
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("pageno", "1")
	if timeRange != "" {
		q.Set("time_range", timeRange)
	}
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Accept", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSearchBodySize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search failed (HTTP %d): %s", resp.StatusCode, string(body))
	}

	var searxResp searxngResponse
	if err := json.Unmarshal(body, &searxResp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	results := make([]SearchResult, 0, len(searxResp.Results))
	for _, r := range searxResp.Results {
		if len(results) >= count {
			break
		}
		results = append(results, SearchResult{Title: r.Title, URL: r.URL, Content: r.Content})
	}

	b.logger.Debug("searxng search completed", "query", query, "results", len(results))
	return results, nil
}

// cacheEntry holds a cached search result with its expiration time.
type cacheEntry struct {
	result    string
	expiresAt time.Time
}

// WebSearchTool performs web searches via a pluggable SearchBackend.
// Results are cached briefly; research runs tend to repeat queries.
type WebSearchTool struct {
	backend SearchBackend
	logger  *slog.Logger

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewWebSearchTool creates a web search tool backed by the given SearchBackend.
func NewWebSearchTool(backend SearchBackend, logger *slog.Logger) *WebSearchTool {
	return &WebSearchTool{
		backend: backend,
		logger:  logger,
		cache:   make(map[string]cacheEntry),
	}
}

func (t *WebSearchTool) Name() string        { return "web_search" }
func (t *WebSearchTool) Description() string { return "Search the web" }

func (t *WebSearchTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {"type": "string", "description": "The search query"},
				"count": {"type": "integer", "minimum": 1, "maximum": 20, "description": "Number of results (default: 5)"},
				"time_range": {"type": "string", "enum": ["day", "week", "month", "year"], "description": "Time range filter (optional)"}
			},
			"required": ["query"]
		}`),
	}
}

type webSearchParams struct {
	Query     string `json:"query"`
	Count     int    `json:"count,omitempty"`
	TimeRange string `json:"time_range,omitempty"`
}

func (t *WebSearchTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	var p webSearchParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if strings.TrimSpace(p.Query) == "" {
		return nil, fmt.Errorf("%w: query must not be empty", domain.ErrInvalidInput)
	}
	if p.Count <= 0 {
		p.Count = defaultSearchCount
	}
	if p.Count > maxSearchCount {
		p.Count = maxSearchCount
	}
	switch p.TimeRange {
	case "", "day", "week", "month", "year":
	default:
		return nil, fmt.Errorf("%w: invalid time_range %q", domain.ErrInvalidInput, p.TimeRange)
	}

	cacheKey := fmt.Sprintf("%s|%d|%s", p.Query, p.Count, p.TimeRange)
	if cached, ok := t.getCached(cacheKey); ok {
		t.logger.Debug("web search cache hit", "query", p.Query)
		return &domain.ToolResult{Content: cached}, nil
	}

	results, err := t.backend.Search(ctx, p.Query, p.Count, p.TimeRange)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrToolFailure, err)
	}
	if len(results) > p.Count {
		results = results[:p.Count]
	}

	content := formatSearchResults(p.Query, results)
	t.putCache(cacheKey, content)

	t.logger.Debug("web search completed", "query", p.Query, "results", len(results))
	return &domain.ToolResult{Content: content}, nil
}

// formatSearchResults converts search results to a compact text format for
// model consumption.
func formatSearchResults(query string, results []SearchResult) string {
	if len(results) == 0 {
		return fmt.Sprintf("No search results found for %q.", query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Search results for %q:\n\n", query)
	for i, r := range results {
		fmt.Fprintf(&sb, "%d. %s\n   URL: %s\n   %s\n\n", i+1, r.Title, r.URL, r.Content)
	}
	return sb.String()
}

func (t *WebSearchTool) getCached(key string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.cache[key]
	if !ok {
		return "", false
	}
	if time.Now().After(entry.expiresAt) {
		delete(t.cache, key)
		return "", false
	}
	return entry.result, true
}

func (t *WebSearchTool) putCache(key, result string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cache[key] = cacheEntry{
		result:    result,
		expiresAt: time.Now().Add(searchCacheTTL),
	}
}
