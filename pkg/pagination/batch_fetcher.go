package pagination

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Config holds batch fetcher configuration.
type Config struct {
	// MaxConcurrency is the maximum number of parallel page requests.
	MaxConcurrency int

	// Timeout per page fetch, retries included.
	Timeout time.Duration

	// PerPage is the page size requested from the backend (max 100).
	PerPage int
}

// DefaultConfig returns a configuration gentle enough for shared hosting.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 4,
		Timeout:        15 * time.Second,
		PerPage:        50,
	}
}

// ErrPagingUnknown is returned when page 1 came from the fallback cache and
// is full, so the number of further pages cannot be known.
var ErrPagingUnknown = errors.New("page count unknown: first page served from cache")

// Page is one fetched page of a list endpoint.
type Page struct {
	Data json.RawMessage

	// TotalPages is the page count reported by the backend. Zero when the
	// page came from the fallback cache.
	TotalPages int

	Cached   bool
	CachedAt time.Time
}

// PageFetcher fetches a single page of a list endpoint.
type PageFetcher interface {
	FetchPage(ctx context.Context, endpoint string, query url.Values, page, perPage int) (Page, error)
}

// PageResult is the outcome of one page fetch.
type PageResult struct {
	PageNumber int
	Page       Page
	Error      error
}

// Pages is the outcome of FetchAllPages.
type Pages struct {
	// Data is keyed by page number.
	Data map[int]json.RawMessage

	// Cached is set when any page came from the fallback cache. CachedAt is
	// the oldest cache time among those pages.
	Cached   bool
	CachedAt time.Time
}

func (p *Pages) add(n int, page Page) {
	p.Data[n] = page.Data
	if !page.Cached {
		return
	}
	if !p.Cached || page.CachedAt.Before(p.CachedAt) {
		p.CachedAt = page.CachedAt
	}
	p.Cached = true
}

// BatchFetcher fetches all pages with a worker pool.
type BatchFetcher struct {
	fetcher PageFetcher
	config  Config
}

// NewBatchFetcher creates a new batch fetcher.
func NewBatchFetcher(fetcher PageFetcher, config Config) *BatchFetcher {
	defaults := DefaultConfig()
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = defaults.MaxConcurrency
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.PerPage <= 0 || config.PerPage > 100 {
		config.PerPage = defaults.PerPage
	}

	return &BatchFetcher{
		fetcher: fetcher,
		config:  config,
	}
}

// FetchAllPages fetches every page of endpoint. On error the result holds
// the pages fetched before the failure.
//
// A cached page 1 carries no page count. It is accepted as the only page
// when it holds fewer than PerPage items; otherwise ErrPagingUnknown is
// returned together with page 1.
func (bf *BatchFetcher) FetchAllPages(ctx context.Context, endpoint string, query url.Values) (Pages, error) {
	start := time.Now()

	firstCtx, cancelFirst := context.WithTimeout(ctx, bf.config.Timeout)
	first, err := bf.fetcher.FetchPage(firstCtx, endpoint, query, 1, bf.config.PerPage)
	cancelFirst()
	if err != nil {
		return Pages{}, fmt.Errorf("fetch first page: %w", err)
	}

	results := Pages{Data: make(map[int]json.RawMessage)}
	results.add(1, first)

	totalPages := first.TotalPages
	if first.Cached {
		var items []json.RawMessage
		if err := json.Unmarshal(first.Data, &items); err != nil || len(items) >= bf.config.PerPage {
			log.Warn().
				Str("endpoint", endpoint).
				Time("cached_at", first.CachedAt).
				Msg("First page served from cache, page count unknown")
			return results, ErrPagingUnknown
		}
		totalPages = 1
	}

	if totalPages <= 1 {
		log.Debug().
			Str("endpoint", endpoint).
			Dur("duration", time.Since(start)).
			Msg("Fetch complete (single page)")
		return results, nil
	}

	log.Info().
		Str("endpoint", endpoint).
		Int("total_pages", totalPages).
		Msg("Starting parallel page fetch")

	workCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	pageQueue := make(chan int)
	pageResults := make(chan PageResult)

	go func() {
		defer close(pageQueue)
		for page := 2; page <= totalPages; page++ {
			select {
			case pageQueue <- page:
			case <-workCtx.Done():
				return
			}
		}
	}()

	workers := bf.config.MaxConcurrency
	if workers > totalPages-1 {
		workers = totalPages - 1
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go bf.worker(workCtx, endpoint, query, pageQueue, pageResults, &wg)
	}

	go func() {
		wg.Wait()
		close(pageResults)
	}()

	var firstErr error
	for result := range pageResults {
		if result.Error != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("page %d: %w", result.PageNumber, result.Error)
				cancel()
			}
			continue
		}
		results.add(result.PageNumber, result.Page)
	}

	if firstErr == nil {
		if err := ctx.Err(); err != nil {
			firstErr = err
		}
	}

	if firstErr != nil {
		log.Warn().
			Err(firstErr).
			Str("endpoint", endpoint).
			Int("fetched_pages", len(results.Data)).
			Int("total_pages", totalPages).
			Msg("Page fetch failed, returning partial results")
		return results, fmt.Errorf("partial data %d/%d pages: %w", len(results.Data), totalPages, firstErr)
	}

	log.Info().
		Str("endpoint", endpoint).
		Int("pages", len(results.Data)).
		Bool("cached", results.Cached).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	return results, nil
}

// worker fetches pages from the queue until it is drained or ctx is done.
func (bf *BatchFetcher) worker(ctx context.Context, endpoint string, query url.Values, pageQueue <-chan int, results chan<- PageResult, wg *sync.WaitGroup) {
	defer wg.Done()

	for pageNum := range pageQueue {
		if ctx.Err() != nil {
			return
		}

		pageCtx, cancel := context.WithTimeout(ctx, bf.config.Timeout)
		page, err := bf.fetcher.FetchPage(pageCtx, endpoint, query, pageNum, bf.config.PerPage)
		cancel()

		select {
		case results <- PageResult{PageNumber: pageNum, Page: page, Error: err}:
		case <-ctx.Done():
			return
		}
	}
}

// Ordered returns the pages sorted by page number.
func Ordered(pages map[int]json.RawMessage) []json.RawMessage {
	nums := make([]int, 0, len(pages))
	for n := range pages {
		nums = append(nums, n)
	}
	sort.Ints(nums)

	out := make([]json.RawMessage, len(nums))
	for i, n := range nums {
		out[i] = pages[n]
	}
	return out
}

// Flatten decodes every page as a JSON array of T and concatenates them in
// page order.
func Flatten[T any](pages map[int]json.RawMessage) ([]T, error) {
	var all []T
	for i, page := range Ordered(pages) {
		var items []T
		if err := json.Unmarshal(page, &items); err != nil {
			return nil, fmt.Errorf("decode page %d: %w", i+1, err)
		}
		all = append(all, items...)
	}
	return all, nil
}
