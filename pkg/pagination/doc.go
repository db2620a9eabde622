// Package pagination fetches every page of a WooCommerce list endpoint in
// parallel.
//
// The backend reports the page count in the X-WP-TotalPages header. The
// batch fetcher reads page 1 to learn it, then distributes the remaining
// pages over a bounded worker pool:
//
//	fetcher := pagination.NewBatchFetcher(pagination.NewClientFetcher(c), pagination.DefaultConfig())
//	res, err := fetcher.FetchAllPages(ctx, "/wc/v3/orders", url.Values{"status": {"processing"}})
//
// A failing page stops the remaining workers and returns the pages fetched
// so far together with the error. Pages served from the fallback cache mark
// the result Cached; a full cached page 1 yields ErrPagingUnknown because
// its page count is lost.
package pagination
