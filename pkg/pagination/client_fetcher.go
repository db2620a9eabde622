package pagination

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"

	"github.com/Sternrassler/marketplace-gateway/pkg/client"
)

// ClientFetcher implements PageFetcher on top of the gateway client.
type ClientFetcher struct {
	client *client.Client
	opts   []client.RequestOption
}

// NewClientFetcher creates a page fetcher. opts apply to every page request.
func NewClientFetcher(c *client.Client, opts ...client.RequestOption) *ClientFetcher {
	return &ClientFetcher{client: c, opts: opts}
}

// FetchPage issues GET endpoint?page=N&per_page=M. A failed Result is
// returned as its *client.Failure. A page served from the fallback cache has
// no paging headers and reports TotalPages 0.
func (f *ClientFetcher) FetchPage(ctx context.Context, endpoint string, query url.Values, page, perPage int) (Page, error) {
	q := url.Values{}
	for k, v := range query {
		q[k] = append([]string(nil), v...)
	}
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))

	res, err := client.Get[json.RawMessage](ctx, f.client, endpoint, q, f.opts...)
	if err != nil {
		return Page{}, err
	}
	if !res.IsOk() {
		return Page{}, res.Failure
	}

	if res.Success.Cached {
		return Page{Data: res.Success.Data, Cached: true, CachedAt: res.Success.CachedAt}, nil
	}

	_, totalPages := client.PageInfo(res.Success.Header)
	if totalPages == 0 {
		totalPages = 1
	}
	return Page{Data: res.Success.Data, TotalPages: totalPages}, nil
}
