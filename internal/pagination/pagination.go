// Package pagination aggregates cursor-paginated collection endpoints.
package pagination

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

const DefaultMaxPages = 50

// Reasons a Result holds fewer items than the upstream collection
const (
	TruncatedByMaxItems = "max_items"
	TruncatedByMaxPages = "max_pages"
	TruncatedByError    = "error"
)

// strippedParams are caller paging controls that must not reach the upstream
var strippedParams = []string{"offset", "limit", "pageOffset", "pageLimit", "startWith"}

// Links is the `links` object of a collection response
type Links struct {
	Next string `json:"next,omitempty"`
}

// Page is one decoded collection response
type Page struct {
	Data  []map[string]interface{} `json:"data"`
	Links Links                    `json:"links"`
}

// PageGetter fetches one page. A path may already carry a query string.
type PageGetter interface {
	GetPage(ctx context.Context, path string, params url.Values) (*Page, error)
}

// Progress is reported after each page
type Progress struct {
	Page       int
	Items      []map[string]interface{}
	TotalSoFar int
}

// Options bound an aggregation
type Options struct {
	MaxPages   int // 0 means DefaultMaxPages
	MaxItems   int // 0 means unbounded
	OnProgress func(Progress)
}

// Meta describes how a Result was obtained. ItemsFetched counts every item
// received, including any cut by MaxItems. NextLink is the unconsumed
// cursor a caller can resume from; it is empty once the collection is
// exhausted.
type Meta struct {
	Pages            int    `json:"pages"`
	TotalItems       int    `json:"totalItems"`
	ItemsFetched     int    `json:"itemsFetched"`
	HasMore          bool   `json:"hasMore"`
	NextLink         string `json:"nextLink,omitempty"`
	Truncated        bool   `json:"truncated"`
	TruncationReason string `json:"truncationReason,omitempty"`
	Partial          bool   `json:"partial"`
	Error            string `json:"error,omitempty"`
	// Err is the page failure behind a partial result
	Err error `json:"-"`
}

// Result is the aggregated collection
type Result struct {
	Items []map[string]interface{} `json:"data"`
	Meta  Meta                     `json:"meta"`
}

// FetchAll follows `links.next` from endpoint until the collection ends or
// a bound is reached. A failure on the first page is returned as an error;
// a failure on a later page yields the items gathered so far with
// Meta.Partial set.
func FetchAll(ctx context.Context, getter PageGetter, endpoint string, params url.Values, opts Options) (*Result, error) {
	maxPages := opts.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}

	path := endpoint
	query := cleanParams(params)
	link := ""
	result := &Result{Items: make([]map[string]interface{}, 0)}

	for page := 1; ; page++ {
		resp, err := getter.GetPage(ctx, path, query)
		if err != nil {
			if page == 1 {
				return nil, err
			}
			result.Meta.Partial = true
			result.Meta.Truncated = true
			result.Meta.TruncationReason = TruncatedByError
			result.Meta.Error = fmt.Sprintf("page %d could not be fetched", page)
			result.Meta.Err = err
			result.Meta.HasMore = true
			result.Meta.NextLink = link
			break
		}

		result.Meta.Pages = page
		result.Items = append(result.Items, resp.Data...)
		result.Meta.ItemsFetched = len(result.Items)

		if opts.OnProgress != nil {
			opts.OnProgress(Progress{Page: page, Items: resp.Data, TotalSoFar: len(result.Items)})
		}

		next := strings.TrimSpace(resp.Links.Next)

		if opts.MaxItems > 0 && len(result.Items) >= opts.MaxItems {
			if len(result.Items) > opts.MaxItems || next != "" {
				result.Meta.Truncated = true
				result.Meta.TruncationReason = TruncatedByMaxItems
				result.Meta.HasMore = true
				result.Meta.NextLink = next
			}
			result.Items = result.Items[:opts.MaxItems]
			break
		}

		if next == "" {
			break
		}

		if page >= maxPages {
			result.Meta.Truncated = true
			result.Meta.TruncationReason = TruncatedByMaxPages
			result.Meta.HasMore = true
			result.Meta.NextLink = next
			break
		}

		link = next
		path, query = followLink(next)
	}

	result.Meta.TotalItems = len(result.Items)
	return result, nil
}

// cleanParams copies params without caller paging controls
func cleanParams(params url.Values) url.Values {
	out := url.Values{}
	for k, v := range params {
		out[k] = append([]string(nil), v...)
	}
	for _, k := range strippedParams {
		out.Del(k)
	}
	return out
}

// followLink turns a next link into the path and params of the next request.
// Absolute links contribute their path and query; relative links are used
// verbatim with no extra params.
func followLink(next string) (string, url.Values) {
	u, err := url.Parse(next)
	if err != nil || !u.IsAbs() {
		return next, url.Values{}
	}
	return u.Path, u.Query()
}
