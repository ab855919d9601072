package pagination

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Identified is implemented by list results addressed by an ascending
// numeric id.
type Identified interface {
	PaginationID() int64
}

// Named is implemented by list results addressed by name order.
type Named interface {
	PaginationName() string
}

// OffsetCallback conditionally attaches the continuation link once the
// handler has fetched its results. It must run before the response body
// is written.
type OffsetCallback func(results []Identified, w http.ResponseWriter)

// NameCallback is the tag-listing variant of OffsetCallback.
type NameCallback func(results []Named, hasMore bool, w http.ResponseWriter)

// OffsetPaginator prepares encrypted numeric-id cursors for list
// endpoints. Handlers over-fetch by one past the limit; the callback
// detects that and emits the next-page link.
type OffsetPaginator struct {
	max   int
	codec *TokenCodec
}

// NewOffsetPaginator creates an offset paginator with the given page
// size cap.
func NewOffsetPaginator(maxPageSize int, codec *TokenCodec) *OffsetPaginator {
	return &OffsetPaginator{max: maxPageSize, codec: codec}
}

// MaxPageSize returns the page size cap.
func (p *OffsetPaginator) MaxPageSize() int {
	return p.max
}

// Prepare parses the request's pagination parameters. startID is valid
// only when hasStart is true; a missing or undecodable cursor yields
// hasStart false.
func (p *OffsetPaginator) Prepare(r *http.Request) (limit int, startID int64, hasStart bool, finish OffsetCallback) {
	query := r.URL.Query()

	requested := p.max
	if query.Has("n") {
		parsed, err := strconv.Atoi(query.Get("n"))
		if err != nil {
			// A non-numeric or empty n collapses to the minimum page
			// size, not to the default.
			parsed = 0
		}
		requested = parsed
	}
	limit = clamp(requested, p.max)

	token := query.Get("next_page")
	if token == "" {
		token = query.Get("last")
	}
	if decoded := p.codec.Decode(token); decoded != nil {
		startID = decoded.StartID
		hasStart = true
	}

	pageLimit := limit
	finish = func(results []Identified, w http.ResponseWriter) {
		if len(results) <= pageLimit {
			return
		}

		var maxID int64
		for _, obj := range results {
			if id := obj.PaginationID(); id > maxID {
				maxID = id
			}
		}

		next, err := p.codec.Encode(&PageToken{StartID: maxID})
		if err != nil {
			return
		}

		params := url.Values{}
		params.Set("n", strconv.Itoa(pageLimit))
		params.Set("next_page", next)
		w.Header().Set("Link", linkHeader(r, params))
	}

	return limit, startID, hasStart, finish
}

// NamePaginator prepares plain last-seen-name cursors following the OCI
// tag pagination contract.
type NamePaginator struct {
	max int
}

// NewNamePaginator creates a name paginator with the given page size
// cap.
func NewNamePaginator(maxPageSize int) *NamePaginator {
	return &NamePaginator{max: maxPageSize}
}

// MaxPageSize returns the page size cap.
func (p *NamePaginator) MaxPageSize() int {
	return p.max
}

// Prepare parses the request's pagination parameters. On a malformed n
// both the limit and the cursor are dropped, per the OCI contract.
func (p *NamePaginator) Prepare(r *http.Request) (limit int, lastName string, finish NameCallback) {
	query := r.URL.Query()

	requested := p.max
	lastName = query.Get("last")
	if query.Has("n") {
		parsed, err := strconv.Atoi(query.Get("n"))
		if err != nil {
			requested = p.max
			lastName = ""
		} else {
			requested = parsed
		}
	}
	limit = clamp(requested, p.max)
	lastName = strings.TrimSpace(lastName)

	pageLimit := limit
	finish = func(results []Named, hasMore bool, w http.ResponseWriter) {
		if !hasMore || len(results) == 0 {
			return
		}

		params := url.Values{}
		params.Set("n", strconv.Itoa(pageLimit))
		params.Set("last", results[len(results)-1].PaginationName())
		w.Header().Set("Link", linkHeader(r, params))
	}

	return limit, lastName, finish
}

// clamp normalizes a requested page size into [1, max]. Out-of-range
// requests are normalized, never rejected.
func clamp(n, max int) int {
	if n > max {
		n = max
	}
	if n < 1 {
		n = 1
	}
	return n
}

// linkHeader builds the RFC 5988 continuation link for the request's
// own endpoint.
func linkHeader(r *http.Request, params url.Values) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return fmt.Sprintf(`<%s://%s%s?%s>; rel="next"`, scheme, r.Host, r.URL.Path, params.Encode())
}
