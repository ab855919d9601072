package pagination

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo int64

func (f fakeRepo) PaginationID() int64 { return int64(f) }

type fakeTag string

func (f fakeTag) PaginationName() string { return string(f) }

func identified(ids ...int64) []Identified {
	out := make([]Identified, len(ids))
	for i, id := range ids {
		out[i] = fakeRepo(id)
	}
	return out
}

func named(names ...string) []Named {
	out := make([]Named, len(names))
	for i, n := range names {
		out[i] = fakeTag(n)
	}
	return out
}

func TestOffsetPrepareLimit(t *testing.T) {
	p := NewOffsetPaginator(100, NewTokenCodec("k"))

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"default is max", "", 100},
		{"in range", "n=25", 25},
		{"zero clamps to one", "n=0", 1},
		{"negative clamps to one", "n=-5", 1},
		{"above max clamps to max", "n=600", 100},
		{"non-numeric clamps to one", "n=abc", 1},
		{"present but empty clamps to one", "n=", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := "/v2/_catalog"
			if tt.query != "" {
				target += "?" + tt.query
			}
			r := httptest.NewRequest(http.MethodGet, target, nil)

			limit, _, hasStart, _ := p.Prepare(r)
			assert.Equal(t, tt.want, limit)
			assert.False(t, hasStart)
		})
	}
}

func TestOffsetPrepareCursor(t *testing.T) {
	codec := NewTokenCodec("k")
	p := NewOffsetPaginator(100, codec)

	token, err := codec.Encode(&PageToken{StartID: 37})
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/v2/_catalog?next_page="+url.QueryEscape(token), nil)
	_, startID, hasStart, _ := p.Prepare(r)
	require.True(t, hasStart)
	assert.Equal(t, int64(37), startID)

	// last is accepted as an alias for next_page
	r = httptest.NewRequest(http.MethodGet, "/v2/_catalog?last="+url.QueryEscape(token), nil)
	_, startID, hasStart, _ = p.Prepare(r)
	require.True(t, hasStart)
	assert.Equal(t, int64(37), startID)
}

func TestOffsetPrepareNextPagePreferredOverLast(t *testing.T) {
	codec := NewTokenCodec("k")
	p := NewOffsetPaginator(100, codec)

	next, err := codec.Encode(&PageToken{StartID: 10})
	require.NoError(t, err)
	last, err := codec.Encode(&PageToken{StartID: 20})
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet,
		"/v2/_catalog?next_page="+url.QueryEscape(next)+"&last="+url.QueryEscape(last), nil)
	_, startID, hasStart, _ := p.Prepare(r)
	require.True(t, hasStart)
	assert.Equal(t, int64(10), startID)
}

func TestOffsetPrepareBadCursorIgnored(t *testing.T) {
	p := NewOffsetPaginator(100, NewTokenCodec("k"))

	r := httptest.NewRequest(http.MethodGet, "/v2/_catalog?next_page=garbage", nil)
	_, startID, hasStart, _ := p.Prepare(r)
	assert.False(t, hasStart)
	assert.Zero(t, startID)
}

func TestOffsetFinishEmitsLink(t *testing.T) {
	codec := NewTokenCodec("k")
	p := NewOffsetPaginator(100, codec)

	r := httptest.NewRequest(http.MethodGet, "http://registry.local/v2/_catalog?n=3", nil)
	limit, _, _, finish := p.Prepare(r)
	require.Equal(t, 3, limit)

	// Four results against a limit of three means another page exists.
	w := httptest.NewRecorder()
	finish(identified(5, 9, 2, 7), w)

	link := w.Header().Get("Link")
	require.NotEmpty(t, link)
	assert.True(t, strings.HasPrefix(link, "<http://registry.local/v2/_catalog?"))
	assert.True(t, strings.HasSuffix(link, `>; rel="next"`))

	u, err := url.Parse(strings.TrimSuffix(strings.TrimPrefix(link, "<"), `>; rel="next"`))
	require.NoError(t, err)
	assert.Equal(t, "3", u.Query().Get("n"))

	// The cursor is the highest id seen across all fetched results.
	decoded := codec.Decode(u.Query().Get("next_page"))
	require.NotNil(t, decoded)
	assert.Equal(t, int64(9), decoded.StartID)
}

func TestOffsetFinishNoLinkOnFinalPage(t *testing.T) {
	p := NewOffsetPaginator(100, NewTokenCodec("k"))

	r := httptest.NewRequest(http.MethodGet, "/v2/_catalog?n=3", nil)
	_, _, _, finish := p.Prepare(r)

	w := httptest.NewRecorder()
	finish(identified(1, 2, 3), w)
	assert.Empty(t, w.Header().Get("Link"))

	w = httptest.NewRecorder()
	finish(nil, w)
	assert.Empty(t, w.Header().Get("Link"))
}

func TestNamePrepare(t *testing.T) {
	p := NewNamePaginator(100)

	tests := []struct {
		name      string
		query     string
		wantLimit int
		wantLast  string
	}{
		{"defaults", "", 100, ""},
		{"n and last", "n=10&last=v1.4", 10, "v1.4"},
		{"last is trimmed", "n=10&last=%20v1.4%20", 10, "v1.4"},
		{"zero clamps to one", "n=0", 1, ""},
		{"above max clamps to max", "n=5000", 100, ""},
		{"bad n drops the cursor too", "n=abc&last=v1.4", 100, ""},
		{"empty n drops the cursor too", "n=&last=v1.4", 100, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/v2/ns/repo/tags/list?"+tt.query, nil)
			limit, last, _ := p.Prepare(r)
			assert.Equal(t, tt.wantLimit, limit)
			assert.Equal(t, tt.wantLast, last)
		})
	}
}

func TestNameFinishEmitsLink(t *testing.T) {
	p := NewNamePaginator(100)

	r := httptest.NewRequest(http.MethodGet, "http://registry.local/v2/ns/repo/tags/list?n=2", nil)
	_, _, finish := p.Prepare(r)

	w := httptest.NewRecorder()
	finish(named("v1.0", "v1.1"), true, w)

	link := w.Header().Get("Link")
	require.NotEmpty(t, link)

	u, err := url.Parse(strings.TrimSuffix(strings.TrimPrefix(link, "<"), `>; rel="next"`))
	require.NoError(t, err)
	assert.Equal(t, "/v2/ns/repo/tags/list", u.Path)
	assert.Equal(t, "2", u.Query().Get("n"))
	assert.Equal(t, "v1.1", u.Query().Get("last"))
}

func TestNameFinishNoLinkWhenExhausted(t *testing.T) {
	p := NewNamePaginator(100)

	r := httptest.NewRequest(http.MethodGet, "/v2/ns/repo/tags/list?n=2", nil)
	_, _, finish := p.Prepare(r)

	w := httptest.NewRecorder()
	finish(named("v1.0"), false, w)
	assert.Empty(t, w.Header().Get("Link"))

	w = httptest.NewRecorder()
	finish(nil, true, w)
	assert.Empty(t, w.Header().Get("Link"))
}
