package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vonguard/quay/config"
	v2 "github.com/vonguard/quay/internal/api/v2"
	"github.com/vonguard/quay/internal/auth"
	"github.com/vonguard/quay/internal/dockerver"
	"github.com/vonguard/quay/internal/pagination"
	"github.com/vonguard/quay/internal/permissions"
	"github.com/vonguard/quay/internal/storage"
	"github.com/vonguard/quay/pkg/oci"
)

// stubAuth returns a fixed identity or error for every request.
type stubAuth struct {
	caller *auth.Context
	err    error
}

func (s *stubAuth) Authenticate(r *http.Request) (*auth.Context, error) {
	return s.caller, s.err
}

func newTestRouter(t *testing.T, authenticator auth.Authenticator) *Router {
	t.Helper()

	registry, err := storage.NewRegistry(storage.Options{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { registry.Close() })

	features := config.FeatureConfig{AnonymousAccess: true, AdvertiseV2: true}
	challenge := auth.Challenger{Realm: "r", Service: "s"}
	blacklist, err := dockerver.NewBlacklist("")
	require.NoError(t, err)

	codec := pagination.NewTokenCodec("k")
	handler := v2.NewHandler(features, registry,
		permissions.NewResolver(features, registry),
		pagination.NewOffsetPaginator(100, codec),
		pagination.NewNamePaginator(100),
		challenge, blacklist)

	return NewRouter(handler, authenticator, challenge)
}

func TestRouterRejectsBadCredentials(t *testing.T) {
	rt := newTestRouter(t, &stubAuth{err: auth.ErrInvalidCredentials})

	w := httptest.NewRecorder()
	rt.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v2/_catalog", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.NotEmpty(t, w.Header().Get("WWW-Authenticate"))

	var resp oci.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, oci.ErrorCodeUnauthorized, resp.Errors[0].Code)
}

func TestRouterInjectsCallerIdentity(t *testing.T) {
	rt := newTestRouter(t, &stubAuth{caller: &auth.Context{Username: "alice"}})

	w := httptest.NewRecorder()
	rt.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v2/", nil))

	// An authenticated caller passes the version check without a
	// challenge.
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("WWW-Authenticate"))
}

func TestRouterHealth(t *testing.T) {
	rt := newTestRouter(t, &stubAuth{caller: auth.AnonymousContext()})

	for _, path := range []string{"/health", "/healthz"} {
		w := httptest.NewRecorder()
		rt.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestRouterUnknownPath(t *testing.T) {
	rt := newTestRouter(t, &stubAuth{caller: auth.AnonymousContext()})

	w := httptest.NewRecorder()
	rt.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
