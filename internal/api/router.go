package api

import (
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	v2 "github.com/vonguard/quay/internal/api/v2"
	"github.com/vonguard/quay/internal/auth"
	"github.com/vonguard/quay/pkg/oci"
)

// Router is the main HTTP router. It establishes the caller identity
// once per request and hands it to the v2 handlers through the request
// context.
type Router struct {
	v2Handler *v2.Handler
	auth      auth.Authenticator
	challenge auth.Challenger
}

// NewRouter creates a new router
func NewRouter(v2Handler *v2.Handler, authenticator auth.Authenticator, challenge auth.Challenger) *Router {
	return &Router{
		v2Handler: v2Handler,
		auth:      authenticator,
		challenge: challenge,
	}
}

// ServeHTTP implements http.Handler
func (rt *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	start := time.Now()

	// Wrap response writer to capture status
	wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

	// Authentication: bad credentials are rejected here; requests
	// without credentials proceed as anonymous.
	caller, err := rt.auth.Authenticate(req)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			v2.WriteError(wrapped, rt.challenge, oci.ErrUnauthorized("", nil))
		} else {
			v2.WriteError(wrapped, rt.challenge, err)
		}
		rt.logRequest(req, wrapped.status, time.Since(start))
		return
	}
	req = req.WithContext(auth.NewContext(req.Context(), caller))

	// Route to appropriate handler
	path := req.URL.Path

	switch {
	case strings.HasPrefix(path, "/v2"):
		rt.v2Handler.ServeHTTP(wrapped, req)

	case path == "/health" || path == "/healthz":
		rt.handleHealth(wrapped, req)

	default:
		http.NotFound(wrapped, req)
	}

	rt.logRequest(req, wrapped.status, time.Since(start))
}

func (rt *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}

func (rt *Router) logRequest(req *http.Request, status int, duration time.Duration) {
	log.Printf("%s %s %d %v", req.Method, req.URL.Path, status, duration)
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
