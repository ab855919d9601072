package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/vonguard/quay/config"
	"github.com/vonguard/quay/internal/storage"
	"github.com/vonguard/quay/pkg/oci"
)

// UpstreamError reports a failed fetch from an upstream registry. It is
// surfaced to the client as an invalid-request error at the boundary.
type UpstreamError struct {
	Upstream string
	Err      error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream registry %s: %v", e.Upstream, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Proxy serves mirrored namespaces by pulling tag listings from
// upstream registries on demand.
type Proxy struct {
	mirrors  map[string]*upstream
	registry *storage.Registry
	client   *http.Client
	misses   *storage.NegativeCache
	mu       sync.RWMutex
}

type upstream struct {
	name string
	url  string
}

// NewProxy creates a new mirror proxy
func NewProxy(cfg []config.Mirror, registry *storage.Registry) *Proxy {
	p := &Proxy{
		mirrors:  make(map[string]*upstream),
		registry: registry,
		misses:   storage.NewNegativeCache(1000, 5*time.Minute),
		client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}

	for _, m := range cfg {
		p.mirrors[m.Name] = &upstream{
			name: m.Name,
			url:  trimSlash(m.Upstream),
		}
	}

	return p
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

// IsMirrored returns true if the namespace matches a configured mirror
func (p *Proxy) IsMirrored(namespace string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	_, ok := p.mirrors[namespace]
	return ok
}

// SyncRepository fetches the upstream tag listing for a mirrored
// repository and materializes it locally as a public image repository.
// Upstream failures come back as *UpstreamError; an upstream 404 is
// remembered briefly to avoid hammering the upstream.
func (p *Proxy) SyncRepository(ctx context.Context, namespace, name string) (*storage.Repository, error) {
	p.mu.RLock()
	up, ok := p.mirrors[namespace]
	p.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown mirror: %s", namespace)
	}

	fullName := namespace + "/" + name
	if p.misses.IsNotFound(fullName) {
		return nil, nil
	}

	url := fmt.Sprintf("%s/v2/%s/tags/list", up.url, name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &UpstreamError{Upstream: up.name, Err: err}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &UpstreamError{Upstream: up.name, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		p.misses.MarkNotFound(fullName)
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &UpstreamError{Upstream: up.name, Err: fmt.Errorf("upstream returned %d", resp.StatusCode)}
	}

	var tagList oci.TagList
	if err := json.NewDecoder(resp.Body).Decode(&tagList); err != nil {
		return nil, &UpstreamError{Upstream: up.name, Err: fmt.Errorf("decoding tag list: %w", err)}
	}

	repo, err := p.registry.LookupRepository(ctx, namespace, name)
	if err != nil {
		return nil, err
	}
	if repo == nil {
		repo, err = p.registry.CreateRepository(ctx, namespace, name, true, storage.KindImage)
		if err != nil {
			return nil, err
		}
	}

	for _, tag := range tagList.Tags {
		if err := p.registry.SetTag(ctx, namespace, name, tag, ""); err != nil {
			return nil, err
		}
	}

	log.Printf("Synced %d tags for mirrored repo %s", len(tagList.Tags), fullName)
	return repo, nil
}
