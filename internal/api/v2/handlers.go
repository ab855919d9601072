package v2

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/vonguard/quay/config"
	"github.com/vonguard/quay/internal/auth"
	"github.com/vonguard/quay/internal/dockerver"
	"github.com/vonguard/quay/internal/mirror"
	"github.com/vonguard/quay/internal/pagination"
	"github.com/vonguard/quay/internal/permissions"
	"github.com/vonguard/quay/internal/storage"
	"github.com/vonguard/quay/pkg/oci"
)

// Handler implements the version-check and listing endpoints of the
// registry v2 API. Every handler resolves permissions before doing any
// work; failures propagate up and are written once by the error
// boundary.
type Handler struct {
	features  config.FeatureConfig
	registry  *storage.Registry
	resolver  *permissions.Resolver
	offset    *pagination.OffsetPaginator
	names     *pagination.NamePaginator
	proxy     *mirror.Proxy // nil when no mirrors are configured
	challenge auth.Challenger
	blacklist *dockerver.Blacklist
}

// NewHandler creates a new v2 API handler
func NewHandler(features config.FeatureConfig, registry *storage.Registry, resolver *permissions.Resolver,
	offset *pagination.OffsetPaginator, names *pagination.NamePaginator,
	challenge auth.Challenger, blacklist *dockerver.Blacklist) *Handler {
	return &Handler{
		features:  features,
		registry:  registry,
		resolver:  resolver,
		offset:    offset,
		names:     names,
		challenge: challenge,
		blacklist: blacklist,
	}
}

// SetProxy sets the mirror proxy for pull-through namespaces
func (h *Handler) SetProxy(proxy *mirror.Proxy) {
	h.proxy = proxy
}

// Regex patterns for routing
var (
	repoNamePattern = `[a-z0-9]+(?:[._-][a-z0-9]+)*(?:/[a-z0-9]+(?:[._-][a-z0-9]+)*)*`

	tagsListRe = regexp.MustCompile(fmt.Sprintf(`^/v2/(%s)/tags/list$`, repoNamePattern))
)

// ServeHTTP routes requests to appropriate handlers
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	// API version check
	if path == "/v2/" || path == "/v2" {
		h.handleBase(w, r)
		return
	}

	// Catalog
	if path == "/v2/_catalog" {
		if err := h.handleCatalog(w, r); err != nil {
			WriteError(w, h.challenge, err)
		}
		return
	}

	// Tags list
	if matches := tagsListRe.FindStringSubmatch(path); matches != nil {
		if r.Method != http.MethodGet {
			WriteError(w, h.challenge, oci.ErrUnsupported("method not allowed"))
			return
		}
		namespace, name, ok := splitRepoPath(matches[1])
		if !ok {
			WriteError(w, h.challenge, oci.ErrNameInvalid())
			return
		}
		if err := h.handleListTags(w, r, namespace, name); err != nil {
			WriteError(w, h.challenge, err)
		}
		return
	}

	WriteError(w, h.challenge, oci.ErrNameUnknown())
}

// splitRepoPath splits a repository path into namespace and name.
// Repositories always live under a namespace.
func splitRepoPath(repo string) (namespace, name string, ok bool) {
	i := strings.Index(repo, "/")
	if i <= 0 || i == len(repo)-1 {
		return "", "", false
	}
	return repo[:i], repo[i+1:], true
}

// handleBase handles GET /v2/, the API support endpoint. Authenticated
// callers get a 200, anonymous callers a 401 with a bare challenge so
// clients know where to authenticate. Blacklisted client versions and
// hidden deployments get a 404.
func (h *Handler) handleBase(w http.ResponseWriter, r *http.Request) {
	if !h.features.AdvertiseV2 {
		http.NotFound(w, r)
		return
	}

	// Unidentifiable clients fail open and are assumed current.
	if h.blacklist.Matches(r.UserAgent()) {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Docker-Distribution-API-Version", "registry/2.0")

	caller := auth.FromContext(r.Context())
	if caller.Anonymous {
		w.Header().Set("WWW-Authenticate", h.challenge.Header("", nil))
		w.WriteHeader(http.StatusUnauthorized)
	}
	w.Write([]byte("true"))
}

// handleCatalog handles GET /v2/_catalog, listing the repositories
// visible to the caller with encrypted forward-only cursors.
func (h *Handler) handleCatalog(w http.ResponseWriter, r *http.Request) error {
	caller := auth.FromContext(r.Context())
	if caller.Anonymous && !h.features.AnonymousAccess {
		return oci.ErrUnauthorized("", nil)
	}

	limit, startID, _, finish := h.offset.Prepare(r)

	// Over-fetch by one so the callback can tell whether another page
	// exists.
	visible, err := h.registry.ListRepositories(r.Context(), startID, limit+1, h.visibleTo(r, caller))
	if err != nil {
		return err
	}

	page := visible
	if len(page) > limit {
		page = page[:limit]
	}

	entries := make([]pagination.Identified, len(visible))
	for i, repo := range visible {
		entries[i] = repo
	}
	finish(entries, w)

	names := make([]string, 0, len(page))
	for _, repo := range page {
		names = append(names, repo.FullName())
	}
	h.jsonResponse(w, http.StatusOK, oci.Catalog{Repositories: names})
	return nil
}

// visibleTo builds the catalog visibility predicate for a caller.
func (h *Handler) visibleTo(r *http.Request, caller *auth.Context) func(*storage.Repository) bool {
	return func(repo *storage.Repository) bool {
		if repo.Public {
			return true
		}
		if caller.Anonymous {
			return false
		}
		if caller.Superuser && h.features.SuperusersFullAccess {
			return true
		}
		role, err := h.registry.RepositoryRole(r.Context(), caller.Username, repo.Namespace, repo.Name)
		if err != nil {
			return false
		}
		return role != ""
	}
}

// handleListTags handles GET /v2/<name>/tags/list with plain last-name
// cursors per the OCI pagination contract.
func (h *Handler) handleListTags(w http.ResponseWriter, r *http.Request, namespace, name string) error {
	ctx := r.Context()

	repo, err := h.registry.LookupRepository(ctx, namespace, name)
	if err != nil {
		return err
	}

	// Mirrored namespaces materialize on first use, before the
	// permission check, so public upstream repos stay pullable.
	if repo == nil && h.proxy != nil && h.proxy.IsMirrored(namespace) {
		repo, err = h.proxy.SyncRepository(ctx, namespace, name)
		if err != nil {
			return err
		}
	}

	caller := auth.FromContext(ctx)
	req := permissions.ReadRequest(namespace, name)
	req.AllowForSuperuser = true
	req.DisallowForRestrictedUsers = true
	if err := h.resolver.Resolve(ctx, caller, req); err != nil {
		return err
	}

	if repo == nil {
		return oci.ErrNameUnknown()
	}
	if repo.Kind != storage.KindImage {
		return oci.ErrUnsupported(fmt.Sprintf("This repository is for managing %s and not container images.", repo.Kind))
	}

	wanted := r.URL.Query()["tag"]
	if len(wanted) > h.names.MaxPageSize() {
		return oci.ErrTooManyTagsRequested(fmt.Sprintf("at most %d tags may be requested", h.names.MaxPageSize()))
	}

	limit, last, finish := h.names.Prepare(r)

	var tags []storage.Tag
	if len(wanted) > 0 {
		all, err := h.registry.ListTags(ctx, namespace, name, last, 0)
		if err != nil {
			return err
		}
		wantedSet := make(map[string]bool, len(wanted))
		for _, t := range wanted {
			wantedSet[t] = true
		}
		for _, t := range all {
			if wantedSet[t.Name] {
				tags = append(tags, t)
			}
		}
	} else {
		tags, err = h.registry.ListTags(ctx, namespace, name, last, limit+1)
		if err != nil {
			return err
		}
	}

	hasMore := len(tags) > limit
	if hasMore {
		tags = tags[:limit]
	}

	entries := make([]pagination.Named, len(tags))
	for i, t := range tags {
		entries[i] = t
	}
	finish(entries, hasMore, w)

	tagNames := make([]string, 0, len(tags))
	for _, t := range tags {
		tagNames = append(tagNames, t.Name)
	}
	h.jsonResponse(w, http.StatusOK, oci.TagList{Name: namespace + "/" + name, Tags: tagNames})
	return nil
}

func (h *Handler) jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
