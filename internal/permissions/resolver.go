// Package permissions decides whether an authenticated caller may act
// on a repository. The decision combines direct role grants, the
// public-visibility fallback, the restricted-user policy, and superuser
// overrides into a single allow/deny answer; handlers call Resolve
// before doing any work.
package permissions

import (
	"context"
	"fmt"
	"log"

	"github.com/vonguard/quay/config"
	"github.com/vonguard/quay/internal/auth"
	"github.com/vonguard/quay/internal/storage"
	"github.com/vonguard/quay/pkg/oci"
)

// Level is the access level a request requires.
type Level int

const (
	LevelRead Level = iota
	LevelWrite
	LevelAdmin
)

func (l Level) String() string {
	switch l {
	case LevelRead:
		return "read"
	case LevelWrite:
		return "write"
	default:
		return "admin"
	}
}

// Request describes one permission check.
type Request struct {
	Namespace string
	RepoName  string
	Level     Level

	// AllowPublic lets the check fall back to public visibility when no
	// grant applies.
	AllowPublic bool

	// AllowForSuperuser lets configured superusers pass when the
	// superusers-full-access feature is enabled.
	AllowForSuperuser bool

	// DisallowForRestrictedUsers denies restricted users acting on
	// their own namespace before any grant is consulted.
	DisallowForRestrictedUsers bool

	// Scopes are attached to the challenge built on denial.
	Scopes []string
}

// ReadRequest is the standard check for pull-side endpoints.
func ReadRequest(namespace, repoName string) Request {
	return Request{
		Namespace:   namespace,
		RepoName:    repoName,
		Level:       LevelRead,
		AllowPublic: true,
		Scopes:      []string{auth.ScopePull},
	}
}

// WriteRequest is the standard check for push-side endpoints.
func WriteRequest(namespace, repoName string) Request {
	return Request{
		Namespace: namespace,
		RepoName:  repoName,
		Level:     LevelWrite,
		Scopes:    []string{auth.ScopePull, auth.ScopePush},
	}
}

// AdminRequest is the standard check for repository administration.
func AdminRequest(namespace, repoName string) Request {
	return Request{
		Namespace: namespace,
		RepoName:  repoName,
		Level:     LevelAdmin,
		Scopes:    []string{auth.ScopePull, auth.ScopePush},
	}
}

// RegistryModel is the storage capability the resolver consults:
// repository visibility and per-user role grants.
type RegistryModel interface {
	LookupRepository(ctx context.Context, namespace, name string) (*storage.Repository, error)
	RepositoryRole(ctx context.Context, username, namespace, name string) (storage.Role, error)
}

// Resolver evaluates permission requests against the process-wide
// feature flags. It holds no mutable state and is safe for concurrent
// use.
type Resolver struct {
	features config.FeatureConfig
	model    RegistryModel
}

// NewResolver creates a resolver bound to the given feature flags and
// registry model.
func NewResolver(features config.FeatureConfig, model RegistryModel) *Resolver {
	return &Resolver{features: features, model: model}
}

// Resolve returns nil when the caller may proceed. On denial it returns
// an unauthorized error carrying the repository label and the scopes
// needed for the challenge; a public repository of the wrong artifact
// kind yields an unsupported error instead.
//
// The rules run in a fixed order and later rules are fallbacks reached
// only when earlier ones are inconclusive, not merely false.
func (r *Resolver) Resolve(ctx context.Context, caller *auth.Context, req Request) error {
	log.Printf("Checking %s permission for repo: %s/%s", req.Level, req.Namespace, req.RepoName)

	// Restricted-user policy runs before any grant is consulted so a
	// restricted user cannot leverage grants on their own namespace.
	if r.features.RestrictedUsers && req.DisallowForRestrictedUsers {
		if req.AllowPublic {
			repo, err := r.model.LookupRepository(ctx, req.Namespace, req.RepoName)
			if err != nil {
				return err
			}
			if repo == nil || !repo.Public {
				return oci.ErrUnauthorized("", nil)
			}
			if !r.features.AnonymousAccess {
				return oci.ErrUnauthorized("", nil)
			}
			// Public reads bypass the restricted-user denial entirely.
			return nil
		}

		if !caller.Anonymous && caller.Namespace() == req.Namespace {
			if caller.RestrictedUser && !caller.Superuser {
				return oci.ErrUnauthorizedDetail("Disallowed for restricted users.")
			}
		}
	}

	// Direct role grant
	granted, err := r.hasGrant(ctx, caller, req)
	if err != nil {
		return err
	}
	if granted {
		return nil
	}

	// Superusers' extra permissions
	if r.features.SuperusersFullAccess && req.AllowForSuperuser {
		if !caller.Anonymous && caller.Superuser {
			return nil
		}
	}

	repository := req.Namespace + "/" + req.RepoName
	if req.AllowPublic {
		repo, err := r.model.LookupRepository(ctx, req.Namespace, req.RepoName)
		if err != nil {
			return err
		}
		if repo == nil || !repo.Public {
			return oci.ErrUnauthorized(repository, req.Scopes)
		}

		if repo.Kind != storage.KindImage {
			msg := fmt.Sprintf("This repository is for managing %s and not container images.", repo.Kind)
			return oci.ErrUnsupported(msg)
		}

		if r.features.AnonymousAccess {
			return nil
		}

		// Public visibility implies a read scope, so read-only
		// superusers may pass even with anonymous access disabled.
		if req.Level == LevelRead && r.features.GlobalReadonlySuperusers {
			if !caller.Anonymous && caller.GlobalReadonlySuperuser {
				return nil
			}
		}

		return oci.ErrUnauthorized(repository, req.Scopes)
	}

	return oci.ErrUnauthorized(repository, req.Scopes)
}

func (r *Resolver) hasGrant(ctx context.Context, caller *auth.Context, req Request) (bool, error) {
	if caller.Anonymous {
		return false, nil
	}

	role, err := r.model.RepositoryRole(ctx, caller.Username, req.Namespace, req.RepoName)
	if err != nil {
		return false, err
	}
	if role == "" && caller.Robot() {
		// Robots fall back to their owning namespace's implicit role.
		role, err = r.model.RepositoryRole(ctx, caller.Namespace(), req.Namespace, req.RepoName)
		if err != nil {
			return false, err
		}
	}

	return roleSatisfies(role, req.Level), nil
}

func roleSatisfies(role storage.Role, level Level) bool {
	switch role {
	case storage.RoleAdmin:
		return true
	case storage.RoleWrite:
		return level <= LevelWrite
	case storage.RoleRead:
		return level == LevelRead
	default:
		return false
	}
}
