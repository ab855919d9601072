package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/vonguard/quay/pkg/digest"
)

// Registry is the repository directory and tag index, backed by
// BadgerDB. Repositories carry an ascending numeric id assigned at
// creation, which the catalog listing pages over; tags are indexed in
// name order for the OCI tag listing.
type Registry struct {
	db    *badger.DB
	seq   *badger.Sequence
	cache *LRUCache

	readOnly bool
	tagQuota int
}

// Key prefixes for different data types
const (
	prefixRepo   = "r:"  // r:<ns>/<name> -> Repository
	prefixRepoID = "ri:" // ri:<id, 16 hex digits> -> <ns>/<name>
	prefixTag    = "t:"  // t:<ns>/<name>:<tag> -> digest
	prefixGrant  = "g:"  // g:<ns>/<name>:<user> -> role
)

// Errors
var (
	ErrReadOnly         = errors.New("registry is read-only")
	ErrQuotaExceeded    = errors.New("tag quota exceeded on namespace")
	ErrRepositoryExists = errors.New("repository already exists")
	ErrTagNotFound      = errors.New("tag not found")
)

// Kind classifies what a repository holds.
type Kind string

const (
	KindImage       Kind = "image"
	KindApplication Kind = "application"
)

// Role is a grant level held by a user on a repository.
type Role string

const (
	RoleRead  Role = "read"
	RoleWrite Role = "write"
	RoleAdmin Role = "admin"
)

// Repository is the directory record for one namespace/name pair.
type Repository struct {
	ID        int64     `json:"id"`
	Namespace string    `json:"namespace"`
	Name      string    `json:"name"`
	Public    bool      `json:"public"`
	Kind      Kind      `json:"kind"`
	CreatedAt time.Time `json:"createdAt"`
}

// FullName returns the namespace/name label.
func (r *Repository) FullName() string {
	return r.Namespace + "/" + r.Name
}

// PaginationID returns the cursor id for offset pagination.
func (r *Repository) PaginationID() int64 {
	return r.ID
}

// Tag is one tag entry in a repository.
type Tag struct {
	Name   string        `json:"name"`
	Digest digest.Digest `json:"digest"`
}

// PaginationName returns the cursor name for tag pagination.
func (t Tag) PaginationName() string {
	return t.Name
}

// Options configures a Registry.
type Options struct {
	Path      string
	CacheSize int
	ReadOnly  bool
	TagQuota  int // tags allowed per namespace; 0 = unlimited
}

// NewRegistry opens the registry store
func NewRegistry(opts Options) (*Registry, error) {
	dbPath := filepath.Join(opts.Path, "registry")

	badgerOpts := badger.DefaultOptions(dbPath)
	badgerOpts.Logger = nil // Disable badger logging
	badgerOpts.SyncWrites = true
	badgerOpts.CompactL0OnClose = true

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("opening badger db: %w", err)
	}

	seq, err := db.GetSequence([]byte("seq:repo"), 64)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("opening repository id sequence: %w", err)
	}

	cacheSize := opts.CacheSize
	if cacheSize <= 0 {
		cacheSize = 10000
	}

	r := &Registry{
		db:       db,
		seq:      seq,
		cache:    NewLRUCache(cacheSize),
		readOnly: opts.ReadOnly,
		tagQuota: opts.TagQuota,
	}

	// Start background GC
	go r.runGC()

	return r, nil
}

// Close releases the id sequence and closes the database
func (r *Registry) Close() error {
	r.seq.Release()
	return r.db.Close()
}

// runGC periodically runs badger's garbage collection
func (r *Registry) runGC() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		for {
			err := r.db.RunValueLogGC(0.5)
			if err != nil {
				break
			}
		}
	}
}

// CreateRepository registers a new repository and assigns its id
func (r *Registry) CreateRepository(ctx context.Context, namespace, name string, public bool, kind Kind) (*Repository, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.readOnly {
		return nil, ErrReadOnly
	}

	id, err := r.seq.Next()
	if err != nil {
		return nil, fmt.Errorf("allocating repository id: %w", err)
	}

	repo := &Repository{
		ID:        int64(id) + 1, // ids start at 1
		Namespace: namespace,
		Name:      name,
		Public:    public,
		Kind:      kind,
		CreatedAt: time.Now(),
	}

	err = r.db.Update(func(txn *badger.Txn) error {
		key := []byte(prefixRepo + repo.FullName())
		if _, err := txn.Get(key); err == nil {
			return ErrRepositoryExists
		} else if err != badger.ErrKeyNotFound {
			return err
		}

		data, err := json.Marshal(repo)
		if err != nil {
			return err
		}
		if err := txn.Set(key, data); err != nil {
			return err
		}

		idKey := []byte(fmt.Sprintf("%s%016x", prefixRepoID, repo.ID))
		return txn.Set(idKey, []byte(repo.FullName()))
	})
	if err != nil {
		return nil, err
	}

	r.cache.Delete(repo.FullName())
	return repo, nil
}

// LookupRepository returns the repository record, or nil when the
// repository does not exist.
func (r *Registry) LookupRepository(ctx context.Context, namespace, name string) (*Repository, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fullName := namespace + "/" + name
	if cached, ok := r.cache.Get(fullName); ok {
		return cached.(*Repository), nil
	}

	var repo *Repository
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixRepo + fullName))
		if err == badger.ErrKeyNotFound {
			return nil
		} else if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			repo = &Repository{}
			return json.Unmarshal(val, repo)
		})
	})
	if err != nil {
		return nil, err
	}

	if repo != nil {
		r.cache.Set(fullName, repo)
	}
	return repo, nil
}

// ListRepositories returns up to limit repositories with id >= startID
// in ascending id order, keeping those the filter accepts. A nil filter
// accepts everything.
func (r *Registry) ListRepositories(ctx context.Context, startID int64, limit int, filter func(*Repository) bool) ([]*Repository, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if startID < 0 {
		startID = 0
	}

	var repos []*Repository
	prefix := []byte(prefixRepoID)
	start := []byte(fmt.Sprintf("%s%016x", prefixRepoID, startID))

	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchSize = 100
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(start); it.ValidForPrefix(prefix); it.Next() {
			var fullName []byte
			err := it.Item().Value(func(v []byte) error {
				fullName = append([]byte{}, v...)
				return nil
			})
			if err != nil {
				return err
			}

			item, err := txn.Get([]byte(prefixRepo + string(fullName)))
			if err == badger.ErrKeyNotFound {
				continue // stale id index entry
			} else if err != nil {
				return err
			}

			var repo Repository
			err = item.Value(func(val []byte) error {
				return json.Unmarshal(val, &repo)
			})
			if err != nil {
				return err
			}

			if filter != nil && !filter(&repo) {
				continue
			}

			repos = append(repos, &repo)
			if limit > 0 && len(repos) >= limit {
				break
			}
		}
		return nil
	})

	return repos, err
}

// SetGrant records a role grant for a user on a repository
func (r *Registry) SetGrant(ctx context.Context, namespace, name, username string, role Role) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.readOnly {
		return ErrReadOnly
	}

	key := prefixGrant + namespace + "/" + name + ":" + username
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), []byte(role))
	})
}

// RepositoryRole returns the role username holds on the repository, or
// the empty role when no grant exists. A user always holds the admin
// role on repositories in their own namespace.
func (r *Registry) RepositoryRole(ctx context.Context, username, namespace, name string) (Role, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if username == "" {
		return "", nil
	}
	if username == namespace {
		return RoleAdmin, nil
	}

	var role Role
	key := prefixGrant + namespace + "/" + name + ":" + username
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err == badger.ErrKeyNotFound {
			return nil
		} else if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			role = Role(val)
			return nil
		})
	})
	return role, err
}

// SetTag points a tag at a digest, enforcing the namespace tag quota
// for new tags. An empty digest is allowed for mirrored tags, which
// carry none.
func (r *Registry) SetTag(ctx context.Context, namespace, name, tag string, dgst digest.Digest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.readOnly {
		return ErrReadOnly
	}
	if dgst != "" {
		if err := dgst.Validate(); err != nil {
			return err
		}
	}

	key := []byte(prefixTag + namespace + "/" + name + ":" + tag)
	nsPrefix := []byte(prefixTag + namespace + "/")

	return r.db.Update(func(txn *badger.Txn) error {
		if r.tagQuota > 0 {
			if _, err := txn.Get(key); err == badger.ErrKeyNotFound {
				count, err := countPrefix(txn, nsPrefix)
				if err != nil {
					return err
				}
				if count >= r.tagQuota {
					return ErrQuotaExceeded
				}
			} else if err != nil {
				return err
			}
		}
		return txn.Set(key, []byte(dgst))
	})
}

// DeleteTag removes a tag
func (r *Registry) DeleteTag(ctx context.Context, namespace, name, tag string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.readOnly {
		return ErrReadOnly
	}

	key := []byte(prefixTag + namespace + "/" + name + ":" + tag)
	return r.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err == badger.ErrKeyNotFound {
			return ErrTagNotFound
		} else if err != nil {
			return err
		}
		return txn.Delete(key)
	})
}

// ListTags returns up to limit tags in name order, starting strictly
// after last. An empty last starts from the beginning.
func (r *Registry) ListTags(ctx context.Context, namespace, name, last string, limit int) ([]Tag, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefix := []byte(prefixTag + namespace + "/" + name + ":")
	start := prefix
	if last != "" {
		// Seek to the first key strictly greater than the cursor
		start = append(append([]byte{}, prefix...), []byte(last+"\x00")...)
	}

	var tags []Tag
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchSize = 100
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(start); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			tag := Tag{Name: string(item.Key()[len(prefix):])}
			err := item.Value(func(v []byte) error {
				tag.Digest = digest.Digest(v)
				return nil
			})
			if err != nil {
				return err
			}
			tags = append(tags, tag)
			if limit > 0 && len(tags) >= limit {
				break
			}
		}
		return nil
	})

	return tags, err
}

func countPrefix(txn *badger.Txn, prefix []byte) (int, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	count := 0
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		count++
	}
	return count, nil
}
