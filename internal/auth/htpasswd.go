package auth

import (
	"bufio"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/vonguard/quay/config"
)

// ErrInvalidCredentials is returned when an Authorization header is
// present but does not verify.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Authenticator establishes the caller identity for a request. A
// request without credentials yields the anonymous identity, not an
// error.
type Authenticator interface {
	Authenticate(r *http.Request) (*Context, error)
}

// Directory classifies authenticated users using the process-wide
// account lists from the configuration.
type Directory struct {
	features            config.FeatureConfig
	superusers          map[string]bool
	globalReadonly      map[string]bool
	restrictedAllowlist map[string]bool
}

// NewDirectory builds a user directory from configuration.
func NewDirectory(cfg *config.Config) *Directory {
	return &Directory{
		features:            cfg.Features,
		superusers:          toSet(cfg.Auth.Superusers),
		globalReadonly:      toSet(cfg.Auth.GlobalReadonlySuperusers),
		restrictedAllowlist: toSet(cfg.Auth.RestrictedUsersAllowlist),
	}
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

// IsSuperuser reports whether username is a configured superuser.
func (d *Directory) IsSuperuser(username string) bool {
	return d.superusers[username]
}

// IsGlobalReadonlySuperuser reports whether username holds read-only
// access across all repositories.
func (d *Directory) IsGlobalReadonlySuperuser(username string) bool {
	return d.globalReadonly[username]
}

// IsRestrictedUser reports whether username is subject to the
// restricted-user policy. When the feature is enabled every user not on
// the allowlist is restricted; robot accounts follow their owning
// namespace.
func (d *Directory) IsRestrictedUser(username string) bool {
	if !d.features.RestrictedUsers {
		return false
	}
	if i := strings.Index(username, "+"); i >= 0 {
		username = username[:i]
	}
	return !d.restrictedAllowlist[username]
}

// ContextFor builds the immutable caller identity for username.
func (d *Directory) ContextFor(username string) *Context {
	return &Context{
		Username:                username,
		Superuser:               d.IsSuperuser(username),
		GlobalReadonlySuperuser: d.IsGlobalReadonlySuperuser(username),
		RestrictedUser:          d.IsRestrictedUser(username),
	}
}

// HtpasswdAuth implements htpasswd-based authentication
type HtpasswdAuth struct {
	users     map[string]string // username -> hashed password
	mu        sync.RWMutex
	filePath  string
	directory *Directory
}

// NewHtpasswdAuth creates a new htpasswd authenticator
func NewHtpasswdAuth(filePath string, directory *Directory) (*HtpasswdAuth, error) {
	auth := &HtpasswdAuth{
		users:     make(map[string]string),
		filePath:  filePath,
		directory: directory,
	}

	if err := auth.load(); err != nil {
		return nil, err
	}

	return auth, nil
}

// load reads the htpasswd file
func (a *HtpasswdAuth) load() error {
	f, err := os.Open(a.filePath)
	if err != nil {
		return fmt.Errorf("opening htpasswd file: %w", err)
	}
	defer f.Close()

	a.mu.Lock()
	defer a.mu.Unlock()

	a.users = make(map[string]string)
	scanner := bufio.NewScanner(f)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}

		username := parts[0]
		password := parts[1]
		a.users[username] = password
	}

	return scanner.Err()
}

// Reload reloads the htpasswd file
func (a *HtpasswdAuth) Reload() error {
	return a.load()
}

// Authenticate checks the request for valid credentials. A request
// without an Authorization header is anonymous.
func (a *HtpasswdAuth) Authenticate(r *http.Request) (*Context, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return AnonymousContext(), nil
	}

	// Parse Basic auth
	if !strings.HasPrefix(header, "Basic ") {
		return nil, ErrInvalidCredentials
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(header, "Basic "))
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	parts := strings.SplitN(string(decoded), ":", 2)
	if len(parts) != 2 {
		return nil, ErrInvalidCredentials
	}

	username := parts[0]
	password := parts[1]

	if !a.verify(username, password) {
		return nil, ErrInvalidCredentials
	}

	return a.directory.ContextFor(username), nil
}

// verify checks username/password against stored credentials
func (a *HtpasswdAuth) verify(username, password string) bool {
	a.mu.RLock()
	stored, ok := a.users[username]
	a.mu.RUnlock()

	if !ok {
		return false
	}

	return checkPassword(password, stored)
}

// checkPassword verifies a password against various htpasswd hash formats
func checkPassword(password, stored string) bool {
	// Bcrypt (starts with $2a$, $2b$, or $2y$)
	if strings.HasPrefix(stored, "$2") {
		err := bcrypt.CompareHashAndPassword([]byte(stored), []byte(password))
		return err == nil
	}

	// SHA1 ({SHA}base64hash)
	if strings.HasPrefix(stored, "{SHA}") {
		hash := sha1.Sum([]byte(password))
		expected := "{SHA}" + base64.StdEncoding.EncodeToString(hash[:])
		return subtle.ConstantTimeCompare([]byte(expected), []byte(stored)) == 1
	}

	// Plain text (not recommended but supported)
	if !strings.Contains(stored, "$") && !strings.HasPrefix(stored, "{") {
		return subtle.ConstantTimeCompare([]byte(password), []byte(stored)) == 1
	}

	return false
}

// NoAuth treats every request as anonymous.
type NoAuth struct{}

// Authenticate always returns the anonymous identity.
func (a *NoAuth) Authenticate(r *http.Request) (*Context, error) {
	return AnonymousContext(), nil
}
