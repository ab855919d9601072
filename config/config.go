package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the complete registry configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Auth       AuthConfig       `yaml:"auth"`
	Features   FeatureConfig    `yaml:"features"`
	Pagination PaginationConfig `yaml:"pagination"`
	Mirrors    []Mirror         `yaml:"mirrors"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Addr string    `yaml:"addr"`
	TLS  TLSConfig `yaml:"tls"`

	// BlacklistedVersions is a semver constraint matched against the
	// Docker client version extracted from the User-Agent. Matching
	// clients are turned away at the version-check endpoint.
	BlacklistedVersions string `yaml:"blacklisted_versions"`
}

// TLSConfig holds TLS certificate paths
type TLSConfig struct {
	Cert string `yaml:"cert"`
	Key  string `yaml:"key"`
}

// StorageConfig holds storage engine settings
type StorageConfig struct {
	Path string `yaml:"path"`

	// CacheSize is the number of repository records kept in the
	// in-memory lookup cache.
	CacheSize int `yaml:"cache_size"`

	// ReadOnly puts the registry into maintenance mode: reads succeed,
	// every write fails with a read-only error.
	ReadOnly bool `yaml:"read_only"`

	// TagQuota limits the number of tags per namespace. Zero means
	// unlimited.
	TagQuota int `yaml:"tag_quota"`
}

// AuthConfig holds authentication settings
type AuthConfig struct {
	Type         string `yaml:"type"` // "htpasswd", "none"
	HtpasswdFile string `yaml:"htpasswd_file"`

	// Realm and Service are advertised in WWW-Authenticate challenges.
	Realm   string `yaml:"realm"`
	Service string `yaml:"service"`

	Superusers               []string `yaml:"superusers"`
	GlobalReadonlySuperusers []string `yaml:"global_readonly_superusers"`

	// RestrictedUsersAllowlist names the users exempt from the
	// restricted-users feature. When the feature is on, every user not
	// listed here is restricted.
	RestrictedUsersAllowlist []string `yaml:"restricted_users_allowlist"`
}

// FeatureConfig holds process-wide feature flags. Flags are read at
// startup and never mutated afterwards.
type FeatureConfig struct {
	AnonymousAccess          bool `yaml:"anonymous_access"`
	RestrictedUsers          bool `yaml:"restricted_users"`
	SuperusersFullAccess     bool `yaml:"superusers_full_access"`
	GlobalReadonlySuperusers bool `yaml:"global_readonly_superusers"`
	AdvertiseV2              bool `yaml:"advertise_v2"`
}

// PaginationConfig holds list-endpoint pagination settings
type PaginationConfig struct {
	// MaxPageSize caps the page size a client may request. Values below
	// 100 are raised to 100.
	MaxPageSize int `yaml:"max_page_size"`

	// TokenKey is the secret used to encrypt pagination cursors. Tokens
	// only survive restarts when the key is stable.
	TokenKey string `yaml:"token_key"`
}

// Mirror represents an upstream registry whose repositories are served
// through pull-through namespaces
type Mirror struct {
	Name     string `yaml:"name"`
	Upstream string `yaml:"upstream"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: ":5000",
		},
		Storage: StorageConfig{
			Path:      "/var/lib/quay",
			CacheSize: 10000,
		},
		Auth: AuthConfig{
			Type:    "none",
			Realm:   "Registry",
			Service: "registry",
		},
		Features: FeatureConfig{
			AnonymousAccess: true,
			AdvertiseV2:     true,
		},
		Pagination: PaginationConfig{
			MaxPageSize: 100,
		},
	}
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}

	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}

	if c.Auth.Type == "htpasswd" && c.Auth.HtpasswdFile == "" {
		return fmt.Errorf("auth.htpasswd_file is required for htpasswd auth")
	}

	// Serve at least 100 entries per page regardless of what is configured
	if c.Pagination.MaxPageSize < 100 {
		c.Pagination.MaxPageSize = 100
	}

	if c.Storage.CacheSize <= 0 {
		c.Storage.CacheSize = 10000
	}

	for _, m := range c.Mirrors {
		if m.Name == "" || m.Upstream == "" {
			return fmt.Errorf("mirrors require both name and upstream")
		}
	}

	return nil
}
