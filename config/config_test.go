package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":8443"
  blacklisted_versions: "<1.6.0"
storage:
  path: /tmp/registry-test
  read_only: true
  tag_quota: 50
auth:
  type: none
  superusers: [root]
features:
  anonymous_access: false
  restricted_users: true
pagination:
  max_page_size: 500
  token_key: secret
mirrors:
  - name: dockerhub
    upstream: https://registry-1.docker.io
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":8443", cfg.Server.Addr)
	assert.Equal(t, "<1.6.0", cfg.Server.BlacklistedVersions)
	assert.True(t, cfg.Storage.ReadOnly)
	assert.Equal(t, 50, cfg.Storage.TagQuota)
	assert.Equal(t, []string{"root"}, cfg.Auth.Superusers)
	assert.False(t, cfg.Features.AnonymousAccess)
	assert.True(t, cfg.Features.RestrictedUsers)
	assert.Equal(t, 500, cfg.Pagination.MaxPageSize)
	assert.Equal(t, "secret", cfg.Pagination.TokenKey)
	require.Len(t, cfg.Mirrors, 1)
	assert.Equal(t, "dockerhub", cfg.Mirrors[0].Name)
}

func TestLoadKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `
storage:
  path: /tmp/registry-test
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":5000", cfg.Server.Addr)
	assert.True(t, cfg.Features.AnonymousAccess)
	assert.True(t, cfg.Features.AdvertiseV2)
	assert.Equal(t, 100, cfg.Pagination.MaxPageSize)
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("REGISTRY_TEST_PATH", "/srv/registry")
	path := writeConfig(t, `
storage:
  path: ${REGISTRY_TEST_PATH}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/registry", cfg.Storage.Path)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Run("htpasswd requires a file", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Auth.Type = "htpasswd"
		assert.Error(t, cfg.Validate())

		cfg.Auth.HtpasswdFile = "/etc/registry/htpasswd"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("page size floor", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Pagination.MaxPageSize = 10
		require.NoError(t, cfg.Validate())
		assert.Equal(t, 100, cfg.Pagination.MaxPageSize)

		cfg.Pagination.MaxPageSize = 500
		require.NoError(t, cfg.Validate())
		assert.Equal(t, 500, cfg.Pagination.MaxPageSize)
	})

	t.Run("mirror needs name and upstream", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Mirrors = []Mirror{{Name: "hub"}}
		assert.Error(t, cfg.Validate())
	})

	t.Run("addr required", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Server.Addr = ""
		assert.Error(t, cfg.Validate())
	})
}
