package auth

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword(t *testing.T) {
	// sha256("admin123")
	assert.Equal(t, "240be518fabd2724ddb6f04eeb1da5967448d7e831c08c8fa822809f74c720a9", HashPassword("admin123"))
}

func TestDefaultCredentials(t *testing.T) {
	store, err := NewCredentialStore(DefaultCredentials())
	require.NoError(t, err)
	assert.Equal(t, 3, store.Len())

	admin, ok := store.Lookup("admin")
	require.True(t, ok)
	assert.Equal(t, "administrator", admin.Role)
	assert.Equal(t, []string{"*"}, admin.Permissions)

	guest, ok := store.Lookup("guest")
	require.True(t, ok)
	assert.Equal(t, []string{"data.query"}, guest.Permissions)
}

func TestCredentialStoreLookupReturnsCopy(t *testing.T) {
	store, err := NewCredentialStore(DefaultCredentials())
	require.NoError(t, err)

	c, _ := store.Lookup("admin")
	c.Permissions[0] = "none"
	again, _ := store.Lookup("admin")
	assert.Equal(t, []string{"*"}, again.Permissions)
}

func TestCredentialStoreIsolatedFromInput(t *testing.T) {
	records := DefaultCredentials()
	store, err := NewCredentialStore(records)
	require.NoError(t, err)

	records[0].Permissions[0] = "changed"
	c, _ := store.Lookup("admin")
	assert.Equal(t, []string{"*"}, c.Permissions)
}

func TestNewCredentialStoreValidation(t *testing.T) {
	tests := []struct {
		name    string
		records []Credential
	}{
		{"missing username", []Credential{{PasswordHash: "h", Role: "r"}}},
		{"missing hash", []Credential{{Username: "a", Role: "r"}}},
		{"missing role", []Credential{{Username: "a", PasswordHash: "h"}}},
		{"duplicate", []Credential{
			{Username: "a", PasswordHash: "h", Role: "r"},
			{Username: "a", PasswordHash: "h", Role: "r"},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCredentialStore(tt.records)
			assert.Error(t, err)
		})
	}
}

func TestLoadCredentialsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.yaml")
	content := `
users:
  - username: ops
    password_hash: ` + HashPassword("s3cret") + `
    role: operator
    permissions: [task.create, task.list]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	store, err := LoadCredentialsFile(path)
	require.NoError(t, err)
	c, ok := store.Lookup("ops")
	require.True(t, ok)
	assert.Equal(t, "operator", c.Role)
	assert.Equal(t, []string{"task.create", "task.list"}, c.Permissions)
}

func TestLoadCredentialsFileErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadCredentialsFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("users: []\n"), 0o600))
	_, err = LoadCredentialsFile(empty)
	assert.ErrorContains(t, err, "no users")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("users: [::"), 0o600))
	_, err = LoadCredentialsFile(bad)
	assert.Error(t, err)
}
