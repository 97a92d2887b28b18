package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// AllPermissions grants every permission.
const AllPermissions = "*"

// Credential is one user record. Password is stored only as a precomputed hash.
type Credential struct {
	Username     string   `yaml:"username"`
	PasswordHash string   `yaml:"password_hash"`
	Role         string   `yaml:"role"`
	Permissions  []string `yaml:"permissions"`
}

// CredentialStore is a read-only username → credential mapping.
type CredentialStore struct {
	users map[string]Credential
}

// NewCredentialStore validates records and builds an immutable store.
func NewCredentialStore(records []Credential) (*CredentialStore, error) {
	users := make(map[string]Credential, len(records))
	for i, c := range records {
		c.Username = strings.TrimSpace(c.Username)
		if c.Username == "" {
			return nil, fmt.Errorf("users[%d]: username is required", i)
		}
		if _, dup := users[c.Username]; dup {
			return nil, fmt.Errorf("users[%d]: duplicate username %q", i, c.Username)
		}
		if c.PasswordHash == "" {
			return nil, fmt.Errorf("users[%d]: password_hash is required for %q", i, c.Username)
		}
		if c.Role == "" {
			return nil, fmt.Errorf("users[%d]: role is required for %q", i, c.Username)
		}
		c.Permissions = slices.Clone(c.Permissions)
		users[c.Username] = c
	}
	return &CredentialStore{users: users}, nil
}

// Lookup returns a copy of the credential for username.
func (s *CredentialStore) Lookup(username string) (Credential, bool) {
	c, ok := s.users[username]
	if !ok {
		return Credential{}, false
	}
	c.Permissions = slices.Clone(c.Permissions)
	return c, true
}

// Len returns the number of users.
func (s *CredentialStore) Len() int {
	return len(s.users)
}

type credentialsFile struct {
	Users []Credential `yaml:"users"`
}

// LoadCredentialsFile reads a YAML users file.
func LoadCredentialsFile(path string) (*CredentialStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}

	var f credentialsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse credentials file %s: %w", path, err)
	}
	if len(f.Users) == 0 {
		return nil, fmt.Errorf("credentials file %s defines no users", path)
	}
	return NewCredentialStore(f.Users)
}

// HashPassword returns the lowercase hex SHA-256 that clients send as "password".
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// DefaultCredentials are the built-in demo users used when no file is configured.
func DefaultCredentials() []Credential {
	return []Credential{
		{
			Username:     "admin",
			PasswordHash: HashPassword("admin123"),
			Role:         "administrator",
			Permissions:  []string{AllPermissions},
		},
		{
			Username:     "user",
			PasswordHash: HashPassword("user123"),
			Role:         "user",
			Permissions:  []string{"data.import", "data.query", "analysis.execute", "report.generate"},
		},
		{
			Username:     "guest",
			PasswordHash: HashPassword("guest123"),
			Role:         "guest",
			Permissions:  []string{"data.query"},
		},
	}
}
