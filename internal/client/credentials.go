package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vetsin/code-jam-2025/internal/session"
)

// Credentials is the on-disk record of vaults this machine created. The
// secret is the only write authority for a vault and cannot be recovered
// from the server, so the file is kept 0600.
type Credentials struct {
	Default string                        `json:"default,omitempty"`
	Vaults  map[string]session.Credential `json:"vaults"`
}

var ErrNoCredential = errors.New("client: no saved credential for vault")

func DefaultCredentialsPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "vaultctl", "credentials.json"), nil
}

// LoadCredentials returns an empty set when path does not exist.
func LoadCredentials(path string) (*Credentials, error) {
	creds := &Credentials{Vaults: map[string]session.Credential{}}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return creds, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, creds); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if creds.Vaults == nil {
		creds.Vaults = map[string]session.Credential{}
	}
	return creds, nil
}

func (c *Credentials) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (c *Credentials) Put(cred session.Credential) {
	c.Vaults[cred.VaultID] = cred
	if c.Default == "" {
		c.Default = cred.VaultID
	}
}

// Get looks id up, falling back to the default vault when id is empty.
func (c *Credentials) Get(id string) (session.Credential, error) {
	if id == "" {
		id = c.Default
	}
	cred, ok := c.Vaults[id]
	if !ok {
		return session.Credential{}, fmt.Errorf("%w: %q", ErrNoCredential, id)
	}
	return cred, nil
}
