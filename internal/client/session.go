package client

import (
	"context"
	"errors"

	"github.com/vetsin/code-jam-2025/internal/crypto"
	"github.com/vetsin/code-jam-2025/internal/session"
	"github.com/vetsin/code-jam-2025/internal/vault"
)

// Session unlocks one vault at a time and keeps its key in a session.Cache
// until the vault's lock policy expires it.
type Session struct {
	c     *Client
	cache *session.Cache
}

func NewSession(c *Client, cache *session.Cache) *Session {
	if cache == nil {
		cache = session.NewCache()
	}
	return &Session{c: c, cache: cache}
}

// Unlock derives the key from passcode, fetches the vault and decrypts it.
// A vault that has never been saved holds only the creation baseline and
// unlocks as empty.
func (s *Session) Unlock(ctx context.Context, cred session.Credential, passcode []byte) (*vault.Vault, error) {
	key, err := crypto.DeriveKey([][]byte{passcode})
	if err != nil {
		return nil, err
	}

	payload, err := s.c.Fetch(ctx, cred.VaultID)
	if err != nil {
		key.Wipe()
		return nil, err
	}

	var v *vault.Vault
	if data, verr := crypto.Verify(payload, []byte(cred.Secret)); verr == nil && len(data) == 0 {
		v = vault.New()
	} else if v, err = vault.Decrypt(payload, key); err != nil {
		key.Wipe()
		return nil, err
	}

	s.cache.Issue(&cred, key, v.Policy.LockAfter())
	return v, nil
}

// Save encrypts v under the cached key and pushes it. It fails with
// ErrLocked once the key has expired.
func (s *Session) Save(ctx context.Context, v *vault.Vault) error {
	key, cred, ok := s.cache.Key()
	if !ok {
		return ErrLocked
	}
	defer key.Wipe()

	sealed, err := vault.Encrypt(v, key)
	if err != nil {
		return err
	}
	return s.c.Push(ctx, cred.VaultID, sealed, cred.Secret)
}

// Unlocked reports whether a live key is cached.
func (s *Session) Unlocked() bool {
	key, _, ok := s.cache.Key()
	key.Wipe()
	return ok
}

func (s *Session) Lock() { s.cache.Clear() }

// IsWrongPasscode reports whether err means the payload did not open under
// the derived key, as opposed to a transport or server failure.
func IsWrongPasscode(err error) bool {
	var apiErr *APIError
	return errors.Is(err, crypto.ErrInvalidSignature) && !errors.As(err, &apiErr)
}
