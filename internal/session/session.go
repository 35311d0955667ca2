// Package session caches an unlocked vault key for a short time so a client
// does not re-derive it on every operation.
package session

import (
	"sync"
	"time"

	"github.com/vetsin/code-jam-2025/internal/crypto"
)

// DefaultLifetime is how long an unlocked key stays usable.
const DefaultLifetime = 5 * time.Minute

// Token is a derived key plus the window in which it may be used.
type Token struct {
	Key       crypto.KeyMaterial
	CreatedAt time.Time
	Lifetime  time.Duration
}

func NewToken(key crypto.KeyMaterial, lifetime time.Duration, now time.Time) *Token {
	return &Token{Key: key, CreatedAt: now, Lifetime: lifetime}
}

// Expired reports whether the token is past its lifetime at now.
func (t *Token) Expired(now time.Time) bool {
	return now.Sub(t.CreatedAt) > t.Lifetime
}

// Credential identifies a vault and carries the write secret issued for it.
type Credential struct {
	VaultID string `json:"vault_id"`
	Secret  string `json:"vault_secret"`
	Server  string `json:"server,omitempty"`
}

// Cache holds at most one credential and its token. It has no authority of
// its own: every unseal still verifies the MAC.
type Cache struct {
	mu    sync.Mutex
	cred  *Credential
	token *Token
	now   func() time.Time
}

type Option func(*Cache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func NewCache(opts ...Option) *Cache {
	c := &Cache{now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns copies of the cached credential and token; the token's key is
// a clone the caller owns and should wipe. An expired token is dropped and
// its key wiped; the credential is kept so the vault id can be reused.
func (c *Cache) Get() (*Credential, *Token) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expireLocked()
	var cred *Credential
	if c.cred != nil {
		cp := *c.cred
		cred = &cp
	}
	if c.token == nil {
		return cred, nil
	}
	tok := *c.token
	tok.Key = c.token.Key.Clone()
	return cred, &tok
}

// Key returns a clone of the live key with the credential it unlocks. ok is
// false when no unexpired key is cached.
func (c *Cache) Key() (key crypto.KeyMaterial, cred *Credential, ok bool) {
	cred, tok := c.Get()
	if tok == nil {
		return nil, cred, false
	}
	if cred == nil {
		tok.Key.Wipe()
		return nil, nil, false
	}
	return tok.Key, cred, true
}

func (c *Cache) expireLocked() {
	if c.token != nil && c.token.Expired(c.now()) {
		c.token.Key.Wipe()
		c.token = nil
	}
}

// Set replaces the cached pair outright.
func (c *Cache) Set(cred *Credential, tok *Token) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != nil && c.token != tok {
		c.token.Key.Wipe()
	}
	c.cred, c.token = cred, tok
}

// Issue wraps key in a token created now and caches it with cred.
func (c *Cache) Issue(cred *Credential, key crypto.KeyMaterial, lifetime time.Duration) *Token {
	tok := NewToken(key, lifetime, c.now())
	c.Set(cred, tok)
	return tok
}

// Clear forgets everything and wipes the key.
func (c *Cache) Clear() {
	c.Set(nil, nil)
}
