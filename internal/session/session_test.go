package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vetsin/code-jam-2025/internal/crypto"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) Now() time.Time          { return f.t }
func (f *fakeClock) Advance(d time.Duration) { f.t = f.t.Add(d) }

func testKey(t *testing.T) crypto.KeyMaterial {
	k, err := crypto.DeriveKey([][]byte{[]byte("passcode")})
	require.NoError(t, err)
	return k
}

func TestTokenExpired(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	tok := NewToken(nil, time.Minute, start)
	assert.False(t, tok.Expired(start))
	assert.False(t, tok.Expired(start.Add(time.Minute)), "expiry is strictly after the lifetime")
	assert.True(t, tok.Expired(start.Add(time.Minute+time.Nanosecond)))
}

func TestCacheLazyExpiry(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	c := NewCache(WithClock(clock.Now))
	cred := &Credential{VaultID: "alice", Secret: "s3cret"}
	key := testKey(t)

	c.Issue(cred, key, 30*time.Second)
	gotCred, gotTok := c.Get()
	require.NotNil(t, gotTok)
	assert.Equal(t, cred, gotCred)

	clock.Advance(31 * time.Second)
	gotCred, gotTok = c.Get()
	assert.Nil(t, gotTok, "expired token must read as absent")
	assert.Equal(t, cred, gotCred, "credential survives token expiry")
	assert.Equal(t, make([]byte, len(key)), []byte(key), "expired key is wiped")
}

func TestCacheSetReplaces(t *testing.T) {
	c := NewCache()
	first := testKey(t)
	c.Issue(&Credential{VaultID: "a"}, first, time.Minute)

	second := testKey(t)
	c.Issue(&Credential{VaultID: "b"}, second, time.Minute)

	cred, tok := c.Get()
	require.NotNil(t, tok)
	assert.Equal(t, "b", cred.VaultID)
	assert.Equal(t, make([]byte, len(first)), []byte(first), "replaced key is wiped")
	assert.NotEqual(t, make([]byte, len(second)), []byte(tok.Key))

	c.Clear()
	cred, tok = c.Get()
	assert.Nil(t, cred)
	assert.Nil(t, tok)
}

func TestCacheSetWithoutToken(t *testing.T) {
	c := NewCache()
	c.Set(&Credential{VaultID: "known"}, nil)
	cred, tok := c.Get()
	assert.Nil(t, tok)
	assert.Equal(t, "known", cred.VaultID)
}

func TestCacheHandsOutClones(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	c := NewCache(WithClock(clock.Now))
	key := testKey(t)
	want := key.Clone()
	c.Issue(&Credential{VaultID: "alice", Secret: "s3cret"}, key, time.Minute)

	_, held := c.Get()
	require.NotNil(t, held)
	heldKey, heldCred, ok := c.Key()
	require.True(t, ok)
	assert.Equal(t, "alice", heldCred.VaultID)

	// expiry wipes the cached key, never what a caller already holds
	clock.Advance(2 * time.Minute)
	_, tok := c.Get()
	assert.Nil(t, tok)
	assert.Equal(t, make([]byte, len(key)), []byte(key))
	assert.Equal(t, []byte(want), []byte(held.Key))
	assert.Equal(t, []byte(want), []byte(heldKey))

	_, _, ok = c.Key()
	assert.False(t, ok)
}

func TestCacheReplaceKeepsHeldKey(t *testing.T) {
	c := NewCache()
	first := testKey(t)
	want := first.Clone()
	c.Issue(&Credential{VaultID: "a"}, first, time.Minute)
	held, _, ok := c.Key()
	require.True(t, ok)

	c.Issue(&Credential{VaultID: "b"}, testKey(t), time.Minute)
	assert.Equal(t, []byte(want), []byte(held))

	heldCred, _ := c.Get()
	heldCred.VaultID = "mutated"
	cred, _ := c.Get()
	assert.Equal(t, "b", cred.VaultID, "callers get a copy of the credential")
}
