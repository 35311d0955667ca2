package crypto

import (
	"hash"

	"golang.org/x/crypto/blake2b"
)

const (
	// KeySize is the length of derived key material (BLAKE2b-512).
	KeySize = blake2b.Size

	// MinKeySize is the smallest key Seal and Open accept.
	MinKeySize = 32

	// saltSize and domainSize mirror the BLAKE2b salt/personalization widths.
	saltSize   = 16
	domainSize = 16
)

const (
	// DefaultSalt is used when no salt is configured on a Deriver.
	DefaultSalt = "Deriver"

	// DefaultDomain separates vault keys from keys derived for other purposes.
	DefaultDomain = "vault"
)

// KeyMaterial is derived symmetric key bytes. Never persist it.
type KeyMaterial []byte

// Wipe zeroes the key in place.
func (k KeyMaterial) Wipe() {
	unlockMemory(k)
	Zero(k)
}

// Clone returns an independent copy of k.
func (k KeyMaterial) Clone() KeyMaterial {
	return append(KeyMaterial(nil), k...)
}

type DeriverOption func(*Deriver)

// WithSalt overrides DefaultSalt. Only the first 16 bytes are used.
func WithSalt(salt []byte) DeriverOption {
	return func(d *Deriver) { d.salt = salt }
}

// WithDomain overrides DefaultDomain. Only the first 16 bytes are used.
func WithDomain(domain []byte) DeriverOption {
	return func(d *Deriver) { d.domain = domain }
}

// Deriver turns one or more passcode chunks into KeyMaterial. Chunks are
// hashed incrementally, so the same ordered chunks always give the same key.
type Deriver struct {
	salt   []byte
	domain []byte
	h      hash.Hash
	seeded bool
}

func NewDeriver(opts ...DeriverOption) *Deriver {
	d := &Deriver{
		salt:   []byte(DefaultSalt),
		domain: []byte(DefaultDomain),
	}
	for _, opt := range opts {
		opt(d)
	}

	// salt and domain occupy fixed-width slots of the BLAKE2b key so that
	// ("ab", "cvault") and ("abc", "vault") cannot collide.
	key := make([]byte, saltSize+domainSize)
	copy(key[:saltSize], d.salt)
	copy(key[saltSize:], d.domain)
	h, err := blake2b.New512(key)
	if err != nil {
		// only possible with a key over 64 bytes
		panic(err)
	}
	d.h = h
	return d
}

// Seed feeds one passcode chunk into the hash.
func (d *Deriver) Seed(chunk []byte) error {
	if len(chunk) == 0 {
		return ErrEmptySeed
	}
	d.h.Write(chunk)
	d.seeded = true
	return nil
}

// Key returns the 512-bit key for everything seeded so far. Seeding may
// continue afterwards.
func (d *Deriver) Key() (KeyMaterial, error) {
	if !d.seeded {
		return nil, ErrEmptySeed
	}
	k := KeyMaterial(d.h.Sum(nil))
	_ = lockMemory(k)
	return k, nil
}

// DeriveKey derives a key from the given chunks in order.
func DeriveKey(chunks [][]byte, opts ...DeriverOption) (KeyMaterial, error) {
	d := NewDeriver(opts...)
	for _, c := range chunks {
		if err := d.Seed(c); err != nil {
			return nil, err
		}
	}
	return d.Key()
}
