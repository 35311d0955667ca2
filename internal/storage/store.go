package storage

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/vetsin/code-jam-2025/internal/crypto"
)

const (
	// SecretBytes is the entropy of a vault secret; it is hex encoded.
	SecretBytes = 32

	// MaxIDLength bounds identifiers so they fit in a single file name.
	MaxIDLength = 200
)

// Record is the server-side unit of persistence. Secret must never leave
// the server except in the response to the create call.
type Record struct {
	ID      string
	Payload []byte
	Secret  string
}

// Store persists vault records. Implementations serialise all operations on
// one id and never block operations on a different id.
type Store interface {
	Exists(ctx context.Context, id string) (bool, error)
	// Create returns the new record, secret included.
	Create(ctx context.Context, id string) (Record, error)
	Read(ctx context.Context, id string) (Record, error)
	// Write verifies signed ([mac||payload]) against the vault secret and
	// replaces the stored payload with the verified bytes.
	Write(ctx context.Context, id string, signed []byte) error
	Delete(ctx context.Context, id string) error
}

// ValidateID performs the checks shared by every backend. An id must be a
// single local path segment; anything else fails with ErrPathTraversal so
// every backend accepts the same ids. FileStore adds a containment check on
// the resolved path.
func ValidateID(id string) error {
	if id == "" || len(id) > MaxIDLength || !utf8.ValidString(id) {
		return ErrInvalidID
	}
	for _, r := range id {
		if unicode.IsControl(r) {
			return ErrInvalidID
		}
	}
	if strings.ContainsAny(id, `/\`) || !filepath.IsLocal(id) || filepath.Base(id) != id {
		return ErrPathTraversal
	}
	return nil
}

// checkID runs ValidateID and tags a failure for op.
func checkID(op, id string) error {
	if err := ValidateID(id); err != nil {
		return newError(op, id, KindOf(err), err)
	}
	return nil
}

// NewSecret returns a fresh hex-encoded vault secret.
func NewSecret() (string, error) {
	b := make([]byte, SecretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Wrap(err, "read random secret")
	}
	return hex.EncodeToString(b), nil
}

// baseline is the payload a vault starts with: the secret's MAC over nothing.
// The first client write is then verified exactly like every later one.
func baseline(secret string) []byte {
	return crypto.Sign(nil, []byte(secret))
}

// authorize checks that signed carries a MAC made with secret and returns
// the payload under it.
func authorize(secret string, signed []byte) ([]byte, error) {
	return crypto.Verify(signed, []byte(secret))
}
