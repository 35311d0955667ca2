package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

type ArgonParams struct {
	Memory      uint32 // KiB
	Time        uint32
	Parallelism uint8
	SaltLen     int
	KeyLen      uint32
}

var DefaultArgon = ArgonParams{
	Memory:      64 * 1024,
	Time:        3,
	Parallelism: 1,
	SaltLen:     16,
	KeyLen:      32,
}

var ErrInvalidHash = errors.New("invalid password hash")

const hashPrefix = "argon2id$"

// HashPassword encodes as argon2id$m=<M>,t=<T>,p=<P>$<b64 salt>$<b64 key>.
// vaultctl hash-password prints this form for admin.password_hash.
func HashPassword(p ArgonParams, password string) (string, error) {
	if password == "" {
		return "", errors.New("empty password")
	}
	salt := make([]byte, p.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	key := argon2.IDKey([]byte(password), salt, p.Time, p.Memory, p.Parallelism, p.KeyLen)
	return fmt.Sprintf("%sm=%d,t=%d,p=%d$%s$%s", hashPrefix,
		p.Memory, p.Time, p.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

type parsedHash struct {
	params ArgonParams
	salt   []byte
	key    []byte
}

func parseHash(encoded string) (*parsedHash, error) {
	if !strings.HasPrefix(encoded, hashPrefix) {
		return nil, ErrInvalidHash
	}
	parts := strings.Split(encoded[len(hashPrefix):], "$")
	if len(parts) != 3 {
		return nil, ErrInvalidHash
	}

	var ph parsedHash
	if _, err := fmt.Sscanf(parts[0], "m=%d,t=%d,p=%d",
		&ph.params.Memory, &ph.params.Time, &ph.params.Parallelism); err != nil {
		return nil, ErrInvalidHash
	}
	if ph.params.Time == 0 || ph.params.Parallelism == 0 {
		return nil, ErrInvalidHash
	}

	var err error
	if ph.salt, err = base64.RawStdEncoding.DecodeString(parts[1]); err != nil || len(ph.salt) == 0 {
		return nil, ErrInvalidHash
	}
	if ph.key, err = base64.RawStdEncoding.DecodeString(parts[2]); err != nil || len(ph.key) == 0 {
		return nil, ErrInvalidHash
	}
	return &ph, nil
}

// ValidateHash reports whether encoded is a usable argon2id hash without
// running the KDF.
func ValidateHash(encoded string) error {
	_, err := parseHash(encoded)
	return err
}

func VerifyPassword(password, encoded string) (bool, error) {
	ph, err := parseHash(encoded)
	if err != nil {
		return false, err
	}
	p := ph.params
	key := argon2.IDKey([]byte(password), ph.salt, p.Time, p.Memory, p.Parallelism, uint32(len(ph.key)))
	return subtle.ConstantTimeCompare(key, ph.key) == 1, nil
}
