package crypto

import "errors"

var (
	// ErrEmptySeed is returned when a key is derived from no passcode bytes.
	ErrEmptySeed = errors.New("crypto: cannot derive a key from an empty seed")

	// ErrKeyTooShort is returned when key material is under MinKeySize bytes.
	ErrKeyTooShort = errors.New("crypto: key must be at least 256 bits")

	// ErrInvalidSignature is returned when a MAC does not verify.
	ErrInvalidSignature = errors.New("crypto: invalid signature")
)
