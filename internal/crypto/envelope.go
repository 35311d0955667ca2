package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
)

const (
	MACSize = sha256.Size  // 32 bytes
	IVSize  = aes.BlockSize // 16 bytes

	// Overhead is the number of bytes Seal adds to a payload.
	Overhead = MACSize + IVSize
)

// Seal encrypts payload with AES-CTR and signs it with HMAC-SHA256.
// The first half of key signs, the second half encrypts. Returned layout:
// [mac||iv||ciphertext], the mac covering iv||ciphertext.
func Seal(payload []byte, key KeyMaterial) ([]byte, error) {
	signKey, encKey, err := splitKey(key)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, fmt.Errorf("crypto: %w", err)
	}

	body := make([]byte, IVSize+len(payload))
	iv := body[:IVSize]
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("crypto: read iv: %w", err)
	}
	cipher.NewCTR(block, iv).XORKeyStream(body[IVSize:], payload)

	return Sign(body, signKey), nil
}

// Open verifies and decrypts data produced by Seal.
func Open(sealed []byte, key KeyMaterial) ([]byte, error) {
	signKey, encKey, err := splitKey(key)
	if err != nil {
		return nil, err
	}
	if len(sealed) < Overhead {
		return nil, ErrInvalidSignature
	}

	body, err := Verify(sealed, signKey)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, fmt.Errorf("crypto: %w", err)
	}
	iv, ct := body[:IVSize], body[IVSize:]
	pt := make([]byte, len(ct))
	cipher.NewCTR(block, iv).XORKeyStream(pt, ct)
	return pt, nil
}

// Sign returns [mac||data] where mac is HMAC-SHA256(key, data).
func Sign(data, key []byte) []byte {
	out := make([]byte, 0, MACSize+len(data))
	out = append(out, computeMAC(key, data)...)
	return append(out, data...)
}

// Verify checks a [mac||data] message in constant time and returns data.
func Verify(signed, key []byte) ([]byte, error) {
	if len(signed) < MACSize {
		return nil, ErrInvalidSignature
	}
	data := signed[MACSize:]
	expected := computeMAC(key, data)
	if subtle.ConstantTimeCompare(expected, signed[:MACSize]) != 1 {
		return nil, ErrInvalidSignature
	}
	return data, nil
}

func splitKey(key KeyMaterial) (signKey, encKey []byte, err error) {
	if len(key) < MinKeySize {
		return nil, nil, ErrKeyTooShort
	}
	half := len(key) / 2
	signKey, encKey = key[:half], key[half:]
	// AES takes 16, 24 or 32 byte keys; longer halves are truncated.
	switch {
	case len(encKey) >= 32:
		encKey = encKey[:32]
	case len(encKey) >= 24:
		encKey = encKey[:24]
	default:
		encKey = encKey[:16]
	}
	return signKey, encKey, nil
}

func computeMAC(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}
