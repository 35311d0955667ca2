package main

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

const (
	genAlphabet   = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%^&*()-_=+[]{}"
	genDefaultLen = 20
	genMaxLen     = 256
)

// expandValue turns "gen:N" into N random characters and passes anything
// else through.
func expandValue(v string) (string, error) {
	if !strings.HasPrefix(v, "gen:") {
		return v, nil
	}
	n := genDefaultLen
	if rest := strings.TrimPrefix(v, "gen:"); rest != "" {
		if _, err := fmt.Sscanf(rest, "%d", &n); err != nil || n <= 0 || n > genMaxLen {
			return "", fmt.Errorf("bad generator length %q", rest)
		}
	}
	return genPassword(n)
}

func genPassword(n int) (string, error) {
	max := big.NewInt(int64(len(genAlphabet)))
	buf := make([]byte, n)
	for i := range buf {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = genAlphabet[idx.Int64()]
	}
	return string(buf), nil
}
