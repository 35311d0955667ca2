package auth

import (
	"errors"
	"time"
)

var (
	ErrAdminDisabled = errors.New("admin api disabled")
	ErrBadPassword   = errors.New("invalid password")
)

const adminSubject = "admin"

// Admin authenticates the single operator account configured by password
// hash and mints tokens carrying RoleAdmin.
type Admin struct {
	hash   string
	signer *JWTSigner
}

// NewAdmin returns nil when hash is empty so callers can treat a nil *Admin
// as "admin routes disabled".
func NewAdmin(hash, issuer string, ttl time.Duration) (*Admin, error) {
	if hash == "" {
		return nil, nil
	}
	if err := ValidateHash(hash); err != nil {
		return nil, err
	}
	signer, err := NewEphemeralSigner(issuer, ttl)
	if err != nil {
		return nil, err
	}
	return &Admin{hash: hash, signer: signer}, nil
}

func (a *Admin) Login(password string) (LoginResponse, error) {
	if a == nil {
		return LoginResponse{}, ErrAdminDisabled
	}
	ok, err := VerifyPassword(password, a.hash)
	if err != nil {
		return LoginResponse{}, err
	}
	if !ok {
		return LoginResponse{}, ErrBadPassword
	}
	tok, exp, err := a.signer.IssueToken(adminSubject, []Role{RoleAdmin})
	if err != nil {
		return LoginResponse{}, err
	}
	return LoginResponse{Token: tok, ExpiresAt: exp}, nil
}

func (a *Admin) ParseAndValidate(tokenStr string) (*Claims, error) {
	if a == nil {
		return nil, ErrAdminDisabled
	}
	return a.signer.ParseAndValidate(tokenStr)
}
