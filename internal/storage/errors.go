package storage

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/vetsin/code-jam-2025/internal/crypto"
)

var (
	ErrNotFound         = errors.New("storage: vault not found")
	ErrAlreadyExists    = errors.New("storage: vault already exists")
	ErrInvalidSignature = crypto.ErrInvalidSignature
	ErrPathTraversal    = errors.New("storage: id resolves outside the store root")
	ErrInvalidID        = errors.New("storage: invalid vault id")
	ErrStorageIO        = errors.New("storage: i/o failure")
	ErrLockTimeout      = errors.New("storage: timed out waiting for vault lock")
)

// Kind classifies a storage failure so callers can switch on it instead of
// chaining errors.Is checks.
type Kind int

const (
	KindOther Kind = iota
	KindNotFound
	KindAlreadyExists
	KindInvalidSignature
	KindPathTraversal
	KindInvalidID
	KindIO
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindAlreadyExists:
		return "already exists"
	case KindInvalidSignature:
		return "invalid signature"
	case KindPathTraversal:
		return "path traversal"
	case KindInvalidID:
		return "invalid id"
	case KindIO:
		return "i/o"
	default:
		return "other"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindNotFound:
		return ErrNotFound
	case KindAlreadyExists:
		return ErrAlreadyExists
	case KindInvalidSignature:
		return ErrInvalidSignature
	case KindPathTraversal:
		return ErrPathTraversal
	case KindInvalidID:
		return ErrInvalidID
	case KindIO:
		return ErrStorageIO
	default:
		return nil
	}
}

// Error is returned by every Store operation.
type Error struct {
	Op   string
	ID   string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage: %s %q: %v", e.Op, e.ID, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrStorageIO) match IO failures whose cause is an
// *os.PathError rather than the sentinel itself.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// KindOf reports the Kind of err, KindOther if it is not a storage failure.
func KindOf(err error) Kind {
	if err == nil {
		return KindOther
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	for _, k := range []Kind{KindNotFound, KindAlreadyExists, KindInvalidSignature, KindPathTraversal, KindInvalidID, KindIO} {
		if errors.Is(err, k.sentinel()) {
			return k
		}
	}
	return KindOther
}

func newError(op, id string, kind Kind, err error) error {
	if err == nil {
		err = kind.sentinel()
	}
	return &Error{Op: op, ID: id, Kind: kind, Err: err}
}

func ioError(op, id string, err error, msg string) error {
	return &Error{Op: op, ID: id, Kind: KindIO, Err: errors.Wrap(err, msg)}
}
