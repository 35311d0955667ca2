//go:build !unix

package storage

import (
	"context"

	"github.com/pkg/errors"
)

func acquireFileLock(context.Context, string) (func() error, error) {
	return nil, errors.New("storage: file locking requires a unix platform")
}
