package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	secretSuffix = ".secret"
	lockSuffix   = ".lock"
	tempSuffix   = ".tmp"

	DefaultLockTimeout = 10 * time.Second
)

var reservedSuffixes = []string{secretSuffix, lockSuffix, tempSuffix}

// FileStore keeps one vault per id under root as {id}, {id}.secret and
// {id}.lock. Mutual exclusion is an advisory flock on {id}.lock, so it holds
// across processes and is dropped by the kernel if a holder dies.
type FileStore struct {
	root        string
	lockTimeout time.Duration
	logger      zerolog.Logger
}

type FileOption func(*FileStore)

// WithLockTimeout bounds how long an operation waits for a busy vault.
// Zero or negative waits until the context is done.
func WithLockTimeout(d time.Duration) FileOption {
	return func(s *FileStore) { s.lockTimeout = d }
}

func WithLogger(l zerolog.Logger) FileOption {
	return func(s *FileStore) { s.logger = l }
}

func NewFileStore(dir string, opts ...FileOption) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("storage: store directory is empty")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrapf(err, "create store directory %s", dir)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.Wrap(err, "resolve store directory")
	}
	root, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, errors.Wrap(err, "resolve store directory")
	}

	s := &FileStore{
		root:        root,
		lockTimeout: DefaultLockTimeout,
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Root is the resolved store directory.
func (s *FileStore) Root() string { return s.root }

type vaultPaths struct {
	payload string
	secret  string
	lock    string
}

// resolve maps id to its files. The resolved payload path must sit directly
// in root and carry id as its name; anything else is rejected before the
// filesystem is touched.
func (s *FileStore) resolve(op, id string) (vaultPaths, error) {
	if err := checkID(op, id); err != nil {
		return vaultPaths{}, err
	}
	p, err := filepath.Abs(filepath.Join(s.root, id))
	if err != nil {
		return vaultPaths{}, newError(op, id, KindInvalidID, err)
	}
	rel, err := filepath.Rel(s.root, p)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.Dir(p) != s.root {
		return vaultPaths{}, newError(op, id, KindPathTraversal, nil)
	}
	if rel != id {
		// the joined path no longer names id, so it would alias another vault
		return vaultPaths{}, newError(op, id, KindInvalidID, nil)
	}
	for _, suffix := range reservedSuffixes {
		if strings.HasSuffix(id, suffix) {
			return vaultPaths{}, newError(op, id, KindInvalidID, nil)
		}
	}
	return vaultPaths{payload: p, secret: p + secretSuffix, lock: p + lockSuffix}, nil
}

func (s *FileStore) Exists(ctx context.Context, id string) (bool, error) {
	p, err := s.resolve("exists", id)
	if err != nil {
		return false, err
	}
	return s.exists("exists", id, p)
}

func (s *FileStore) exists(op, id string, p vaultPaths) (bool, error) {
	for _, f := range []string{p.payload, p.secret} {
		_, err := os.Stat(f)
		if os.IsNotExist(err) {
			return false, nil
		}
		if err != nil {
			return false, ioError(op, id, err, "stat vault file")
		}
	}
	return true, nil
}

func (s *FileStore) Create(ctx context.Context, id string) (rec Record, err error) {
	const op = "create"
	p, err := s.resolve(op, id)
	if err != nil {
		return Record{}, err
	}
	if ok, err := s.exists(op, id, p); err != nil {
		return Record{}, err
	} else if ok {
		return Record{}, newError(op, id, KindAlreadyExists, nil)
	}

	unlock, err := s.lock(ctx, op, id, p)
	if err != nil {
		return Record{}, err
	}
	defer unlock()

	// a concurrent create may have won while we waited
	if ok, err := s.exists(op, id, p); err != nil {
		return Record{}, err
	} else if ok {
		return Record{}, newError(op, id, KindAlreadyExists, nil)
	}

	secret, err := NewSecret()
	if err != nil {
		return Record{}, ioError(op, id, err, "generate secret")
	}
	payload := baseline(secret)

	// only files this call wrote are rolled back; a stray payload left
	// without its secret is not ours to remove
	var written []string
	defer func() {
		if err == nil {
			return
		}
		for _, f := range written {
			if rmErr := os.Remove(f); rmErr != nil && !os.IsNotExist(rmErr) {
				s.logger.Warn().Err(rmErr).Str("vault", id).Msg("cleanup after failed create")
			}
		}
	}()

	// secret first: a crash before the payload lands leaves no visible vault
	if err = replaceFile(p.secret, []byte(secret)); err != nil {
		return Record{}, ioError(op, id, err, "write secret")
	}
	written = append(written, p.secret)
	if err = replaceFile(p.payload, payload); err != nil {
		return Record{}, ioError(op, id, err, "write payload")
	}
	written = append(written, p.payload)
	if err = syncDir(s.root); err != nil {
		return Record{}, ioError(op, id, err, "sync vault dir")
	}

	s.logger.Info().Str("vault", id).Msg("vault created")
	return Record{ID: id, Payload: payload, Secret: secret}, nil
}

func (s *FileStore) Read(ctx context.Context, id string) (Record, error) {
	const op = "read"
	p, err := s.resolve(op, id)
	if err != nil {
		return Record{}, err
	}
	if ok, err := s.exists(op, id, p); err != nil {
		return Record{}, err
	} else if !ok {
		return Record{}, newError(op, id, KindNotFound, nil)
	}

	unlock, err := s.lock(ctx, op, id, p)
	if err != nil {
		return Record{}, err
	}
	defer unlock()

	return s.readLocked(op, id, p)
}

func (s *FileStore) readLocked(op, id string, p vaultPaths) (Record, error) {
	secret, err := os.ReadFile(p.secret)
	if os.IsNotExist(err) {
		return Record{}, newError(op, id, KindNotFound, nil)
	}
	if err != nil {
		return Record{}, ioError(op, id, err, "read secret")
	}
	payload, err := os.ReadFile(p.payload)
	if os.IsNotExist(err) {
		return Record{}, newError(op, id, KindNotFound, nil)
	}
	if err != nil {
		return Record{}, ioError(op, id, err, "read payload")
	}
	return Record{ID: id, Payload: payload, Secret: string(secret)}, nil
}

func (s *FileStore) Write(ctx context.Context, id string, signed []byte) error {
	const op = "write"
	p, err := s.resolve(op, id)
	if err != nil {
		return err
	}
	// checked before locking so a missing vault never gains a lock file
	if ok, err := s.exists(op, id, p); err != nil {
		return err
	} else if !ok {
		return newError(op, id, KindNotFound, nil)
	}

	unlock, err := s.lock(ctx, op, id, p)
	if err != nil {
		return err
	}
	defer unlock()

	// the secret is re-read inside the critical section that persists
	rec, err := s.readLocked(op, id, p)
	if err != nil {
		return err
	}
	payload, err := authorize(rec.Secret, signed)
	if err != nil {
		s.logger.Warn().Str("vault", id).Msg("rejected write with invalid signature")
		return newError(op, id, KindInvalidSignature, err)
	}
	if err := writeFileAtomic(p.payload, payload); err != nil {
		return ioError(op, id, err, "replace payload")
	}
	s.logger.Debug().Str("vault", id).Int("bytes", len(payload)).Msg("vault written")
	return nil
}

func (s *FileStore) Delete(ctx context.Context, id string) error {
	const op = "delete"
	p, err := s.resolve(op, id)
	if err != nil {
		return err
	}
	if ok, err := s.exists(op, id, p); err != nil {
		return err
	} else if !ok {
		return newError(op, id, KindNotFound, nil)
	}

	unlock, err := s.lock(ctx, op, id, p)
	if err != nil {
		return err
	}
	defer unlock()

	// payload goes first so Exists turns false before the secret disappears
	for _, f := range []string{p.payload, p.secret} {
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
			return ioError(op, id, err, "remove vault file")
		}
	}
	s.logger.Info().Str("vault", id).Msg("vault deleted")
	return nil
}

func (s *FileStore) lock(ctx context.Context, op, id string, p vaultPaths) (func(), error) {
	if s.lockTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.lockTimeout)
		defer cancel()
	}
	unlock, err := acquireFileLock(ctx, p.lock)
	if err != nil {
		if errors.Is(err, ErrLockTimeout) {
			s.logger.Warn().Str("vault", id).Str("op", op).Msg("lock wait timed out")
		}
		return nil, ioError(op, id, err, "lock vault")
	}
	return func() {
		if err := unlock(); err != nil {
			s.logger.Warn().Err(err).Str("vault", id).Msg("release vault lock")
		}
	}, nil
}

// rename is swapped in tests to fail a single write.
var rename = os.Rename

// writeFileAtomic replaces path so readers see either the old or the new
// content, never a partial write.
func writeFileAtomic(path string, data []byte) error {
	if err := replaceFile(path, data); err != nil {
		return err
	}
	return syncDir(filepath.Dir(path))
}

// replaceFile renames a synced temp file over path without syncing the
// directory. The temp file never outlives a failure.
func replaceFile(path string, data []byte) (err error) {
	dir, base := filepath.Split(path)
	f, err := os.CreateTemp(dir, "."+base+".*"+tempSuffix)
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()

	if _, err = f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err = f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmp, 0o600); err != nil {
		return err
	}
	return rename(tmp, path)
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
