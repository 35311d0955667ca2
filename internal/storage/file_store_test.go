package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vetsin/code-jam-2025/internal/crypto"
)

func newTestFileStore(t *testing.T, opts ...FileOption) *FileStore {
	t.Helper()
	s, err := NewFileStore(filepath.Join(t.TempDir(), "vaults"), opts...)
	require.NoError(t, err)
	return s
}

func TestFileStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store { return newTestFileStore(t) })
}

func TestFileStoreLayout(t *testing.T) {
	ctx := context.Background()
	s := newTestFileStore(t)
	rec, err := s.Create(ctx, "alice")
	require.NoError(t, err)

	secret, err := os.ReadFile(filepath.Join(s.Root(), "alice.secret"))
	require.NoError(t, err)
	assert.Equal(t, rec.Secret, string(secret))

	payload, err := os.ReadFile(filepath.Join(s.Root(), "alice"))
	require.NoError(t, err)
	assert.Equal(t, rec.Payload, payload)

	for _, name := range []string{"alice", "alice.secret"} {
		fi, err := os.Stat(filepath.Join(s.Root(), name))
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm(), name)
	}

	entries, err := os.ReadDir(s.Root())
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), tempSuffix, "temp files must not survive")
	}
}

func TestFileStoreCreateTwiceLeavesFilesUntouched(t *testing.T) {
	ctx := context.Background()
	s := newTestFileStore(t)
	_, err := s.Create(ctx, "dup")
	require.NoError(t, err)

	before := readVaultFiles(t, s, "dup")
	_, err = s.Create(ctx, "dup")
	require.ErrorIs(t, err, ErrAlreadyExists)
	assert.Equal(t, before, readVaultFiles(t, s, "dup"))
}

func TestFileStoreWriteMissingCreatesNoFiles(t *testing.T) {
	s := newTestFileStore(t)
	err := s.Write(context.Background(), "nobody", crypto.Sign([]byte("x"), []byte("k")))
	require.ErrorIs(t, err, ErrNotFound)

	entries, err := os.ReadDir(s.Root())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFileStoreWrongSecretKeepsBytes(t *testing.T) {
	ctx := context.Background()
	s := newTestFileStore(t)
	rec, err := s.Create(ctx, "bob")
	require.NoError(t, err)
	require.NoError(t, s.Write(ctx, "bob", crypto.Sign([]byte("stored"), []byte(rec.Secret))))

	before := readVaultFiles(t, s, "bob")
	err = s.Write(ctx, "bob", crypto.Sign([]byte("forged"), []byte("guess")))
	require.ErrorIs(t, err, ErrInvalidSignature)
	assert.Equal(t, before, readVaultFiles(t, s, "bob"))
}

func TestFileStorePathTraversal(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	s, err := NewFileStore(filepath.Join(base, "a", "b", "vaults"))
	require.NoError(t, err)

	// a file the traversal id would reach
	target := filepath.Join(base, "a", "passwd")
	require.NoError(t, os.WriteFile(target, []byte("root:x:0:0"), 0o600))

	for _, id := range []string{"../../etc/passwd", "../passwd", "..", ".", "sub/vault", "/etc/passwd"} {
		t.Run(id, func(t *testing.T) {
			_, err := s.Exists(ctx, id)
			assert.ErrorIs(t, err, ErrPathTraversal)
			_, err = s.Create(ctx, id)
			assert.ErrorIs(t, err, ErrPathTraversal)
			_, err = s.Read(ctx, id)
			assert.ErrorIs(t, err, ErrPathTraversal)
			err = s.Write(ctx, id, []byte("payload"))
			assert.ErrorIs(t, err, ErrPathTraversal)
			assert.Equal(t, KindPathTraversal, KindOf(err))
			assert.ErrorIs(t, s.Delete(ctx, id), ErrPathTraversal)
		})
	}

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "root:x:0:0", string(got))
	_, err = os.Stat(target + lockSuffix)
	assert.True(t, os.IsNotExist(err), "no lock file may appear outside the root")

	entries, err := os.ReadDir(s.Root())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFileStoreRejectsAliasingIDs(t *testing.T) {
	ctx := context.Background()
	s := newTestFileStore(t)
	for _, id := range []string{"alice.secret", "alice.lock", "alice.tmp"} {
		_, err := s.Create(ctx, id)
		assert.ErrorIs(t, err, ErrInvalidID, id)
	}
	for _, id := range []string{"x/../alice", "./alice"} {
		_, err := s.Create(ctx, id)
		assert.ErrorIs(t, err, ErrPathTraversal, id)
	}
}

func TestFileStoreLockTimeout(t *testing.T) {
	ctx := context.Background()
	s := newTestFileStore(t, WithLockTimeout(50*time.Millisecond))
	rec, err := s.Create(ctx, "busy")
	require.NoError(t, err)
	_, err = s.Create(ctx, "idle")
	require.NoError(t, err)

	release, err := acquireFileLock(ctx, filepath.Join(s.Root(), "busy"+lockSuffix))
	require.NoError(t, err)

	err = s.Write(ctx, "busy", crypto.Sign([]byte("x"), []byte(rec.Secret)))
	require.ErrorIs(t, err, ErrLockTimeout)
	assert.Equal(t, KindIO, KindOf(err))

	// another vault does not wait on the held lock
	start := time.Now()
	_, err = s.Read(ctx, "idle")
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 50*time.Millisecond)

	require.NoError(t, release())
	require.NoError(t, s.Write(ctx, "busy", crypto.Sign([]byte("x"), []byte(rec.Secret))))
}

func TestFileStoreLockHonoursContext(t *testing.T) {
	s := newTestFileStore(t, WithLockTimeout(0))
	_, err := s.Create(context.Background(), "held")
	require.NoError(t, err)

	release, err := acquireFileLock(context.Background(), filepath.Join(s.Root(), "held"+lockSuffix))
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Read(ctx, "held")
	require.ErrorIs(t, err, context.Canceled)
}

func TestFileStoreCreateRollsBack(t *testing.T) {
	s := newTestFileStore(t)
	// a directory where the payload belongs makes the final rename fail
	require.NoError(t, os.Mkdir(filepath.Join(s.Root(), "broken"), 0o700))

	_, err := s.Create(context.Background(), "broken")
	require.Error(t, err)
	assert.Equal(t, KindIO, KindOf(err))

	_, err = os.Stat(filepath.Join(s.Root(), "broken.secret"))
	assert.True(t, os.IsNotExist(err), "secret must be removed with the failed payload")
}

func TestFileStoreCreateKeepsFilesItDidNotWrite(t *testing.T) {
	s := newTestFileStore(t)
	// a payload left behind without its secret is not a vault yet
	orphan := filepath.Join(s.Root(), "orphan")
	require.NoError(t, os.WriteFile(orphan, []byte("left behind"), 0o600))

	rename = func(from, to string) error {
		if strings.HasSuffix(to, secretSuffix) {
			return os.ErrPermission
		}
		return os.Rename(from, to)
	}
	defer func() { rename = os.Rename }()

	_, err := s.Create(context.Background(), "orphan")
	require.ErrorIs(t, err, ErrStorageIO)

	got, err := os.ReadFile(orphan)
	require.NoError(t, err, "a failed create must leave the payload it never wrote")
	assert.Equal(t, "left behind", string(got))

	entries, err := os.ReadDir(s.Root())
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), tempSuffix)
	}
}

func readVaultFiles(t *testing.T, s *FileStore, id string) map[string][]byte {
	t.Helper()
	out := map[string][]byte{}
	for _, name := range []string{id, id + secretSuffix} {
		b, err := os.ReadFile(filepath.Join(s.Root(), name))
		require.NoError(t, err)
		out[name] = b
	}
	return out
}
