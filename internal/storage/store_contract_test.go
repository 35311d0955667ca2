package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vetsin/code-jam-2025/internal/crypto"
)

// runStoreContract exercises the behaviour every Store must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("CreateReadWrite", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		ok, err := s.Exists(ctx, "alice")
		require.NoError(t, err)
		assert.False(t, ok)

		rec, err := s.Create(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, "alice", rec.ID)
		assert.Len(t, rec.Secret, 2*SecretBytes)
		assert.Equal(t, crypto.Sign(nil, []byte(rec.Secret)), rec.Payload)

		ok, err = s.Exists(ctx, "alice")
		require.NoError(t, err)
		assert.True(t, ok)

		got, err := s.Read(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, rec, got)

		key, err := crypto.DeriveKey([][]byte{[]byte("alice's passcode")})
		require.NoError(t, err)
		sealed, err := crypto.Seal([]byte("hello"), key)
		require.NoError(t, err)
		require.NoError(t, s.Write(ctx, "alice", crypto.Sign(sealed, []byte(rec.Secret))))

		got, err = s.Read(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, sealed, got.Payload)
		assert.Equal(t, rec.Secret, got.Secret, "secret must never be rewritten")

		plain, err := crypto.Open(got.Payload, key)
		require.NoError(t, err)
		assert.Equal(t, []byte("hello"), plain)
	})

	t.Run("CreateTwice", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		first, err := s.Create(ctx, "dup")
		require.NoError(t, err)

		_, err = s.Create(ctx, "dup")
		require.ErrorIs(t, err, ErrAlreadyExists)
		assert.Equal(t, KindAlreadyExists, KindOf(err))

		got, err := s.Read(ctx, "dup")
		require.NoError(t, err)
		assert.Equal(t, first, got)
	})

	t.Run("MissingVault", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		_, err := s.Read(ctx, "ghost")
		require.ErrorIs(t, err, ErrNotFound)

		err = s.Write(ctx, "ghost", crypto.Sign([]byte("data"), []byte("whatever")))
		require.ErrorIs(t, err, ErrNotFound)
		assert.Equal(t, KindNotFound, KindOf(err))

		ok, err := s.Exists(ctx, "ghost")
		require.NoError(t, err)
		assert.False(t, ok, "failed write must not create the vault")

		require.ErrorIs(t, s.Delete(ctx, "ghost"), ErrNotFound)
	})

	t.Run("WrongSecret", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		rec, err := s.Create(ctx, "bob")
		require.NoError(t, err)

		good := crypto.Sign([]byte("v1"), []byte(rec.Secret))
		require.NoError(t, s.Write(ctx, "bob", good))

		for _, bad := range [][]byte{
			crypto.Sign([]byte("v2"), []byte("not the secret")),
			[]byte("v2 without any signature at all, long enough to hold a mac"),
			nil,
		} {
			err = s.Write(ctx, "bob", bad)
			require.ErrorIs(t, err, ErrInvalidSignature)
			assert.Equal(t, KindInvalidSignature, KindOf(err))
		}

		got, err := s.Read(ctx, "bob")
		require.NoError(t, err)
		assert.Equal(t, []byte("v1"), got.Payload)
	})

	t.Run("Delete", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		_, err := s.Create(ctx, "carol")
		require.NoError(t, err)
		require.NoError(t, s.Delete(ctx, "carol"))

		ok, err := s.Exists(ctx, "carol")
		require.NoError(t, err)
		assert.False(t, ok)

		// the id can be reused and gets a new secret
		_, err = s.Create(ctx, "carol")
		require.NoError(t, err)
	})

	t.Run("InvalidID", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		_, err := s.Create(ctx, "")
		assert.Equal(t, KindInvalidID, KindOf(err))
		_, err = s.Read(ctx, "bad\x00id")
		assert.Equal(t, KindInvalidID, KindOf(err))
	})

	t.Run("PathTraversal", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		for _, id := range []string{"../../etc/passwd", "..", ".", "a/b", "/etc/passwd", `a\b`} {
			_, err := s.Exists(ctx, id)
			assert.ErrorIs(t, err, ErrPathTraversal, id)
			_, err = s.Create(ctx, id)
			assert.ErrorIs(t, err, ErrPathTraversal, id)
			assert.Equal(t, KindPathTraversal, KindOf(err), id)
			_, err = s.Read(ctx, id)
			assert.ErrorIs(t, err, ErrPathTraversal, id)
			assert.ErrorIs(t, s.Write(ctx, id, []byte("payload")), ErrPathTraversal, id)
			assert.ErrorIs(t, s.Delete(ctx, id), ErrPathTraversal, id)
		}

		// names that merely contain dots are ordinary ids
		_, err := s.Create(ctx, "..hidden")
		require.NoError(t, err)
		_, err = s.Create(ctx, "v1.2")
		require.NoError(t, err)
	})

	t.Run("ConcurrentWrites", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		rec, err := s.Create(ctx, "race")
		require.NoError(t, err)

		payloads := [][]byte{
			[]byte("first payload, short"),
			[]byte(fmt.Sprintf("second payload, much longer %0200d", 7)),
		}
		for round := 0; round < 20; round++ {
			var wg sync.WaitGroup
			errs := make([]error, len(payloads))
			for i, p := range payloads {
				wg.Add(1)
				go func(i int, p []byte) {
					defer wg.Done()
					errs[i] = s.Write(ctx, "race", crypto.Sign(p, []byte(rec.Secret)))
				}(i, p)
			}
			wg.Wait()
			for _, err := range errs {
				require.NoError(t, err)
			}

			got, err := s.Read(ctx, "race")
			require.NoError(t, err)
			assert.Contains(t, payloads, got.Payload, "stored payload must be exactly one of the writes")
		}
	})

	t.Run("DistinctIDsIndependent", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				id := fmt.Sprintf("vault-%d", i)
				rec, err := s.Create(ctx, id)
				if !assert.NoError(t, err) {
					return
				}
				assert.NoError(t, s.Write(ctx, id, crypto.Sign([]byte(id), []byte(rec.Secret))))
			}(i)
		}
		wg.Wait()

		for i := 0; i < 8; i++ {
			id := fmt.Sprintf("vault-%d", i)
			got, err := s.Read(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, []byte(id), got.Payload)
		}
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store { return NewMemoryStore() })
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindOther, KindOf(nil))
	assert.Equal(t, KindOther, KindOf(fmt.Errorf("unrelated")))
	assert.Equal(t, KindNotFound, KindOf(fmt.Errorf("wrapped: %w", ErrNotFound)))
	assert.Equal(t, KindInvalidSignature, KindOf(crypto.ErrInvalidSignature))

	err := ioError("write", "x", fmt.Errorf("disk full"), "replace payload")
	assert.Equal(t, KindIO, KindOf(err))
	assert.ErrorIs(t, err, ErrStorageIO)
	assert.Contains(t, err.Error(), "disk full")
}
