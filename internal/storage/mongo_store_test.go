package storage

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// TestMongoStore runs against a live server when VAULTD_TEST_MONGO_URI is set.
func TestMongoStore(t *testing.T) {
	uri := os.Getenv("VAULTD_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("VAULTD_TEST_MONGO_URI not set")
	}
	runStoreContract(t, func(t *testing.T) Store {
		ctx := context.Background()
		coll := fmt.Sprintf("vaults_test_%d", time.Now().UnixNano())
		s, err := NewMongoStore(ctx, uri, "vaultd_test", coll, zerolog.Nop())
		require.NoError(t, err)
		t.Cleanup(func() {
			_ = s.coll.Drop(ctx)
			_ = s.Close(ctx)
		})
		return s
	})
}
