package audit

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAndVerify(t *testing.T) {
	l := New(0)
	l.Append(ActionCreate, "alice")
	l.Append(ActionWrite, "alice")
	l.Append(ActionDelete, "alice")

	require.NoError(t, l.Verify())
	entries := l.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, ActionWrite, entries[1].Action)
	assert.NotEqual(t, entries[0].Hash, entries[1].Hash)
}

func TestVerifyDetectsTampering(t *testing.T) {
	l := New(0)
	l.Append(ActionCreate, "alice")
	l.Append(ActionWrite, "alice")
	l.Append(ActionWrite, "alice")

	l.entries[1].VaultID = "bob"
	assert.ErrorIs(t, l.Verify(), ErrChainBroken)
}

func TestVerifyDetectsDroppedEntry(t *testing.T) {
	l := New(0)
	for _, id := range []string{"a", "b", "c", "d"} {
		l.Append(ActionCreate, id)
	}
	l.entries = append(l.entries[:1], l.entries[2:]...)
	assert.ErrorIs(t, l.Verify(), ErrChainBroken)
}

func TestBoundedLogStaysVerifiable(t *testing.T) {
	l := New(3)
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		l.Append(ActionCreate, id)
	}
	entries := l.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "c", entries[0].VaultID)
	assert.NoError(t, l.Verify())
}

func TestConcurrentAppend(t *testing.T) {
	l := New(0)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Append(ActionWrite, "shared")
		}()
	}
	wg.Wait()
	assert.Len(t, l.Entries(), 50)
	assert.NoError(t, l.Verify())
}

func TestVerifyDetectsRewrittenTimestamp(t *testing.T) {
	l := New(0)
	l.Append(ActionCreate, "alice")
	l.Append(ActionWrite, "alice")
	l.Append(ActionWrite, "alice")

	l.entries[2].TS -= 3600
	assert.ErrorIs(t, l.Verify(), ErrChainBroken)
}

func TestBoundedLogKeepsMemoryBounded(t *testing.T) {
	l := New(10)
	for i := 0; i < 10_000; i++ {
		l.Append(ActionWrite, fmt.Sprintf("v%d", i))
	}
	entries := l.Entries()
	require.Len(t, entries, 10)
	assert.Equal(t, "v9990", entries[0].VaultID)
	assert.Equal(t, "v9999", entries[9].VaultID)
	assert.LessOrEqual(t, cap(l.entries), 40)
	assert.NoError(t, l.Verify())
}
