// Package audit keeps a tamper-evident record of vault lifecycle events.
// Each entry's hash covers the previous hash, so editing or dropping an
// entry breaks every hash after it.
package audit

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"sync"
	"time"
)

var ErrChainBroken = errors.New("audit chain broken")

type Action string

const (
	ActionCreate Action = "create"
	ActionWrite  Action = "write"
	ActionDelete Action = "delete"
	ActionDenied Action = "denied"
)

type Entry struct {
	TS      int64  `json:"ts"`
	Action  Action `json:"action"`
	VaultID string `json:"vault_id"`
	Hash    string `json:"hash"`
}

// Log is an in-memory hash chain, safe for concurrent use.
type Log struct {
	mu       sync.Mutex
	lastHash []byte
	entries  []Entry
	max      int
	now      func() time.Time
}

// New returns a log holding at most max entries; zero means unbounded.
// Trimming keeps the chain verifiable from the oldest retained entry.
func New(max int) *Log { return &Log{max: max, now: time.Now} }

func chain(prev []byte, e Entry) []byte {
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(e.TS))

	h := sha256.New()
	h.Write(prev)
	h.Write(ts[:])
	h.Write([]byte(e.Action))
	h.Write([]byte{0})
	h.Write([]byte(e.VaultID))
	return h.Sum(nil)
}

func (l *Log) Append(action Action, vaultID string) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := Entry{TS: l.now().Unix(), Action: action, VaultID: vaultID}
	sum := chain(l.lastHash, e)
	l.lastHash = sum
	e.Hash = hex.EncodeToString(sum)
	l.entries = append(l.entries, e)
	if l.max > 0 && len(l.entries) > l.max {
		// append reallocates once the tail's capacity runs out, which
		// releases the trimmed head without copying on every write
		l.entries = l.entries[len(l.entries)-l.max:]
	}
	return e
}

func (l *Log) Verify() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return verify(l.entries)
}

func verify(entries []Entry) error {
	if len(entries) < 2 {
		return nil
	}
	prev, err := hex.DecodeString(entries[0].Hash)
	if err != nil {
		return ErrChainBroken
	}
	for _, e := range entries[1:] {
		sum := chain(prev, e)
		if hex.EncodeToString(sum) != e.Hash {
			return ErrChainBroken
		}
		prev = sum
	}
	return nil
}

func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry(nil), l.entries...)
}
