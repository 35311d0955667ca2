package storage

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store for tests and throwaway dev servers.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*memoryRecord
}

type memoryRecord struct {
	mu      sync.Mutex
	payload []byte
	secret  string
	deleted bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*memoryRecord)}
}

func (m *MemoryStore) get(id string) *memoryRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[id]
}

func (m *MemoryStore) Exists(_ context.Context, id string) (bool, error) {
	if err := checkID("exists", id); err != nil {
		return false, err
	}
	return m.get(id) != nil, nil
}

func (m *MemoryStore) Create(_ context.Context, id string) (Record, error) {
	const op = "create"
	if err := checkID(op, id); err != nil {
		return Record{}, err
	}
	secret, err := NewSecret()
	if err != nil {
		return Record{}, ioError(op, id, err, "generate secret")
	}
	payload := baseline(secret)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; ok {
		return Record{}, newError(op, id, KindAlreadyExists, nil)
	}
	m.records[id] = &memoryRecord{payload: payload, secret: secret}
	return Record{ID: id, Payload: clone(payload), Secret: secret}, nil
}

func (m *MemoryStore) Read(_ context.Context, id string) (Record, error) {
	const op = "read"
	if err := checkID(op, id); err != nil {
		return Record{}, err
	}
	r := m.get(id)
	if r == nil {
		return Record{}, newError(op, id, KindNotFound, nil)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleted {
		return Record{}, newError(op, id, KindNotFound, nil)
	}
	return Record{ID: id, Payload: clone(r.payload), Secret: r.secret}, nil
}

func (m *MemoryStore) Write(_ context.Context, id string, signed []byte) error {
	const op = "write"
	if err := checkID(op, id); err != nil {
		return err
	}
	r := m.get(id)
	if r == nil {
		return newError(op, id, KindNotFound, nil)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleted {
		return newError(op, id, KindNotFound, nil)
	}
	payload, err := authorize(r.secret, signed)
	if err != nil {
		return newError(op, id, KindInvalidSignature, err)
	}
	r.payload = clone(payload)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	const op = "delete"
	if err := checkID(op, id); err != nil {
		return err
	}
	m.mu.Lock()
	r, ok := m.records[id]
	delete(m.records, id)
	m.mu.Unlock()
	if !ok {
		return newError(op, id, KindNotFound, nil)
	}
	r.mu.Lock()
	r.deleted = true
	r.mu.Unlock()
	return nil
}

func clone(b []byte) []byte { return append([]byte(nil), b...) }
