// Package vault is the decrypted, client-side view of a vault: named entries
// of key/value pairs. The server never sees this structure.
package vault

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	cr "github.com/vetsin/code-jam-2025/internal/crypto"
)

const formatVersion = 1

var (
	ErrEntryNotFound      = errors.New("vault: entry not found")
	ErrUnsupportedVersion = errors.New("vault: unsupported format version")
)

type KeyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Entry is identified by ID; two entries with equal content but different
// ids are different entries.
type Entry struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	KeyValues []KeyValue `json:"key_values"`
}

type Vault struct {
	Version int      `json:"version"`
	Policy  Policy   `json:"policy"`
	Entries []*Entry `json:"entries"`
}

func New() *Vault {
	return &Vault{Version: formatVersion, Policy: DefaultPolicy()}
}

// NewEntry appends an entry holding one key/value pair.
func (v *Vault) NewEntry(name, key, value string) *Entry {
	e := &Entry{ID: uuid.NewString(), Name: name}
	if key != "" {
		e.Set(key, value)
	}
	v.Entries = append(v.Entries, e)
	return e
}

// Entry looks an entry up by id first, then by name.
func (v *Vault) Entry(ref string) (*Entry, bool) {
	for _, e := range v.Entries {
		if e.ID == ref {
			return e, true
		}
	}
	for _, e := range v.Entries {
		if e.Name == ref {
			return e, true
		}
	}
	return nil, false
}

func (v *Vault) DeleteEntry(ref string) error {
	e, ok := v.Entry(ref)
	if !ok {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, ref)
	}
	for i, cur := range v.Entries {
		if cur.ID == e.ID {
			v.Entries = append(v.Entries[:i], v.Entries[i+1:]...)
			break
		}
	}
	return nil
}

// Set adds key or replaces its value.
func (e *Entry) Set(key, value string) {
	for i := range e.KeyValues {
		if e.KeyValues[i].Key == key {
			e.KeyValues[i].Value = value
			return
		}
	}
	e.KeyValues = append(e.KeyValues, KeyValue{Key: key, Value: value})
}

func (e *Entry) Get(key string) (string, bool) {
	for _, kv := range e.KeyValues {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return "", false
}

// Unset removes key and reports whether it was present.
func (e *Entry) Unset(key string) bool {
	for i, kv := range e.KeyValues {
		if kv.Key == key {
			e.KeyValues = append(e.KeyValues[:i], e.KeyValues[i+1:]...)
			return true
		}
	}
	return false
}

func (e *Entry) Equal(o *Entry) bool {
	return e != nil && o != nil && e.ID == o.ID
}

// Encrypt serialises v and seals it under key.
func Encrypt(v *Vault, key cr.KeyMaterial) ([]byte, error) {
	pt, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	defer cr.Zero(pt)
	return cr.Seal(pt, key)
}

// Decrypt verifies and opens sealed, then decodes the vault inside.
func Decrypt(sealed []byte, key cr.KeyMaterial) (*Vault, error) {
	pt, err := cr.Open(sealed, key)
	if err != nil {
		return nil, err
	}
	defer cr.Zero(pt)

	v := New()
	if err := json.Unmarshal(pt, v); err != nil {
		return nil, fmt.Errorf("vault: decode: %w", err)
	}
	if v.Version != formatVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, v.Version)
	}
	return v, nil
}
