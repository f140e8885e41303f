// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"sync"
	"time"

	"github.com/samber/oops"
)

// Record binds a username to the credential hash that owns it.
// Records are created once and never modified or deleted.
type Record struct {
	Username       string
	CredentialHash string
	CreatedAt      time.Time
}

// RecordStore persists auth records outside the process.
type RecordStore interface {
	// Insert stores a new record. It returns an error with code
	// CodeNameRegistered if the username is already stored.
	Insert(ctx context.Context, rec Record) error

	// List returns every stored record.
	List(ctx context.Context) ([]Record, error)
}

// Index is the server-wide mapping from username to credential hash.
// It is safe for concurrent use. Keys are compared case-sensitively.
type Index struct {
	mu      sync.RWMutex
	records map[string]Record
	store   RecordStore
	now     func() time.Time
}

// NewIndex creates an empty in-memory index.
func NewIndex() *Index {
	return &Index{
		records: make(map[string]Record),
		now:     time.Now,
	}
}

// NewIndexWithStore creates an index that writes new records through to store.
// Call Load to populate it with the records already stored.
func NewIndexWithStore(store RecordStore) (*Index, error) {
	if store == nil {
		return nil, oops.Errorf("record store is required")
	}
	idx := NewIndex()
	idx.store = store
	return idx, nil
}

// Load replaces the in-memory records with the contents of the store.
// It is a no-op for an index without a store.
func (idx *Index) Load(ctx context.Context) error {
	if idx.store == nil {
		return nil
	}

	recs, err := idx.store.List(ctx)
	if err != nil {
		return oops.Code(CodeLoadFailed).
			With("operation", "list auth records").
			Wrap(err)
	}

	records := make(map[string]Record, len(recs))
	for _, rec := range recs {
		records[rec.Username] = rec
	}

	idx.mu.Lock()
	idx.records = records
	idx.mu.Unlock()
	return nil
}

// IsRegistered reports whether name has an auth record.
func (idx *Index) IsRegistered(name string) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	_, ok := idx.records[name]
	return ok
}

// Lookup returns the credential hash stored for name.
func (idx *Index) Lookup(name string) (string, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	rec, ok := idx.records[name]
	if !ok {
		return "", false
	}
	return rec.CredentialHash, true
}

// Register inserts a new record for name. A name that is already registered
// is rejected with CodeNameRegistered and the existing record is kept.
// With a store attached the record is persisted before it becomes visible.
func (idx *Index) Register(ctx context.Context, name, credentialHash string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, exists := idx.records[name]; exists {
		return oops.Code(CodeNameRegistered).
			With("username", name).
			Errorf("username is already registered")
	}

	rec := Record{
		Username:       name,
		CredentialHash: credentialHash,
		CreatedAt:      idx.now().UTC(),
	}

	if idx.store != nil {
		if err := idx.store.Insert(ctx, rec); err != nil {
			if oopsErr, ok := oops.AsOops(err); ok && oopsErr.Code() == CodeNameRegistered {
				return err
			}
			return oops.Code(CodeRegisterFailed).
				With("operation", "persist auth record").
				With("username", name).
				Wrap(err)
		}
	}

	idx.records[name] = rec
	return nil
}

// Len returns the number of registered names.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.records)
}
