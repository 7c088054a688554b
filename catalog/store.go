// Package catalog owns the set of (molecule, embedding) records and their
// identity: entries are keyed by canonical SMILES form, so re-inserting an
// already known molecule never creates a duplicate.
package catalog

import (
	"errors"
	"iter"
	"slices"
	"sync"
)

// ErrNotFound is returned when the store has no entry for an ID.
var ErrNotFound = errors.New("catalog: entry not found")

// EntryID identifies a catalog entry. IDs are assigned sequentially and
// never reused.
type EntryID uint64

// Entry is a catalog record: a canonical molecule string and its full-length,
// unit-normalized embedding vector. Callers must not mutate Vector.
type Entry struct {
	ID     EntryID
	SMILES string
	Vector []float32
}

// Store is an in-memory catalog with canonical-form de-duplication.
// All methods are safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	entries map[EntryID]Entry
	byKey   map[string]EntryID
	nextID  EntryID
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		entries: make(map[EntryID]Entry),
		byKey:   make(map[string]EntryID),
		nextID:  1,
	}
}

// Upsert inserts a new entry for the canonical molecule string, or returns
// the existing ID unchanged when the molecule is already present. The second
// return value reports whether a new entry was created. The check-and-insert
// is atomic per canonical key: concurrent upserts of the same molecule
// cannot race into two IDs.
func (s *Store) Upsert(smiles string, vec []float32) (EntryID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byKey[smiles]; ok {
		return id, false
	}

	id := s.nextID
	s.nextID++

	s.entries[id] = Entry{ID: id, SMILES: smiles, Vector: slices.Clone(vec)}
	s.byKey[smiles] = id
	return id, true
}

// Get returns the entry for id, or ErrNotFound.
func (s *Store) Get(id EntryID) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

// GetBySMILES returns the entry for a canonical molecule string.
func (s *Store) GetBySMILES(smiles string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byKey[smiles]
	if !ok {
		return Entry{}, false
	}
	return s.entries[id], true
}

// Remove deletes the entry for id, or returns ErrNotFound. Removal does not
// touch ANN indexes; the index manager is responsible for that cleanup.
func (s *Store) Remove(id EntryID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.entries, id)
	delete(s.byKey, e.SMILES)
	return nil
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// All returns a restartable sequence over a consistent snapshot of the
// store, ordered by ID. Mutations during iteration affect neither a running
// nor a restarted pass over the same sequence value.
func (s *Store) All() iter.Seq[Entry] {
	s.mu.RLock()
	snapshot := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		snapshot = append(snapshot, e)
	}
	s.mu.RUnlock()

	slices.SortFunc(snapshot, func(a, b Entry) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		default:
			return 0
		}
	})

	return func(yield func(Entry) bool) {
		for _, e := range snapshot {
			if !yield(e) {
				return
			}
		}
	}
}
