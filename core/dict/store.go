package dict

import (
	"strings"
	"sync"
	"time"

	"github.com/FocuswithJustin/zhconv/core/cache"
	"github.com/FocuswithJustin/zhconv/internal/logging"
)

// Store loads tables from a Source once and hands out shared, read-only
// dictionaries. Single tables and merged stage dictionaries are cached
// for the lifetime of the store.
type Store struct {
	src Source

	mu     sync.Mutex
	tables cache.Cache[string, *Dictionary]
	merged cache.Cache[string, *Dictionary]
}

// NewStore creates a store over src.
func NewStore(src Source) *Store {
	unbounded := cache.Config{MaxSize: 0}
	return &Store{
		src:    src,
		tables: cache.NewLRUCache[string, *Dictionary](unbounded),
		merged: cache.NewLRUCache[string, *Dictionary](unbounded),
	}
}

var (
	defaultStore     *Store
	defaultStoreOnce sync.Once
)

// Default returns the process-wide store over the bundled tables.
func Default() *Store {
	defaultStoreOnce.Do(func() {
		defaultStore = NewStore(EmbeddedSource{})
	})
	return defaultStore
}

// Source returns the underlying table source.
func (s *Store) Source() Source {
	return s.src
}

// Table returns the dictionary for a single table identifier.
func (s *Store) Table(id string) (*Dictionary, error) {
	if d, ok := s.tables.Get(id); ok {
		return d, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tableLocked(id)
}

func (s *Store) tableLocked(id string) (*Dictionary, error) {
	if d, ok := s.tables.Get(id); ok {
		return d, nil
	}

	start := time.Now()
	entries, err := s.src.Table(id)
	if err != nil {
		return nil, err
	}
	d := NewDictionary(entries)
	s.tables.Put(id, d)
	logging.DictionaryLoaded(id, d.Len(), time.Since(start), "max_length", d.MaxLength())
	return d, nil
}

// Load returns the merged dictionary for one stage. Tables are merged in
// the given order; earlier tables win on conflicting phrases. Repeated
// calls with the same identifiers return the same instance.
func (s *Store) Load(ids ...string) (*Dictionary, error) {
	key := strings.Join(ids, "+")
	if d, ok := s.merged.Get(key); ok {
		return d, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if d, ok := s.merged.Get(key); ok {
		return d, nil
	}

	parts := make([]*Dictionary, 0, len(ids))
	for _, id := range ids {
		d, err := s.tableLocked(id)
		if err != nil {
			return nil, err
		}
		parts = append(parts, d)
	}
	var d *Dictionary
	if len(parts) == 0 {
		d = NewDictionary(nil)
	} else {
		d = Merge(parts...)
	}
	s.merged.Put(key, d)
	return d, nil
}

// Stats reports cache statistics for loaded tables and merged stages.
func (s *Store) Stats() (tables, merged cache.Stats) {
	return s.tables.Stats(), s.merged.Stats()
}
