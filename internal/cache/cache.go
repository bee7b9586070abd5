// Package cache is a persistent key-value store for resolved enrichment
// records. Each namespace is one JSON file in the data directory, loaded
// once at pipeline start and flushed once at pipeline end. An absent or
// malformed file is treated as an empty namespace.
//
// Merges are monotonic: a field that is already populated is never
// overwritten with an empty value. Callers can name fields that should
// always be refreshed (coordinates).
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/calens/calens/internal/logging"
)

// Store holds the in-memory contents of one or more cache namespaces.
// All mutation goes through the store's mutex; concurrent batch workers
// never touch the maps directly.
type Store struct {
	dir string

	mu         sync.Mutex
	namespaces map[string]map[string]json.RawMessage
}

// Open loads the named namespaces from dir. Missing or unreadable files
// yield empty namespaces rather than errors.
func Open(dir string, namespaces ...string) *Store {
	s := &Store{
		dir:        dir,
		namespaces: make(map[string]map[string]json.RawMessage, len(namespaces)),
	}
	for _, ns := range namespaces {
		s.namespaces[ns] = loadNamespace(dir, ns)
	}
	return s
}

func loadNamespace(dir, ns string) map[string]json.RawMessage {
	data, err := os.ReadFile(namespacePath(dir, ns))
	if err != nil {
		return map[string]json.RawMessage{}
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		logging.Debug("cache namespace unreadable, starting empty", "namespace", ns)
		return map[string]json.RawMessage{}
	}
	if m == nil {
		m = map[string]json.RawMessage{}
	}
	return m
}

func namespacePath(dir, ns string) string {
	return filepath.Join(dir, ns+"_cache.json")
}

func (s *Store) namespace(ns string) map[string]json.RawMessage {
	m, ok := s.namespaces[ns]
	if !ok {
		m = map[string]json.RawMessage{}
		s.namespaces[ns] = m
	}
	return m
}

// Has reports whether the key is present in the namespace.
func (s *Store) Has(ns, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.namespace(ns)[key]
	return ok
}

// Get unmarshals the cached value for key into out. Returns false when
// the key is absent or the stored value does not fit out.
func (s *Store) Get(ns, key string, out any) bool {
	s.mu.Lock()
	raw, ok := s.namespace(ns)[key]
	s.mu.Unlock()
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false
	}
	return true
}

// Put stores v under key, replacing any previous value.
func (s *Store) Put(ns, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal cache record %s/%s: %w", ns, key, err)
	}
	s.mu.Lock()
	s.namespace(ns)[key] = raw
	s.mu.Unlock()
	return nil
}

// Merge folds the incoming fields into the record stored under key.
// Populated fields are kept unless named in refresh; empty incoming
// values never clear anything.
func (s *Store) Merge(ns, key string, incoming map[string]any, refresh ...string) error {
	always := make(map[string]bool, len(refresh))
	for _, f := range refresh {
		always[f] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.namespace(ns)
	existing := map[string]any{}
	if raw, ok := m[key]; ok {
		// A record that fails to decode is replaced outright.
		_ = json.Unmarshal(raw, &existing)
	}

	changed := len(existing) > 0
	for field, val := range incoming {
		if isEmptyValue(val) {
			continue
		}
		if always[field] || isEmptyValue(existing[field]) {
			existing[field] = val
			changed = true
		}
	}
	// Nothing usable came in and no record exists; don't create one.
	if !changed {
		return nil
	}

	raw, err := json.Marshal(existing)
	if err != nil {
		return fmt.Errorf("marshal cache record %s/%s: %w", ns, key, err)
	}
	m[key] = raw
	return nil
}

// Len returns the number of keys in the namespace.
func (s *Store) Len(ns string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.namespace(ns))
}

// Flush writes every namespace back to disk.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}

	for ns, m := range s.namespaces {
		data, err := json.MarshalIndent(m, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal cache namespace %s: %w", ns, err)
		}
		if err := os.WriteFile(namespacePath(s.dir, ns), data, 0644); err != nil {
			return fmt.Errorf("write cache namespace %s: %w", ns, err)
		}
	}
	return nil
}

func isEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	default:
		return false
	}
}
