package catalog

import (
	"slices"
	"time"
)

// Snapshot is a read-only copy of the whole catalog taken once at run start.
// Every accessor returns deep copies so no caller can mutate it; it is safe
// for concurrent readers.
type Snapshot struct {
	modules   map[string]Module
	chains    map[string][]string
	dependers map[string][]string
	keys      []string
	takenAt   time.Time
}

// NewSnapshot indexes mods by name@revision. When two records share a key the
// later one wins.
func NewSnapshot(mods []Module) *Snapshot {
	s := &Snapshot{
		modules:   make(map[string]Module, len(mods)),
		chains:    make(map[string][]string),
		dependers: make(map[string][]string),
		takenAt:   time.Now(),
	}
	for i := range mods {
		s.modules[mods[i].Key()] = mods[i].Clone()
	}

	for key, m := range s.modules {
		s.keys = append(s.keys, key)
		s.chains[m.Name] = append(s.chains[m.Name], key)

		seen := make(map[string]bool, len(m.Dependencies))
		for _, dep := range m.Dependencies {
			if seen[dep.Name] {
				continue
			}
			seen[dep.Name] = true
			s.dependers[dep.Name] = append(s.dependers[dep.Name], key)
		}
	}

	slices.Sort(s.keys)
	for name, keys := range s.chains {
		slices.SortFunc(keys, func(a, b string) int {
			return CompareRevisions(s.modules[a].Revision, s.modules[b].Revision)
		})
		s.chains[name] = keys
	}
	for _, keys := range s.dependers {
		slices.Sort(keys)
	}
	return s
}

// TakenAt returns when the snapshot was built.
func (s *Snapshot) TakenAt() time.Time {
	return s.takenAt
}

// Len returns the number of records.
func (s *Snapshot) Len() int {
	return len(s.modules)
}

// Has reports whether key is in the catalog.
func (s *Snapshot) Has(key string) bool {
	_, ok := s.modules[key]
	return ok
}

// Get returns a copy of the record stored under key.
func (s *Snapshot) Get(key string) (Module, bool) {
	m, ok := s.modules[key]
	if !ok {
		return Module{}, false
	}
	return m.Clone(), true
}

// Keys returns all keys in lexical order.
func (s *Snapshot) Keys() []string {
	return slices.Clone(s.keys)
}

// Modules returns copies of all records ordered by key.
func (s *Snapshot) Modules() []Module {
	out := make([]Module, 0, len(s.keys))
	for _, key := range s.keys {
		m := s.modules[key]
		out = append(out, m.Clone())
	}
	return out
}

// Chain returns the revision chain for name, ascending by normalized revision.
func (s *Snapshot) Chain(name string) []Module {
	return s.collect(s.chains[name])
}

// Revisions returns the records named name, optionally restricted to one
// revision. An empty revision matches every revision.
func (s *Snapshot) Revisions(name, revision string) []Module {
	if revision == "" {
		return s.Chain(name)
	}
	m, ok := s.Get(Key(name, revision))
	if !ok {
		return nil
	}
	return []Module{m}
}

// Dependers returns the records that declare any dependency on name.
func (s *Snapshot) Dependers(name string) []Module {
	return s.collect(s.dependers[name])
}

func (s *Snapshot) collect(keys []string) []Module {
	if len(keys) == 0 {
		return nil
	}
	out := make([]Module, 0, len(keys))
	for _, key := range keys {
		m := s.modules[key]
		out = append(out, m.Clone())
	}
	return out
}
