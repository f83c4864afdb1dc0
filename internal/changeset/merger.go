// Package changeset folds resolver outputs into the minimal set of partial
// record updates against the run snapshot.
package changeset

import (
	"slices"

	"github.com/zjrosen/catalog-engine/internal/catalog"
	"github.com/zjrosen/catalog-engine/internal/log"
)

// Merger accumulates deltas. It is owned by a single goroutine.
type Merger struct {
	snap    *catalog.Snapshot
	changes catalog.ChangeSet
}

// NewMerger creates a merger comparing against snap.
func NewMerger(snap *catalog.Snapshot) *Merger {
	return &Merger{snap: snap, changes: make(catalog.ChangeSet)}
}

// delta returns the pending delta for key along with the snapshot record.
func (m *Merger) delta(key string) (*catalog.Delta, catalog.Module, bool) {
	rec, ok := m.snap.Get(key)
	if !ok {
		log.Warn(log.CatMerge, "resolver output for unknown record dropped", "module", key)
		return nil, rec, false
	}
	d, ok := m.changes[key]
	if !ok {
		d = catalog.NewDelta(&rec)
		m.changes[key] = d
	}
	return d, rec, true
}

// AddTreeTypes records tree-types that differ from the snapshot.
func (m *Merger) AddTreeTypes(types map[string]catalog.TreeType) {
	for key, tt := range types {
		d, rec, ok := m.delta(key)
		if !ok || rec.TreeType == tt {
			continue
		}
		d.TreeType = &tt
	}
}

// AddVersions records derived versions that differ from the snapshot.
func (m *Merger) AddVersions(versions map[string]string) {
	for key, v := range versions {
		d, rec, ok := m.delta(key)
		if !ok || rec.DerivedSemanticVersion == v {
			continue
		}
		d.DerivedSemanticVersion = &v
	}
}

// AddDependents unions edges into each record's dependents. The delta
// carries the complete union so the record's existing entries survive.
func (m *Merger) AddDependents(edges map[string][]catalog.Dependency) {
	for key, deps := range edges {
		d, rec, ok := m.delta(key)
		if !ok {
			continue
		}
		union := d.Dependents
		if union == nil {
			union = slices.Clone(rec.Dependents)
		}
		for _, dep := range deps {
			if !slices.Contains(union, dep) {
				union = append(union, dep)
			}
		}
		if len(union) > len(rec.Dependents) {
			d.Dependents = union
		}
	}
}

// AddExpirations records expiration changes. An expires value that must
// disappear becomes an explicit delete.
func (m *Merger) AddExpirations(exps map[string]catalog.Expiration) {
	for key, e := range exps {
		d, rec, ok := m.delta(key)
		if !ok {
			continue
		}
		if e.Expired != "" && rec.Expired != e.Expired {
			expired := e.Expired
			d.Expired = &expired
		}
		switch {
		case e.Expires == nil && rec.Expires != nil:
			d.DeleteExpires = true
		case e.Expires != nil && (rec.Expires == nil || !rec.Expires.Equal(*e.Expires)):
			t := *e.Expires
			d.Expires = &t
		}
	}
}

// ChangeSet returns the non-empty deltas.
func (m *Merger) ChangeSet() catalog.ChangeSet {
	out := make(catalog.ChangeSet, len(m.changes))
	for key, d := range m.changes {
		if d.Empty() {
			continue
		}
		out[key] = d
	}
	log.Debug(log.CatMerge, "change set computed", "touched", len(m.changes), "changed", len(out))
	return out
}
