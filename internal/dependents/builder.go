// Package dependents maintains the inverse "used-by" edges of the catalog's
// dependency graph.
package dependents

import (
	"cmp"
	"slices"

	"github.com/zjrosen/catalog-engine/internal/catalog"
	"github.com/zjrosen/catalog-engine/internal/log"
)

// Builder computes missing dependents edges against a snapshot.
type Builder struct {
	snap *catalog.Snapshot
}

// NewBuilder creates a builder reading snap.
func NewBuilder(snap *catalog.Snapshot) *Builder {
	return &Builder{snap: snap}
}

// Build returns, per name@revision, the dependents that must be added for
// the working set. Edges already present in the snapshot are not returned
// and every edge appears at most once however often a module is listed.
func (b *Builder) Build(working []catalog.Module) map[string][]catalog.Dependency {
	added := make(map[string]map[catalog.Dependency]bool)
	add := func(target *catalog.Module, d catalog.Dependency) {
		if target.HasDependent(d) {
			return
		}
		set, ok := added[target.Key()]
		if !ok {
			set = make(map[catalog.Dependency]bool)
			added[target.Key()] = set
		}
		set[d] = true
	}

	for i := range working {
		m := &working[i]

		// Forward: everything m uses learns about m.
		for _, dep := range m.Dependencies {
			targets := b.snap.Revisions(dep.Name, dep.Revision)
			if len(targets) == 0 {
				log.Debug(log.CatDeps, "dependency not in catalog", "module", m.Key(), "dependency", dep.String())
			}
			for j := range targets {
				add(&targets[j], m.AsDependent())
			}
		}

		// Inverse: m learns about everything already using it.
		self, ok := b.snap.Get(m.Key())
		if !ok {
			self = m.Clone()
		}
		for _, y := range b.snap.Dependers(m.Name) {
			if references(&y, m) {
				add(&self, y.AsDependent())
			}
		}
	}

	out := make(map[string][]catalog.Dependency, len(added))
	for key, set := range added {
		deps := make([]catalog.Dependency, 0, len(set))
		for d := range set {
			deps = append(deps, d)
		}
		slices.SortFunc(deps, compareDependency)
		out[key] = deps
	}
	log.Debug(log.CatDeps, "dependents computed", "working_set", len(working), "records", len(out))
	return out
}

// references reports whether y declares a dependency satisfied by m.
func references(y, m *catalog.Module) bool {
	for _, dep := range y.Dependencies {
		if dep.Name == m.Name && (dep.Revision == "" || dep.Revision == m.Revision) {
			return true
		}
	}
	return false
}

func compareDependency(a, b catalog.Dependency) int {
	if c := cmp.Compare(a.Name, b.Name); c != 0 {
		return c
	}
	if c := catalog.CompareRevisions(a.Revision, b.Revision); c != 0 {
		return c
	}
	return cmp.Compare(a.Schema, b.Schema)
}
