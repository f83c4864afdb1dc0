package engine

import (
	"slices"

	"github.com/zjrosen/catalog-engine/internal/catalog"
	"github.com/zjrosen/catalog-engine/internal/log"
)

// workingSet is what one run reprocesses.
type workingSet struct {
	// modules are the records every phase looks at, ordered by key.
	modules []catalog.Module
	// targets are the records that changed this run; semver derives their
	// chains. Nil in full mode.
	targets map[string]bool
	// chains names every revision chain semver walks.
	chains []string
}

// fullSet covers the whole catalog.
func fullSet(snap *catalog.Snapshot) *workingSet {
	ws := &workingSet{modules: snap.Modules()}
	seen := make(map[string]bool)
	for i := range ws.modules {
		if name := ws.modules[i].Name; !seen[name] {
			seen[name] = true
			ws.chains = append(ws.chains, name)
		}
	}
	slices.Sort(ws.chains)
	return ws
}

// incrementalSet covers keys plus the records they touch: the targets of
// their dependencies and the records depending on them. Keys missing from
// the snapshot are skipped.
func incrementalSet(snap *catalog.Snapshot, keys []catalog.ModuleKey) *workingSet {
	ws := &workingSet{targets: make(map[string]bool)}
	include := make(map[string]bool)
	chains := make(map[string]bool)

	for _, k := range keys {
		m, ok := snap.Get(k.Key())
		if !ok {
			log.Warn(log.CatEngine, "module not in catalog, skipping", "module", k.Key())
			continue
		}
		ws.targets[m.Key()] = true
		include[m.Key()] = true
		chains[m.Name] = true

		for _, dep := range m.Dependencies {
			for _, target := range snap.Revisions(dep.Name, dep.Revision) {
				include[target.Key()] = true
			}
		}
		for _, y := range snap.Dependers(m.Name) {
			include[y.Key()] = true
		}
	}

	for _, key := range snap.Keys() {
		if include[key] {
			m, _ := snap.Get(key)
			ws.modules = append(ws.modules, m)
		}
	}
	for name := range chains {
		ws.chains = append(ws.chains, name)
	}
	slices.Sort(ws.chains)
	return ws
}
