package treetype

import (
	"slices"
	"strings"

	"github.com/zjrosen/catalog-engine/internal/catalog"
)

const stateSuffix = "-state"

// Input is what a rule sees about one module.
type Input struct {
	Name      string
	Submodule bool
	Tree      *Tree
	// Companion returns the parsed tree of the module's non-state companion.
	// It reports false when no companion exists on disk or it cannot be rendered.
	Companion func() (*Tree, bool)
}

// Rule pairs a tree-type with the predicate that detects it.
type Rule struct {
	Type  catalog.TreeType
	Match func(in *Input) bool
}

// Rules is the classification order; the first match wins.
var Rules = []Rule{
	{Type: catalog.TreeNotApplicable, Match: IsNotApplicable},
	{Type: catalog.TreeNMDACompatible, Match: IsNMDACompatible},
	{Type: catalog.TreeOpenconfig, Match: IsOpenconfig},
	{Type: catalog.TreeSplit, Match: IsSplit},
	{Type: catalog.TreeTransitionalExtra, Match: IsTransitionalExtra},
}

// Evaluate runs rules in order and returns the first matching type, or
// unclassified when none match.
func Evaluate(rules []Rule, in *Input) catalog.TreeType {
	for _, r := range rules {
		if r.Match(in) {
			return r.Type
		}
	}
	return catalog.TreeUnclassified
}

// IsNotApplicable matches submodules and empty trees.
func IsNotApplicable(in *Input) bool {
	return in.Submodule || in.Tree == nil || in.Tree.Empty()
}

// IsNMDACompatible matches combined config/state trees: every rw "config"
// container is mirrored by an identical ro "state" sibling, the module is
// not itself a -state module, and legacy -state branches and augments of
// config/state nodes are all deprecated.
func IsNMDACompatible(in *Input) bool {
	if strings.HasSuffix(in.Name, stateSuffix) {
		return false
	}
	t := in.Tree

	for i := range t.Augments {
		a := &t.Augments[i]
		segs := a.TargetSegments()
		if len(segs) == 0 {
			continue
		}
		if last := segs[len(segs)-1]; (last == "config" || last == "state") && !a.Deprecated() {
			return false
		}
	}

	for i := range t.Nodes {
		n := &t.Nodes[i]
		if n.Depth == 0 && strings.HasSuffix(n.Name, stateSuffix) && !n.Deprecated {
			return false
		}
	}

	for _, n := range t.All() {
		if n.Name != "config" || n.Access != AccessRW || !n.Container() {
			continue
		}
		statePath := append(slices.Clone(n.parentPath()), "state")
		state, ok := t.Lookup(n.Section, statePath)
		if !ok || state.Access != AccessRO || !state.Container() {
			return false
		}
		if !slices.Equal(subtreeShape(t, n), subtreeShape(t, state)) {
			return false
		}
	}
	return true
}

// subtreeShape lists the descendants of root as relative paths tagged with
// their node kind, in tree order.
func subtreeShape(t *Tree, root *Node) []string {
	var shape []string
	for _, n := range t.All() {
		if n.Section != root.Section || n == root || n.Choice || n.Case {
			continue
		}
		if len(n.Path) <= len(root.Path) || !slices.Equal(n.Path[:len(root.Path)], root.Path) {
			continue
		}
		kind := "c"
		switch {
		case n.Leaf:
			kind = "l"
		case n.List:
			kind = "L"
		}
		shape = append(shape, kind+":"+strings.Join(n.Path[len(root.Path):], "/"))
	}
	return shape
}

// IsOpenconfig matches trees that pair every config container with a state
// container, mirror rw leaves into ro leaves under state and mirror ro leaves
// outside state into rw leaves under config.
func IsOpenconfig(in *Input) bool {
	t := in.Tree
	configs, states := 0, 0
	for _, n := range t.All() {
		if !n.Container() {
			continue
		}
		switch n.Name {
		case "config":
			configs++
		case "state":
			states++
		}
	}
	if configs == 0 || configs != states {
		return false
	}

	for _, n := range t.All() {
		if !n.Leaf || n.Access != AccessRW {
			continue
		}
		parent := n.Path[:len(n.Path)-1]
		underConfig := slices.Contains(parent, "config")

		if !underConfig {
			if !hasLeaf(t, n.Section, append(slices.Clone(parent), "state", n.Name), AccessRO) {
				return false
			}
			continue
		}
		// Direct children of a config container need a twin under the sibling state.
		if len(parent) > 0 && parent[len(parent)-1] == "config" {
			statePath := append(slices.Clone(parent[:len(parent)-1]), "state", n.Name)
			if !hasLeaf(t, n.Section, statePath, AccessRO) {
				return false
			}
		}
	}

	for _, n := range t.All() {
		if !n.Leaf || n.Access != AccessRO {
			continue
		}
		parent := n.Path[:len(n.Path)-1]
		if slices.Contains(parent, "state") {
			continue
		}
		if !hasLeaf(t, n.Section, append(slices.Clone(parent), "config", n.Name), AccessRW) {
			return false
		}
	}
	return true
}

func hasLeaf(t *Tree, section int, path []string, access Access) bool {
	n, ok := t.Lookup(section, path)
	return ok && n.Leaf && (access == AccessNone || n.Access == access)
}

// IsSplit matches modules that keep config and state data in separate
// trees without mixing the two on any path.
func IsSplit(in *Input) bool {
	if strings.HasSuffix(in.Name, stateSuffix) {
		return false
	}
	t := in.Tree

	for i := range t.Augments {
		for _, seg := range t.Augments[i].TargetSegments() {
			if seg == "state" || seg == "config" {
				return false
			}
		}
	}

	for _, n := range t.All() {
		if slices.Contains(n.Path, "config") && slices.Contains(n.Path, "state") {
			return false
		}
		if n.Container() {
			if n.Name == "config" && n.Access == AccessRO {
				return false
			}
			if n.Name == "state" && n.Access == AccessRW {
				return false
			}
			// config and state side by side under one parent is the combined layout.
			if n.Name == "config" {
				if _, ok := t.Lookup(n.Section, append(slices.Clone(n.parentPath()), "state")); ok {
					return false
				}
			}
		}
		if !n.Augment && n.Access == AccessRW && len(n.Path) > 1 && strings.HasSuffix(n.Path[0], stateSuffix) {
			return false
		}
	}
	return true
}

// IsTransitionalExtra matches read-only -state modules whose leaves all exist
// in the companion module of the same name without the suffix.
func IsTransitionalExtra(in *Input) bool {
	if !strings.HasSuffix(in.Name, stateSuffix) || in.Companion == nil {
		return false
	}
	t := in.Tree
	for _, n := range t.All() {
		if n.Access == AccessRW {
			return false
		}
	}

	companion, ok := in.Companion()
	if !ok {
		return false
	}

	for _, n := range t.All() {
		if !n.Leaf || n.Access != AccessRO {
			continue
		}
		path := make([]string, len(n.Path))
		for i, seg := range n.Path {
			path[i] = strings.TrimSuffix(seg, stateSuffix)
		}
		if !companionHasLeaf(companion, path) {
			return false
		}
	}
	return true
}

func companionHasLeaf(t *Tree, path []string) bool {
	for section := 0; section <= len(t.Augments); section++ {
		if hasLeaf(t, section, path, AccessNone) {
			return true
		}
	}
	return false
}
