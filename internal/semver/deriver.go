package semver

import (
	"context"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/zjrosen/catalog-engine/internal/catalog"
	"github.com/zjrosen/catalog-engine/internal/compiler"
	"github.com/zjrosen/catalog-engine/internal/log"
)

// TreeSource supplies rendered trees, normally the run's tree cache.
type TreeSource interface {
	Tree(ctx context.Context, name, revision string) (string, error)
}

// Checker runs the backward-compatibility check between two schemas.
type Checker interface {
	CheckBackwardCompatible(ctx context.Context, oldSchema, newSchema string) ([]compiler.CompatError, error)
}

// Deriver computes derived-semantic-version values.
type Deriver struct {
	trees   TreeSource
	checker Checker
	dmp     *diffmatchpatch.DiffMatchPatch
}

// NewDeriver creates a deriver.
func NewDeriver(trees TreeSource, checker Checker) *Deriver {
	return &Deriver{trees: trees, checker: checker, dmp: diffmatchpatch.New()}
}

// Step decides how m differs from its immediate predecessor p.
func (d *Deriver) Step(ctx context.Context, p, m *catalog.Module) Bump {
	if !m.CompilationStatus.Passed() {
		log.Debug(log.CatSemver, "revision did not compile", "module", m.Key(), "status", m.CompilationStatus)
		return BumpMajor
	}
	if !p.CompilationStatus.Passed() {
		log.Debug(log.CatSemver, "predecessor did not compile", "module", m.Key(), "predecessor", p.Key())
		return BumpMajor
	}

	compatErrs, err := d.checker.CheckBackwardCompatible(ctx, p.Schema, m.Schema)
	if err != nil {
		log.WarnErr(log.CatSemver, "compatibility check failed, assuming incompatible", err,
			"module", m.Key(), "predecessor", p.Key())
		return BumpMajor
	}
	if len(compatErrs) > 0 {
		log.Debug(log.CatSemver, "incompatible revision", "module", m.Key(), "errors", len(compatErrs),
			"first", compatErrs[0].String())
		return BumpMajor
	}

	if d.sameTree(ctx, p, m) {
		return BumpPatch
	}
	return BumpMinor
}

// sameTree reports whether both rendered trees are identical line by line.
// A tree that cannot be rendered never counts as identical.
func (d *Deriver) sameTree(ctx context.Context, p, m *catalog.Module) bool {
	prev, err := d.trees.Tree(ctx, p.Name, p.Revision)
	if err != nil {
		return false
	}
	cur, err := d.trees.Tree(ctx, m.Name, m.Revision)
	if err != nil {
		return false
	}

	a, b, lines := d.dmp.DiffLinesToChars(prev, cur)
	diffs := d.dmp.DiffCharsToLines(d.dmp.DiffMain(a, b, false), lines)

	added, removed := 0, 0
	for _, diff := range diffs {
		switch diff.Type {
		case diffmatchpatch.DiffInsert:
			added++
		case diffmatchpatch.DiffDelete:
			removed++
		}
	}
	if added+removed > 0 {
		log.Debug(log.CatSemver, "trees differ", "module", m.Key(), "predecessor", p.Key(),
			"inserted_hunks", added, "deleted_hunks", removed)
		return false
	}
	return true
}

// DeriveChain derives versions for chain members, sorted ascending by
// revision. With all set every member is derived from the start of the
// chain. Otherwise targets names the members that changed this run:
// when they all sit at the tail of the chain only they are derived,
// building on the recorded version of the member before them; a target
// in the middle of the chain re-derives it and every later member.
// The result maps name@revision to the derived version.
func (d *Deriver) DeriveChain(ctx context.Context, chain []catalog.Module, targets map[string]bool, all bool) map[string]string {
	if len(chain) == 0 {
		return nil
	}

	first := -1
	if all {
		first = 0
	} else {
		for i := range chain {
			if targets[chain[i].Key()] {
				first = i
				break
			}
		}
	}
	if first < 0 {
		return nil
	}

	if first > 0 {
		if _, err := Parse(chain[first-1].DerivedSemanticVersion); err != nil {
			log.Debug(log.CatSemver, "predecessor has no usable version, deriving whole chain",
				"module", chain[first].Key(), "predecessor", chain[first-1].Key())
			first = 0
		}
	}

	if !all && first > 0 && isTail(chain, first, targets) {
		return d.appendTail(ctx, chain, first, targets)
	}
	return d.insertFrom(ctx, chain, first)
}

// isTail reports whether every member from first on is a target.
func isTail(chain []catalog.Module, first int, targets map[string]bool) bool {
	for i := first; i < len(chain); i++ {
		if !targets[chain[i].Key()] {
			return false
		}
	}
	return true
}

// appendTail derives only the appended targets, one after another, starting
// from the predecessor's recorded version.
func (d *Deriver) appendTail(ctx context.Context, chain []catalog.Module, first int, targets map[string]bool) map[string]string {
	out := make(map[string]string)
	prev, _ := Parse(chain[first-1].DerivedSemanticVersion)
	for i := first; i < len(chain); i++ {
		if !targets[chain[i].Key()] {
			break
		}
		bump := d.Step(ctx, &chain[i-1], &chain[i])
		prev = prev.Apply(bump)
		out[chain[i].Key()] = prev.String()
		log.Debug(log.CatSemver, "appended revision", "module", chain[i].Key(), "bump", bump, "version", prev)
	}
	return out
}

// insertFrom re-derives every member from index first to the end of the chain.
func (d *Deriver) insertFrom(ctx context.Context, chain []catalog.Module, first int) map[string]string {
	out := make(map[string]string, len(chain)-first)

	var prev Version
	if first == 0 {
		prev = Initial
		out[chain[0].Key()] = prev.String()
		first = 1
	} else {
		prev, _ = Parse(chain[first-1].DerivedSemanticVersion)
	}

	for i := first; i < len(chain); i++ {
		bump := d.Step(ctx, &chain[i-1], &chain[i])
		prev = prev.Apply(bump)
		out[chain[i].Key()] = prev.String()
		log.Debug(log.CatSemver, "derived revision", "module", chain[i].Key(), "bump", bump, "version", prev)
	}
	return out
}
