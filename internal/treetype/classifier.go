package treetype

import (
	"context"
	"strings"

	"github.com/zjrosen/catalog-engine/internal/catalog"
	"github.com/zjrosen/catalog-engine/internal/log"
)

// TreeSource supplies rendered trees, normally the run's tree cache.
type TreeSource interface {
	Tree(ctx context.Context, name, revision string) (string, error)
	Latest(ctx context.Context, name string) (string, error)
}

// Classifier assigns tree-types to catalog records.
type Classifier struct {
	trees TreeSource
	rules []Rule
}

// NewClassifier creates a classifier using the default rule order.
func NewClassifier(trees TreeSource) *Classifier {
	return &Classifier{trees: trees, rules: Rules}
}

// Classify renders m's tree and evaluates the rules. Failures to render never
// propagate: they produce unclassified, or not-applicable for submodules.
func (c *Classifier) Classify(ctx context.Context, m *catalog.Module) catalog.TreeType {
	if m.IsSubmodule() {
		return catalog.TreeNotApplicable
	}

	text, err := c.trees.Tree(ctx, m.Name, m.Revision)
	if err != nil {
		log.Debug(log.CatTreeType, "no tree, unclassified", "module", m.Key(), "error", err)
		return catalog.TreeUnclassified
	}

	in := &Input{
		Name: m.Name,
		Tree: ParseTree(text),
	}
	if base, ok := strings.CutSuffix(m.Name, stateSuffix); ok {
		in.Companion = func() (*Tree, bool) {
			text, err := c.trees.Latest(ctx, base)
			if err != nil {
				log.Debug(log.CatTreeType, "companion unavailable", "module", m.Key(), "companion", base, "error", err)
				return nil, false
			}
			return ParseTree(text), true
		}
	}

	tt := Evaluate(c.rules, in)
	log.Debug(log.CatTreeType, "classified", "module", m.Key(), "tree_type", tt)
	return tt
}
