package treetype

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/catalog-engine/internal/catalog"
)

type fakeTrees struct {
	trees   map[string]string
	latest  map[string]string
	latestN int
}

func (f *fakeTrees) Tree(_ context.Context, name, revision string) (string, error) {
	text, ok := f.trees[catalog.Key(name, revision)]
	if !ok {
		return "", errors.New("render failed")
	}
	return text, nil
}

func (f *fakeTrees) Latest(_ context.Context, name string) (string, error) {
	f.latestN++
	text, ok := f.latest[name]
	if !ok {
		return "", errors.New("not on disk")
	}
	return text, nil
}

func TestClassifier_Classify(t *testing.T) {
	src := &fakeTrees{
		trees: map[string]string{
			"ietf-interfaces@2018-02-20": nmdaTree,
			"foo-state@2020-01-01":       stateTree,
			"empty@2020-01-01":           "module: empty\n",
		},
		latest: map[string]string{"foo": companionTree},
	}
	c := NewClassifier(src)
	ctx := context.Background()

	tests := []struct {
		name string
		mod  catalog.Module
		want catalog.TreeType
	}{
		{
			name: "nmda",
			mod:  catalog.Module{Name: "ietf-interfaces", Revision: "2018-02-20"},
			want: catalog.TreeNMDACompatible,
		},
		{
			name: "transitional extra renders companion",
			mod:  catalog.Module{Name: "foo-state", Revision: "2020-01-01"},
			want: catalog.TreeTransitionalExtra,
		},
		{
			name: "empty tree",
			mod:  catalog.Module{Name: "empty", Revision: "2020-01-01"},
			want: catalog.TreeNotApplicable,
		},
		{
			name: "render failure",
			mod:  catalog.Module{Name: "broken", Revision: "2020-01-01"},
			want: catalog.TreeUnclassified,
		},
		{
			name: "submodule skips rendering",
			mod:  catalog.Module{Name: "broken", Revision: "2020-01-01", ModuleType: catalog.TypeSubmodule},
			want: catalog.TreeNotApplicable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, c.Classify(ctx, &tt.mod))
		})
	}
	require.Equal(t, 1, src.latestN)
}
