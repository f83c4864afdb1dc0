package semver

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/zjrosen/catalog-engine/internal/catalog"
	"github.com/zjrosen/catalog-engine/internal/compiler"
)

type fakeTrees map[string]string

func (f fakeTrees) Tree(_ context.Context, name, revision string) (string, error) {
	text, ok := f[catalog.Key(name, revision)]
	if !ok {
		return "", compiler.ErrModuleNotFound
	}
	return text, nil
}

// fakeChecker reports errors for new schemas listed in incompatible and
// fails outright for those listed in broken.
type fakeChecker struct {
	incompatible map[string]bool
	broken       map[string]bool
	calls        int
}

func (f *fakeChecker) CheckBackwardCompatible(_ context.Context, _, newSchema string) ([]compiler.CompatError, error) {
	f.calls++
	if f.broken[newSchema] {
		return nil, compiler.ErrCheckFailed
	}
	if f.incompatible[newSchema] {
		return []compiler.CompatError{{File: newSchema, Line: 1, Message: "node removed"}}, nil
	}
	return nil, nil
}

func rev(name, revision string, status catalog.CompilationStatus, version string) catalog.Module {
	return catalog.Module{
		Name:                   name,
		Revision:               revision,
		CompilationStatus:      status,
		DerivedSemanticVersion: version,
		Schema:                 "https://example.org/" + catalog.Key(name, revision) + ".yang",
	}
}

const tree = "module: foo\n  +--rw a?   string\n"

func targets(keys ...string) map[string]bool {
	out := make(map[string]bool, len(keys))
	for _, k := range keys {
		out[k] = true
	}
	return out
}

func TestDeriveChain_FirstRevision(t *testing.T) {
	d := NewDeriver(fakeTrees{}, &fakeChecker{})
	chain := []catalog.Module{rev("foo", "2020-01-01", catalog.CompilationPassed, "")}

	got := d.DeriveChain(context.Background(), chain, targets("foo@2020-01-01"), false)
	require.Equal(t, map[string]string{"foo@2020-01-01": "1.0.0"}, got)
}

func TestDeriveChain_AppendIdenticalTree(t *testing.T) {
	trees := fakeTrees{"foo@2020-01-01": tree, "foo@2021-01-01": tree}
	d := NewDeriver(trees, &fakeChecker{})
	chain := []catalog.Module{
		rev("foo", "2020-01-01", catalog.CompilationPassed, "1.0.0"),
		rev("foo", "2021-01-01", catalog.CompilationPassed, ""),
	}

	got := d.DeriveChain(context.Background(), chain, targets("foo@2021-01-01"), false)
	require.Equal(t, map[string]string{"foo@2021-01-01": "1.0.1"}, got)
}

func TestDeriveChain_AppendFailedCompilation(t *testing.T) {
	checker := &fakeChecker{}
	d := NewDeriver(fakeTrees{}, checker)
	chain := []catalog.Module{
		rev("foo", "2020-01-01", catalog.CompilationPassed, "1.0.0"),
		rev("foo", "2021-01-01", catalog.CompilationFailed, ""),
	}

	got := d.DeriveChain(context.Background(), chain, targets("foo@2021-01-01"), false)
	require.Equal(t, "2.0.0", got["foo@2021-01-01"])
	require.Zero(t, checker.calls)
}

func TestStep(t *testing.T) {
	prevTree := "module: foo\n  +--rw a?   string\n"
	newTree := "module: foo\n  +--rw a?   string\n  +--rw b?   string\n"

	tests := []struct {
		name       string
		prevStatus catalog.CompilationStatus
		curStatus  catalog.CompilationStatus
		curTree    string
		checker    *fakeChecker
		want       Bump
	}{
		{name: "identical", curTree: prevTree, want: BumpPatch},
		{name: "tree grew", curTree: newTree, want: BumpMinor},
		{name: "predecessor failed", prevStatus: catalog.CompilationFailed, curTree: prevTree, want: BumpMajor},
		{name: "warnings count as not passed", curStatus: catalog.CompilationPassedWithWarnings, curTree: prevTree, want: BumpMajor},
		{
			name:    "incompatible",
			curTree: prevTree,
			checker: &fakeChecker{incompatible: map[string]bool{"https://example.org/foo@2021-01-01.yang": true}},
			want:    BumpMajor,
		},
		{
			name:    "checker raised",
			curTree: prevTree,
			checker: &fakeChecker{broken: map[string]bool{"https://example.org/foo@2021-01-01.yang": true}},
			want:    BumpMajor,
		},
		{name: "tree not renderable", curTree: "", want: BumpMinor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.prevStatus == "" {
				tt.prevStatus = catalog.CompilationPassed
			}
			if tt.curStatus == "" {
				tt.curStatus = catalog.CompilationPassed
			}
			if tt.checker == nil {
				tt.checker = &fakeChecker{}
			}
			trees := fakeTrees{"foo@2020-01-01": prevTree}
			if tt.curTree != "" {
				trees["foo@2021-01-01"] = tt.curTree
			}
			p := rev("foo", "2020-01-01", tt.prevStatus, "1.0.0")
			m := rev("foo", "2021-01-01", tt.curStatus, "")

			require.Equal(t, tt.want, NewDeriver(trees, tt.checker).Step(context.Background(), &p, &m))
		})
	}
}

func TestDeriveChain_MidChainInsertion(t *testing.T) {
	trees := fakeTrees{"foo@2019-01-01": tree, "foo@2020-01-01": tree, "foo@2021-01-01": tree}
	d := NewDeriver(trees, &fakeChecker{})
	chain := []catalog.Module{
		rev("foo", "2019-01-01", catalog.CompilationPassed, "1.0.0"),
		rev("foo", "2020-01-01", catalog.CompilationPassed, ""),
		rev("foo", "2021-01-01", catalog.CompilationPassed, "1.0.1"),
	}

	got := d.DeriveChain(context.Background(), chain, targets("foo@2020-01-01"), false)
	require.Equal(t, map[string]string{
		"foo@2020-01-01": "1.0.1",
		"foo@2021-01-01": "1.0.2",
	}, got)
}

func TestDeriveChain_PredecessorWithoutVersion(t *testing.T) {
	trees := fakeTrees{"foo@2019-01-01": tree, "foo@2020-01-01": tree}
	d := NewDeriver(trees, &fakeChecker{})
	chain := []catalog.Module{
		rev("foo", "2019-01-01", catalog.CompilationPassed, ""),
		rev("foo", "2020-01-01", catalog.CompilationPassed, ""),
	}

	got := d.DeriveChain(context.Background(), chain, targets("foo@2020-01-01"), false)
	require.Equal(t, map[string]string{"foo@2019-01-01": "1.0.0", "foo@2020-01-01": "1.0.1"}, got)
}

func TestDeriveChain_NoTargets(t *testing.T) {
	d := NewDeriver(fakeTrees{}, &fakeChecker{})
	chain := []catalog.Module{rev("foo", "2020-01-01", catalog.CompilationPassed, "1.0.0")}
	require.Nil(t, d.DeriveChain(context.Background(), chain, targets("bar@2020-01-01"), false))
	require.Nil(t, d.DeriveChain(context.Background(), nil, nil, true))
}

func TestDeriveChain_FullIgnoresRecordedVersions(t *testing.T) {
	trees := fakeTrees{"foo@2019-01-01": tree, "foo@2020-01-01": tree}
	d := NewDeriver(trees, &fakeChecker{})
	chain := []catalog.Module{
		rev("foo", "2019-01-01", catalog.CompilationPassed, "4.0.0"),
		rev("foo", "2020-01-01", catalog.CompilationPassed, "9.9.9"),
	}

	got := d.DeriveChain(context.Background(), chain, nil, true)
	require.Equal(t, map[string]string{"foo@2019-01-01": "1.0.0", "foo@2020-01-01": "1.0.1"}, got)
}

var statuses = []catalog.CompilationStatus{
	catalog.CompilationPassed,
	catalog.CompilationPassedWithWarnings,
	catalog.CompilationFailed,
	catalog.CompilationPending,
	catalog.CompilationUnknown,
}

func TestDeriveChain_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 12).Draw(t, "len")
		trees := fakeTrees{}
		checker := &fakeChecker{incompatible: map[string]bool{}, broken: map[string]bool{}}
		chain := make([]catalog.Module, n)
		for i := range chain {
			r := fmt.Sprintf("%d-01-01", 2000+i)
			chain[i] = rev("foo", r, rapid.SampledFrom(statuses).Draw(t, "status"), "")
			if rapid.Bool().Draw(t, "renders") {
				trees[chain[i].Key()] = fmt.Sprintf("tree %d", rapid.IntRange(0, 2).Draw(t, "shape"))
			}
			checker.incompatible[chain[i].Schema] = rapid.IntRange(0, 4).Draw(t, "incompatible") == 0
			checker.broken[chain[i].Schema] = rapid.IntRange(0, 9).Draw(t, "broken") == 0
		}

		got := NewDeriver(trees, checker).DeriveChain(context.Background(), chain, nil, true)
		if got[chain[0].Key()] != "1.0.0" {
			t.Fatalf("earliest revision got %s", got[chain[0].Key()])
		}
		prev := Initial
		for i := 1; i < n; i++ {
			v, err := Parse(got[chain[i].Key()])
			if err != nil {
				t.Fatal(err)
			}
			if v.Compare(prev) <= 0 {
				t.Fatalf("version %s at %d does not follow %s", v, i, prev)
			}
			if !chain[i-1].CompilationStatus.Passed() && v.Major != prev.Major+1 {
				t.Fatalf("failed predecessor must force a major bump, got %s after %s", v, prev)
			}
			prev = v
		}
	})
}

func TestStep_CheckerErrorIsNotFatal(t *testing.T) {
	checker := &fakeChecker{broken: map[string]bool{}}
	d := NewDeriver(fakeTrees{}, checker)
	p := rev("foo", "2020-01-01", catalog.CompilationPassed, "1.0.0")
	m := rev("foo", "2021-01-01", catalog.CompilationPassed, "")
	checker.broken[m.Schema] = true

	require.Equal(t, BumpMajor, d.Step(context.Background(), &p, &m))
	require.Equal(t, 1, checker.calls)
}
