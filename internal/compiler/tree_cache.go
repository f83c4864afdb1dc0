package compiler

import (
	"context"
	"sync/atomic"

	"github.com/zjrosen/catalog-engine/internal/cachemanager"
	"github.com/zjrosen/catalog-engine/internal/catalog"
	"github.com/zjrosen/catalog-engine/internal/log"
)

// rendered is what the cache stores; failures are kept too so a broken
// module is not handed to the toolkit twice in one run.
type rendered struct {
	text string
	err  error
}

type renderRequest struct {
	path string
	ok   bool
}

// TreeCache memoizes rendered trees by name@revision for the lifetime of one run.
type TreeCache struct {
	toolkit Toolkit
	locator Locator
	cache   *cachemanager.ReadThroughCache[string, rendered, renderRequest]
	renders atomic.Int64
}

// NewTreeCache creates an empty per-run cache.
func NewTreeCache(toolkit Toolkit, locator Locator) *TreeCache {
	c := &TreeCache{toolkit: toolkit, locator: locator}
	c.cache = cachemanager.NewReadThroughCache[string, rendered, renderRequest](
		cachemanager.NewInMemoryCacheManager[string, rendered]("rendered-trees", cachemanager.NoExpiration, 0),
		c.render,
		cachemanager.NoExpiration,
	)
	return c
}

// Tree returns the rendered tree for name@revision.
func (c *TreeCache) Tree(ctx context.Context, name, revision string) (string, error) {
	path, ok := c.locator.Path(name, revision)
	r, _ := c.cache.Get(ctx, catalog.Key(name, revision), renderRequest{path: path, ok: ok})
	return r.text, r.err
}

// Latest renders the newest revision of name found on disk. The result is
// cached under that file's own name@revision key.
func (c *TreeCache) Latest(ctx context.Context, name string) (string, error) {
	path, ok := c.locator.Path(name, "")
	if !ok {
		return "", ErrModuleNotFound
	}
	fileName, revision := splitFileName(path)
	r, _ := c.cache.Get(ctx, catalog.Key(fileName, revision), renderRequest{path: path, ok: true})
	return r.text, r.err
}

// Renders returns how many times the toolkit was actually invoked.
func (c *TreeCache) Renders() int64 {
	return c.renders.Load()
}

func (c *TreeCache) render(ctx context.Context, req renderRequest) (rendered, error) {
	if !req.ok {
		return rendered{err: ErrModuleNotFound}, nil
	}
	c.renders.Add(1)

	ast, err := c.toolkit.Parse(ctx, req.path)
	if err != nil {
		log.WarnErr(log.CatCompiler, "module unparsable", err, "path", req.path)
		return rendered{err: err}, nil
	}
	text, err := c.toolkit.RenderTree(ctx, ast)
	if err != nil {
		log.WarnErr(log.CatCompiler, "tree render failed", err, "path", req.path)
		return rendered{err: err}, nil
	}
	return rendered{text: text}, nil
}
