package compiler

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/zjrosen/catalog-engine/internal/catalog"
)

// Locator finds module files on disk.
type Locator interface {
	// Path returns the file for name@revision, or the newest revision of
	// name when revision is empty.
	Path(name, revision string) (string, bool)
	// Resolve maps a schema reference (URL or path) to a local file path.
	Resolve(schemaRef string) string
}

// DirLocator looks up modules stored flat in one directory as name@revision.yang.
type DirLocator struct {
	dir string
}

// NewDirLocator creates a locator over dir.
func NewDirLocator(dir string) *DirLocator {
	return &DirLocator{dir: dir}
}

// Dir returns the modules directory.
func (l *DirLocator) Dir() string {
	return l.dir
}

// Path implements Locator.
func (l *DirLocator) Path(name, revision string) (string, bool) {
	if revision != "" {
		p := filepath.Join(l.dir, catalog.Key(name, revision)+".yang")
		return p, fileExists(p)
	}

	matches, _ := filepath.Glob(filepath.Join(l.dir, name+"@*.yang"))
	best, bestRev := "", ""
	for _, m := range matches {
		_, rev := splitFileName(m)
		if best == "" || catalog.CompareRevisions(rev, bestRev) > 0 {
			best, bestRev = m, rev
		}
	}
	if best != "" {
		return best, true
	}
	p := filepath.Join(l.dir, name+".yang")
	return p, fileExists(p)
}

// Resolve implements Locator. URLs map to their last path segment inside the
// modules directory; existing local paths are returned unchanged.
func (l *DirLocator) Resolve(schemaRef string) string {
	if u, err := url.Parse(schemaRef); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		return filepath.Join(l.dir, filepath.Base(u.Path))
	}
	if filepath.IsAbs(schemaRef) && fileExists(schemaRef) {
		return schemaRef
	}
	return filepath.Join(l.dir, filepath.Base(schemaRef))
}

// splitFileName extracts name and revision from .../name@revision.yang.
func splitFileName(path string) (name, revision string) {
	base := strings.TrimSuffix(filepath.Base(path), ".yang")
	name, revision, _ = strings.Cut(base, "@")
	return name, revision
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
