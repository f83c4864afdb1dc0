package watcher

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/zjrosen/catalog-engine/internal/catalog"
	"github.com/zjrosen/catalog-engine/internal/log"
)

// Drain reads every spool file in dir, removes it and returns the module
// keys it named, deduplicated and in file order. Lines are name@revision;
// blank lines and lines starting with # are ignored. Malformed lines are
// logged and skipped. A file that cannot be removed is still returned so the
// keys are not lost; it will be read again on the next drain.
func Drain(dir string) ([]catalog.ModuleKey, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*"+SpoolExt))
	if err != nil {
		return nil, fmt.Errorf("listing spool: %w", err)
	}
	slices.Sort(files)

	var keys []catalog.ModuleKey
	seen := make(map[string]bool)
	var errs []error
	for _, path := range files {
		fileKeys, err := readSpoolFile(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, k := range fileKeys {
			if seen[k.Key()] {
				continue
			}
			seen[k.Key()] = true
			keys = append(keys, k)
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.WarnErr(log.CatWatch, "failed to remove spool file", err, "file", path)
		}
	}
	return keys, errors.Join(errs...)
}

func readSpoolFile(path string) ([]catalog.ModuleKey, error) {
	f, err := os.Open(path) // #nosec G304 -- path comes from the spool glob
	if err != nil {
		return nil, fmt.Errorf("opening spool file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var keys []catalog.ModuleKey
	sc := bufio.NewScanner(f)
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		k, err := catalog.ParseKey(text)
		if err != nil {
			log.Warn(log.CatWatch, "skipping malformed spool line", "file", filepath.Base(path), "line", line, "error", err)
			continue
		}
		keys = append(keys, k)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading spool file %s: %w", path, err)
	}
	return keys, nil
}
