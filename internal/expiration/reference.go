package expiration

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	twoDigits      = regexp.MustCompile(`^\d{2}$`)
	draftWithIssue = regexp.MustCompile(`^(draft-.+)-(\d{2})$`)
)

// ParseReference extracts the document name and optional version from a
// tracker reference such as https://tracker.example/doc/draft-foo/05/ or
// https://tracker.example/html/draft-foo-05.txt.
func ParseReference(ref string) (name, version string, ok bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", "", false
	}

	path := ref
	if u, err := url.Parse(ref); err == nil && u.Host != "" {
		path = u.Path
	}
	var segs []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	if len(segs) == 0 {
		return "", "", false
	}

	last := segs[len(segs)-1]
	for _, ext := range []string{".txt", ".html", ".xml"} {
		last = strings.TrimSuffix(last, ext)
	}

	if twoDigits.MatchString(last) && len(segs) > 1 {
		return segs[len(segs)-2], last, true
	}
	if m := draftWithIssue.FindStringSubmatch(last); m != nil {
		return m[1], m[2], true
	}
	return last, "", true
}
