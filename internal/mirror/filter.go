package mirror

import (
	"fmt"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Filter decides which remote entries take part in a mirror. Patterns are
// doublestar globs matched against the path relative to the remote root and
// against the bare name.
type Filter struct {
	include []string
	exclude []string
}

func NewFilter(include, exclude []string) (*Filter, error) {
	for _, p := range append(append([]string{}, include...), exclude...) {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid pattern %q", p)
		}
	}
	return &Filter{include: include, exclude: exclude}, nil
}

// ExcludesDir reports whether a whole subtree is skipped.
func (f *Filter) ExcludesDir(rel string) bool {
	if f == nil {
		return false
	}
	return matchAny(f.exclude, rel)
}

// IncludesFile reports whether a file is transferred.
func (f *Filter) IncludesFile(rel string) bool {
	if f == nil {
		return true
	}
	if matchAny(f.exclude, rel) {
		return false
	}
	if len(f.include) == 0 {
		return true
	}
	return matchAny(f.include, rel)
}

func matchAny(patterns []string, rel string) bool {
	rel = strings.TrimPrefix(rel, "/")
	base := path.Base(rel)
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
		if ok, _ := doublestar.Match(p, base); ok {
			return true
		}
	}
	return false
}
