package bridge

import (
	"path/filepath"
	"strings"
)

// Denylist holds filename patterns whose contents are known to crash the
// analyzer. The bridge consults it before issuing a request and skips the
// subprocess entirely on a match. This is a stopgap for unfixed analyzer
// bugs, not a principled design: entries should be removed as the
// underlying crashes are fixed upstream.
type Denylist struct {
	patterns []string
}

// NewDenylist creates a denylist from glob patterns and path substrings.
func NewDenylist(patterns []string) *Denylist {
	return &Denylist{patterns: patterns}
}

// Blocked reports whether the given filename matches any denylist entry.
// A pattern matches either as a glob against the base name (e.g.
// "*.rxml.pike") or as a plain substring of the full path.
func (d *Denylist) Blocked(filename string) bool {
	if filename == "" {
		return false
	}
	base := filepath.Base(filename)
	for _, pattern := range d.patterns {
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
		if strings.Contains(filename, pattern) {
			return true
		}
	}
	return false
}

// Empty reports whether the denylist has no entries.
func (d *Denylist) Empty() bool {
	return len(d.patterns) == 0
}
