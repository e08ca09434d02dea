// Package archive reads and writes the streaming container format used for
// document exchange: an ordered sequence of named byte entries inside a
// compressed tar stream. Reading is lazy and forward-only; neither direction
// requires random access, so memory stays bounded regardless of archive size.
package archive

import (
	"errors"
	"path"
	"strings"
)

// ErrFormat reports a malformed container: bad header, truncated entry, or a
// stream that is not an archive at all. Fatal to the whole import.
var ErrFormat = errors.New("archive: malformed archive")

// NormalizeName rewrites an entry name into a clean, relative, slash-separated
// path. Traversal sequences and leading separators are resolved away by pure
// string rewriting, so a hostile name can never escape the logical namespace.
func NormalizeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	// Cleaning against a virtual root swallows any number of ".." prefixes.
	cleaned := path.Clean("/" + name)
	return strings.TrimPrefix(cleaned, "/")
}
