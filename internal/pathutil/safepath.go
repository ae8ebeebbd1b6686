// Package pathutil validates slash-separated object key prefixes.
package pathutil

import (
	"strings"

	"github.com/aastar/faucet/internal/xerrors"
)

// HasDotSegments reports whether any path segment is "." or "..".
func HasDotSegments(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if seg == "." || seg == ".." {
			return true
		}
	}
	return false
}

// CleanPrefix normalizes an object key prefix: surrounding slashes are
// trimmed and runs of slashes collapse. Dot segments and backslashes are
// rejected. An empty prefix is valid.
func CleanPrefix(p string) (string, error) {
	p = strings.TrimSpace(p)
	if strings.ContainsRune(p, '\\') {
		return "", xerrors.Newf("prefix %q contains a backslash", p)
	}
	if HasDotSegments(p) {
		return "", xerrors.Newf("prefix %q contains a dot segment", p)
	}
	segs := strings.FieldsFunc(p, func(r rune) bool { return r == '/' })
	return strings.Join(segs, "/"), nil
}
