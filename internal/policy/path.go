package policy

import (
	"os"
	"path/filepath"
	"strings"
)

// resolveUnder canonicalizes a requested path against the data root.
// Relative paths are joined onto the root first; absolute paths are
// resolved on their own (so "/etc/passwd" never gains the root as a
// prefix and fails containment instead).
func resolveUnder(root, path string) (string, error) {
	candidate := path
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(root, candidate)
	}
	return canonicalize(candidate)
}

// canonicalize returns the canonical absolute form of a path: cleaned,
// with ".." segments collapsed and symlinks followed. The target does
// not need to exist — symlinks are resolved on the longest existing
// prefix and the remaining segments are appended lexically, mirroring a
// non-strict resolve. This keeps the policy check total even for paths
// the tool would later fail to open.
func canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	suffix := ""
	cur := abs
	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			return filepath.Clean(filepath.Join(resolved, suffix)), nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}

		parent := filepath.Dir(cur)
		if parent == cur {
			// Walked all the way up without finding an existing prefix.
			return filepath.Clean(abs), nil
		}
		suffix = filepath.Join(filepath.Base(cur), suffix)
		cur = parent
	}
}

// contains reports whether resolved is root itself or a descendant of
// root. Both arguments must already be canonical; the check is a
// prefix match with a path-separator boundary so "/data-evil" is not
// treated as being under "/data".
func contains(root, resolved string) bool {
	if resolved == root {
		return true
	}
	return strings.HasPrefix(resolved, root+string(os.PathSeparator))
}
