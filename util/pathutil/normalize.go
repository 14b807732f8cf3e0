package pathutil

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// NormalizeForLookup returns an absolute path with symlinks resolved, lower
// cased on case-insensitive platforms. Paths that do not exist yet keep their
// absolute form.
func NormalizeForLookup(path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	canonicalPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		canonicalPath = absPath
	}

	if runtime.GOOS == "darwin" || runtime.GOOS == "windows" {
		return strings.ToLower(canonicalPath), nil
	}
	return canonicalPath, nil
}

// SamePath reports whether a and b name the same file. Existing files are
// compared by identity, anything else by normalized path.
func SamePath(a, b string) bool {
	if ai, err := os.Stat(a); err == nil {
		if bi, err := os.Stat(b); err == nil {
			return os.SameFile(ai, bi)
		}
	}
	na, err := NormalizeForLookup(a)
	if err != nil {
		return false
	}
	nb, err := NormalizeForLookup(b)
	if err != nil {
		return false
	}
	return na == nb
}
