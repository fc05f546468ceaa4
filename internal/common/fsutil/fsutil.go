// Package fsutil holds the path helpers shared by the catalog, state and
// event log loaders.
package fsutil

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// ExpandHome expands a leading '~' to the user's home directory. "~user"
// forms are left alone.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "home dir")
	}
	return filepath.Join(home, strings.TrimPrefix(path[1:], "/")), nil
}

// Resolve expands '~' and makes path absolute.
func Resolve(path string) (string, error) {
	if path == "" {
		return "", errors.New("empty path")
	}
	p, err := ExpandHome(path)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(p)
	return abs, errors.Wrap(err, "abs path")
}

// EnsureParentDir creates the directory that will hold file.
func EnsureParentDir(file string) error {
	return errors.Wrapf(os.MkdirAll(filepath.Dir(file), 0o755), "create dir for %s", filepath.Base(file))
}

// IsDir reports whether path names an existing directory.
func IsDir(path string) (bool, error) {
	st, err := os.Stat(path)
	if err != nil {
		return false, errors.Wrap(err, "stat")
	}
	return st.IsDir(), nil
}
