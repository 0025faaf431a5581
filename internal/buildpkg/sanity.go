package buildpkg

import (
	"os"
	"path/filepath"
)

// SanityCheckPrefix asserts every path in p.SanityCheckIsFile exists and is
// a regular file, every path in p.SanityCheckIsDir exists and is a
// directory, and that prefix contains at least one entry outside the
// layout-defined hidden paths. Returns an *InstallError naming the first
// failing path, or "Nothing was installed" if the prefix is empty.
func SanityCheckPrefix(p *Package, prefix string, hidden []string) error {
	for _, rel := range p.SanityCheckIsFile {
		full := filepath.Join(prefix, rel)
		info, err := os.Stat(full)
		if err != nil {
			return &InstallError{Package: p.Name, Reason: "expected file missing: " + rel, Err: err}
		}
		if info.IsDir() {
			return &InstallError{Package: p.Name, Reason: "expected file but found directory: " + rel}
		}
	}
	for _, rel := range p.SanityCheckIsDir {
		full := filepath.Join(prefix, rel)
		info, err := os.Stat(full)
		if err != nil {
			return &InstallError{Package: p.Name, Reason: "expected directory missing: " + rel, Err: err}
		}
		if !info.IsDir() {
			return &InstallError{Package: p.Name, Reason: "expected directory but found file: " + rel}
		}
	}

	ignore := toSet(hidden)
	entries, err := os.ReadDir(prefix)
	if err != nil {
		return &InstallError{Package: p.Name, Reason: "read prefix: " + err.Error(), Err: err}
	}
	nonHidden := 0
	for _, e := range entries {
		if ignore[e.Name()] {
			continue
		}
		nonHidden++
	}
	if nonHidden == 0 {
		return &InstallError{Package: p.Name, Reason: "Nothing was installed"}
	}
	return nil
}
