package buildpkg

import (
	"os"
	"path/filepath"

	"github.com/tsukumogami/tsuku/internal/log"
)

// ExtensionLinker merges an extension's prefix into a host's prefix via
// symlinks (activate), and removes those symlinks again (deactivate), with
// conflict detection on activation and dependent-checking on deactivation.
type ExtensionLinker struct {
	layout Layout
	log    log.Logger
}

// NewExtensionLinker builds an ExtensionLinker backed by the given layout.
func NewExtensionLinker(layout Layout, logger log.Logger) *ExtensionLinker {
	if logger == nil {
		logger = log.NewNoop()
	}
	return &ExtensionLinker{layout: layout, log: logger}
}

func toSet(paths []string) map[string]bool {
	m := make(map[string]bool, len(paths))
	for _, p := range paths {
		m[p] = true
	}
	return m
}

// Activate merges ext into host's prefix. If hostPkg's recipe implements
// Activator, that override runs instead; otherwise Activate builds the
// default link tree over ext's prefix into host's prefix, verifying
// preconditions and scanning for the first colliding path, failing with
// ExtensionConflictError if any collision is found before creating any
// symlink.
func (el *ExtensionLinker) Activate(ext, host *Spec, extPkg, hostPkg *Package, opts map[string]string) error {
	if !el.layout.CheckInstalled(ext) {
		return &ActivationError{Extension: ext.Name, Host: host.Name, Reason: "extension is not installed"}
	}
	if !el.layout.CheckInstalled(host) {
		return &ActivationError{Extension: ext.Name, Host: host.Name, Reason: "host is not installed"}
	}

	extendeeName, _, ok := extPkg.Extendee()
	if !ok || extendeeName != host.Name {
		return &ActivationError{Extension: ext.Name, Host: host.Name, Reason: "extendee name does not match host"}
	}

	if hostPkg != nil && hostPkg.Recipe() != nil {
		if activator, ok := hostPkg.Recipe().(Activator); ok {
			if err := activator.Activate(ext, opts); err != nil {
				return &ActivationError{Extension: ext.Name, Host: host.Name, Reason: "custom activate: " + err.Error()}
			}
			if err := el.layout.AddExtension(host, ext); err != nil {
				return &InstallError{Package: ext.Name, Reason: "register extension: " + err.Error(), Err: err}
			}
			el.log.Info("activated extension via host override", "extension", ext.Name, "host", host.Name)
			return nil
		}
	}

	extPrefix := el.layout.PathForSpec(ext)
	hostPrefix := el.layout.PathForSpec(host)

	hidden, err := el.layout.HiddenFilePaths(extPrefix)
	if err != nil {
		return &InstallError{Package: ext.Name, Reason: "list hidden paths: " + err.Error(), Err: err}
	}
	ignore := toSet(hidden)

	var files []string
	err = filepath.Walk(extPrefix, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(extPrefix, path)
		if err != nil {
			return err
		}
		if ignore[rel] {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return &InstallError{Package: ext.Name, Reason: "walk extension prefix: " + err.Error(), Err: err}
	}

	// Scan for the first conflicting path before creating any symlink.
	for _, rel := range files {
		hostPath := filepath.Join(hostPrefix, rel)
		if _, err := os.Lstat(hostPath); err == nil {
			return &ExtensionConflictError{Extension: ext.Name, Host: host.Name, Path: rel}
		}
	}

	for _, rel := range files {
		src := filepath.Join(extPrefix, rel)
		dst := filepath.Join(hostPrefix, rel)
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return &InstallError{Package: ext.Name, Reason: "mkdir for link: " + err.Error(), Err: err}
		}
		if err := os.Symlink(src, dst); err != nil {
			return &InstallError{Package: ext.Name, Reason: "symlink " + rel + ": " + err.Error(), Err: err}
		}
	}

	if err := el.layout.AddExtension(host, ext); err != nil {
		return &InstallError{Package: ext.Name, Reason: "register extension: " + err.Error(), Err: err}
	}
	el.log.Info("activated extension", "extension", ext.Name, "host", host.Name, "files", len(files))
	return nil
}

// Deactivate removes ext from host's prefix. If hostPkg's recipe implements
// Deactivator, that override runs instead; otherwise Deactivate unlinks
// ext's symlinks from host's prefix, tolerating already-removed entries. It
// never removes a non-symlink entry and never descends into a host-owned
// real directory. Unless force is true, it first verifies no other
// activated extension transitively depends on ext.
func (el *ExtensionLinker) Deactivate(ext, host *Spec, hostPkg *Package, force bool, activeExtensions []*Spec, dependsOn func(other, target *Spec) bool) error {
	if !force {
		for _, other := range activeExtensions {
			if other.Name == ext.Name {
				continue
			}
			if dependsOn(other, ext) {
				return &ActivationError{Extension: ext.Name, Host: host.Name, Reason: "extension " + other.Name + " transitively depends on it"}
			}
		}
	}

	if hostPkg != nil && hostPkg.Recipe() != nil {
		if deactivator, ok := hostPkg.Recipe().(Deactivator); ok {
			if err := deactivator.Deactivate(ext); err != nil {
				return &ActivationError{Extension: ext.Name, Host: host.Name, Reason: "custom deactivate: " + err.Error()}
			}
			if err := el.layout.RemoveExtension(host, ext); err != nil {
				return &InstallError{Package: ext.Name, Reason: "deregister extension: " + err.Error(), Err: err}
			}
			el.log.Info("deactivated extension via host override", "extension", ext.Name, "host", host.Name)
			return nil
		}
	}

	extPrefix := el.layout.PathForSpec(ext)
	hostPrefix := el.layout.PathForSpec(host)

	hidden, err := el.layout.HiddenFilePaths(extPrefix)
	if err != nil {
		return &InstallError{Package: ext.Name, Reason: "list hidden paths: " + err.Error(), Err: err}
	}
	ignore := toSet(hidden)

	err = filepath.Walk(extPrefix, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if info.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(extPrefix, path)
		if relErr != nil {
			return relErr
		}
		if ignore[rel] {
			return nil
		}
		hostPath := filepath.Join(hostPrefix, rel)
		fi, statErr := os.Lstat(hostPath)
		if statErr != nil {
			// Already removed; tolerate.
			return nil
		}
		if fi.Mode()&os.ModeSymlink == 0 {
			// Not a symlink; a real, host-owned file. Never remove it.
			return nil
		}
		target, readErr := os.Readlink(hostPath)
		if readErr != nil || target != path {
			// Points somewhere else; not ours to remove.
			return nil
		}
		return os.Remove(hostPath)
	})
	if err != nil {
		return &InstallError{Package: ext.Name, Reason: "unmerge link tree: " + err.Error(), Err: err}
	}

	if err := el.layout.RemoveExtension(host, ext); err != nil {
		return &InstallError{Package: ext.Name, Reason: "deregister extension: " + err.Error(), Err: err}
	}
	el.log.Info("deactivated extension", "extension", ext.Name, "host", host.Name)
	return nil
}
