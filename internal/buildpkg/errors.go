// Package buildpkg implements the package lifecycle engine: fetch, stage,
// patch, build, install, and register a concrete spec, including dependency
// ordering, extension activation, and provenance snapshotting.
package buildpkg

import "fmt"

// FetchError indicates a network, mirror, or checksum failure during
// download of a root or resource artifact.
type FetchError struct {
	Package string
	URL     string
	Reason  string
	Err     error
}

func (e *FetchError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("failed to fetch %s from %s: %s", e.Package, e.URL, e.Reason)
	}
	return fmt.Sprintf("failed to fetch %s: %s", e.Package, e.Reason)
}

func (e *FetchError) Unwrap() error { return e.Err }

// InstallError covers any failure inside the install path: a missing
// install method, a sanity check failure, or a subprocess failure. BuildLog
// is set when a build log was captured before the failure.
type InstallError struct {
	Package  string
	Reason   string
	BuildLog string
	Err      error
}

func (e *InstallError) Error() string {
	if e.BuildLog != "" {
		return fmt.Sprintf("failed to install %s: %s (see %s)", e.Package, e.Reason, e.BuildLog)
	}
	return fmt.Sprintf("failed to install %s: %s", e.Package, e.Reason)
}

func (e *InstallError) Unwrap() error { return e.Err }

// ExternalPackageError is returned when install is requested for a spec
// that is marked as externally provided.
type ExternalPackageError struct {
	Package string
}

func (e *ExternalPackageError) Error() string {
	return fmt.Sprintf("%s is external and cannot be installed", e.Package)
}

// PackageStillNeededError blocks an uninstall because installed dependents
// still reference the package.
type PackageStillNeededError struct {
	Package    string
	Dependents []string
}

func (e *PackageStillNeededError) Error() string {
	return fmt.Sprintf("cannot uninstall %s: still needed by %v", e.Package, e.Dependents)
}

// PackageError indicates a recipe-level definitional problem not otherwise
// covered by a more specific error.
type PackageError struct {
	Package string
	Reason  string
}

func (e *PackageError) Error() string {
	return fmt.Sprintf("package %s: %s", e.Package, e.Reason)
}

// PackageVersionError indicates a version key on a recipe could not be
// parsed or is otherwise invalid.
type PackageVersionError struct {
	Package string
	Version string
	Err     error
}

func (e *PackageVersionError) Error() string {
	return fmt.Sprintf("package %s: invalid version %q: %v", e.Package, e.Version, e.Err)
}

func (e *PackageVersionError) Unwrap() error { return e.Err }

// VersionFetchError indicates the fetcher factory could not produce a
// fetcher for the requested version.
type VersionFetchError struct {
	Package string
	Version string
	Reason  string
}

func (e *VersionFetchError) Error() string {
	return fmt.Sprintf("package %s: cannot fetch version %s: %s", e.Package, e.Version, e.Reason)
}

// NoURLError indicates the URL resolver found no usable URL: the version
// table is empty and the package declares no default URL.
type NoURLError struct {
	Package string
	Version string
}

func (e *NoURLError) Error() string {
	return fmt.Sprintf("package %s: no URL available for version %s", e.Package, e.Version)
}

// ExtensionConflictError indicates an activation attempt found a path in
// the extension prefix that already exists in the host prefix.
type ExtensionConflictError struct {
	Extension string
	Host      string
	Path      string
}

func (e *ExtensionConflictError) Error() string {
	return fmt.Sprintf("cannot activate %s into %s: conflicting path %s", e.Extension, e.Host, e.Path)
}

// ActivationError indicates an activation or deactivation precondition was
// violated: the extension is not installed, the host is not extendable, or
// the extendee name does not match.
type ActivationError struct {
	Extension string
	Host      string
	Reason    string
}

func (e *ActivationError) Error() string {
	return fmt.Sprintf("cannot activate %s into %s: %s", e.Extension, e.Host, e.Reason)
}

// DependencyConflictError indicates that flattening a spec's dependency
// edges produced a collision (two distinct versions of the same name).
type DependencyConflictError struct {
	Name      string
	Conflicts []string
}

func (e *DependencyConflictError) Error() string {
	return fmt.Sprintf("dependency conflict on %s: %v", e.Name, e.Conflicts)
}

// Suggestion returns a short user-actionable hint, or empty if none applies.
// Mirrors the suggestion-carrying error idiom used elsewhere in this
// codebase; not all error kinds have one.
func Suggestion(err error) string {
	switch e := err.(type) {
	case *PackageStillNeededError:
		return fmt.Sprintf("uninstall the dependents first, or pass force=true: %v", e.Dependents)
	case *FetchError:
		return "check network connectivity and the recipe's URL or checksum"
	case *NoURLError:
		return "add a url to this version or a package-level default url"
	default:
		return ""
	}
}
