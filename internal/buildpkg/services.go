package buildpkg

import (
	"context"
	"io"
)

// Layout abstracts the install-layout store: path scheme and per-spec
// installed state. A concrete implementation lives in internal/buildenv.
type Layout interface {
	CreateInstallDirectory(s *Spec) (string, error)
	RemoveInstallDirectory(s *Spec) error
	CheckInstalled(s *Spec) bool
	PathForSpec(s *Spec) string
	BuildLogPath(s *Spec) string
	BuildEnvPath(s *Spec) string
	BuildPackagesPath(s *Spec) string
	ExtensionMap(host *Spec) (map[string]*Spec, error)
	AddExtension(host, ext *Spec) error
	RemoveExtension(host, ext *Spec) error
	CheckExtensionConflict(host, ext *Spec) (path string, conflict bool, err error)
	CheckActivated(host, ext *Spec) (bool, error)
	HiddenFilePaths(prefix string) ([]string, error)
}

// Fetcher retrieves a single artifact (root archive or resource) into a
// destination directory, optionally restricted to the mirror cache.
type Fetcher interface {
	Fetch(ctx context.Context, destDir string, mirrorOnly bool) (archivePath string, err error)
	URL() string
}

// FetchFactory produces a Fetcher for a given package and version, plus a
// Fetcher for each resource descriptor.
type FetchFactory interface {
	ForPackageVersion(pkg *Package, version string) (Fetcher, error)
	ForResource(r ResourceDescriptor) (Fetcher, error)
	// IsURLFetcher reports whether the given fetcher resolves to a plain
	// URL (as opposed to a VCS or mirror-only fetcher).
	IsURLFetcher(f Fetcher) bool
}

// BuildEnvironment runs fn in an isolated child process with compiler
// wrappers and environment modifications applied, stdio connected per the
// driver's verbosity policy.
type BuildEnvironment interface {
	Fork(ctx context.Context, req *BuildRequest, fn func(*BuildContextArgs) error) error
}

// BuildRequest carries everything the forked child needs to run the
// recipe's install operation without sharing in-process state with the
// parent (Go cannot fork() a running process, so the reference
// implementation re-execs the binary and serializes this value).
type BuildRequest struct {
	Spec       *Spec
	Prefix     string
	SourcePath string
	MakeJobs   int
	Stdout     io.Writer
	Stderr     io.Writer
}

// BuildContextArgs is handed to the child-side closure; it carries what the
// recipe's install operation needs as typed arguments (see internal/buildctx
// for the higher-level Configure/Make/CMake builder wrapping this).
type BuildContextArgs struct {
	Spec       *Spec
	Prefix     string
	SourcePath string
	MakeJobs   int
}

// HookRegistry runs named lifecycle hooks; any hook may be absent (a no-op
// registry is valid).
type HookRegistry interface {
	PreInstall(s *Spec) error
	PostInstall(s *Spec) error
	PreUninstall(s *Spec) error
	PostUninstall(s *Spec) error
}

// Repository resolves package recipes by name and dumps provenance.
type Repository interface {
	Get(name string) (*Package, error)
	DumpProvenance(name string, dest string) error
	DirnameForPackageName(name string) string
}

// Registry is the installed-spec index.
type Registry interface {
	Query() ([]*Spec, error)
	Add(s *Spec, prefix string) error
	Remove(s *Spec) error
	Dependents(s *Spec) ([]string, error)
}

// Services bundles every external collaborator the driver needs, replacing
// the teacher's process-wide globals with explicit dependency injection.
type Services struct {
	Layout       Layout
	FetchFactory FetchFactory
	BuildEnv     BuildEnvironment
	Hooks        HookRegistry
	Repo         Repository
	Registry     Registry
}

// SourcePackage is the capability set a recipe implements. Install is
// required; the rest are detected via narrow interface assertions at call
// sites (patcher, environmentSetter, dependentEnvironmentSetter,
// dependentPackageSetter, activator, deactivator) so a recipe only needs to
// implement what it actually customizes.
type SourcePackage interface {
	Install(ctx context.Context, s *Spec, build *BuildContextArgs) error
}

// Patcher is implemented by recipes that run custom patch logic in
// addition to declared patch files.
type Patcher interface {
	Patch(sourcePath string) error
}

// EnvironmentSetter is implemented by recipes that modify their own build
// environment.
type EnvironmentSetter interface {
	SetupEnvironment(env map[string]string) error
}

// DependentEnvironmentSetter is implemented by recipes that modify a
// dependent's build environment (e.g. exporting include/lib paths).
type DependentEnvironmentSetter interface {
	SetupDependentEnvironment(env map[string]string, dependent *Spec) error
}

// DependentPackageSetter is implemented by recipes that need to act on a
// dependent's Package value before it builds against this one.
type DependentPackageSetter interface {
	SetupDependentPackage(dependent *Package, dependentSpec *Spec) error
}

// Activator is implemented by a host recipe that overrides how an
// extension is merged into its own prefix, beyond the default link-tree
// merge (mirrors the host package's activate() override in the original).
type Activator interface {
	Activate(ext *Spec, opts map[string]string) error
}

// Deactivator is implemented by a host recipe that overrides how an
// extension is unmerged from its own prefix, beyond the default link-tree
// unmerge.
type Deactivator interface {
	Deactivate(ext *Spec) error
}
