package buildpkg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tsukumogami/tsuku/internal/log"
)

// InstallOptions controls DoInstall's behavior; zero value is the default
// (conservative) policy.
type InstallOptions struct {
	KeepPrefix bool // retain the prefix on failure; default false
	KeepStage  bool // retain the stage on success; default false
	IgnoreDeps bool // skip dependency install; default false
	SkipPatch  bool // stage only, no patch; default false
	Verbose    bool // stream child output to terminal; default false
	MakeJobs   *int // override parallelism
	Fake       bool // skip the real build; populate a stub prefix
}

// UninstallOptions controls DoUninstall's behavior.
type UninstallOptions struct {
	Force bool
	// CheckExtensions, when true, refuses uninstall if any extension is
	// still activated against the package being removed. Documented
	// current behavior (matching the original) is to not pre-check;
	// this is an explicit opt-in additive check.
	CheckExtensions bool
}

// InstallResult reports timing for a completed (or failed, where
// applicable) install.
type InstallResult struct {
	FetchDuration time.Duration
	BuildDuration time.Duration
	TotalDuration time.Duration
}

// FormatDuration renders d the way build logs traditionally do:
// "Hh Mm Ss", omitting leading zero components.
func FormatDuration(d time.Duration) string {
	total := int(d.Seconds())
	h, m, s := total/3600, (total/60)%60, total%60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

// Driver is the lifecycle state machine: fetch -> stage -> patch ->
// install -> sanity -> provenance -> register, plus dependency install
// ordering, uninstall, restage, and clean.
type Driver struct {
	svc Services
	log log.Logger

	expandArchive func(archivePath, destDir string) (string, error)
	applyPatch    func(ctx context.Context, sourcePath string, patch PatchDescriptor) error
	copyTree      func(src, dst string) error
	dumpEnv       func(path string) error
	activeExts    func(host *Spec) ([]*Spec, error)
	dependsOn     func(other, target *Spec) bool
	resolveChildFn func(name string) (*Package, *Spec, error)
}

// Option configures a Driver.
type Option func(*Driver)

// WithLogger sets the driver's logger.
func WithLogger(l log.Logger) Option {
	return func(d *Driver) { d.log = l }
}

// WithArchiveExpander sets the function used to expand a fetched archive
// into a source directory.
func WithArchiveExpander(f func(archivePath, destDir string) (string, error)) Option {
	return func(d *Driver) { d.expandArchive = f }
}

// WithPatchApply sets the function used to apply a single patch.
func WithPatchApply(f func(ctx context.Context, sourcePath string, patch PatchDescriptor) error) Option {
	return func(d *Driver) { d.applyPatch = f }
}

// WithTreeCopy sets the function used to copy directory trees (build log,
// env file, and provenance into the prefix).
func WithTreeCopy(f func(src, dst string) error) Option {
	return func(d *Driver) { d.copyTree = f }
}

// WithEnvDump sets the function used to dump the current process
// environment to a file.
func WithEnvDump(f func(path string) error) Option {
	return func(d *Driver) { d.dumpEnv = f }
}

// WithActiveExtensions sets the function used to list a host's currently
// activated extensions, for the uninstall/deactivate transitive-dependent
// checks.
func WithActiveExtensions(f func(host *Spec) ([]*Spec, error)) Option {
	return func(d *Driver) { d.activeExts = f }
}

// WithDependsOn sets the function used to test whether one spec's
// dependency closure contains another, for deactivate's transitive check.
func WithDependsOn(f func(other, target *Spec) bool) Option {
	return func(d *Driver) { d.dependsOn = f }
}

// WithDependencyResolver sets the function the driver uses to turn a
// dependency edge's name into a concrete Package and Spec. Dependency
// concretization (the solver) is out of this engine's scope; production
// callers wire this to their solver's already-resolved specs, and tests
// inject fakes directly.
func WithDependencyResolver(f func(name string) (*Package, *Spec, error)) Option {
	return func(d *Driver) { d.resolveChildFn = f }
}

// NewDriver builds a Driver over the given Services bundle.
func NewDriver(svc Services, opts ...Option) *Driver {
	d := &Driver{svc: svc, log: log.NewNoop()}
	for _, o := range opts {
		o(d)
	}
	if d.expandArchive == nil {
		d.expandArchive = func(a, dst string) (string, error) { return dst, nil }
	}
	if d.copyTree == nil {
		d.copyTree = defaultCopyTree
	}
	if d.dumpEnv == nil {
		d.dumpEnv = defaultDumpEnv
	}
	return d
}

func defaultDumpEnv(path string) error {
	var buf []byte
	for _, kv := range os.Environ() {
		buf = append(buf, []byte(kv+"\n")...)
	}
	return os.WriteFile(path, buf, 0o644)
}

func defaultCopyTree(src, dst string) error {
	return filepath.Walk(src, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, info.Mode())
	})
}

// DoInstall drives s through the full lifecycle. pkg binds s's recipe.
func (d *Driver) DoInstall(ctx context.Context, pkg *Package, s *Spec, opts InstallOptions) (*InstallResult, error) {
	if !s.IsConcrete() {
		return nil, &InstallError{Package: s.Name, Reason: "spec is not concrete"}
	}
	if s.IsExternal() {
		d.log.Info("spec is external, skipping install", "package", s.Name)
		return &InstallResult{}, nil
	}
	if d.svc.Layout.CheckInstalled(s) {
		d.log.Info("already installed", "package", s.Name)
		return &InstallResult{}, nil
	}

	start := time.Now()

	if !opts.IgnoreDeps {
		walker := NewDependencyWalker()
		if err := d.installDependencies(ctx, walker, s, opts); err != nil {
			return nil, err
		}
	}

	prefix, err := d.svc.Layout.CreateInstallDirectory(s)
	if err != nil {
		return nil, &InstallError{Package: s.Name, Reason: "create install directory: " + err.Error(), Err: err}
	}

	result := &InstallResult{}
	buildErr := d.runBuildChild(ctx, pkg, s, prefix, opts, result)
	if buildErr != nil {
		if !opts.KeepPrefix {
			_ = d.svc.Layout.RemoveInstallDirectory(s)
		}
		return nil, buildErr
	}

	if err := d.svc.Registry.Add(s, prefix); err != nil {
		return nil, &InstallError{Package: s.Name, Reason: "register spec: " + err.Error(), Err: err}
	}
	if d.svc.Hooks != nil {
		if err := d.svc.Hooks.PostInstall(s); err != nil {
			d.log.Warn("post-install hook failed", "package", s.Name, "error", err)
		}
	}

	result.TotalDuration = time.Since(start)
	return result, nil
}

func (d *Driver) installDependencies(ctx context.Context, walker *DependencyWalker, s *Spec, opts InstallOptions) error {
	for _, edge := range walker.Walk(s, false) {
		walker.MarkVisited(edge.Name)
		childPkg, childSpec, err := d.resolveChild(edge.Name)
		if err != nil {
			return err
		}
		if d.svc.Layout.CheckInstalled(childSpec) {
			continue
		}
		if _, err := d.DoInstall(ctx, childPkg, childSpec, opts); err != nil {
			return err
		}
	}
	return nil
}

// resolveChild turns a dependency edge's name into a concrete Package and
// Spec via the configured resolver (see WithDependencyResolver).
func (d *Driver) resolveChild(name string) (*Package, *Spec, error) {
	if d.resolveChildFn == nil {
		return nil, nil, &PackageError{Package: name, Reason: "no dependency resolver configured"}
	}
	return d.resolveChildFn(name)
}

// runBuildChild runs the fork, fetch/stage/patch/install/sanity/provenance
// sequence ("in the child" per the state machine) and records timings into
// result. On any failure it returns a typed error; the caller is
// responsible for prefix cleanup policy.
func (d *Driver) runBuildChild(ctx context.Context, pkg *Package, s *Spec, prefix string, opts InstallOptions, result *InstallResult) error {
	req := &BuildRequest{Spec: s, Prefix: prefix}
	if opts.MakeJobs != nil {
		req.MakeJobs = *opts.MakeJobs
	} else if pkg.MakeJobs != nil {
		req.MakeJobs = *pkg.MakeJobs
	}

	return d.svc.BuildEnv.Fork(ctx, req, func(args *BuildContextArgs) error {
		if opts.Fake {
			return populateFakePrefix(prefix)
		}

		fetchStart := time.Now()
		var sourcePath string
		if !opts.SkipPatch {
			sp, err := d.fetchStagePatch(ctx, pkg, s, opts)
			if err != nil {
				return err
			}
			sourcePath = sp
		} else {
			sp, err := d.fetchAndStageOnly(ctx, pkg, s, opts)
			if err != nil {
				return err
			}
			sourcePath = sp
		}
		result.FetchDuration = time.Since(fetchStart)

		if d.svc.Hooks != nil {
			if err := d.svc.Hooks.PreInstall(s); err != nil {
				return &InstallError{Package: s.Name, Reason: "pre-install hook: " + err.Error(), Err: err}
			}
		}

		buildStart := time.Now()
		envPath := d.svc.Layout.BuildEnvPath(s)
		if err := d.dumpEnv(envPath); err != nil {
			d.log.Warn("failed to dump build environment", "package", s.Name, "error", err)
		}

		buildArgs := &BuildContextArgs{Spec: s, Prefix: prefix, SourcePath: sourcePath, MakeJobs: req.MakeJobs}
		if pkg.Recipe() == nil {
			return &InstallError{Package: s.Name, Reason: "recipe has no install method", BuildLog: d.svc.Layout.BuildLogPath(s)}
		}
		if err := pkg.Recipe().Install(ctx, s, buildArgs); err != nil {
			return &InstallError{Package: s.Name, Reason: "recipe install failed: " + err.Error(), BuildLog: d.svc.Layout.BuildLogPath(s), Err: err}
		}
		result.BuildDuration = time.Since(buildStart)

		hidden, _ := d.svc.Layout.HiddenFilePaths(prefix)
		if err := SanityCheckPrefix(pkg, prefix, hidden); err != nil {
			return err
		}

		d.snapshotProvenance(pkg, s, prefix)
		return nil
	})
}

func (d *Driver) fetchStagePatch(ctx context.Context, pkg *Package, s *Spec, opts InstallOptions) (string, error) {
	root, err := d.svc.FetchFactory.ForPackageVersion(pkg, s.Version.Original())
	if err != nil {
		return "", &VersionFetchError{Package: pkg.Name, Version: s.Version.Original(), Reason: err.Error()}
	}
	resources := pkg.MatchingResources(s)
	resFetchers := make([]Fetcher, len(resources))
	for i, r := range resources {
		f, err := d.svc.FetchFactory.ForResource(r)
		if err != nil {
			return "", &FetchError{Package: pkg.Name, Reason: "resource fetcher: " + err.Error(), Err: err}
		}
		resFetchers[i] = f
	}

	baseDir := d.svc.Layout.BuildPackagesPath(s) + "-stage"
	stage := NewStage(baseDir, root, resFetchers, d.log)
	if err := stage.Fetch(ctx, false); err != nil {
		return "", err
	}
	if err := stage.ExpandArchive(d.expandArchive); err != nil {
		return "", err
	}
	if err := d.placeResources(resources, stage); err != nil {
		return "", err
	}

	applier := NewPatchApplier(d.applyPatch, d.log)
	if err := applier.DoPatch(ctx, pkg, s, stage.SourcePath(), func() error {
		if err := stage.Restage(d.expandArchive); err != nil {
			return err
		}
		return d.placeResources(resources, stage)
	}); err != nil {
		return "", err
	}
	return stage.SourcePath(), nil
}

// placeResources copies each resource's expanded source tree into the root
// source path at its declared destination, matching how resources are
// declared relative to the root.
func (d *Driver) placeResources(resources []ResourceDescriptor, stage *Stage) error {
	paths := stage.ResourceSourcePaths()
	root := stage.SourcePath()
	for i, r := range resources {
		if i >= len(paths) || paths[i] == "" {
			continue
		}
		dest := root
		if r.Destination != "" {
			dest = filepath.Join(root, r.Destination)
		}
		if err := d.copyTree(paths[i], dest); err != nil {
			return &FetchError{Package: r.Name, Reason: "place resource at " + r.Destination + ": " + err.Error(), Err: err}
		}
	}
	return nil
}

func (d *Driver) fetchAndStageOnly(ctx context.Context, pkg *Package, s *Spec, opts InstallOptions) (string, error) {
	root, err := d.svc.FetchFactory.ForPackageVersion(pkg, s.Version.Original())
	if err != nil {
		return "", &VersionFetchError{Package: pkg.Name, Version: s.Version.Original(), Reason: err.Error()}
	}
	baseDir := d.svc.Layout.BuildPackagesPath(s) + "-stage"
	stage := NewStage(baseDir, root, nil, d.log)
	if err := stage.Fetch(ctx, false); err != nil {
		return "", err
	}
	if err := stage.ExpandArchive(d.expandArchive); err != nil {
		return "", err
	}
	return stage.SourcePath(), nil
}

func (d *Driver) snapshotProvenance(pkg *Package, s *Spec, prefix string) {
	if d.svc.Repo == nil {
		return
	}
	dumper := NewProvenanceDumper(d.svc.Repo, d.log)
	dest := filepath.Join(d.svc.Layout.BuildPackagesPath(s), "repos", pkg.Namespace, "packages", pkg.Name)
	if err := dumper.DumpRoot(pkg.Name, dest); err != nil {
		d.log.Warn("provenance dump failed, continuing", "package", pkg.Name, "error", err)
	}
	for _, edge := range s.Dependencies {
		if edge.Kind != DependencyReal {
			continue
		}
		depPkg, depSpec, err := d.resolveChild(edge.Name)
		if err != nil {
			d.log.Warn("could not resolve dependency for provenance snapshot, skipping", "package", edge.Name, "error", err)
			continue
		}
		depProvDir := filepath.Join(d.svc.Layout.BuildPackagesPath(depSpec), "repos", depPkg.Namespace, "packages", depPkg.Name)
		depDest := filepath.Join(dest, "..", edge.Name)
		dumper.DumpDependency(edge.Name, depProvDir, depDest, d.copyTree)
	}
}

func populateFakePrefix(prefix string) error {
	if err := os.MkdirAll(filepath.Join(prefix, "bin"), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(prefix, "bin", "fake"), []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Join(prefix, "lib"), 0o755); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Join(prefix, "man1"), 0o755); err != nil {
		return err
	}
	return nil
}

// DoUninstall removes s's install prefix and registry entry. Uninstall of
// a package with installed dependents fails with PackageStillNeededError
// unless opts.Force is set.
func (d *Driver) DoUninstall(s *Spec, opts UninstallOptions) error {
	if !d.svc.Layout.CheckInstalled(s) {
		return &InstallError{Package: s.Name, Reason: "not installed"}
	}

	if !opts.Force {
		dependents, err := d.svc.Registry.Dependents(s)
		if err != nil {
			return &InstallError{Package: s.Name, Reason: "query dependents: " + err.Error(), Err: err}
		}
		if len(dependents) > 0 {
			return &PackageStillNeededError{Package: s.Name, Dependents: dependents}
		}

		if opts.CheckExtensions && d.activeExts != nil {
			exts, err := d.activeExts(s)
			if err != nil {
				return &InstallError{Package: s.Name, Reason: "query activated extensions: " + err.Error(), Err: err}
			}
			if len(exts) > 0 {
				names := make([]string, len(exts))
				for i, e := range exts {
					names[i] = e.Name
				}
				return &PackageStillNeededError{Package: s.Name, Dependents: names}
			}
		}
	}

	if d.svc.Hooks != nil {
		if err := d.svc.Hooks.PreUninstall(s); err != nil {
			return &InstallError{Package: s.Name, Reason: "pre-uninstall hook: " + err.Error(), Err: err}
		}
	}

	if err := d.svc.Layout.RemoveInstallDirectory(s); err != nil {
		return &InstallError{Package: s.Name, Reason: "remove install directory: " + err.Error(), Err: err}
	}
	if err := d.svc.Registry.Remove(s); err != nil {
		return &InstallError{Package: s.Name, Reason: "remove from registry: " + err.Error(), Err: err}
	}

	if d.svc.Hooks != nil {
		if err := d.svc.Hooks.PostUninstall(s); err != nil {
			d.log.Warn("post-uninstall hook failed", "package", s.Name, "error", err)
		}
	}
	return nil
}

// DoRestage removes the expanded source tree for s, preserving the cached
// archive, and re-expands it.
func (d *Driver) DoRestage(pkg *Package, s *Spec, stage *Stage) error {
	return stage.Restage(d.expandArchive)
}

// DoClean destroys s's entire stage (cached archive and expansion).
func (d *Driver) DoClean(stage *Stage) error {
	return stage.Destroy()
}

// ActivatedExtensions returns the extensions currently activated into
// host's prefix, per layout.ExtensionMap.
func (d *Driver) ActivatedExtensions(host *Spec) ([]*Spec, error) {
	m, err := d.svc.Layout.ExtensionMap(host)
	if err != nil {
		return nil, err
	}
	out := make([]*Spec, 0, len(m))
	for _, s := range m {
		out = append(out, s)
	}
	return out, nil
}
