package buildpkg

import (
	"context"
	"os"
	"path/filepath"

	"github.com/tsukumogami/tsuku/internal/log"
)

// Sentinel filenames written inside a stage's source path to make patch
// application idempotent across process restarts.
const (
	sentinelPatched    = ".tsuku-patched"
	sentinelNoPatches  = ".tsuku-no-patches"
	sentinelPatchFailed = ".tsuku-patch-failed"
)

// PatchApplier applies every patch whose spec-constraint matches the
// current spec, plus an optional recipe patch hook, exactly once per stage
// lifetime, gated by sentinel files.
type PatchApplier struct {
	Apply func(ctx context.Context, sourcePath string, patch PatchDescriptor) error
	log   log.Logger
}

// NewPatchApplier builds a PatchApplier. apply performs the actual patch
// file application (download-if-needed, checksum verify, `patch -pN`); it
// is supplied by internal/buildenv so this package stays free of
// subprocess/network concerns.
func NewPatchApplier(apply func(ctx context.Context, sourcePath string, patch PatchDescriptor) error, logger log.Logger) *PatchApplier {
	if logger == nil {
		logger = log.NewNoop()
	}
	return &PatchApplier{Apply: apply, log: logger}
}

func sentinelPath(sourcePath, name string) string { return filepath.Join(sourcePath, name) }

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func touch(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}

// DoPatch runs the six-step sentinel protocol against the package's
// matching patches (plus the recipe's optional Patch hook) for spec s,
// staged at sourcePath. restage is invoked when a stale patch-failed
// sentinel is found, before any other step.
func (pa *PatchApplier) DoPatch(ctx context.Context, p *Package, s *Spec, sourcePath string, restage func() error) error {
	failedPath := sentinelPath(sourcePath, sentinelPatchFailed)
	patchedPath := sentinelPath(sourcePath, sentinelPatched)
	noPatchesPath := sentinelPath(sourcePath, sentinelNoPatches)

	// 1. patch-failed present => restage.
	if exists(failedPath) {
		if restage != nil {
			if err := restage(); err != nil {
				return &InstallError{Package: p.Name, Reason: "restage after failed patch: " + err.Error(), Err: err}
			}
		}
		_ = os.Remove(failedPath)
	}

	// 2. patched-OK present => already done.
	if exists(patchedPath) {
		return nil
	}

	// 3. no-patches-needed present => already done.
	if exists(noPatchesPath) {
		return nil
	}

	patches := p.MatchingPatches(s)
	anyApplied := false

	// 4. apply every matching patch in declaration order.
	for _, patch := range patches {
		if err := pa.Apply(ctx, sourcePath, patch); err != nil {
			_ = touch(failedPath)
			return &InstallError{Package: p.Name, Reason: "patch " + patch.ID + " failed: " + err.Error(), Err: err}
		}
		anyApplied = true
		pa.log.Debug("applied patch", "package", p.Name, "patch", patch.ID)
	}

	// 5. recipe patch hook, if defined.
	if recipe, ok := p.Recipe().(Patcher); ok {
		if err := recipe.Patch(sourcePath); err != nil {
			_ = touch(failedPath)
			return &InstallError{Package: p.Name, Reason: "recipe patch hook failed: " + err.Error(), Err: err}
		}
		anyApplied = true
	}

	// 6. clear stale failure marker, record outcome.
	_ = os.Remove(failedPath)
	if anyApplied {
		return touch(patchedPath)
	}
	return touch(noPatchesPath)
}
