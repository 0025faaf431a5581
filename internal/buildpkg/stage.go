package buildpkg

import (
	"context"
	"os"
	"path/filepath"

	"github.com/tsukumogami/tsuku/internal/log"
)

// stageSlot is one element of a Stage composite: either the root stage
// (index 0) or a resource stage (index 1..N), parented to the root.
type stageSlot struct {
	fetcher    Fetcher
	workDir    string
	sourcePath string
	mirrorPath string
	archive    string
	created    bool
}

// Stage is a root stage plus zero or more resource stages, sharing a base
// working directory. It is created lazily on first property access and
// destroyed explicitly, or implicitly at scope exit when Keep is false and
// no error occurred.
type Stage struct {
	BaseDir string
	Keep    bool

	slots []*stageSlot
	log   log.Logger
}

// NewStage builds a Stage for a root fetcher and its resources, rooted at
// baseDir. Resource i is staged under baseDir/resource-<i> and merged into
// the root source path at its declared destination once expanded.
func NewStage(baseDir string, root Fetcher, resources []Fetcher, logger log.Logger) *Stage {
	if logger == nil {
		logger = log.NewNoop()
	}
	slots := make([]*stageSlot, 0, 1+len(resources))
	slots = append(slots, &stageSlot{fetcher: root, workDir: filepath.Join(baseDir, "root")})
	for i, f := range resources {
		slots = append(slots, &stageSlot{
			fetcher: f,
			workDir: filepath.Join(baseDir, "resource-"+itoa(i)),
		})
	}
	return &Stage{BaseDir: baseDir, slots: slots, log: logger}
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	digits := ""
	for i > 0 {
		digits = string(rune('0'+i%10)) + digits
		i /= 10
	}
	return digits
}

// Create materializes every slot's working directory. Idempotent.
func (st *Stage) Create() error {
	for _, s := range st.slots {
		if s.created {
			continue
		}
		if err := os.MkdirAll(s.workDir, 0o755); err != nil {
			return &FetchError{Reason: "create stage dir", Err: err}
		}
		s.created = true
	}
	return nil
}

// SourcePath returns the expanded root archive's source directory.
func (st *Stage) SourcePath() string {
	if len(st.slots) == 0 {
		return ""
	}
	return st.slots[0].sourcePath
}

// Fetch downloads every slot's artifact, root first then resources in
// declared order. When mirrorOnly is true, fetchers are restricted to their
// mirror cache and must not reach the network.
func (st *Stage) Fetch(ctx context.Context, mirrorOnly bool) error {
	if err := st.Create(); err != nil {
		return err
	}
	for i, s := range st.slots {
		if s.archive != "" {
			continue
		}
		if s.fetcher == nil {
			continue
		}
		path, err := s.fetcher.Fetch(ctx, s.workDir, mirrorOnly)
		if err != nil {
			return &FetchError{URL: s.fetcher.URL(), Reason: err.Error(), Err: err}
		}
		s.archive = path
		st.log.Debug("fetched stage slot", "index", i, "url", s.fetcher.URL())
	}
	return nil
}

// ExpandArchive expands every slot's fetched archive. The root expands
// into slots[0].workDir/src; resources expand into their own workDir.
// Placing a resource's expanded tree under the root source path at its
// declared destination is the caller's job (see ResourceSourcePaths);
// ExpandArchive only unpacks, it does not merge trees.
func (st *Stage) ExpandArchive(expand func(archivePath, destDir string) (sourceDir string, err error)) error {
	for _, s := range st.slots {
		if s.archive == "" {
			continue
		}
		if s.sourcePath != "" {
			continue
		}
		dir, err := expand(s.archive, s.workDir)
		if err != nil {
			return &FetchError{Reason: "expand archive: " + err.Error(), Err: err}
		}
		s.sourcePath = dir
	}
	return nil
}

// ChdirToSource returns the root source path, the directory recipe builds
// should run from.
func (st *Stage) ChdirToSource() string { return st.SourcePath() }

// ResourceSourcePaths returns each resource slot's expanded source
// directory, in declaration order (root excluded), for the caller to place
// under the root source path at the resource's declared destination.
func (st *Stage) ResourceSourcePaths() []string {
	if len(st.slots) <= 1 {
		return nil
	}
	paths := make([]string, len(st.slots)-1)
	for i, s := range st.slots[1:] {
		paths[i] = s.sourcePath
	}
	return paths
}

// Check reports whether the root archive has already been fetched and
// expanded.
func (st *Stage) Check() bool {
	return len(st.slots) > 0 && st.slots[0].sourcePath != ""
}

// Restage removes the expanded tree and re-expands from the cached
// archive, without re-fetching.
func (st *Stage) Restage(expand func(archivePath, destDir string) (sourceDir string, err error)) error {
	for _, s := range st.slots {
		if s.sourcePath != "" {
			if err := os.RemoveAll(s.sourcePath); err != nil {
				return &FetchError{Reason: "restage: remove expanded tree: " + err.Error(), Err: err}
			}
			s.sourcePath = ""
		}
	}
	return st.ExpandArchive(expand)
}

// Destroy removes the stage's entire working tree (archive + expansion).
func (st *Stage) Destroy() error {
	if err := os.RemoveAll(st.BaseDir); err != nil {
		return &FetchError{Reason: "destroy stage: " + err.Error(), Err: err}
	}
	for _, s := range st.slots {
		s.sourcePath = ""
		s.archive = ""
		s.created = false
	}
	return nil
}

// WithStage opens the stage as a scoped resource around fn: on any exit
// path the stage is destroyed unless Keep is true or fn returned an error
// (errors are preserved for the caller to decide cleanup via keep_prefix
// semantics at the driver level, so WithStage itself only auto-destroys on
// success-without-Keep).
func (st *Stage) WithStage(fn func() error) error {
	err := fn()
	if err == nil && !st.Keep {
		if derr := st.Destroy(); derr != nil {
			return derr
		}
	}
	return err
}
