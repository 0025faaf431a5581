package buildpkg

import (
	"github.com/tsukumogami/tsuku/internal/log"
)

// ProvenanceDumper snapshots the recipe and patch files used for a build
// into the install tree, under a namespaced repository layout, so that a
// later provenance dump of a dependent can read back how this node was
// actually built.
type ProvenanceDumper struct {
	repo Repository
	log  log.Logger
}

// NewProvenanceDumper builds a ProvenanceDumper backed by repo.
func NewProvenanceDumper(repo Repository, logger log.Logger) *ProvenanceDumper {
	if logger == nil {
		logger = log.NewNoop()
	}
	return &ProvenanceDumper{repo: repo, log: logger}
}

// DumpRoot snapshots the recipe for name from the authoritative repository
// (its current state) into dest.
func (pd *ProvenanceDumper) DumpRoot(name, dest string) error {
	if err := pd.repo.DumpProvenance(name, dest); err != nil {
		return &InstallError{Package: name, Reason: "dump root provenance: " + err.Error(), Err: err}
	}
	return nil
}

// DumpDependency snapshots a dependency node's recipe from its own
// previously-captured provenance inside its install tree (depProvenanceDir,
// typically layout.BuildPackagesPath(depSpec)), so the snapshot reflects how
// the dependency was actually built rather than its current recipe state.
// A missing dep provenance directory is logged as a warning and does not
// fail the dump, matching the non-fatal provenance-copy policy.
func (pd *ProvenanceDumper) DumpDependency(name, depProvenanceDir, dest string, copyTree func(src, dst string) error) {
	if depProvenanceDir == "" {
		pd.log.Warn("no captured provenance for dependency, skipping", "package", name)
		return
	}
	if err := copyTree(depProvenanceDir, dest); err != nil {
		pd.log.Warn("failed to copy dependency provenance, skipping", "package", name, "error", err)
	}
}
