package recipe

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/Masterminds/semver/v3"
)

// SourceRecipe is the TOML shape for a source-build package definition:
// a version table (not a single [version] section, since a source package
// carries metadata per released version), patches and resources keyed by
// spec constraint, a dependency map, at most one extendee, and policy
// flags. This is additive to Recipe (the existing action-based format);
// a SourceRecipe backs a buildpkg.Package rather than executor.Executor.
type SourceRecipe struct {
	Metadata     SourceMetadata            `toml:"metadata"`
	Versions     []SourceVersion           `toml:"version"`
	Patches      []SourcePatchGroup        `toml:"patches,omitempty"`
	Resources    []SourceResourceGroup     `toml:"resources,omitempty"`
	Dependencies map[string]string         `toml:"dependencies,omitempty"`
	Extendees    map[string]SourceExtendee `toml:"extendees,omitempty"`
	Provides     []string                  `toml:"provides,omitempty"`
	Policy       SourcePolicy              `toml:"policy"`
}

// SourceMetadata mirrors MetadataSection's identity fields for a source
// package, without the action-recipe-specific fields that don't apply.
type SourceMetadata struct {
	Name        string `toml:"name"`
	Description string `toml:"description"`
	Homepage    string `toml:"homepage"`
	Namespace   string `toml:"namespace"`
	DefaultURL  string `toml:"default_url,omitempty"`
}

// SourceVersion is one entry in the `[[version]]` table: a version string
// plus its checksum and either a url or an alternate fetch descriptor.
type SourceVersion struct {
	Version  string `toml:"version"`
	Checksum string `toml:"checksum,omitempty"`
	URL      string `toml:"url,omitempty"`
	GitRef   string `toml:"git_ref,omitempty"`
}

// SourcePatchGroup keys an ordered patch list by a spec-constraint string.
type SourcePatchGroup struct {
	Constraint string        `toml:"constraint"`
	Patches    []SourcePatch `toml:"patch"`
}

// SourcePatch is one patch descriptor.
type SourcePatch struct {
	ID       string `toml:"id"`
	URL      string `toml:"url,omitempty"`
	Data     string `toml:"data,omitempty"`
	Checksum string `toml:"checksum,omitempty"`
	Strip    int    `toml:"strip,omitempty"`
	Subdir   string `toml:"subdir,omitempty"`
}

// SourceResourceGroup keys an ordered resource list by a spec-constraint
// string.
type SourceResourceGroup struct {
	Constraint string           `toml:"constraint"`
	Resources  []SourceResource `toml:"resource"`
}

// SourceResource is one additional fetchable artifact.
type SourceResource struct {
	Name        string `toml:"name"`
	URL         string `toml:"url,omitempty"`
	GitRef      string `toml:"git_ref,omitempty"`
	Destination string `toml:"destination"`
}

// SourceExtendee describes the constraint and options under which this
// package extends a host.
type SourceExtendee struct {
	Constraint string            `toml:"constraint"`
	Options    map[string]string `toml:"options,omitempty"`
}

// SourcePolicy carries the package-level policy flags.
type SourcePolicy struct {
	Parallel          *bool    `toml:"parallel,omitempty"`
	MakeJobs          *int     `toml:"make_jobs,omitempty"`
	Extendable        bool     `toml:"extendable,omitempty"`
	SanityCheckIsFile []string `toml:"sanity_check_is_file,omitempty"`
	SanityCheckIsDir  []string `toml:"sanity_check_is_dir,omitempty"`
}

// LoadSourceRecipe parses a TOML file at path into a SourceRecipe.
func LoadSourceRecipe(path string) (*SourceRecipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read source recipe: %w", err)
	}
	var sr SourceRecipe
	if err := toml.Unmarshal(data, &sr); err != nil {
		return nil, fmt.Errorf("parse source recipe %s: %w", path, err)
	}
	if err := sr.Validate(); err != nil {
		return nil, err
	}
	return &sr, nil
}

// Validate enforces that every version key parses as a semver version, the
// invariant the engine relies on.
func (sr *SourceRecipe) Validate() error {
	for _, v := range sr.Versions {
		if _, err := semver.NewVersion(v.Version); err != nil {
			return fmt.Errorf("package %s: invalid version %q: %w", sr.Metadata.Name, v.Version, err)
		}
	}
	if len(sr.Extendees) > 1 {
		return fmt.Errorf("package %s: only one extendee is supported", sr.Metadata.Name)
	}
	return nil
}
