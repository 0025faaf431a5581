package buildpkg

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
)

// PatchGroup is a declaration-ordered batch of patches gated by a single
// spec-constraint string.
type PatchGroup struct {
	Constraint string
	Patches    []PatchDescriptor
}

// ResourceGroup is a declaration-ordered batch of resources gated by a
// single spec-constraint string.
type ResourceGroup struct {
	Constraint string
	Resources  []ResourceDescriptor
}

// DependencyKind distinguishes a real (concretized) dependency edge from a
// virtual one that the solver has not yet resolved to a concrete provider.
type DependencyKind int

const (
	// DependencyReal is an edge to a concrete, named package.
	DependencyReal DependencyKind = iota
	// DependencyVirtual is an edge to a virtual capability name, not yet
	// resolved to a concrete provider.
	DependencyVirtual
)

// DependencyEdge labels a single outgoing dependency of a Spec.
type DependencyEdge struct {
	Name string
	Kind DependencyKind
}

// Spec is an immutable, fully-resolved build request: a concrete node with
// a name, version, compiler handle, variant selections, and an ordered set
// of dependency edges. The engine reads specs; it never mutates them.
type Spec struct {
	Name         string
	Version      *semver.Version
	Compiler     string
	Variants     map[string]string
	Dependencies []DependencyEdge
	// External, when non-empty, is the externally-provided path for this
	// spec; a non-empty value means the spec must not be built.
	External string

	hashOnce sync.Once
	hash     string
}

// IsConcrete reports whether every attribute needed to build this spec has
// a single chosen value. The engine only accepts concrete specs.
func (s *Spec) IsConcrete() bool {
	return s != nil && s.Name != "" && s.Version != nil
}

// IsExternal reports whether this spec is marked as externally provided.
func (s *Spec) IsExternal() bool {
	return s != nil && s.External != ""
}

// DAGHash returns a stable, content-addressed identifier for this spec
// including its dependency closure (by name and kind, not transitively
// expanded — callers that need the full closure hash their dependencies
// first and feed the accumulated string in via Variants conventionally,
// matching how the solver concretizes one node at a time).
func (s *Spec) DAGHash() string {
	s.hashOnce.Do(func() {
		h := sha256.New()
		fmt.Fprintf(h, "%s@%s\n", s.Name, s.Version.String())

		variantKeys := make([]string, 0, len(s.Variants))
		for k := range s.Variants {
			variantKeys = append(variantKeys, k)
		}
		sort.Strings(variantKeys)
		for _, k := range variantKeys {
			fmt.Fprintf(h, "variant:%s=%s\n", k, s.Variants[k])
		}

		deps := make([]DependencyEdge, len(s.Dependencies))
		copy(deps, s.Dependencies)
		sort.Slice(deps, func(i, j int) bool { return deps[i].Name < deps[j].Name })
		for _, d := range deps {
			fmt.Fprintf(h, "dep:%s:%d\n", d.Name, d.Kind)
		}

		sum := hex.EncodeToString(h.Sum(nil))
		s.hash = sum[:32]
	})
	return s.hash
}

// VersionMeta is the per-version metadata attached to a Package: at minimum
// a checksum, optionally a URL or an alternate fetch descriptor.
type VersionMeta struct {
	Checksum string
	URL      string
	Fetch    *FetchDescriptor
}

// FetchDescriptor names an alternate fetch mechanism for a version (for
// example, a VCS reference) when a plain URL does not apply.
type FetchDescriptor struct {
	Scheme string // "git", "url", "mirror"
	Target string // ref, tag, or URL depending on Scheme
}

// PatchDescriptor is a single patch with a stable identifier and an apply
// operation resolved by the fetch/patch layer.
type PatchDescriptor struct {
	ID       string
	URL      string
	Data     string
	Checksum string
	Strip    int
	Subdir   string
}

// ResourceDescriptor is an additional fetchable artifact staged alongside
// the root source.
type ResourceDescriptor struct {
	Name        string
	Fetch       FetchDescriptor
	Destination string // path inside the stage, relative to source root
}

// ExtendeeSpec describes which host package, and under what constraint and
// options, a Package extends.
type ExtendeeSpec struct {
	Constraint string
	Options    map[string]string
}

// Package binds a Spec to a recipe: version table, patches, resources,
// dependency constraints, extension relationships, and policy flags.
type Package struct {
	Name string

	// Versions maps a version string to its metadata. All keys must parse
	// as valid semver versions.
	Versions map[string]VersionMeta

	// Patches lists constraint-gated patch groups in declaration order, as
	// they appeared in the source recipe.
	Patches []PatchGroup

	// Resources lists constraint-gated resource groups in declaration
	// order, as they appeared in the source recipe.
	Resources []ResourceGroup

	// Dependencies maps child package name to a spec-constraint string.
	Dependencies map[string]string

	// Extendees maps host package name to the constraint/options under
	// which this package extends it. At most one is consulted (see the
	// single-extendee simplification); iteration order is insertion order
	// for maps with a single entry this is moot.
	Extendees map[string]ExtendeeSpec

	// Provides lists virtual capability names this package satisfies.
	Provides []string

	Parallel           bool
	MakeJobs           *int
	Extendable         bool
	SanityCheckIsFile  []string
	SanityCheckIsDir   []string

	// DefaultURL is the package-level fallback URL template used by the
	// URL resolver when no nearby version has an explicit URL.
	DefaultURL string

	// Namespace is the repository path segment used to lay out provenance
	// (repos/<namespace>/packages/<name>).
	Namespace string

	urlsOnce      sync.Once
	versionURLs   map[*semver.Version]string
	sourcePackage SourcePackage
}

// NewPackage returns a Package with defaults applied (Parallel=true) and
// maps initialized.
func NewPackage(name string) *Package {
	return &Package{
		Name:         name,
		Versions:     map[string]VersionMeta{},
		Dependencies: map[string]string{},
		Extendees:    map[string]ExtendeeSpec{},
		Parallel:     true,
	}
}

// IsExtension reports whether this package extends any host.
func (p *Package) IsExtension() bool {
	return len(p.Extendees) > 0
}

// Extendee returns the single active extendee, per the single-extendee
// simplification: only the first map entry (in Go's undefined map
// iteration order, which is acceptable since callers validate there is
// exactly one before relying on this) is consulted.
func (p *Package) Extendee() (name string, spec ExtendeeSpec, ok bool) {
	for name, spec = range p.Extendees {
		return name, spec, true
	}
	return "", ExtendeeSpec{}, false
}

// ValidateVersions parses every version key and returns a
// *PackageVersionError for the first that fails to parse.
func (p *Package) ValidateVersions() error {
	for v := range p.Versions {
		if _, err := semver.NewVersion(v); err != nil {
			return &PackageVersionError{Package: p.Name, Version: v, Err: err}
		}
	}
	return nil
}

// UrlVersion formats the version token substituted into an extrapolated
// URL template. The default implementation stringifies the version;
// recipes override this via SourcePackage.UrlVersion.
func (p *Package) UrlVersion(v *semver.Version) string {
	if p.sourcePackage != nil {
		if uv, ok := p.sourcePackage.(interface{ UrlVersion(*semver.Version) string }); ok {
			return uv.UrlVersion(v)
		}
	}
	return v.Original()
}

// BindRecipe attaches the Go recipe implementation backing this package's
// install/patch/setup operations.
func (p *Package) BindRecipe(sp SourcePackage) { p.sourcePackage = sp }

// Recipe returns the bound SourcePackage, or nil if none was attached.
func (p *Package) Recipe() SourcePackage { return p.sourcePackage }

// constraintMatches reports whether a spec-constraint string is satisfied
// by a concrete spec. Constraints are plain semver constraint strings
// (">=1.0", "1.2.3", "*") evaluated against the spec's version; an empty
// constraint always matches.
func constraintMatches(constraint string, s *Spec) bool {
	if constraint == "" || constraint == "*" {
		return true
	}
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return strings.TrimSpace(constraint) == s.Version.String()
	}
	return c.Check(s.Version)
}

// MatchingPatches returns, in declaration order, every patch whose group
// constraint is satisfied by s.
func (p *Package) MatchingPatches(s *Spec) []PatchDescriptor {
	var out []PatchDescriptor
	for _, group := range p.Patches {
		if constraintMatches(group.Constraint, s) {
			out = append(out, group.Patches...)
		}
	}
	return out
}

// MatchingResources returns, in declaration order, every resource whose
// group constraint is satisfied by s.
func (p *Package) MatchingResources(s *Spec) []ResourceDescriptor {
	var out []ResourceDescriptor
	for _, group := range p.Resources {
		if constraintMatches(group.Constraint, s) {
			out = append(out, group.Resources...)
		}
	}
	return out
}
