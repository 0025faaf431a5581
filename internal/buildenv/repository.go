package buildenv

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/tsukumogami/tsuku/internal/buildpkg"
	"github.com/tsukumogami/tsuku/internal/recipe"
)

// Repository is a reference buildpkg.Repository backed by a directory of
// TOML source recipes, one file per package, laid out
// <root>/<namespace>/<name>/package.toml, matching this codebase's
// recipes-directory convention (internal/recipe.Loader's local-recipes
// lookup).
type Repository struct {
	root string
}

// NewRepository builds a Repository rooted at root.
func NewRepository(root string) *Repository { return &Repository{root: root} }

func (r *Repository) pathFor(name string) (string, string) {
	namespace := "builtin"
	return filepath.Join(r.root, namespace, name, "package.toml"), namespace
}

func (r *Repository) DirnameForPackageName(name string) string {
	path, _ := r.pathFor(name)
	return filepath.Dir(path)
}

// Get loads and converts the named package's recipe into a buildpkg.Package.
func (r *Repository) Get(name string) (*buildpkg.Package, error) {
	path, namespace := r.pathFor(name)
	sr, err := recipe.LoadSourceRecipe(path)
	if err != nil {
		return nil, err
	}
	return fromSourceRecipe(sr, namespace), nil
}

func fromSourceRecipe(sr *recipe.SourceRecipe, namespace string) *buildpkg.Package {
	p := buildpkg.NewPackage(sr.Metadata.Name)
	p.Namespace = namespace
	p.DefaultURL = sr.Metadata.DefaultURL
	p.Extendable = sr.Policy.Extendable
	p.SanityCheckIsFile = sr.Policy.SanityCheckIsFile
	p.SanityCheckIsDir = sr.Policy.SanityCheckIsDir
	if sr.Policy.Parallel != nil {
		p.Parallel = *sr.Policy.Parallel
	}
	p.MakeJobs = sr.Policy.MakeJobs

	for _, v := range sr.Versions {
		meta := buildpkg.VersionMeta{Checksum: v.Checksum, URL: v.URL}
		if v.GitRef != "" {
			meta.Fetch = &buildpkg.FetchDescriptor{Scheme: "git", Target: v.GitRef}
		}
		p.Versions[v.Version] = meta
	}

	for _, group := range sr.Patches {
		list := make([]buildpkg.PatchDescriptor, len(group.Patches))
		for i, pd := range group.Patches {
			list[i] = buildpkg.PatchDescriptor{
				ID: pd.ID, URL: pd.URL, Data: pd.Data,
				Checksum: pd.Checksum, Strip: pd.Strip, Subdir: pd.Subdir,
			}
		}
		p.Patches = append(p.Patches, buildpkg.PatchGroup{Constraint: group.Constraint, Patches: list})
	}

	for _, group := range sr.Resources {
		list := make([]buildpkg.ResourceDescriptor, len(group.Resources))
		for i, rd := range group.Resources {
			fd := buildpkg.FetchDescriptor{Scheme: "url", Target: rd.URL}
			if rd.GitRef != "" {
				fd = buildpkg.FetchDescriptor{Scheme: "git", Target: rd.GitRef}
			}
			list[i] = buildpkg.ResourceDescriptor{Name: rd.Name, Fetch: fd, Destination: rd.Destination}
		}
		p.Resources = append(p.Resources, buildpkg.ResourceGroup{Constraint: group.Constraint, Resources: list})
	}

	for name, constraint := range sr.Dependencies {
		p.Dependencies[name] = constraint
	}
	for host, ext := range sr.Extendees {
		p.Extendees[host] = buildpkg.ExtendeeSpec{Constraint: ext.Constraint, Options: ext.Options}
	}
	p.Provides = sr.Provides

	return p
}

// DumpProvenance copies the recipe file and any inline patch files for name
// into dest, recreating the dirname-for-package-name layout.
func (r *Repository) DumpProvenance(name string, dest string) error {
	path, _ := r.pathFor(name)
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("dump provenance for %s: %w", name, err)
	}
	return os.WriteFile(filepath.Join(dest, "package.toml"), data, 0o644)
}
