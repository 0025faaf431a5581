// Package buildenv provides reference implementations of the external
// collaborators the lifecycle engine (internal/buildpkg) consumes through
// interfaces: install layout, fetch strategies, build-environment process
// isolation, hook registry, recipe repository, and the installed-spec
// registry.
package buildenv

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/tsukumogami/tsuku/internal/buildpkg"
)

// registryEntry is the on-disk shape of a single installed spec.
type registryEntry struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Prefix       string   `json:"prefix"`
	DAGHash      string   `json:"dag_hash"`
	RequiredBy   []string `json:"required_by,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
}

type registryFile struct {
	FormatVersion int                      `json:"format_version"`
	Specs         map[string]registryEntry `json:"specs"`
}

// Registry is a JSON-file-backed implementation of buildpkg.Registry,
// persisted with the same atomic temp-file-then-rename write used
// throughout this codebase's state files.
type Registry struct {
	path string
	mu   sync.Mutex
}

// NewRegistry opens (without yet reading) a Registry backed by path.
func NewRegistry(path string) *Registry {
	return &Registry{path: path}
}

func (r *Registry) load() (*registryFile, error) {
	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return &registryFile{FormatVersion: 1, Specs: map[string]registryEntry{}}, nil
	}
	if err != nil {
		return nil, err
	}
	var f registryFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	if f.Specs == nil {
		f.Specs = map[string]registryEntry{}
	}
	return &f, nil
}

func (r *Registry) save(f *registryFile) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return err
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, r.path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// Query returns every spec currently recorded as installed.
func (r *Registry) Query() ([]*buildpkg.Spec, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, err := r.load()
	if err != nil {
		return nil, err
	}
	out := make([]*buildpkg.Spec, 0, len(f.Specs))
	for _, e := range f.Specs {
		out = append(out, &buildpkg.Spec{Name: e.Name})
	}
	return out, nil
}

// Add records s as installed at prefix, and updates RequiredBy on each of
// s's dependencies so PackageStillNeededError can be computed cheaply.
func (r *Registry) Add(s *buildpkg.Spec, prefix string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, err := r.load()
	if err != nil {
		return err
	}

	deps := make([]string, 0, len(s.Dependencies))
	for _, d := range s.Dependencies {
		deps = append(deps, d.Name)
		if dep, ok := f.Specs[d.Name]; ok {
			if !contains(dep.RequiredBy, s.Name) {
				dep.RequiredBy = append(dep.RequiredBy, s.Name)
				f.Specs[d.Name] = dep
			}
		}
	}

	version := ""
	if s.Version != nil {
		version = s.Version.Original()
	}
	f.Specs[s.Name] = registryEntry{
		Name:         s.Name,
		Version:      version,
		Prefix:       prefix,
		DAGHash:      s.DAGHash(),
		Dependencies: deps,
	}
	return r.save(f)
}

// Remove deletes s's registry entry and removes s from its dependencies'
// RequiredBy lists.
func (r *Registry) Remove(s *buildpkg.Spec) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, err := r.load()
	if err != nil {
		return err
	}
	entry, ok := f.Specs[s.Name]
	if !ok {
		return fmt.Errorf("no registry entry for %s", s.Name)
	}
	for _, depName := range entry.Dependencies {
		if dep, ok := f.Specs[depName]; ok {
			dep.RequiredBy = remove(dep.RequiredBy, s.Name)
			f.Specs[depName] = dep
		}
	}
	delete(f.Specs, s.Name)
	return r.save(f)
}

// Dependents returns the names of installed specs that still depend on s.
func (r *Registry) Dependents(s *buildpkg.Spec) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, err := r.load()
	if err != nil {
		return nil, err
	}
	entry, ok := f.Specs[s.Name]
	if !ok {
		return nil, nil
	}
	return entry.RequiredBy, nil
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func remove(list []string, v string) []string {
	out := list[:0]
	for _, x := range list {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}
