package buildenv

import "github.com/tsukumogami/tsuku/internal/buildpkg"

// Hook is a single registered lifecycle callback.
type Hook func(s *buildpkg.Spec) error

// HookRegistry is a reference buildpkg.HookRegistry: an ordered list of
// callbacks per lifecycle point, matching the Register/init() pattern this
// codebase uses for build actions.
type HookRegistry struct {
	preInstall    []Hook
	postInstall   []Hook
	preUninstall  []Hook
	postUninstall []Hook
}

// NewHookRegistry returns an empty HookRegistry.
func NewHookRegistry() *HookRegistry { return &HookRegistry{} }

func (r *HookRegistry) RegisterPreInstall(h Hook)    { r.preInstall = append(r.preInstall, h) }
func (r *HookRegistry) RegisterPostInstall(h Hook)   { r.postInstall = append(r.postInstall, h) }
func (r *HookRegistry) RegisterPreUninstall(h Hook)  { r.preUninstall = append(r.preUninstall, h) }
func (r *HookRegistry) RegisterPostUninstall(h Hook) { r.postUninstall = append(r.postUninstall, h) }

func runAll(hooks []Hook, s *buildpkg.Spec) error {
	for _, h := range hooks {
		if err := h(s); err != nil {
			return err
		}
	}
	return nil
}

func (r *HookRegistry) PreInstall(s *buildpkg.Spec) error    { return runAll(r.preInstall, s) }
func (r *HookRegistry) PostInstall(s *buildpkg.Spec) error   { return runAll(r.postInstall, s) }
func (r *HookRegistry) PreUninstall(s *buildpkg.Spec) error  { return runAll(r.preUninstall, s) }
func (r *HookRegistry) PostUninstall(s *buildpkg.Spec) error { return runAll(r.postUninstall, s) }
