package buildenv

import (
	"context"
	"os/exec"
	"path/filepath"

	"github.com/tsukumogami/tsuku/internal/buildpkg"
)

// GitFetcher performs a shallow clone of a git repository at a specific
// ref, matching the subprocess-wrapping idiom used throughout this
// codebase's build-tool invocations rather than depending on an
// in-process git library.
type GitFetcher struct {
	target string // "<repo-url>#<ref>" or bare repo URL (defaults to HEAD)
}

// NewGitFetcher builds a GitFetcher for target.
func NewGitFetcher(target string) *GitFetcher { return &GitFetcher{target: target} }

func (f *GitFetcher) URL() string { return f.target }

func (f *GitFetcher) repoAndRef() (repo, ref string) {
	for i := len(f.target) - 1; i >= 0; i-- {
		if f.target[i] == '#' {
			return f.target[:i], f.target[i+1:]
		}
	}
	return f.target, ""
}

// Fetch clones the repository into destDir/src. mirrorOnly is not
// meaningful for git fetches (there is no separate mirror cache entry
// distinct from the clone itself) and is ignored.
func (f *GitFetcher) Fetch(ctx context.Context, destDir string, mirrorOnly bool) (string, error) {
	repo, ref := f.repoAndRef()
	dest := filepath.Join(destDir, "src")

	args := []string{"clone", "--depth", "1"}
	if ref != "" {
		args = append(args, "--branch", ref)
	}
	args = append(args, repo, dest)

	cmd := exec.CommandContext(ctx, "git", args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", &buildpkg.FetchError{URL: f.target, Reason: "git clone failed: " + string(out), Err: err}
	}
	return dest, nil
}
