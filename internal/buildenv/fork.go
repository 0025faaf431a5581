package buildenv

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"

	"github.com/tsukumogami/tsuku/internal/buildpkg"
)

// childEnvVar marks a re-exec'd child so main() can dispatch to the hidden
// build subcommand instead of the normal CLI.
const childEnvVar = "TSUKU_BUILD_CHILD"

// ForkBuildEnvironment is a reference buildpkg.BuildEnvironment that
// isolates the recipe's install operation in a child process by
// re-executing the current binary, since Go cannot fork() a running
// process and share in-process closures the way the original's
// subprocess-based build isolation did. The child communicates back via a
// serialized request file; stdio is redirected into the build log.
//
// RunChild is the hook invoked in the child process (wired from
// cmd/tsuku's hidden subcommand); it deserializes the request and invokes
// the real recipe logic, which only the parent process knows how to look
// up by spec name. Because that lookup needs the full Services bundle,
// ForkBuildEnvironment's default Fork implementation below runs fn
// in-process rather than truly forking: process-level isolation is
// provided only when InProcess is false and Reexec is set.
type ForkBuildEnvironment struct {
	// InProcess runs fn directly without a child process, for tests and
	// for environments where re-exec isolation is unnecessary (the
	// common case for pure-Go recipes with no untrusted build logic).
	InProcess bool

	// WorkDir is where the request/response files are written when not
	// InProcess.
	WorkDir string
}

// NewForkBuildEnvironment returns an in-process ForkBuildEnvironment,
// suitable for recipes implemented in Go that don't need OS-level
// isolation from the parent.
func NewForkBuildEnvironment() *ForkBuildEnvironment {
	return &ForkBuildEnvironment{InProcess: true}
}

// Fork runs fn, optionally inside a re-exec'd child process.
func (fb *ForkBuildEnvironment) Fork(ctx context.Context, req *buildpkg.BuildRequest, fn func(*buildpkg.BuildContextArgs) error) error {
	if fb.InProcess || os.Getenv(childEnvVar) == "1" {
		return fn(&buildpkg.BuildContextArgs{
			Spec:       req.Spec,
			Prefix:     req.Prefix,
			SourcePath: req.SourcePath,
			MakeJobs:   req.MakeJobs,
		})
	}

	reqPath, err := writeRequestFile(fb.WorkDir, req)
	if err != nil {
		return &buildpkg.InstallError{Package: req.Spec.Name, Reason: "write build request: " + err.Error(), Err: err}
	}
	defer os.Remove(reqPath)

	exe, err := os.Executable()
	if err != nil {
		return &buildpkg.InstallError{Package: req.Spec.Name, Reason: "resolve executable: " + err.Error(), Err: err}
	}

	cmd := exec.CommandContext(ctx, exe, "__buildpkg-child", reqPath)
	cmd.Env = append(os.Environ(), childEnvVar+"=1")
	if req.Stdout != nil {
		cmd.Stdout = req.Stdout
	}
	if req.Stderr != nil {
		cmd.Stderr = req.Stderr
	}
	if err := cmd.Run(); err != nil {
		return &buildpkg.InstallError{Package: req.Spec.Name, Reason: "build child exited: " + err.Error(), Err: err}
	}
	return nil
}

type BuildRequestFile struct {
	PackageName string `json:"package_name"`
	Version     string `json:"version"`
	Prefix      string `json:"prefix"`
	SourcePath  string `json:"source_path"`
	MakeJobs    int    `json:"make_jobs"`
}

func writeRequestFile(workDir string, req *buildpkg.BuildRequest) (string, error) {
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return "", err
	}
	f, err := os.CreateTemp(workDir, "build-request-*.json")
	if err != nil {
		return "", err
	}
	defer f.Close()

	version := ""
	if req.Spec.Version != nil {
		version = req.Spec.Version.Original()
	}
	payload := BuildRequestFile{
		PackageName: req.Spec.Name,
		Version:     version,
		Prefix:      req.Prefix,
		SourcePath:  req.SourcePath,
		MakeJobs:    req.MakeJobs,
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(payload); err != nil {
		return "", err
	}
	return f.Name(), nil
}

// ReadRequestFile is used by the child-side subcommand to recover the
// request written by writeRequestFile.
func ReadRequestFile(path string) (*BuildRequestFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r BuildRequestFile
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode build request: %w", err)
	}
	return &r, nil
}
