// Package buildctx implements the "build context" value handed to a
// recipe's install operation: Configure/Make/CMake/Cargo builder methods
// that wrap the corresponding build tool invocation, replacing the
// dynamically-extended recipe namespace the original source packages used.
package buildctx

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/tsukumogami/tsuku/internal/buildpkg"
)

// FromArgs builds a Context from the plain data SourcePackage.Install
// receives, filling in DependencyDirs from the running process's
// environment so recipe code never has to touch os.Environ directly.
// SourcePackage.Install takes *buildpkg.BuildContextArgs rather than
// *Context itself so buildpkg need not import buildctx; a recipe calls
// FromArgs as its first line and then drives the returned Context.
func FromArgs(args *buildpkg.BuildContextArgs, dependencyDirs map[string]string) *Context {
	return &Context{
		Spec:           args.Spec,
		SourcePath:     args.SourcePath,
		Prefix:         args.Prefix,
		MakeJobs:       args.MakeJobs,
		Stdout:         os.Stdout,
		Stderr:         os.Stderr,
		DependencyDirs: dependencyDirs,
	}
}

// Context is the build context value handed to a recipe's install
// operation; it exposes the working directory layout and the builder
// methods a recipe uses to drive its build tool of choice.
type Context struct {
	Spec       *buildpkg.Spec
	SourcePath string
	Prefix     string
	MakeJobs   int
	Stdout     *os.File
	Stderr     *os.File

	// DependencyDirs maps an install-time dependency name to its install
	// prefix, used to derive PATH/PKG_CONFIG_PATH/CPPFLAGS/LDFLAGS the
	// same way this codebase's autotools action does.
	DependencyDirs map[string]string
}

func (c *Context) baseEnv() []string {
	env := os.Environ()
	filtered := env[:0]
	for _, e := range env {
		if strings.HasPrefix(e, "SOURCE_DATE_EPOCH=") ||
			strings.HasPrefix(e, "PATH=") ||
			strings.HasPrefix(e, "PKG_CONFIG_PATH=") ||
			strings.HasPrefix(e, "CPPFLAGS=") ||
			strings.HasPrefix(e, "LDFLAGS=") {
			continue
		}
		filtered = append(filtered, e)
	}
	filtered = append(filtered, "SOURCE_DATE_EPOCH=0")
	// Preserves RPATH for non-system dependency libraries; see the
	// autotools action this is ported from for why libtool needs this.
	filtered = append(filtered, "lt_cv_sys_lib_dlsearch_path_spec=")

	var binPaths, pkgConfigPaths, cppFlags, ldFlags []string
	for _, depDir := range c.DependencyDirs {
		if bin := filepath.Join(depDir, "bin"); dirExists(bin) {
			binPaths = append(binPaths, bin)
		}
		if pc := filepath.Join(depDir, "lib", "pkgconfig"); dirExists(pc) {
			pkgConfigPaths = append(pkgConfigPaths, pc)
		}
		if inc := filepath.Join(depDir, "include"); dirExists(inc) {
			cppFlags = append(cppFlags, "-I"+inc)
		}
		if lib := filepath.Join(depDir, "lib"); dirExists(lib) {
			ldFlags = append(ldFlags, "-L"+lib, "-Wl,-rpath,"+lib)
		}
	}

	existingPath := os.Getenv("PATH")
	if len(binPaths) > 0 {
		filtered = append(filtered, "PATH="+strings.Join(binPaths, ":")+":"+existingPath)
	} else {
		filtered = append(filtered, "PATH="+existingPath)
	}
	if len(pkgConfigPaths) > 0 {
		filtered = append(filtered, "PKG_CONFIG_PATH="+strings.Join(pkgConfigPaths, ":"))
	}
	if len(cppFlags) > 0 {
		filtered = append(filtered, "CPPFLAGS="+strings.Join(cppFlags, " "))
	}
	if len(ldFlags) > 0 {
		filtered = append(filtered, "LDFLAGS="+strings.Join(ldFlags, " "))
	}
	return filtered
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func (c *Context) run(ctx context.Context, dir, name string, args []string, env []string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Env = env
	if c.Stdout != nil {
		cmd.Stdout = c.Stdout
	}
	if c.Stderr != nil {
		cmd.Stderr = c.Stderr
	}
	if cmd.Stdout == nil && cmd.Stderr == nil {
		out, err := cmd.CombinedOutput()
		if err != nil {
			return &buildpkg.InstallError{Package: c.Spec.Name, Reason: fmt.Sprintf("%s %v failed: %v\n%s", name, args, err, out), Err: err}
		}
		return nil
	}
	if err := cmd.Run(); err != nil {
		return &buildpkg.InstallError{Package: c.Spec.Name, Reason: fmt.Sprintf("%s %v failed: %v", name, args, err), Err: err}
	}
	return nil
}

// Configure runs ./configure --prefix=<prefix> plus extra args, then make
// and make install, matching this codebase's autotools build action.
func (c *Context) Configure(ctx context.Context, args ...string) error {
	env := c.baseEnv()
	script := filepath.Join(c.SourcePath, "configure")
	if _, err := os.Stat(script); err != nil {
		return &buildpkg.InstallError{Package: c.Spec.Name, Reason: "configure script not found: " + err.Error(), Err: err}
	}
	touchAutogeneratedFiles(c.SourcePath)

	configureArgs := append([]string{"--prefix=" + c.Prefix}, args...)
	if err := c.run(ctx, c.SourcePath, script, configureArgs, env); err != nil {
		return err
	}
	return c.Make(ctx, "", "install")
}

// Make runs `make <target>` for each target in order (an empty target runs
// plain `make`), setting MAKEINFO=true to suppress documentation
// regeneration the way the autotools action does.
func (c *Context) Make(ctx context.Context, targets ...string) error {
	env := c.baseEnv()
	makeArgs := []string{"MAKEINFO=true"}
	if c.MakeJobs > 0 {
		makeArgs = append(makeArgs, fmt.Sprintf("-j%d", c.MakeJobs))
	}
	for _, t := range targets {
		args := append([]string{}, makeArgs...)
		if t != "" {
			args = append(args, t)
		}
		if err := c.run(ctx, c.SourcePath, findMake(), args, env); err != nil {
			return err
		}
	}
	return nil
}

// CMake runs cmake -S <source> -B <build>, then --build and --install,
// matching this codebase's cmake build action.
func (c *Context) CMake(ctx context.Context, buildType string, args ...string) error {
	env := c.baseEnv()
	if buildType == "" {
		buildType = "Release"
	}
	buildDir := filepath.Join(c.SourcePath, "build")

	configureArgs := []string{
		"-S", c.SourcePath,
		"-B", buildDir,
		"-DCMAKE_INSTALL_PREFIX=" + c.Prefix,
		"-DCMAKE_BUILD_TYPE=" + buildType,
	}
	configureArgs = append(configureArgs, args...)
	if err := c.run(ctx, c.SourcePath, "cmake", configureArgs, env); err != nil {
		return err
	}

	buildArgs := []string{"--build", buildDir}
	if c.MakeJobs > 0 {
		buildArgs = append(buildArgs, "--parallel", fmt.Sprintf("%d", c.MakeJobs))
	}
	if err := c.run(ctx, c.SourcePath, "cmake", buildArgs, env); err != nil {
		return err
	}

	return c.run(ctx, c.SourcePath, "cmake", []string{"--install", buildDir}, env)
}

// Cargo runs `cargo install --path <source> --root <prefix>`, the
// reference builder for Rust recipes the original had no equivalent for;
// added because the corpus's cargo-ecosystem tooling otherwise had no
// lifecycle-engine home.
func (c *Context) Cargo(ctx context.Context, args ...string) error {
	env := c.baseEnv()
	cargoArgs := append([]string{"install", "--path", c.SourcePath, "--root", c.Prefix}, args...)
	return c.run(ctx, c.SourcePath, "cargo", cargoArgs, env)
}

func findMake() string {
	if path, err := exec.LookPath("make"); err == nil {
		return path
	}
	return "make"
}

// touchAutogeneratedFiles bumps the mtime of common autotools-generated
// files so make does not try to regenerate them with maintainer tools that
// may be absent, matching the original autotools action's fixed timestamp
// policy for reproducible builds.
func touchAutogeneratedFiles(sourceDir string) {
	candidates := []string{"configure", "Makefile.in", "aclocal.m4", "config.h.in"}
	now := time.Unix(0, 0)
	for _, name := range candidates {
		path := filepath.Join(sourceDir, name)
		if _, err := os.Stat(path); err == nil {
			_ = os.Chtimes(path, now, now)
		}
	}
}
