package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tsukumogami/tsuku/internal/buildenv"
	"github.com/tsukumogami/tsuku/internal/buildpkg"
	"github.com/tsukumogami/tsuku/internal/config"

	"github.com/Masterminds/semver/v3"
)

// buildpkgChildCmd is the hidden re-exec target ForkBuildEnvironment.Fork
// invokes for a source-build install: it loads the request file written by
// the parent, resolves the package's recipe from the source-packages
// repository, and runs the recipe's Install with the build context data
// the re-exec request carried. Never invoked directly; cobra hides it
// from help output.
var buildpkgChildCmd = &cobra.Command{
	Use:    "__buildpkg-child <request-file>",
	Hidden: true,
	Args:   cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := buildenv.ReadRequestFile(args[0])
		if err != nil {
			return fmt.Errorf("read build request: %w", err)
		}

		cfg, err := config.DefaultConfig()
		if err != nil {
			return err
		}
		repo := buildenv.NewRepository(cfg.SourcePackagesDir)

		pkg, err := repo.Get(req.PackageName)
		if err != nil {
			return fmt.Errorf("load package %s: %w", req.PackageName, err)
		}

		var version *semver.Version
		if req.Version != "" {
			version, err = semver.NewVersion(req.Version)
			if err != nil {
				return fmt.Errorf("parse version %s: %w", req.Version, err)
			}
		}
		spec := &buildpkg.Spec{Name: req.PackageName, Version: version}

		if pkg.Recipe() == nil {
			return &buildpkg.InstallError{Package: req.PackageName, Reason: "recipe has no install method"}
		}

		buildArgs := &buildpkg.BuildContextArgs{
			Spec:       spec,
			Prefix:     req.Prefix,
			SourcePath: req.SourcePath,
			MakeJobs:   req.MakeJobs,
		}
		return pkg.Recipe().Install(context.Background(), spec, buildArgs)
	},
}

func init() {
	rootCmd.AddCommand(buildpkgChildCmd)
}
