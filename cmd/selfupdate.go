package cmd

import (
	"errors"
	"fmt"

	"github.com/creativeprojects/go-selfupdate"
	"github.com/spf13/cobra"
)

// githubRepoSlug is the repository whose releases self-update installs.
const githubRepoSlug = "giantswarm/kube-context-monitor"

// newSelfUpdateCmd creates the Cobra command that replaces the running binary
// with the latest GitHub release.
func newSelfUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "self-update",
		Short: "Update " + appName + " to the latest version",
		Long: `Check the GitHub releases of kube-context-monitor and replace the
current binary with the latest release for this OS and architecture.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSelfUpdate(cmd, rootCmd.Version)
		},
	}
}

func runSelfUpdate(cmd *cobra.Command, current string) error {
	if current == "" || current == "dev" {
		return errors.New("cannot self-update a development version")
	}

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	latest, found, err := selfupdate.DetectLatest(ctx, selfupdate.ParseSlug(githubRepoSlug))
	if err != nil {
		return fmt.Errorf("failed to detect latest release: %w", err)
	}
	if !found {
		return fmt.Errorf("no release found for %s", githubRepoSlug)
	}

	if latest.LessOrEqual(current) {
		_, _ = fmt.Fprintf(out, "Current version %s is the latest\n", current)
		return nil
	}

	exe, err := selfupdate.ExecutablePath()
	if err != nil {
		return fmt.Errorf("failed to locate executable: %w", err)
	}

	_, _ = fmt.Fprintf(out, "Updating %s from %s to %s\n", appName, current, latest.Version())
	if err := selfupdate.UpdateTo(ctx, latest.AssetURL, latest.AssetName, exe); err != nil {
		return fmt.Errorf("failed to update binary: %w", err)
	}

	_, _ = fmt.Fprintf(out, "Successfully updated to version %s\n", latest.Version())
	return nil
}
