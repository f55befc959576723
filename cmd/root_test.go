package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/kube-context-monitor/internal/monitor"
)

// withVersion sets the build version for the duration of the test.
func withVersion(t *testing.T, version string) {
	t.Helper()
	previous := rootCmd.Version
	SetVersion(version)
	t.Cleanup(func() { rootCmd.Version = previous })
}

// execute runs cmd without arguments and returns its stdout.
func execute(t *testing.T, cmd *cobra.Command) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{})
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCmd(t *testing.T) {
	assert.Equal(t, appName, rootCmd.Use)
	assert.Equal(t, "Monitor the health, permissions and resources of every kubeconfig context", rootCmd.Short)
	assert.Contains(t, rootCmd.Long, "Model Context Protocol")
	assert.True(t, rootCmd.SilenceUsage)

	var names []string
	for _, sub := range rootCmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.Subset(t, names, []string{"version", "self-update", "serve", "contexts", "status", "wait-ready"})
}

func TestSetVersion(t *testing.T) {
	withVersion(t, "v1.2.3-rc.1")
	assert.Equal(t, "v1.2.3-rc.1", rootCmd.Version)
}

func TestVersionCmd(t *testing.T) {
	for _, version := range []string{"dev", "v0.4.0", ""} {
		t.Run("version "+version, func(t *testing.T) {
			withVersion(t, version)

			out, err := execute(t, newVersionCmd())
			require.NoError(t, err)
			assert.Equal(t, fmt.Sprintf("kube-context-monitor version %s\n", version), out)
		})
	}
}

func TestSelfUpdateRefusesDevelopmentBuilds(t *testing.T) {
	assert.Equal(t, "giantswarm/kube-context-monitor", githubRepoSlug)

	cmd := newSelfUpdateCmd()
	assert.Equal(t, "self-update", cmd.Use)
	assert.Contains(t, cmd.Long, "GitHub")

	for _, version := range []string{"dev", ""} {
		t.Run("version "+version, func(t *testing.T) {
			withVersion(t, version)

			_, err := execute(t, newSelfUpdateCmd())
			require.Error(t, err)
			assert.Contains(t, err.Error(), "cannot self-update a development version")
		})
	}
}

func TestExitCode(t *testing.T) {
	notReady := &monitor.ReadinessTimeoutError{ContextName: "dev", Targets: []string{"pods"}, Timeout: time.Second}

	assert.Equal(t, exitNotReady, exitCode(notReady))
	assert.Equal(t, exitNotReady, exitCode(fmt.Errorf("wait: %w", notReady)))
	assert.Equal(t, 1, exitCode(errors.New("boom")))
}
