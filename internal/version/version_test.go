package version

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

// TestVersionStrings ensures Short and Full return non-empty consistent information.
func TestVersionStrings(t *testing.T) {
	t.Parallel()

	require.NotEmpty(t, Short())
	require.Contains(t, Full(), Short())
	require.Equal(t, Short(), Semver().Original())
}

// TestIsNewer compares candidate versions with the running build.
func TestIsNewer(t *testing.T) {
	t.Parallel()

	newer, err := IsNewer("v99.0.0")
	require.NoError(t, err)
	require.True(t, newer)

	newer, err = IsNewer(Short())
	require.NoError(t, err)
	require.False(t, newer)

	_, err = IsNewer("latest")
	require.Error(t, err)
}

// TestAttachCobraVersionCommand runs the subcommand.
func TestAttachCobraVersionCommand(t *testing.T) {
	t.Parallel()

	root := &cobra.Command{Use: "fall-guard"}
	AttachCobraVersionCommand(root)

	var out bytes.Buffer

	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	require.Equal(t, Full(), strings.TrimSpace(out.String()))
}
