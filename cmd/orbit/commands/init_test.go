package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gopkg.in/yaml.v3"
)

// newInitTestCommand builds a command carrying the root's persistent
// flags so runInit can read them without a full root execution.
func newInitTestCommand(configPath string) (*cobra.Command, *bytes.Buffer) {
	out := &bytes.Buffer{}

	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	cmd.Flags().String("config", configPath, "")
	cmd.Flags().BoolP("verbose", "v", false, "")
	cmd.Flags().BoolP("quiet", "q", false, "")
	cmd.SetOut(out)

	return cmd, out
}

func TestRunInit_CreatesConfigAndDatabase(t *testing.T) {
	t.Chdir(t.TempDir())

	cmd, out := newInitTestCommand("")

	err := runInit(cmd, nil)
	require.NoError(t, err)

	assert.FileExists(t, defaultStarterPath)
	assert.FileExists(t, "social_graph.db")
	assert.Contains(t, out.String(), "wrote .orbit.yaml")
	assert.Contains(t, out.String(), "database ready")
}

func TestRunInit_KeepsExistingConfig(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	configPath := filepath.Join(dir, "orbit.yaml")
	dbPath := filepath.Join(dir, "orbit.db")

	existing, err := yaml.Marshal(map[string]any{"database_url": dbPath})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(configPath, existing, 0o600))

	cmd, out := newInitTestCommand(configPath)

	err = runInit(cmd, nil)
	require.NoError(t, err)

	assert.FileExists(t, dbPath)
	assert.Contains(t, out.String(), "already exists")

	// The existing file must not be rewritten with defaults.
	data, err := os.ReadFile(configPath)
	require.NoError(t, err)
	assert.Equal(t, existing, data)
}
