package commands

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/fieldline/orbit/internal/config"
	"github.com/fieldline/orbit/internal/store"
)

// defaultStarterPath is where orbit init writes the config file.
const defaultStarterPath = ".orbit.yaml"

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file and create the database schema",
		Long: `Write a starter config file with documented defaults and create
the SQLite schema at the configured database path. An existing config
file is left untouched.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runInit,
	}
}

func runInit(cmd *cobra.Command, _ []string) error {
	configPath, _, _ := globalOptions(cmd)
	if configPath == "" {
		configPath = defaultStarterPath
	}

	err := config.WriteStarterFile(configPath)

	switch {
	case errors.Is(err, config.ErrConfigExists):
		progressf(cmd, "config file already exists: %s\n", configPath)
	case err != nil:
		return err
	default:
		progressf(cmd, "wrote %s\n", configPath)
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	st, err := store.Open(cmd.Context(), cfg.DatabaseURL)
	if err != nil {
		return err
	}

	defer func() { _ = st.Close() }()

	progressf(cmd, "database ready: %s\n", cfg.DatabaseURL)

	return nil
}
