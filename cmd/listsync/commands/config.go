package commands

import (
	"github.com/spf13/cobra"
	"github.com/teranos/listsync/config"
	"github.com/teranos/listsync/errors"
)

// loadConfig resolves configuration for a command run, honoring the
// --config flag over the layered file lookup.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")

	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFromFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
