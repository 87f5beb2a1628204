package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"arch-setup/internal/config"
	"arch-setup/internal/disk"
	"arch-setup/internal/logger"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect installation configuration files",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Check a configuration file (and optionally its credentials)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfigFile(args[0])
		if err != nil {
			return err
		}

		// Without a credentials file only the non-secret part is checked.
		var creds *config.Credentials
		if credsPath != "" {
			creds = &config.Credentials{}
			if err := config.LoadCredentials(credsPath, creds); err != nil {
				return err
			}
		}
		if err := config.Validate(cfg, creds); err != nil {
			return err
		}
		logger.Info("[INFO] %s is valid\n", args[0])
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show <file>",
	Short: "Print the summary of a configuration file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfigFile(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), config.Summary(cfg))
		return nil
	},
}

// loadConfigFile loads path over the defaults and merges its package files.
func loadConfigFile(path string) (*config.Config, error) {
	cfg := config.Defaults()
	if err := config.Load(path, cfg); err != nil {
		return nil, err
	}
	if err := config.MergePackageFiles(cfg, filepath.Dir(path)); err != nil {
		return nil, err
	}
	if cfg.Disk.Device != "" && len(cfg.Disk.Partitions) > 0 {
		if err := config.ApplyLayout(cfg, disk.Device{Path: cfg.Disk.Device}); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func init() {
	configValidateCmd.Flags().StringVar(&credsPath, "creds", "", "Path to a credentials JSON file")
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
