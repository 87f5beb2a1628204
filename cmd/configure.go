package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"arch-setup/internal/chroot"
	"arch-setup/internal/config"
	"arch-setup/internal/logger"
	"arch-setup/internal/postinstall"
	"arch-setup/internal/system"
)

var configureUser string

// configureCmd runs only the post-install pass, against a target that is
// already installed and mounted.
var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Run the post-install pass against a mounted target",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Defaults()
		if configPath != "" {
			if err := config.Load(configPath, cfg); err != nil {
				return err
			}
		}
		if cmd.Flags().Changed("mountpoint") || cfg.MountPoint == "" {
			cfg.MountPoint = mountPoint
		}
		if configureUser != "" {
			cfg.PostInstall.User = configureUser
		}
		if cfg.SudoUser() == "" {
			return fmt.Errorf("no user given; pass --user")
		}

		if err := system.RequireTools("arch-chroot"); err != nil {
			return err
		}
		exec := system.NewExecutor(cmd.OutOrStdout())
		journal, err := postinstall.ConfigureSystem(cmd.Context(), cfg, chroot.New(cfg.MountPoint, exec), logDir)
		printJournal(cmd.OutOrStdout(), journal)
		if err != nil {
			return err
		}
		logger.Info("[INFO] Post-install configuration complete\n")
		return nil
	},
}

func init() {
	configureCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to a YAML/TOML configuration file")
	configureCmd.Flags().StringVar(&mountPoint, "mountpoint", config.DefaultMountPoint, "Where the target root is mounted")
	configureCmd.Flags().StringVar(&configureUser, "user", "", "Account that owns the configuration directory")
	configureCmd.Flags().StringVar(&logDir, "log-dir", defaultLogDir, "Fallback directory for the journal")
	rootCmd.AddCommand(configureCmd)
}
