package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"arch-setup/internal/chroot"
	"arch-setup/internal/config"
	"arch-setup/internal/disk"
	"arch-setup/internal/installer"
	"arch-setup/internal/logger"
	"arch-setup/internal/postinstall"
	"arch-setup/internal/prompt"
	"arch-setup/internal/system"
)

const (
	defaultLogDir  = "/var/log/arch-setup"
	installLogFile = "install.log"
)

// Flags shared by install and configure.
var (
	configPath string
	credsPath  string
	logDir     string
	mountPoint string
)

var (
	dryRun bool
	silent bool
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install Arch Linux onto a disk and run the post-install pass",
	Long: `Collects the installation answers from the config file and the prompts,
saves them to the log directory, installs the system and runs the post-install
script from the ISO configuration directory inside the new system.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInstall(cmd)
	},
}

func init() {
	installCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path or http(s) URL of a YAML/TOML configuration file")
	installCmd.Flags().StringVar(&credsPath, "creds", "", "Path to a credentials JSON file")
	installCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Save the configuration and show the plan, then exit")
	installCmd.Flags().BoolVar(&silent, "silent", false, "Never prompt; the configuration must be complete")
	installCmd.Flags().StringVar(&mountPoint, "mountpoint", config.DefaultMountPoint, "Where the target root is mounted")
	installCmd.Flags().StringVar(&logDir, "log-dir", defaultLogDir, "Directory for the saved configuration and logs")
	rootCmd.AddCommand(installCmd)
}

func runInstall(cmd *cobra.Command) error {
	ctx := cmd.Context()

	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	logFile, err := os.OpenFile(filepath.Join(logDir, installLogFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open install log: %w", err)
	}
	defer logFile.Close()
	exec := system.NewExecutor(io.MultiWriter(os.Stdout, logFile))

	var p prompt.Prompter
	if !silent {
		if !prompt.IsInteractive() {
			return errors.New("stdin is not a terminal; use --silent with a complete configuration")
		}
		term := prompt.NewTerminal()
		defer term.Close()
		p = term
	}

	opts := layerOptionsFrom(cmd)
	var (
		cfg   *config.Config
		creds *config.Credentials
	)
	for {
		cfg, creds, err = buildConfig(ctx, opts, exec, p)
		if err != nil {
			return err
		}
		if err := config.Save(logDir, cfg, creds); err != nil {
			return err
		}
		logger.Info("[INFO] Configuration saved to %s\n", logDir)

		if cfg.DryRun {
			return showPlan(cmd.OutOrStdout(), cfg, creds)
		}
		if cfg.Silent {
			break
		}

		fmt.Println(config.Summary(cfg))
		ok, err := p.Confirm("Would you like to proceed with the installation?", true)
		if err != nil {
			return err
		}
		if ok {
			break
		}
		logger.Debug("[DEBUG] Installation aborted, starting over\n")
	}

	if os.Geteuid() != 0 {
		return errors.New("install must run as root")
	}

	backend := installer.NewPacstrap(exec, cfg, creds)
	if err := system.RequireTools(backend.RequiredTools()...); err != nil {
		return err
	}

	ch := chroot.New(cfg.MountPoint, exec)
	hooks := installer.Hooks{
		ConfigureSystem: func(ctx context.Context) error {
			_, err := postinstall.ConfigureSystem(ctx, cfg, ch, logDir)
			return err
		},
	}
	if !cfg.Silent {
		hooks.DropToShell = func(ctx context.Context) {
			ok, err := p.Confirm("Would you like to chroot into the newly created installation and perform post-installation configuration?", false)
			if err != nil || !ok {
				return
			}
			if err := ch.Shell(ctx); err != nil {
				logger.Warn("[WARN] Chroot shell exited: %v\n", err)
			}
		}
	}

	if err := installer.Perform(ctx, backend, cfg, creds, hooks); err != nil {
		logger.Error("[ERROR] Installation failed: %v\n", err)
		return err
	}

	logger.Info("[INFO] Installation complete. You can now reboot.\n")
	return nil
}

// layerOptions are the command line inputs buildConfig layers over the
// defaults. The *Set fields tell whether a flag was given explicitly.
type layerOptions struct {
	configPath string
	credsPath  string
	logDir     string

	mountPoint    string
	mountPointSet bool
	silent        bool
	silentSet     bool
	dryRun        bool
	dryRunSet     bool
}

func layerOptionsFrom(cmd *cobra.Command) layerOptions {
	flags := cmd.Flags()
	return layerOptions{
		configPath:    configPath,
		credsPath:     credsPath,
		logDir:        logDir,
		mountPoint:    mountPoint,
		mountPointSet: flags.Changed("mountpoint"),
		silent:        silent,
		silentSet:     flags.Changed("silent"),
		dryRun:        dryRun,
		dryRunSet:     flags.Changed("dry-run"),
	}
}

// buildConfig layers defaults, the config and credentials files, the command
// line flags and (unless silent) the prompts, then validates the result.
func buildConfig(ctx context.Context, opts layerOptions, exec system.Executor, p prompt.Prompter) (*config.Config, *config.Credentials, error) {
	cfg := config.Defaults()
	creds := &config.Credentials{}

	baseDir, _ := os.Getwd()
	if opts.configPath != "" {
		path := opts.configPath
		if config.IsRemote(path) {
			downloaded, err := config.Download(ctx, path, opts.logDir)
			if err != nil {
				return nil, nil, err
			}
			path = downloaded
		} else {
			baseDir = filepath.Dir(path)
		}
		if err := config.Load(path, cfg); err != nil {
			return nil, nil, err
		}
	}
	if opts.credsPath != "" {
		if err := config.LoadCredentials(opts.credsPath, creds); err != nil {
			return nil, nil, err
		}
	}

	if opts.mountPointSet {
		cfg.MountPoint = opts.mountPoint
	}
	if opts.silentSet {
		cfg.Silent = opts.silent
	}
	if opts.dryRunSet {
		cfg.DryRun = opts.dryRun
	}
	if cfg.Silent != opts.silent {
		return nil, nil, errors.New("the config file sets silent; pass --silent as well")
	}
	if !cfg.Silent && p == nil {
		return nil, nil, errors.New("no prompter for an interactive run")
	}

	devices, err := disk.ListDevices(ctx, exec)
	if err != nil {
		return nil, nil, err
	}

	if cfg.Silent {
		if err := silentLayout(cfg, devices); err != nil {
			return nil, nil, err
		}
	} else if err := prompt.Collect(ctx, p, devices, cfg, creds); err != nil {
		return nil, nil, err
	}

	if err := config.MergePackageFiles(cfg, baseDir); err != nil {
		return nil, nil, err
	}
	if err := config.Validate(cfg, creds); err != nil {
		return nil, nil, err
	}
	return cfg, creds, nil
}

// silentLayout suggests the layout for the configured device when the config
// file names a device but no partitions.
func silentLayout(cfg *config.Config, devices []disk.Device) error {
	if cfg.Disk.Device == "" {
		return nil
	}
	if len(cfg.Disk.Partitions) > 0 {
		return config.ApplyLayout(cfg, disk.Device{Path: cfg.Disk.Device})
	}
	for _, d := range devices {
		if d.Path == cfg.Disk.Device {
			return config.ApplyLayout(cfg, d)
		}
	}
	return fmt.Errorf("configured disk %s not found", cfg.Disk.Device)
}

// showPlan prints what an installation with cfg would do, without touching
// the disk.
func showPlan(w io.Writer, cfg *config.Config, creds *config.Credentials) error {
	fmt.Fprintln(w, config.Summary(cfg))

	configure, err := postinstall.Steps(cfg, chroot.New(cfg.MountPoint, nil))
	if err != nil {
		return err
	}
	hooks := installer.Hooks{ConfigureSystem: func(context.Context) error { return nil }}

	logger.Info("[INFO] Dry run, nothing was changed.\n")
	fmt.Fprintln(w, "The installation would run:")
	for i, name := range installer.Plan(cfg, creds, hooks) {
		fmt.Fprintf(w, "  %2d. %s\n", i+1, name)
	}
	fmt.Fprintln(w, "The post-install pass would run:")
	for i, s := range configure {
		fmt.Fprintf(w, "  %2d. %s: %s\n", i+1, s.Name, s.Action.String())
	}
	return nil
}
