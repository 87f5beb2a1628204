// Package installer delegates the base installation to a Backend and sequences
// its capabilities in a fixed order.
package installer

import (
	"context"
	"errors"
	"fmt"
	"os"

	"arch-setup/internal/config"
	"arch-setup/internal/logger"
)

// Account is a user created on the target, password included.
type Account struct {
	Name     string
	Password string
	Sudo     bool
}

// MinimalOptions parameterises the base system installation.
type MinimalOptions struct {
	Testing    bool
	Multilib   bool
	Mkinitcpio bool
	Hostname   string
	Locale     config.LocaleConfig
}

// Backend is everything Perform needs from the installer doing the real work.
// Implementations own the target mount point and the disk layout they were
// built with.
type Backend interface {
	PerformFilesystemOperations(ctx context.Context) error
	MountLayout(ctx context.Context) error
	SanityCheck(ctx context.Context) error
	GenerateKeyFiles(ctx context.Context) error
	SetMirrors(ctx context.Context, mirrors config.MirrorConfig, onTarget bool) error
	MinimalInstallation(ctx context.Context, opts MinimalOptions) error
	SetupSwap(ctx context.Context, kind string) error
	AddAdditionalPackages(ctx context.Context, pkgs []string) error
	AddBootloader(ctx context.Context, kind config.Bootloader, uki bool) error
	InstallNetworkConfig(ctx context.Context, network string, profile config.ProfileConfig) error
	CreateUsers(ctx context.Context, users []Account) error
	InstallAudio(ctx context.Context, audio string) error
	InstallProfile(ctx context.Context, profile config.ProfileConfig) error
	SetTimezone(ctx context.Context, tz string) error
	ActivateTimeSynchronization(ctx context.Context) error
	SetUserPassword(ctx context.Context, user, password string) error
	ProfilePostInstall(ctx context.Context, profile config.ProfileConfig) error
	EnableServices(ctx context.Context, services []string) error
	RunCustomCommands(ctx context.Context, cmds []string) error
	Genfstab(ctx context.Context) error
	Unmount(ctx context.Context) error
}

// Hooks are the caller's extension points inside the installation.
type Hooks struct {
	// HasUEFI reports whether the host booted in UEFI mode. Nil checks
	// /sys/firmware/efi.
	HasUEFI func() bool
	// ConfigureSystem runs after genfstab, while the target is still mounted.
	ConfigureSystem func(ctx context.Context) error
	// DropToShell runs last before unmounting. Its failures are not errors.
	DropToShell func(ctx context.Context)
}

type phase struct {
	name string
	run  func(ctx context.Context) error
}

// Perform formats and mounts the layout, installs the system through b and
// runs the hooks. The target is unmounted before returning whatever happens
// after the filesystems were created; an unmount error is joined to the result.
func Perform(ctx context.Context, b Backend, cfg *config.Config, creds *config.Credentials, hooks Hooks) (err error) {
	if hooks.HasUEFI == nil {
		hooks.HasUEFI = hostHasUEFI
	}

	logger.Info("[INFO] Creating filesystems on %s\n", cfg.Disk.Device)
	if err := b.PerformFilesystemOperations(ctx); err != nil {
		return fmt.Errorf("perform filesystem operations: %w", err)
	}

	defer func() {
		// Unmount even when ctx was cancelled.
		if uerr := b.Unmount(context.WithoutCancel(ctx)); uerr != nil {
			err = errors.Join(err, fmt.Errorf("unmount: %w", uerr))
		}
	}()

	logger.Info("[INFO] Starting installation...\n")
	for _, p := range installPhases(b, cfg, creds, hooks) {
		if err := ctx.Err(); err != nil {
			return err
		}
		logger.Debug("[DEBUG] installer: %s\n", p.name)
		if err := p.run(ctx); err != nil {
			return fmt.Errorf("%s: %w", p.name, err)
		}
	}

	if hooks.DropToShell != nil && ctx.Err() == nil {
		hooks.DropToShell(ctx)
	}

	logger.Info("[INFO] For post-installation tips, see https://wiki.archlinux.org/index.php/Installation_guide#Post-installation\n")
	return nil
}

// Plan returns the steps Perform would take for cfg, in order, without
// calling any backend.
func Plan(cfg *config.Config, creds *config.Credentials, hooks Hooks) []string {
	if hooks.HasUEFI == nil {
		hooks.HasUEFI = hostHasUEFI
	}
	names := []string{"perform filesystem operations"}
	for _, p := range installPhases(&Recorder{}, cfg, creds, hooks) {
		names = append(names, p.name)
	}
	if hooks.DropToShell != nil {
		names = append(names, "drop to shell")
	}
	return append(names, "unmount")
}

// installPhases lists the backend calls in installation order, leaving out the
// ones cfg does not ask for.
func installPhases(b Backend, cfg *config.Config, creds *config.Credentials, hooks Hooks) []phase {
	var phases []phase
	add := func(name string, run func(ctx context.Context) error) {
		phases = append(phases, phase{name: name, run: run})
	}

	add("mount layout", b.MountLayout)
	add("sanity check", b.SanityCheck)
	if cfg.Encryption != nil && len(cfg.Encryption.Mountpoints) > 0 {
		add("generate key files", b.GenerateKeyFiles)
	}

	hasMirrors := len(cfg.Mirrors.Regions) > 0
	if hasMirrors {
		add("set mirrors (host)", func(ctx context.Context) error {
			return b.SetMirrors(ctx, cfg.Mirrors, false)
		})
	}

	add("minimal installation", func(ctx context.Context) error {
		return b.MinimalInstallation(ctx, MinimalOptions{
			Testing:    cfg.HasRepository("testing"),
			Multilib:   cfg.HasRepository("multilib"),
			Mkinitcpio: !cfg.UKI,
			Hostname:   cfg.Hostname,
			Locale:     cfg.Locale,
		})
	})

	if hasMirrors {
		add("set mirrors (target)", func(ctx context.Context) error {
			return b.SetMirrors(ctx, cfg.Mirrors, true)
		})
	}

	if cfg.Swap {
		add("setup swap", func(ctx context.Context) error {
			return b.SetupSwap(ctx, "zram")
		})
	}

	if cfg.Bootloader == config.Grub && hooks.HasUEFI() {
		add("add grub package", func(ctx context.Context) error {
			return b.AddAdditionalPackages(ctx, []string{"grub"})
		})
	}

	add("add bootloader", func(ctx context.Context) error {
		return b.AddBootloader(ctx, cfg.Bootloader, cfg.UKI)
	})

	if cfg.Network != "" && cfg.Network != config.NetworkNone {
		add("install network config", func(ctx context.Context) error {
			return b.InstallNetworkConfig(ctx, cfg.Network, cfg.Profile)
		})
	}

	if len(cfg.Users) > 0 {
		accounts := make([]Account, 0, len(cfg.Users))
		for _, u := range cfg.Users {
			accounts = append(accounts, Account{Name: u.Name, Password: creds.UserPassword(u.Name), Sudo: u.Sudo})
		}
		add("create users", func(ctx context.Context) error {
			return b.CreateUsers(ctx, accounts)
		})
	}

	if cfg.Audio != "" && cfg.Audio != config.AudioNone {
		add("install audio", func(ctx context.Context) error {
			return b.InstallAudio(ctx, cfg.Audio)
		})
	} else {
		add("install audio", func(context.Context) error {
			logger.Info("[INFO] No audio server will be installed\n")
			return nil
		})
	}

	if len(cfg.Packages) > 0 && cfg.Packages[0] != "" {
		add("add additional packages", func(ctx context.Context) error {
			return b.AddAdditionalPackages(ctx, cfg.Packages)
		})
	}

	hasProfile := cfg.Profile.Name != ""
	if hasProfile {
		add("install profile", func(ctx context.Context) error {
			return b.InstallProfile(ctx, cfg.Profile)
		})
	}

	if cfg.Timezone != "" {
		add("set timezone", func(ctx context.Context) error {
			return b.SetTimezone(ctx, cfg.Timezone)
		})
	}

	if cfg.NTP {
		add("activate time synchronization", b.ActivateTimeSynchronization)
	}

	if creds != nil && creds.RootPassword != "" {
		add("set root password", func(ctx context.Context) error {
			return b.SetUserPassword(ctx, "root", creds.RootPassword)
		})
	}

	if hasProfile {
		add("profile post-install", func(ctx context.Context) error {
			return b.ProfilePostInstall(ctx, cfg.Profile)
		})
	}

	if len(cfg.Services) > 0 {
		add("enable services", func(ctx context.Context) error {
			return b.EnableServices(ctx, cfg.Services)
		})
	}

	if len(cfg.CustomCommands) > 0 {
		add("run custom commands", func(ctx context.Context) error {
			return b.RunCustomCommands(ctx, cfg.CustomCommands)
		})
	}

	add("genfstab", b.Genfstab)

	if hooks.ConfigureSystem != nil {
		add("configure system", hooks.ConfigureSystem)
	}
	return phases
}

func hostHasUEFI() bool {
	_, err := os.Stat("/sys/firmware/efi")
	return err == nil
}
