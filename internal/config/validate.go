package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"slices"

	"arch-setup/internal/disk"
)

var (
	hostnameRe = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)
	usernameRe = regexp.MustCompile(`^[a-z_][a-z0-9_-]{0,31}$`)
)

// Missing lists the fields the installer backend cannot run without. An empty
// result means the configuration is complete enough to delegate. A nil creds
// skips the secrets.
func Missing(cfg *Config, creds *Credentials) []string {
	var missing []string
	if cfg.Disk.Device == "" {
		missing = append(missing, "disk.device")
	}
	if len(cfg.Disk.Partitions) == 0 {
		missing = append(missing, "disk.partitions")
	}
	if cfg.Hostname == "" {
		missing = append(missing, "hostname")
	}
	if cfg.SudoUser() == "" {
		missing = append(missing, "users (sudo)")
	}
	if cfg.Bootloader == "" {
		missing = append(missing, "bootloader")
	}
	if cfg.Locale.Language == "" || cfg.Locale.Encoding == "" {
		missing = append(missing, "locale")
	}
	if len(cfg.Kernels) == 0 {
		missing = append(missing, "kernels")
	}
	if cfg.MountPoint == "" {
		missing = append(missing, "mount_point")
	}
	if creds == nil {
		return missing
	}
	if cfg.Encryption != nil && creds.EncryptionPassword == "" {
		missing = append(missing, "encryption password")
	}
	for _, u := range cfg.Users {
		if creds.UserPassword(u.Name) == "" {
			missing = append(missing, fmt.Sprintf("password for user %s", u.Name))
		}
	}
	return missing
}

// Validate checks that cfg can be handed to the installer backend. All problems
// are reported at once.
func Validate(cfg *Config, creds *Credentials) error {
	var errs []error

	for _, m := range Missing(cfg, creds) {
		errs = append(errs, fmt.Errorf("config: %s is required", m))
	}

	if cfg.Hostname != "" && !hostnameRe.MatchString(cfg.Hostname) {
		errs = append(errs, fmt.Errorf("config: invalid hostname %q", cfg.Hostname))
	}

	seenUsers := make(map[string]bool)
	for _, u := range cfg.Users {
		if !usernameRe.MatchString(u.Name) {
			errs = append(errs, fmt.Errorf("config: invalid user name %q", u.Name))
		}
		if u.Name == "root" {
			errs = append(errs, errors.New("config: root cannot be listed in users; set the root password instead"))
		}
		if seenUsers[u.Name] {
			errs = append(errs, fmt.Errorf("config: duplicate user %q", u.Name))
		}
		seenUsers[u.Name] = true
	}

	switch cfg.Bootloader {
	case "", SystemdBoot, Grub:
	default:
		errs = append(errs, fmt.Errorf("config: unknown bootloader %q", cfg.Bootloader))
	}

	switch cfg.Audio {
	case "", AudioPipewire, AudioPulseaudio, AudioNone:
	default:
		errs = append(errs, fmt.Errorf("config: unknown audio server %q", cfg.Audio))
	}

	switch cfg.Network {
	case "", NetworkManager, NetworkCopyISO, NetworkNone:
	default:
		errs = append(errs, fmt.Errorf("config: unknown network configuration %q", cfg.Network))
	}

	switch cfg.Profile.Name {
	case "", ProfileXorg, ProfileMinimal:
	default:
		errs = append(errs, fmt.Errorf("config: unknown profile %q", cfg.Profile.Name))
	}
	if cfg.Profile.GfxDriver != "" && !slices.Contains(GfxDrivers, cfg.Profile.GfxDriver) {
		errs = append(errs, fmt.Errorf("config: unknown graphics driver %q", cfg.Profile.GfxDriver))
	}
	if cfg.Profile.Greeter != "" && !slices.Contains(Greeters, cfg.Profile.Greeter) {
		errs = append(errs, fmt.Errorf("config: unknown greeter %q", cfg.Profile.Greeter))
	}

	if cfg.MountPoint != "" && !filepath.IsAbs(cfg.MountPoint) {
		errs = append(errs, fmt.Errorf("config: mount_point %q must be absolute", cfg.MountPoint))
	}
	if !filepath.IsAbs(cfg.ConfigDir) {
		errs = append(errs, fmt.Errorf("config: config_dir %q must be absolute", cfg.ConfigDir))
	}
	if cfg.PostInstall.Script == "" {
		errs = append(errs, errors.New("config: post_install.script is required"))
	}

	errs = append(errs, validateLayout(cfg)...)

	return errors.Join(errs...)
}

func validateLayout(cfg *Config) []error {
	var errs []error
	seen := make(map[string]bool)
	for i, p := range cfg.Disk.Partitions {
		if p.Mountpoint == "" {
			errs = append(errs, fmt.Errorf("config: partition %d has no mountpoint", i+1))
			continue
		}
		if seen[p.Mountpoint] {
			errs = append(errs, fmt.Errorf("config: duplicate mountpoint %s", p.Mountpoint))
		}
		seen[p.Mountpoint] = true
		if p.Size == 0 && i != len(cfg.Disk.Partitions)-1 {
			errs = append(errs, fmt.Errorf("config: only the last partition may take the remaining space (%s)", p.Mountpoint))
		}
		if _, err := disk.ParseFilesystemType(string(p.Filesystem)); err != nil {
			errs = append(errs, fmt.Errorf("config: partition %s: %w", p.Mountpoint, err))
		}
	}
	if len(cfg.Disk.Partitions) > 0 {
		if !seen[disk.RootMountpoint] {
			errs = append(errs, errors.New("config: layout has no / partition"))
		}
		if !seen[disk.BootMountpoint] {
			errs = append(errs, errors.New("config: layout has no /boot partition"))
		}
	}

	if cfg.Encryption != nil {
		if cfg.Encryption.Type != "" && cfg.Encryption.Type != EncryptionLuks {
			errs = append(errs, fmt.Errorf("config: unsupported encryption type %q", cfg.Encryption.Type))
		}
		for _, m := range cfg.Encryption.Mountpoints {
			if m == disk.BootMountpoint {
				errs = append(errs, errors.New("config: /boot cannot be encrypted"))
			}
			if !seen[m] {
				errs = append(errs, fmt.Errorf("config: encrypted mountpoint %s is not in the layout", m))
			}
		}
	}
	return errs
}
