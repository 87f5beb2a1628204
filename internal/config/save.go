package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"arch-setup/internal/disk"
	"arch-setup/internal/logger"
)

// File names written by Save.
const (
	ConfigurationFile = "user_configuration.yaml"
	CredentialsFile   = "user_credentials.json"
)

// Save writes the configuration (world readable) and the credentials (owner only)
// into dir, so a run can be reproduced later with --config and --creds. The
// run mode (silent, dry run) is not saved: it belongs to the invocation.
func Save(dir string, cfg *Config, creds *Credentials) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	saved := *cfg
	saved.Silent = false
	saved.DryRun = false
	data, err := yaml.Marshal(&saved)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}
	cfgPath := filepath.Join(dir, ConfigurationFile)
	if err := writeFileAtomic(cfgPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", cfgPath, err)
	}
	logger.Debug("[DEBUG] Saved configuration to %s\n", cfgPath)

	if creds == nil {
		return nil
	}
	data, err = json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}
	credsPath := filepath.Join(dir, CredentialsFile)
	if err := writeFileAtomic(credsPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", credsPath, err)
	}
	logger.Debug("[DEBUG] Saved credentials to %s\n", credsPath)
	return nil
}

// writeFileAtomic writes data to a temporary file, fsyncs it and renames it over
// path, so a crash never leaves a half written file behind.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// Summary renders the configuration for the confirmation prompt. Secrets are
// never included.
func Summary(cfg *Config) string {
	var b strings.Builder
	row := func(key, value string) {
		fmt.Fprintf(&b, "  %-22s %s\n", key+":", value)
	}
	orNone := func(values []string) string {
		if len(values) == 0 {
			return "none"
		}
		return strings.Join(values, ", ")
	}

	row("Disk", cfg.Disk.Device)
	for _, p := range cfg.Disk.Partitions {
		size := "rest of disk"
		if p.Size > 0 {
			size = disk.HumanSize(p.Size)
		}
		enc := ""
		if cfg.Encryption.Encrypts(p.Mountpoint) {
			enc = ", encrypted"
		}
		row("  "+p.Mountpoint, fmt.Sprintf("%s, %s%s", p.Filesystem, size, enc))
	}
	if cfg.Encryption != nil {
		row("Encryption", cfg.Encryption.Type)
	} else {
		row("Encryption", "none")
	}

	var users []string
	for _, u := range cfg.Users {
		name := u.Name
		if u.Sudo {
			name += " (sudo)"
		}
		users = append(users, name)
	}
	row("Users", orNone(users))
	row("Hostname", cfg.Hostname)
	row("Timezone", cfg.Timezone)
	row("Locale", fmt.Sprintf("%s, keyboard %s", cfg.Locale.Locale(), cfg.Locale.Keyboard))
	bootloader := string(cfg.Bootloader)
	if cfg.UKI {
		bootloader += " (unified kernel images)"
	}
	row("Bootloader", bootloader)
	row("Kernels", orNone(cfg.Kernels))
	row("Profile", fmt.Sprintf("%s, %s, greeter %s", cfg.Profile.Name, cfg.Profile.GfxDriver, orDash(cfg.Profile.Greeter)))
	row("Audio", cfg.Audio)
	row("Network", cfg.Network)
	row("Packages", orNone(cfg.Packages))
	row("Services", orNone(cfg.Services))
	row("Mirror regions", orNone(cfg.Mirrors.Regions))
	row("Repositories", orNone(cfg.AdditionalRepositories))
	row("Swap (zram)", fmt.Sprintf("%t", cfg.Swap))
	row("NTP", fmt.Sprintf("%t", cfg.NTP))
	row("Mount point", cfg.MountPoint)
	row("Post-install", fmt.Sprintf("%s -> %s/%s", cfg.ISOConfigDir, cfg.ConfigDir, cfg.PostInstall.Script))
	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
