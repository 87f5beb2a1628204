package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"arch-setup/internal/disk"
	"arch-setup/internal/packages"
)

// Default locations used by the live medium.
const (
	DefaultMountPoint        = "/mnt"
	DefaultISOConfigDir      = "/root/archinstall"
	DefaultConfigDir         = "/opt/archinstall"
	DefaultPostInstall       = "post_install.sh"
	DefaultSudoUser          = "kippster"
	DefaultHostname          = "arch"
	DefaultTimezone          = "Europe/Oslo"
	DefaultParallelDownloads = 5
)

// Defaults returns the configuration every installation starts from, before the
// config file and the prompts are applied.
func Defaults() *Config {
	return &Config{
		Disk: DiskConfig{
			Filesystem: string(disk.Ext4),
		},
		// Every partition but /boot is encrypted unless the config file sets
		// `encryption: null`.
		Encryption: &EncryptionConfig{Type: EncryptionLuks},
		Timezone:   DefaultTimezone,
		Locale: LocaleConfig{
			Keyboard: "us",
			Language: "en_US",
			Encoding: "UTF-8",
		},
		Bootloader: SystemdBoot,
		UKI:        true,
		Kernels:    []string{"linux"},
		Profile: ProfileConfig{
			Name:      ProfileXorg,
			GfxDriver: "all-open-source",
			Greeter:   "ly",
		},
		Audio:             AudioPipewire,
		Network:           NetworkManager,
		ParallelDownloads: DefaultParallelDownloads,
		NTP:               true,
		MountPoint:        DefaultMountPoint,
		ISOConfigDir:      DefaultISOConfigDir,
		ConfigDir:         DefaultConfigDir,
		PostInstall: PostInstallConfig{
			Script: DefaultPostInstall,
		},
	}
}

// Load decodes the configuration file at path on top of cfg. Values present in
// the file override what cfg already holds; absent values are left untouched.
// The format follows the extension: .yaml/.yml or .toml.
func Load(path string, cfg *Config) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("error parsing config file %s: %w", path, err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("error parsing config file %s: %w", path, err)
		}
	default:
		return fmt.Errorf("unsupported config format %q (want .yaml, .yml or .toml)", filepath.Ext(path))
	}
	return nil
}

// LoadCredentials decodes a credentials JSON file written by Save.
func LoadCredentials(path string, creds *Credentials) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error reading credentials file: %w", err)
	}
	if err := json.Unmarshal(data, creds); err != nil {
		return fmt.Errorf("error parsing credentials file %s: %w", path, err)
	}
	return nil
}

// MergePackageFiles reads every file listed in PackageFiles (relative paths are
// resolved against baseDir) and appends the packages to Packages.
func MergePackageFiles(cfg *Config, baseDir string) error {
	if len(cfg.PackageFiles) == 0 {
		return nil
	}
	paths := make([]string, 0, len(cfg.PackageFiles))
	for _, p := range cfg.PackageFiles {
		if !filepath.IsAbs(p) {
			p = filepath.Join(baseDir, p)
		}
		paths = append(paths, p)
	}
	pkgs, err := packages.ReadLists(paths...)
	if err != nil {
		return err
	}
	cfg.Packages = packages.Dedup(append(cfg.Packages, pkgs...))
	return nil
}

// ApplyLayout fills the partition layout from the suggested single-disk layout
// when none was configured, and, when encryption is enabled without explicit
// mountpoints, encrypts every partition but /boot.
func ApplyLayout(cfg *Config, dev disk.Device) error {
	cfg.Disk.Device = dev.Path
	if len(cfg.Disk.Partitions) == 0 {
		fs, err := disk.ParseFilesystemType(cfg.Disk.Filesystem)
		if err != nil {
			return err
		}
		layout, err := disk.SuggestSingleDiskLayout(dev, fs, cfg.Disk.SeparateHome)
		if err != nil {
			return err
		}
		cfg.Disk.Partitions = layout
	}
	if cfg.Encryption != nil && len(cfg.Encryption.Mountpoints) == 0 {
		cfg.Encryption.Mountpoints = nil
		for _, p := range disk.EncryptablePartitions(cfg.Disk.Partitions) {
			cfg.Encryption.Mountpoints = append(cfg.Encryption.Mountpoints, p.Mountpoint)
		}
	}
	return nil
}
