package config

import (
	"arch-setup/internal/disk"
)

// Bootloader names accepted in the configuration.
type Bootloader string

const (
	SystemdBoot Bootloader = "systemd-boot"
	Grub        Bootloader = "grub"
)

// Audio servers.
const (
	AudioPipewire   = "pipewire"
	AudioPulseaudio = "pulseaudio"
	AudioNone       = "none"
)

// Network configurations.
const (
	// NetworkManager installs and enables NetworkManager on the target.
	NetworkManager = "networkmanager"
	// NetworkCopyISO copies the live medium's network configuration.
	NetworkCopyISO = "iso"
	NetworkNone    = "none"
)

// Profiles.
const (
	ProfileXorg    = "xorg"
	ProfileMinimal = "minimal"
)

// Names accepted for ProfileConfig.GfxDriver and ProfileConfig.Greeter. The
// installer backend maps each to its packages.
var (
	GfxDrivers = []string{"all-open-source", "amd", "intel", "nvidia-open"}
	Greeters   = []string{"ly", "sddm", "lightdm", "gdm"}
)

// EncryptionLuks is the only encryption type supported.
const EncryptionLuks = "luks"

// Config is the typed replacement of the installer's argument table. It is
// filled incrementally (defaults, config file, prompts) and then handed to the
// installer backend and the post-install pass as a whole.
type Config struct {
	Disk       DiskConfig        `yaml:"disk" toml:"disk"`
	Encryption *EncryptionConfig `yaml:"encryption" toml:"encryption"`
	Users      []User            `yaml:"users" toml:"users"`
	Hostname   string            `yaml:"hostname" toml:"hostname"`
	Timezone   string            `yaml:"timezone" toml:"timezone"`
	Locale     LocaleConfig      `yaml:"locale" toml:"locale"`

	Bootloader Bootloader `yaml:"bootloader" toml:"bootloader"`
	UKI        bool       `yaml:"uki" toml:"uki"`
	Kernels    []string   `yaml:"kernels" toml:"kernels"`

	Profile ProfileConfig `yaml:"profile" toml:"profile"`
	Audio   string        `yaml:"audio" toml:"audio"`
	Network string        `yaml:"network" toml:"network"`

	Packages       []string `yaml:"packages,omitempty" toml:"packages"`
	PackageFiles   []string `yaml:"package_files,omitempty" toml:"package_files"`
	Services       []string `yaml:"services,omitempty" toml:"services"`
	CustomCommands []string `yaml:"custom_commands,omitempty" toml:"custom_commands"`

	Mirrors                MirrorConfig `yaml:"mirrors" toml:"mirrors"`
	AdditionalRepositories []string     `yaml:"additional_repositories,omitempty" toml:"additional_repositories"`
	ParallelDownloads      int          `yaml:"parallel_downloads" toml:"parallel_downloads"`
	Swap                   bool         `yaml:"swap" toml:"swap"`
	NTP                    bool         `yaml:"ntp" toml:"ntp"`

	MountPoint   string            `yaml:"mount_point" toml:"mount_point"`
	ISOConfigDir string            `yaml:"iso_config_dir" toml:"iso_config_dir"`
	ConfigDir    string            `yaml:"config_dir" toml:"config_dir"`
	PostInstall  PostInstallConfig `yaml:"post_install" toml:"post_install"`

	Silent bool `yaml:"silent" toml:"silent"`
	DryRun bool `yaml:"dry_run" toml:"dry_run"`
}

// DiskConfig selects the target device and its layout.
// - Device: block device to wipe (e.g. /dev/nvme0n1).
// - Filesystem: filesystem for / (and /home).
// - SeparateHome: put /home on its own partition.
// - Partitions: the layout; suggested from the fields above when empty.
type DiskConfig struct {
	Device       string           `yaml:"device" toml:"device"`
	Filesystem   string           `yaml:"filesystem" toml:"filesystem"`
	SeparateHome bool             `yaml:"separate_home" toml:"separate_home"`
	Partitions   []disk.Partition `yaml:"partitions,omitempty" toml:"partitions"`
}

// EncryptionConfig lists the mountpoints whose partitions are put inside LUKS.
type EncryptionConfig struct {
	Type        string   `yaml:"type" toml:"type"`
	Mountpoints []string `yaml:"mountpoints" toml:"mountpoints"`
}

// Encrypts reports whether the partition mounted at mountpoint is encrypted.
func (e *EncryptionConfig) Encrypts(mountpoint string) bool {
	if e == nil {
		return false
	}
	for _, m := range e.Mountpoints {
		if m == mountpoint {
			return true
		}
	}
	return false
}

// User is an account created on the target. Passwords live in Credentials.
type User struct {
	Name string `yaml:"name" toml:"name"`
	Sudo bool   `yaml:"sudo" toml:"sudo"`
}

// LocaleConfig sets keyboard layout and system language.
type LocaleConfig struct {
	Keyboard string `yaml:"keyboard" toml:"keyboard"`
	Language string `yaml:"language" toml:"language"`
	Encoding string `yaml:"encoding" toml:"encoding"`
}

// Locale returns the locale.gen entry, e.g. "en_US.UTF-8".
func (l LocaleConfig) Locale() string {
	return l.Language + "." + l.Encoding
}

// ProfileConfig selects the desktop profile installed on top of the base system.
// - Name: profile name ("xorg" or "minimal").
// - GfxDriver: graphics driver set ("all-open-source", "intel", "amd", "nvidia-open").
// - Greeter: display manager enabled on boot ("ly", "sddm", "lightdm", or empty).
type ProfileConfig struct {
	Name      string `yaml:"name" toml:"name"`
	GfxDriver string `yaml:"gfx_driver" toml:"gfx_driver"`
	Greeter   string `yaml:"greeter" toml:"greeter"`
}

// MirrorConfig restricts the pacman mirrorlist to the given regions.
type MirrorConfig struct {
	Regions []string `yaml:"regions,omitempty" toml:"regions"`
}

// PostInstallConfig drives the chroot pass that runs after the base install.
// - Script: script inside ConfigDir run as root with the sudo user as argument.
// - PackageLists: package list files, relative to ConfigDir, installed with pacman.
// - User: account owning ConfigDir; defaults to the first sudo user.
type PostInstallConfig struct {
	Script       string   `yaml:"script" toml:"script"`
	PackageLists []string `yaml:"package_lists,omitempty" toml:"package_lists"`
	User         string   `yaml:"user,omitempty" toml:"user"`
}

// Credentials holds every secret of an installation. It is kept apart from
// Config so the configuration can be saved and shared without passwords.
type Credentials struct {
	RootPassword       string            `json:"root_password,omitempty"`
	EncryptionPassword string            `json:"encryption_password,omitempty"`
	UserPasswords      map[string]string `json:"user_passwords,omitempty"`
}

// UserPassword returns the password of user name.
func (c *Credentials) UserPassword(name string) string {
	if c == nil || c.UserPasswords == nil {
		return ""
	}
	return c.UserPasswords[name]
}

// SetUserPassword stores the password of user name.
func (c *Credentials) SetUserPassword(name, password string) {
	if c.UserPasswords == nil {
		c.UserPasswords = make(map[string]string)
	}
	c.UserPasswords[name] = password
}

// SudoUser returns the account that owns the post-install configuration: the
// explicit PostInstall.User, else the first user with sudo rights.
func (c *Config) SudoUser() string {
	if c.PostInstall.User != "" {
		return c.PostInstall.User
	}
	for _, u := range c.Users {
		if u.Sudo {
			return u.Name
		}
	}
	return ""
}

// HasRepository reports whether an additional pacman repository is enabled.
func (c *Config) HasRepository(name string) bool {
	for _, r := range c.AdditionalRepositories {
		if r == name {
			return true
		}
	}
	return false
}
