package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"arch-setup/internal/disk"
)

func completeConfig(t *testing.T) (*Config, *Credentials) {
	t.Helper()
	cfg := Defaults()
	cfg.Hostname = "arch"
	cfg.Users = []User{{Name: "kippster", Sudo: true}}
	cfg.Encryption = &EncryptionConfig{Type: EncryptionLuks}
	require.NoError(t, ApplyLayout(cfg, disk.Device{Path: "/dev/nvme0n1", Size: 512 * disk.GiB}))

	creds := &Credentials{RootPassword: "root", EncryptionPassword: "luks"}
	creds.SetUserPassword("kippster", "secret")
	return cfg, creds
}

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	require.True(t, cfg.UKI)
	require.Equal(t, SystemdBoot, cfg.Bootloader)
	require.Equal(t, "Europe/Oslo", cfg.Timezone)
	require.Equal(t, AudioPipewire, cfg.Audio)
	require.Equal(t, NetworkManager, cfg.Network)
	require.Equal(t, ProfileConfig{Name: "xorg", GfxDriver: "all-open-source", Greeter: "ly"}, cfg.Profile)
	require.Equal(t, "/mnt", cfg.MountPoint)
	require.Equal(t, "/root/archinstall", cfg.ISOConfigDir)
	require.Equal(t, "/opt/archinstall", cfg.ConfigDir)
	require.Equal(t, "post_install.sh", cfg.PostInstall.Script)
	require.NotNil(t, cfg.Encryption)
}

func TestLoad_YAMLNullDisablesEncryption(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, Load(writeConfig(t, "plain.yaml", "encryption: null\n"), cfg))
	require.Nil(t, cfg.Encryption)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := writeConfig(t, "install.yaml", `
hostname: workstation
timezone: UTC
disk:
  device: /dev/sda
  filesystem: btrfs
users:
  - name: alice
    sudo: true
packages: [git, zsh]
additional_repositories: [multilib]
post_install:
  package_lists: [packages/desktop.txt]
`)
	cfg := Defaults()
	require.NoError(t, Load(path, cfg))

	require.Equal(t, "workstation", cfg.Hostname)
	require.Equal(t, "UTC", cfg.Timezone)
	require.Equal(t, "/dev/sda", cfg.Disk.Device)
	require.Equal(t, "btrfs", cfg.Disk.Filesystem)
	require.Equal(t, []User{{Name: "alice", Sudo: true}}, cfg.Users)
	require.True(t, cfg.HasRepository("multilib"))
	require.False(t, cfg.HasRepository("testing"))
	require.Equal(t, []string{"packages/desktop.txt"}, cfg.PostInstall.PackageLists)

	// Untouched keys keep their defaults.
	require.Equal(t, SystemdBoot, cfg.Bootloader)
	require.Equal(t, "post_install.sh", cfg.PostInstall.Script)
}

func TestLoad_TOML(t *testing.T) {
	path := writeConfig(t, "install.toml", `
hostname = "box"
bootloader = "grub"
uki = false

[[users]]
name = "bob"
sudo = true

[encryption]
type = "luks"
`)
	cfg := Defaults()
	require.NoError(t, Load(path, cfg))
	require.Equal(t, "box", cfg.Hostname)
	require.Equal(t, Grub, cfg.Bootloader)
	require.False(t, cfg.UKI)
	require.Equal(t, "bob", cfg.SudoUser())
	require.NotNil(t, cfg.Encryption)
	require.Equal(t, EncryptionLuks, cfg.Encryption.Type)
}

func TestLoad_Errors(t *testing.T) {
	require.ErrorContains(t, Load(filepath.Join(t.TempDir(), "missing.yaml"), Defaults()), "not found")
	require.ErrorContains(t, Load(writeConfig(t, "install.json", "{}"), Defaults()), "unsupported config format")
	require.ErrorContains(t, Load(writeConfig(t, "bad.yaml", "hostname: [unterminated"), Defaults()), "error parsing")
}

func TestApplyLayout_EncryptsAllButBoot(t *testing.T) {
	cfg, _ := completeConfig(t)
	require.Equal(t, "/dev/nvme0n1", cfg.Disk.Device)
	require.Len(t, cfg.Disk.Partitions, 2)
	require.Equal(t, []string{"/"}, cfg.Encryption.Mountpoints)
	require.False(t, cfg.Encryption.Encrypts("/boot"))
}

func TestApplyLayout_KeepsExplicitPartitions(t *testing.T) {
	cfg := Defaults()
	cfg.Disk.Partitions = []disk.Partition{{Mountpoint: "/boot", Size: disk.GiB, Filesystem: disk.FAT32}, {Mountpoint: "/", Filesystem: disk.XFS}}
	require.NoError(t, ApplyLayout(cfg, disk.Device{Path: "/dev/sda", Size: 64 * disk.GiB}))
	require.Equal(t, disk.XFS, cfg.Disk.Partitions[1].Filesystem)
}

func TestValidate_Complete(t *testing.T) {
	cfg, creds := completeConfig(t)
	require.NoError(t, Validate(cfg, creds))
	require.Empty(t, Missing(cfg, creds))
}

func TestValidate_ReportsEveryMissingKey(t *testing.T) {
	cfg := Defaults()
	cfg.Encryption = &EncryptionConfig{Type: EncryptionLuks}

	missing := Missing(cfg, &Credentials{})
	require.ElementsMatch(t, []string{
		"disk.device", "disk.partitions", "hostname", "users (sudo)", "encryption password",
	}, missing)

	err := Validate(cfg, &Credentials{})
	require.Error(t, err)
	for _, m := range missing {
		require.Contains(t, err.Error(), m)
	}
}

func TestValidate_RejectsBadValues(t *testing.T) {
	cfg, creds := completeConfig(t)
	cfg.Hostname = "Not A Hostname"
	cfg.Bootloader = "lilo"
	cfg.Audio = "jack"
	cfg.Profile = ProfileConfig{Name: "kde", GfxDriver: "voodoo", Greeter: "xdm"}
	cfg.MountPoint = "mnt"
	cfg.Encryption.Mountpoints = []string{"/boot", "/srv"}
	cfg.Users = append(cfg.Users, User{Name: "kippster"}, User{Name: "root"})

	err := Validate(cfg, creds)
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{
		"invalid hostname", "unknown bootloader", "unknown audio server", "must be absolute",
		"/boot cannot be encrypted", "/srv is not in the layout", "duplicate user", "root cannot be listed",
		"unknown profile", "unknown graphics driver", "unknown greeter",
	} {
		require.Contains(t, msg, want)
	}
}

func TestValidate_LayoutNeedsRootAndBoot(t *testing.T) {
	cfg, creds := completeConfig(t)
	cfg.Encryption = nil
	cfg.Disk.Partitions = []disk.Partition{{Mountpoint: "/home", Filesystem: disk.Ext4}, {Mountpoint: "/var", Filesystem: disk.Ext4}}

	err := Validate(cfg, creds)
	require.ErrorContains(t, err, "no / partition")
	require.ErrorContains(t, err, "no /boot partition")
	require.ErrorContains(t, err, "only the last partition")
}

func TestSave_SplitsSecrets(t *testing.T) {
	cfg, creds := completeConfig(t)
	dir := filepath.Join(t.TempDir(), "log")
	require.NoError(t, Save(dir, cfg, creds))

	cfgData, err := os.ReadFile(filepath.Join(dir, ConfigurationFile))
	require.NoError(t, err)
	require.NotContains(t, string(cfgData), "secret")
	require.Contains(t, string(cfgData), "hostname: arch")

	info, err := os.Stat(filepath.Join(dir, CredentialsFile))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0600), info.Mode().Perm())

	var got Credentials
	require.NoError(t, LoadCredentials(filepath.Join(dir, CredentialsFile), &got))
	require.Equal(t, *creds, got)

	// The saved configuration loads back into the same value.
	reloaded := &Config{}
	require.NoError(t, Load(filepath.Join(dir, ConfigurationFile), reloaded))
	require.Equal(t, cfg, reloaded)
}

func TestSave_ReloadsOverDefaults(t *testing.T) {
	cfg, creds := completeConfig(t)
	cfg.Encryption = nil
	cfg.DryRun = true
	cfg.Silent = true
	dir := t.TempDir()
	require.NoError(t, Save(dir, cfg, creds))
	require.True(t, cfg.DryRun, "Save must not modify its argument")

	reloaded := Defaults()
	require.NoError(t, Load(filepath.Join(dir, ConfigurationFile), reloaded))
	require.Nil(t, reloaded.Encryption)
	require.False(t, reloaded.DryRun)
	require.False(t, reloaded.Silent)

	cfg.DryRun, cfg.Silent = false, false
	require.Equal(t, cfg, reloaded)
}

func TestCredentialsJSONShape(t *testing.T) {
	creds := &Credentials{RootPassword: "r"}
	creds.SetUserPassword("a", "b")
	data, err := json.Marshal(creds)
	require.NoError(t, err)
	require.JSONEq(t, `{"root_password":"r","user_passwords":{"a":"b"}}`, string(data))
}

func TestMergePackageFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "extra.txt"), []byte("neovim\ngit\n"), 0644))

	cfg := Defaults()
	cfg.Packages = []string{"git"}
	cfg.PackageFiles = []string{"extra.txt"}
	require.NoError(t, MergePackageFiles(cfg, dir))
	require.Equal(t, []string{"git", "neovim"}, cfg.Packages)

	cfg.PackageFiles = []string{"missing.txt"}
	require.Error(t, MergePackageFiles(cfg, dir))
}

func TestSummary_NoSecrets(t *testing.T) {
	cfg, _ := completeConfig(t)
	s := Summary(cfg)
	require.Contains(t, s, "/dev/nvme0n1")
	require.Contains(t, s, "kippster (sudo)")
	require.Contains(t, s, "encrypted")
	require.True(t, strings.Contains(s, "systemd-boot (unified kernel images)"))
	require.NotContains(t, s, "secret")
}
