package installer

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"arch-setup/internal/chroot"
	"arch-setup/internal/config"
	"arch-setup/internal/disk"
	"arch-setup/internal/fsutil"
	"arch-setup/internal/logger"
	"arch-setup/internal/system"
)

const (
	mirrorlistPath = "/etc/pacman.d/mirrorlist"
	isoNetworkDir  = "/etc/systemd/network"
	keyFileSize    = 512
)

var gfxPackages = map[string][]string{
	"":                nil,
	"all-open-source": {"mesa", "xf86-video-amdgpu", "xf86-video-ati", "xf86-video-nouveau", "vulkan-radeon", "vulkan-intel", "vulkan-nouveau", "libva-mesa-driver"},
	"amd":             {"mesa", "xf86-video-amdgpu", "vulkan-radeon", "libva-mesa-driver"},
	"intel":           {"mesa", "vulkan-intel", "intel-media-driver"},
	"nvidia-open":     {"nvidia-open-dkms", "nvidia-utils", "dkms"},
}

var greeterPackages = map[string][]string{
	"":        nil,
	"ly":      {"ly"},
	"sddm":    {"sddm"},
	"lightdm": {"lightdm", "lightdm-gtk-greeter"},
	"gdm":     {"gdm"},
}

var audioPackages = map[string][]string{
	config.AudioPipewire:   {"pipewire", "pipewire-alsa", "pipewire-jack", "pipewire-pulse", "gst-plugin-pipewire", "libpulse", "wireplumber"},
	config.AudioPulseaudio: {"pulseaudio"},
}

type luksVolume struct {
	name       string
	mountpoint string
	partition  string
}

// Pacstrap is the Backend built on the stock Arch tools. It makes no layout
// decisions of its own: partitions are created exactly as listed in the disk
// configuration.
type Pacstrap struct {
	exec   system.Executor
	chroot *chroot.Runner

	target     string
	disk       config.DiskConfig
	encryption *config.EncryptionConfig
	passphrase string
	kernels    []string
	parallel   int

	// networkDir is the live medium's systemd-networkd configuration.
	networkDir string

	// filled by PerformFilesystemOperations
	devices    map[string]string // mountpoint -> block device to mount
	partitions map[string]string // mountpoint -> raw partition
	volumes    []luksVolume
}

// NewPacstrap returns a backend installing cfg onto cfg.MountPoint.
func NewPacstrap(exec system.Executor, cfg *config.Config, creds *config.Credentials) *Pacstrap {
	kernels := cfg.Kernels
	if len(kernels) == 0 {
		kernels = []string{"linux"}
	}
	p := &Pacstrap{
		exec:       exec,
		chroot:     chroot.New(cfg.MountPoint, exec),
		target:     cfg.MountPoint,
		disk:       cfg.Disk,
		encryption: cfg.Encryption,
		kernels:    kernels,
		parallel:   cfg.ParallelDownloads,
		networkDir: isoNetworkDir,
		devices:    make(map[string]string),
		partitions: make(map[string]string),
	}
	if creds != nil {
		p.passphrase = creds.EncryptionPassword
	}
	return p
}

// RequiredTools lists the host binaries the backend shells out to.
func (p *Pacstrap) RequiredTools() []string {
	tools := []string{"sgdisk", "partprobe", "mount", "umount", "mountpoint", "pacstrap", "genfstab", "arch-chroot", "blkid"}
	if p.encryption != nil {
		tools = append(tools, "cryptsetup")
	}
	for _, part := range p.disk.Partitions {
		if name, _ := part.Filesystem.MkfsCommand(); name != "" && !slices.Contains(tools, name) {
			tools = append(tools, name)
		}
	}
	return tools
}

func (p *Pacstrap) run(ctx context.Context, name string, args ...string) error {
	_, err := p.exec.Run(ctx, system.Command{Name: name, Args: args})
	return err
}

func (p *Pacstrap) runWithSecret(ctx context.Context, secret, name string, args ...string) error {
	_, err := p.exec.Run(ctx, system.Command{Name: name, Args: args, Stdin: strings.NewReader(secret)})
	return err
}

func (p *Pacstrap) pacstrap(ctx context.Context, pkgs ...string) error {
	return p.run(ctx, "pacstrap", append([]string{p.target}, pkgs...)...)
}

func (p *Pacstrap) inChroot(ctx context.Context, cmd string) error {
	return p.chroot.Run(ctx, cmd, chroot.DefaultUser)
}

// writeTarget writes a file below the target root, creating parent directories.
func (p *Pacstrap) writeTarget(rel, content string, perm os.FileMode) error {
	path := filepath.Join(p.target, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	logger.Debug("[DEBUG] Writing %s\n", path)
	return os.WriteFile(path, []byte(content), perm)
}

func (p *Pacstrap) appendTarget(rel, content string) error {
	path := filepath.Join(p.target, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (p *Pacstrap) blockUUID(ctx context.Context, dev string) (string, error) {
	res, err := p.exec.Run(ctx, system.Command{Name: "blkid", Args: []string{"-s", "UUID", "-o", "value", dev}})
	if err != nil {
		return "", err
	}
	uuid := strings.TrimSpace(string(res.Output))
	if uuid == "" {
		return "", fmt.Errorf("no UUID found for %s", dev)
	}
	return uuid, nil
}

// luksName is the /dev/mapper name of the volume mounted at mountpoint.
func luksName(mountpoint string) string {
	if mountpoint == disk.RootMountpoint {
		return "root"
	}
	return strings.ReplaceAll(strings.Trim(mountpoint, "/"), "/", "-")
}

func (p *Pacstrap) PerformFilesystemOperations(ctx context.Context) error {
	dev := p.disk.Device
	if dev == "" || len(p.disk.Partitions) == 0 {
		return errors.New("no device or layout configured")
	}
	if p.encryption != nil && p.passphrase == "" {
		return errors.New("encryption enabled without a passphrase")
	}

	logger.Warn("[WARN] Wiping %s\n", dev)
	if err := p.run(ctx, "sgdisk", "--zap-all", dev); err != nil {
		return err
	}

	for i, part := range p.disk.Partitions {
		n := i + 1
		end := "0"
		if part.Size > 0 {
			end = fmt.Sprintf("+%dM", part.Size/disk.MiB)
		}
		typeCode := "8300"
		if part.Mountpoint == disk.BootMountpoint || part.HasFlag("esp") {
			typeCode = "ef00"
		}
		if err := p.run(ctx, "sgdisk",
			"-n", fmt.Sprintf("%d:0:%s", n, end),
			"-t", fmt.Sprintf("%d:%s", n, typeCode),
			dev); err != nil {
			return err
		}
	}
	if err := p.run(ctx, "partprobe", dev); err != nil {
		return err
	}

	for i, part := range p.disk.Partitions {
		partition := disk.PartitionPath(dev, i+1)
		target := partition

		if p.encryption.Encrypts(part.Mountpoint) {
			name := luksName(part.Mountpoint)
			logger.Info("[INFO] Encrypting %s (%s)\n", partition, part.Mountpoint)
			if err := p.runWithSecret(ctx, p.passphrase, "cryptsetup",
				"luksFormat", "--type", "luks2", "--batch-mode", "--key-file", "-", partition); err != nil {
				return err
			}
			if err := p.runWithSecret(ctx, p.passphrase, "cryptsetup",
				"open", "--key-file", "-", partition, name); err != nil {
				return err
			}
			p.volumes = append(p.volumes, luksVolume{name: name, mountpoint: part.Mountpoint, partition: partition})
			target = "/dev/mapper/" + name
		}

		mkfs, flags := part.Filesystem.MkfsCommand()
		if mkfs == "" {
			return fmt.Errorf("no mkfs for filesystem %q", part.Filesystem)
		}
		if err := p.run(ctx, mkfs, append(flags, target)...); err != nil {
			return err
		}
		p.partitions[part.Mountpoint] = partition
		p.devices[part.Mountpoint] = target
	}
	return nil
}

func (p *Pacstrap) MountLayout(ctx context.Context) error {
	for _, part := range disk.MountOrder(p.disk.Partitions) {
		dev, ok := p.devices[part.Mountpoint]
		if !ok {
			return fmt.Errorf("%s has not been formatted", part.Mountpoint)
		}
		if err := p.run(ctx, "mount", "--mkdir", dev, filepath.Join(p.target, part.Mountpoint)); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pacstrap) SanityCheck(ctx context.Context) error {
	if err := p.run(ctx, "mountpoint", "-q", p.target); err != nil {
		return fmt.Errorf("%s is not a mount point: %w", p.target, err)
	}
	return nil
}

// GenerateKeyFiles lets every encrypted volume but / unlock from a key file
// stored on the (encrypted) root, so the passphrase is asked only once at boot.
func (p *Pacstrap) GenerateKeyFiles(ctx context.Context) error {
	for _, v := range p.volumes {
		if v.mountpoint == disk.RootMountpoint {
			continue
		}
		key := make([]byte, keyFileSize)
		if _, err := rand.Read(key); err != nil {
			return err
		}
		rel := filepath.Join("etc/cryptsetup-keys.d", v.name+".key")
		if err := p.writeTarget(rel, string(key), 0400); err != nil {
			return err
		}
		if err := p.runWithSecret(ctx, p.passphrase, "cryptsetup",
			"luksAddKey", "--key-file", "-", v.partition, filepath.Join(p.target, rel)); err != nil {
			return err
		}
		uuid, err := p.blockUUID(ctx, v.partition)
		if err != nil {
			return err
		}
		line := fmt.Sprintf("%s UUID=%s /%s luks\n", v.name, uuid, rel)
		if err := p.appendTarget("etc/crypttab", line); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pacstrap) SetMirrors(ctx context.Context, mirrors config.MirrorConfig, onTarget bool) error {
	if len(mirrors.Regions) == 0 {
		return nil
	}
	path := mirrorlistPath
	if onTarget {
		path = filepath.Join(p.target, mirrorlistPath)
	}
	return p.run(ctx, "reflector",
		"--country", strings.Join(mirrors.Regions, ","),
		"--protocol", "https",
		"--latest", "20",
		"--sort", "rate",
		"--save", path)
}

func (p *Pacstrap) MinimalInstallation(ctx context.Context, opts MinimalOptions) error {
	pkgs := append([]string{"base", "linux-firmware"}, p.kernels...)
	if err := p.run(ctx, "pacstrap", append([]string{"-K", p.target}, pkgs...)...); err != nil {
		return err
	}

	confPath := filepath.Join(p.target, "etc/pacman.conf")
	conf, err := os.ReadFile(confPath)
	if err != nil {
		return err
	}
	var repos []string
	if opts.Multilib {
		repos = append(repos, "multilib")
	}
	if opts.Testing {
		repos = append(repos, "core-testing", "extra-testing")
		if opts.Multilib {
			repos = append(repos, "multilib-testing")
		}
	}
	edited := EnableRepositories(string(conf), repos...)
	edited = SetParallelDownloads(edited, p.parallel)
	if err := os.WriteFile(confPath, []byte(edited), 0644); err != nil {
		return err
	}

	if err := p.writeTarget("etc/hostname", opts.Hostname+"\n", 0644); err != nil {
		return err
	}

	locale := opts.Locale.Locale()
	if err := p.appendTarget("etc/locale.gen", fmt.Sprintf("%s %s\n", locale, opts.Locale.Encoding)); err != nil {
		return err
	}
	if err := p.writeTarget("etc/locale.conf", "LANG="+locale+"\n", 0644); err != nil {
		return err
	}
	if err := p.writeTarget("etc/vconsole.conf", "KEYMAP="+opts.Locale.Keyboard+"\n", 0644); err != nil {
		return err
	}
	if err := p.inChroot(ctx, "locale-gen"); err != nil {
		return err
	}

	if err := p.writeTarget("etc/mkinitcpio.conf.d/arch-setup.conf", mkinitcpioHooks(p.encryption != nil && len(p.encryption.Mountpoints) > 0), 0644); err != nil {
		return err
	}
	if opts.Mkinitcpio {
		return p.inChroot(ctx, "mkinitcpio -P")
	}
	return nil
}

func mkinitcpioHooks(encrypted bool) string {
	hooks := []string{"base", "systemd", "autodetect", "microcode", "modconf", "kms", "keyboard", "sd-vconsole", "block"}
	if encrypted {
		hooks = append(hooks, "sd-encrypt")
	}
	hooks = append(hooks, "filesystems", "fsck")
	return "HOOKS=(" + strings.Join(hooks, " ") + ")\n"
}

func (p *Pacstrap) SetupSwap(ctx context.Context, kind string) error {
	if kind != "zram" {
		return fmt.Errorf("unsupported swap kind %q", kind)
	}
	if err := p.pacstrap(ctx, "zram-generator"); err != nil {
		return err
	}
	return p.writeTarget("etc/systemd/zram-generator.conf",
		"[zram0]\nzram-size = min(ram / 2, 4096)\ncompression-algorithm = zstd\n", 0644)
}

func (p *Pacstrap) AddAdditionalPackages(ctx context.Context, pkgs []string) error {
	if len(pkgs) == 0 {
		return nil
	}
	return p.pacstrap(ctx, pkgs...)
}

// kernelCmdline points the kernel at the root filesystem, unlocking it first
// when it is encrypted.
func (p *Pacstrap) kernelCmdline(ctx context.Context) (string, error) {
	partition, ok := p.partitions[disk.RootMountpoint]
	if !ok {
		return "", errors.New("no root partition")
	}
	uuid, err := p.blockUUID(ctx, partition)
	if err != nil {
		return "", err
	}
	if p.encryption.Encrypts(disk.RootMountpoint) {
		return fmt.Sprintf("rd.luks.name=%s=%s root=/dev/mapper/%s rw", uuid, luksName(disk.RootMountpoint), luksName(disk.RootMountpoint)), nil
	}
	return fmt.Sprintf("root=UUID=%s rw", uuid), nil
}

func (p *Pacstrap) AddBootloader(ctx context.Context, kind config.Bootloader, uki bool) error {
	cmdline, err := p.kernelCmdline(ctx)
	if err != nil {
		return err
	}

	switch kind {
	case config.SystemdBoot:
		if err := p.inChroot(ctx, "bootctl --esp-path=/boot install"); err != nil {
			return err
		}
		if err := p.writeTarget("boot/loader/loader.conf", "default @saved\ntimeout 3\n", 0644); err != nil {
			return err
		}
		if uki {
			if err := p.writeTarget("etc/kernel/cmdline", cmdline+"\n", 0644); err != nil {
				return err
			}
			for _, k := range p.kernels {
				preset := fmt.Sprintf("ALL_kver=\"/boot/vmlinuz-%[1]s\"\nPRESETS=('default')\ndefault_uki=\"/boot/EFI/Linux/arch-%[1]s.efi\"\n", k)
				if err := p.writeTarget(filepath.Join("etc/mkinitcpio.d", k+".preset"), preset, 0644); err != nil {
					return err
				}
			}
			return p.inChroot(ctx, "mkinitcpio -P")
		}
		for _, k := range p.kernels {
			entry := fmt.Sprintf("title Arch Linux (%[1]s)\nlinux /vmlinuz-%[1]s\ninitrd /initramfs-%[1]s.img\noptions %[2]s\n", k, cmdline)
			if err := p.writeTarget(filepath.Join("boot/loader/entries", "arch-"+k+".conf"), entry, 0644); err != nil {
				return err
			}
		}
		return nil

	case config.Grub:
		if err := p.pacstrap(ctx, "efibootmgr"); err != nil {
			return err
		}
		grubPath := filepath.Join(p.target, "etc/default/grub")
		data, err := os.ReadFile(grubPath)
		if err != nil {
			return err
		}
		if err := os.WriteFile(grubPath, []byte(SetGrubCmdline(string(data), cmdline)), 0644); err != nil {
			return err
		}
		if err := p.inChroot(ctx, "grub-install --target=x86_64-efi --efi-directory=/boot --bootloader-id=GRUB"); err != nil {
			return err
		}
		return p.inChroot(ctx, "grub-mkconfig -o /boot/grub/grub.cfg")
	}
	return fmt.Errorf("unknown bootloader %q", kind)
}

func (p *Pacstrap) InstallNetworkConfig(ctx context.Context, network string, profile config.ProfileConfig) error {
	switch network {
	case config.NetworkManager:
		pkgs := []string{"networkmanager"}
		if profile.Name != "" && profile.Name != config.ProfileMinimal {
			pkgs = append(pkgs, "network-manager-applet")
		}
		if err := p.pacstrap(ctx, pkgs...); err != nil {
			return err
		}
		return p.inChroot(ctx, "systemctl enable NetworkManager.service")

	case config.NetworkCopyISO:
		if err := fsutil.CopyTree(p.networkDir, filepath.Join(p.target, isoNetworkDir)); err != nil {
			return fmt.Errorf("copy ISO network configuration: %w", err)
		}
		return p.inChroot(ctx, "systemctl enable systemd-networkd.service systemd-resolved.service")

	case "", config.NetworkNone:
		return nil
	}
	return fmt.Errorf("unknown network configuration %q", network)
}

func (p *Pacstrap) CreateUsers(ctx context.Context, users []Account) error {
	if slices.ContainsFunc(users, func(a Account) bool { return a.Sudo }) {
		if err := p.pacstrap(ctx, "sudo"); err != nil {
			return err
		}
	}
	for _, u := range users {
		cmd := "useradd -m " + u.Name
		if u.Sudo {
			cmd = "useradd -m -G wheel " + u.Name
		}
		if err := p.inChroot(ctx, cmd); err != nil {
			return err
		}
		if u.Password != "" {
			if err := p.SetUserPassword(ctx, u.Name, u.Password); err != nil {
				return err
			}
		}
		if u.Sudo {
			rule := fmt.Sprintf("%s ALL=(ALL:ALL) ALL\n", u.Name)
			if err := p.writeTarget(filepath.Join("etc/sudoers.d", "00_"+u.Name), rule, 0440); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *Pacstrap) InstallAudio(ctx context.Context, audio string) error {
	pkgs, ok := audioPackages[audio]
	if !ok {
		return fmt.Errorf("unknown audio server %q", audio)
	}
	return p.pacstrap(ctx, pkgs...)
}

func (p *Pacstrap) InstallProfile(ctx context.Context, profile config.ProfileConfig) error {
	switch profile.Name {
	case config.ProfileMinimal:
		return nil
	case config.ProfileXorg:
	default:
		return fmt.Errorf("unknown profile %q", profile.Name)
	}

	gfx, ok := gfxPackages[profile.GfxDriver]
	if !ok {
		return fmt.Errorf("unknown graphics driver %q", profile.GfxDriver)
	}
	greeter, ok := greeterPackages[profile.Greeter]
	if !ok {
		return fmt.Errorf("unknown greeter %q", profile.Greeter)
	}
	pkgs := append([]string{"xorg-server", "xorg-xinit"}, gfx...)
	return p.pacstrap(ctx, append(pkgs, greeter...)...)
}

func (p *Pacstrap) SetTimezone(ctx context.Context, tz string) error {
	if err := p.inChroot(ctx, "ln -sf /usr/share/zoneinfo/"+tz+" /etc/localtime"); err != nil {
		return err
	}
	return p.inChroot(ctx, "hwclock --systohc")
}

func (p *Pacstrap) ActivateTimeSynchronization(ctx context.Context) error {
	return p.inChroot(ctx, "systemctl enable systemd-timesyncd.service")
}

// SetUserPassword feeds the password to chpasswd on stdin so it never shows
// up in a command line or the log.
func (p *Pacstrap) SetUserPassword(ctx context.Context, user, password string) error {
	_, err := p.exec.Run(ctx, system.Command{
		Name:  "arch-chroot",
		Args:  []string{p.target, "chpasswd"},
		Stdin: strings.NewReader(user + ":" + password + "\n"),
	})
	return err
}

func (p *Pacstrap) ProfilePostInstall(ctx context.Context, profile config.ProfileConfig) error {
	if profile.Greeter == "" {
		return nil
	}
	return p.inChroot(ctx, "systemctl enable "+profile.Greeter+".service")
}

func (p *Pacstrap) EnableServices(ctx context.Context, services []string) error {
	for _, s := range services {
		if err := p.inChroot(ctx, "systemctl enable "+s); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pacstrap) RunCustomCommands(ctx context.Context, cmds []string) error {
	for _, c := range cmds {
		logger.Info("[INFO] Running custom command: %s\n", c)
		if err := p.inChroot(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pacstrap) Genfstab(ctx context.Context) error {
	res, err := p.exec.Run(ctx, system.Command{Name: "genfstab", Args: []string{"-U", p.target}})
	if err != nil {
		return err
	}
	return p.appendTarget("etc/fstab", string(res.Output))
}

// Unmount releases the target: every filesystem below it, then the LUKS
// mappings in reverse order of opening.
func (p *Pacstrap) Unmount(ctx context.Context) error {
	var errs []error
	if err := p.run(ctx, "umount", "-R", p.target); err != nil {
		errs = append(errs, err)
	}
	for i := len(p.volumes) - 1; i >= 0; i-- {
		if err := p.run(ctx, "cryptsetup", "close", p.volumes[i].name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
