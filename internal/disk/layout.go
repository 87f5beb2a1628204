// Package disk describes block devices and the default single-disk layout the
// installer is asked to create.
package disk

import (
	"fmt"
	"strings"
)

// Size units.
const (
	MiB uint64 = 1 << 20
	GiB uint64 = 1 << 30
)

// Layout constants for SuggestSingleDiskLayout.
const (
	BootSize         = 1 * GiB
	MinRootSize      = 20 * GiB
	RootSizeWithHome = 100 * GiB
	MinDeviceSize    = BootSize + MinRootSize
	BootMountpoint   = "/boot"
	RootMountpoint   = "/"
	HomeMountpoint   = "/home"
	alignment        = 1 * MiB
)

// FilesystemType is a filesystem the installer can create.
type FilesystemType string

const (
	Ext4  FilesystemType = "ext4"
	Btrfs FilesystemType = "btrfs"
	XFS   FilesystemType = "xfs"
	F2FS  FilesystemType = "f2fs"
	FAT32 FilesystemType = "fat32"
)

// RootFilesystems lists the filesystems offered for / and /home.
var RootFilesystems = []FilesystemType{Ext4, Btrfs, XFS, F2FS}

// ParseFilesystemType accepts any of RootFilesystems, case-insensitively.
func ParseFilesystemType(s string) (FilesystemType, error) {
	fs := FilesystemType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range RootFilesystems {
		if fs == known {
			return fs, nil
		}
	}
	if fs == FAT32 {
		return fs, nil
	}
	return "", fmt.Errorf("unknown filesystem type %q", s)
}

// MkfsCommand returns the mkfs binary and flags that format fs.
func (fs FilesystemType) MkfsCommand() (string, []string) {
	switch fs {
	case Ext4:
		return "mkfs.ext4", []string{"-F"}
	case Btrfs:
		return "mkfs.btrfs", []string{"-f"}
	case XFS:
		return "mkfs.xfs", []string{"-f"}
	case F2FS:
		return "mkfs.f2fs", []string{"-f"}
	case FAT32:
		return "mkfs.fat", []string{"-F", "32"}
	}
	return "", nil
}

// Partition is one entry of the layout. Size 0 means "the rest of the device".
type Partition struct {
	Mountpoint string         `yaml:"mountpoint" toml:"mountpoint" json:"mountpoint"`
	Size       uint64         `yaml:"size" toml:"size" json:"size"`
	Filesystem FilesystemType `yaml:"filesystem" toml:"filesystem" json:"filesystem"`
	Flags      []string       `yaml:"flags,omitempty" toml:"flags" json:"flags,omitempty"`
}

// HasFlag reports whether flag is set on the partition.
func (p Partition) HasFlag(flag string) bool {
	for _, f := range p.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// SuggestSingleDiskLayout returns the default layout for a whole device: a 1 GiB
// EFI system partition mounted at /boot, then / taking the rest. With
// separateHome, / gets 100 GiB (or half of what is left on smaller devices) and
// /home the remainder.
func SuggestSingleDiskLayout(dev Device, fs FilesystemType, separateHome bool) ([]Partition, error) {
	if dev.Size < MinDeviceSize {
		return nil, fmt.Errorf("device %s is too small: %s, need at least %s",
			dev.Path, HumanSize(dev.Size), HumanSize(MinDeviceSize))
	}

	layout := []Partition{
		{Mountpoint: BootMountpoint, Size: BootSize, Filesystem: FAT32, Flags: []string{"boot", "esp"}},
	}

	if !separateHome {
		return append(layout, Partition{Mountpoint: RootMountpoint, Filesystem: fs}), nil
	}

	// Keep a little slack for the GPT backup header and alignment.
	available := dev.Size - BootSize - 2*alignment
	rootSize := uint64(RootSizeWithHome)
	if available < 2*RootSizeWithHome {
		rootSize = alignDown(available / 2)
	}
	if rootSize < MinRootSize {
		return nil, fmt.Errorf("device %s is too small for a separate /home", dev.Path)
	}

	return append(layout,
		Partition{Mountpoint: RootMountpoint, Size: rootSize, Filesystem: fs},
		Partition{Mountpoint: HomeMountpoint, Filesystem: fs},
	), nil
}

// EncryptablePartitions returns every partition except the one mounted at /boot,
// which the bootloader has to read unencrypted.
func EncryptablePartitions(layout []Partition) []Partition {
	var out []Partition
	for _, p := range layout {
		if p.Mountpoint == BootMountpoint {
			continue
		}
		out = append(out, p)
	}
	return out
}

// MountOrder returns the layout sorted so parents are mounted before children
// (/ first, then /boot, /home ...). The input is left untouched.
func MountOrder(layout []Partition) []Partition {
	out := make([]Partition, len(layout))
	copy(out, layout)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && depth(out[j].Mountpoint) < depth(out[j-1].Mountpoint); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func depth(mountpoint string) int {
	if mountpoint == "/" {
		return 0
	}
	return strings.Count(strings.TrimSuffix(mountpoint, "/"), "/")
}

func alignDown(n uint64) uint64 {
	return n / alignment * alignment
}

// HumanSize formats bytes with binary units.
func HumanSize(n uint64) string {
	switch {
	case n >= GiB:
		return fmt.Sprintf("%.1f GiB", float64(n)/float64(GiB))
	case n >= MiB:
		return fmt.Sprintf("%.1f MiB", float64(n)/float64(MiB))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
