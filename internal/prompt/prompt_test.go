package prompt

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"arch-setup/internal/config"
	"arch-setup/internal/disk"
)

var testDevices = []disk.Device{
	{Path: "/dev/sda", Model: "USB stick", Size: 32 * disk.GiB, Removable: true},
	{Path: "/dev/nvme0n1", Model: "Samsung 980", Size: 512 * disk.GiB},
}

func TestCollect_AsksInOrder(t *testing.T) {
	cfg := config.Defaults()
	creds := &config.Credentials{}
	p := &Scripted{
		Inputs:    []string{"", ""},
		Passwords: []string{"luks", "user-secret", "root-secret"},
		Selects:   []int{1, 1},
	}

	require.NoError(t, Collect(context.Background(), p, testDevices, cfg, creds))

	require.Equal(t, []string{
		"Select the disk to install to (it will be wiped)",
		"Filesystem for /",
		"Enter disk encryption password",
		"Sudo user username",
		"Sudo user password",
		"Enter root password",
		"Enter hostname",
	}, p.Asked)

	require.Equal(t, "/dev/nvme0n1", cfg.Disk.Device)
	require.Equal(t, string(disk.RootFilesystems[1]), cfg.Disk.Filesystem)
	require.Len(t, cfg.Disk.Partitions, 2)
	require.Equal(t, []string{"/"}, cfg.Encryption.Mountpoints)
	require.Equal(t, "kippster", cfg.SudoUser())
	require.Equal(t, "arch", cfg.Hostname)
	require.Equal(t, "luks", creds.EncryptionPassword)
	require.Equal(t, "user-secret", creds.UserPassword("kippster"))
	require.Equal(t, "root-secret", creds.RootPassword)
	require.NoError(t, config.Validate(cfg, creds))
}

func TestCollect_SkipsAnsweredQuestions(t *testing.T) {
	cfg := config.Defaults()
	cfg.Hostname = "box"
	cfg.Disk.Device = "/dev/sda"
	cfg.Encryption = nil
	cfg.Users = []config.User{{Name: "alice", Sudo: true}, {Name: "bob"}}
	creds := &config.Credentials{RootPassword: "r"}
	creds.SetUserPassword("alice", "a")

	p := &Scripted{Passwords: []string{"b"}}
	require.NoError(t, Collect(context.Background(), p, testDevices, cfg, creds))

	require.Equal(t, []string{"Filesystem for /", "Password for bob"}, p.Asked)
	require.Equal(t, "/dev/sda", cfg.Disk.Device)
	require.Equal(t, "b", creds.UserPassword("bob"))
}

func TestCollect_ConfiguredLayoutIsNotAsked(t *testing.T) {
	cfg := config.Defaults()
	cfg.Disk.Device = "/dev/vda"
	cfg.Disk.Partitions = []disk.Partition{
		{Mountpoint: "/boot", Size: disk.GiB, Filesystem: disk.FAT32},
		{Mountpoint: "/", Filesystem: disk.Btrfs},
	}
	creds := &config.Credentials{EncryptionPassword: "x", RootPassword: "r"}
	cfg.Hostname = "h"
	cfg.Users = []config.User{{Name: "u", Sudo: true}}
	creds.SetUserPassword("u", "p")

	p := &Scripted{}
	require.NoError(t, Collect(context.Background(), p, nil, cfg, creds))
	require.Empty(t, p.Asked)
	require.Equal(t, []string{"/"}, cfg.Encryption.Mountpoints)
}

func TestCollect_Errors(t *testing.T) {
	err := Collect(context.Background(), &Scripted{}, nil, config.Defaults(), &config.Credentials{})
	require.ErrorContains(t, err, "no writable disks")

	cfg := config.Defaults()
	cfg.Disk.Device = "/dev/sdz"
	err = Collect(context.Background(), &Scripted{}, testDevices, cfg, &config.Credentials{})
	require.ErrorContains(t, err, "/dev/sdz not found")

	// Running out of answers surfaces as an abort.
	err = Collect(context.Background(), &Scripted{}, testDevices, config.Defaults(), &config.Credentials{})
	require.True(t, errors.Is(err, ErrAborted))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = Collect(ctx, &Scripted{}, testDevices, config.Defaults(), &config.Credentials{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestReadNewPassword(t *testing.T) {
	answers := []string{"", "one", "two", "good", "good"}
	var prompts []string
	read := func(p string) (string, error) {
		prompts = append(prompts, p)
		v := answers[0]
		answers = answers[1:]
		return v, nil
	}

	var out bytes.Buffer
	pw, err := readNewPassword(&out, "Enter root password", read)
	require.NoError(t, err)
	require.Equal(t, "good", pw)
	require.Contains(t, out.String(), "cannot be empty")
	require.Contains(t, out.String(), "do not match")
	require.Equal(t, "Enter root password (again): ", prompts[2])
}

func TestParseYesNo(t *testing.T) {
	for _, tc := range []struct {
		in         string
		def        bool
		want, good bool
	}{
		{"", true, true, true},
		{"", false, false, true},
		{"Y", false, true, true},
		{"no", true, false, true},
		{"maybe", true, false, false},
	} {
		got, ok := parseYesNo(tc.in, tc.def)
		require.Equal(t, tc.good, ok, tc.in)
		require.Equal(t, tc.want, got, tc.in)
	}
}

func TestParseChoice(t *testing.T) {
	idx, ok := parseChoice("", 3, 1)
	require.True(t, ok)
	require.Equal(t, 1, idx)

	idx, ok = parseChoice("3", 3, 0)
	require.True(t, ok)
	require.Equal(t, 2, idx)

	_, ok = parseChoice("4", 3, 0)
	require.False(t, ok)
	_, ok = parseChoice("x", 3, 0)
	require.False(t, ok)
}
