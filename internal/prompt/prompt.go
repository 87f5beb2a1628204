// Package prompt asks the operator for the answers the installer needs.
package prompt

import (
	"context"
	"errors"
	"fmt"

	"arch-setup/internal/config"
	"arch-setup/internal/disk"
	"arch-setup/internal/logger"
)

// ErrAborted is returned when the operator aborts a prompt (Ctrl-C / Ctrl-D).
var ErrAborted = errors.New("prompt aborted")

// Prompter is the question/answer surface used during configuration.
type Prompter interface {
	// Input asks for a line of text; an empty answer yields def.
	Input(title, def string) (string, error)
	// Password asks for a non-empty secret without echo, twice.
	Password(title string) (string, error)
	// Confirm asks a yes/no question.
	Confirm(question string, def bool) (bool, error)
	// Select returns the index of the chosen option.
	Select(title string, options []string, def int) (int, error)
}

// Collect fills the answers cfg and creds are still missing, in the order the
// installer has always asked them: target disk and filesystem, encryption
// passphrase, sudo user and password, root password, hostname. Answers already
// present (from a config or credentials file) are not asked again.
func Collect(ctx context.Context, p Prompter, devices []disk.Device, cfg *config.Config, creds *config.Credentials) error {
	if err := collectDisk(ctx, p, devices, cfg); err != nil {
		return err
	}

	if cfg.Encryption != nil && creds.EncryptionPassword == "" {
		pw, err := p.Password("Enter disk encryption password")
		if err != nil {
			return err
		}
		creds.EncryptionPassword = pw
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if cfg.SudoUser() == "" {
		name, err := p.Input("Sudo user username", config.DefaultSudoUser)
		if err != nil {
			return err
		}
		cfg.Users = append(cfg.Users, config.User{Name: name, Sudo: true})
	}
	for _, u := range cfg.Users {
		if creds.UserPassword(u.Name) != "" {
			continue
		}
		title := fmt.Sprintf("Password for %s", u.Name)
		if u.Sudo {
			title = "Sudo user password"
		}
		pw, err := p.Password(title)
		if err != nil {
			return err
		}
		creds.SetUserPassword(u.Name, pw)
	}

	if creds.RootPassword == "" {
		pw, err := p.Password("Enter root password")
		if err != nil {
			return err
		}
		creds.RootPassword = pw
	}

	if cfg.Hostname == "" {
		host, err := p.Input("Enter hostname", config.DefaultHostname)
		if err != nil {
			return err
		}
		cfg.Hostname = host
	}
	return nil
}

func collectDisk(ctx context.Context, p Prompter, devices []disk.Device, cfg *config.Config) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if len(cfg.Disk.Partitions) > 0 && cfg.Disk.Device != "" {
		logger.Debug("[DEBUG] Using configured layout on %s\n", cfg.Disk.Device)
		return config.ApplyLayout(cfg, disk.Device{Path: cfg.Disk.Device})
	}

	dev, err := selectDevice(p, devices, cfg.Disk.Device)
	if err != nil {
		return err
	}

	if len(cfg.Disk.Partitions) == 0 {
		options := make([]string, len(disk.RootFilesystems))
		def := 0
		for i, fs := range disk.RootFilesystems {
			options[i] = string(fs)
			if string(fs) == cfg.Disk.Filesystem {
				def = i
			}
		}
		idx, err := p.Select("Filesystem for /", options, def)
		if err != nil {
			return err
		}
		cfg.Disk.Filesystem = options[idx]
	}

	return config.ApplyLayout(cfg, dev)
}

// selectDevice returns the configured device when it is present, otherwise asks.
func selectDevice(p Prompter, devices []disk.Device, configured string) (disk.Device, error) {
	if len(devices) == 0 {
		return disk.Device{}, errors.New("no writable disks found")
	}
	if configured != "" {
		for _, d := range devices {
			if d.Path == configured {
				return d, nil
			}
		}
		return disk.Device{}, fmt.Errorf("configured disk %s not found", configured)
	}

	options := make([]string, len(devices))
	for i, d := range devices {
		options[i] = d.String()
	}
	idx, err := p.Select("Select the disk to install to (it will be wiped)", options, 0)
	if err != nil {
		return disk.Device{}, err
	}
	return devices[idx], nil
}
