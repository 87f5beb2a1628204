package installer

import (
	"context"
	"fmt"
	"strings"

	"arch-setup/internal/config"
)

// Recorder is a Backend that only records which capabilities were called, in
// order. It backs dry runs and tests.
type Recorder struct {
	Calls []string

	// Fail makes the named capability (as recorded in Calls, without
	// arguments) return the error.
	Fail map[string]error
}

func (r *Recorder) record(name string, args ...any) error {
	call := name
	if len(args) > 0 {
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = fmt.Sprint(a)
		}
		call = name + "(" + strings.Join(parts, ", ") + ")"
	}
	r.Calls = append(r.Calls, call)
	return r.Fail[name]
}

func (r *Recorder) PerformFilesystemOperations(context.Context) error {
	return r.record("PerformFilesystemOperations")
}

func (r *Recorder) MountLayout(context.Context) error { return r.record("MountLayout") }

func (r *Recorder) SanityCheck(context.Context) error { return r.record("SanityCheck") }

func (r *Recorder) GenerateKeyFiles(context.Context) error { return r.record("GenerateKeyFiles") }

func (r *Recorder) SetMirrors(_ context.Context, _ config.MirrorConfig, onTarget bool) error {
	where := "host"
	if onTarget {
		where = "target"
	}
	return r.record("SetMirrors", where)
}

func (r *Recorder) MinimalInstallation(_ context.Context, opts MinimalOptions) error {
	return r.record("MinimalInstallation", opts.Hostname)
}

func (r *Recorder) SetupSwap(_ context.Context, kind string) error {
	return r.record("SetupSwap", kind)
}

func (r *Recorder) AddAdditionalPackages(_ context.Context, pkgs []string) error {
	return r.record("AddAdditionalPackages", strings.Join(pkgs, " "))
}

func (r *Recorder) AddBootloader(_ context.Context, kind config.Bootloader, uki bool) error {
	return r.record("AddBootloader", kind, uki)
}

func (r *Recorder) InstallNetworkConfig(_ context.Context, network string, _ config.ProfileConfig) error {
	return r.record("InstallNetworkConfig", network)
}

func (r *Recorder) CreateUsers(_ context.Context, users []Account) error {
	names := make([]string, len(users))
	for i, u := range users {
		names[i] = u.Name
	}
	return r.record("CreateUsers", strings.Join(names, " "))
}

func (r *Recorder) InstallAudio(_ context.Context, audio string) error {
	return r.record("InstallAudio", audio)
}

func (r *Recorder) InstallProfile(_ context.Context, profile config.ProfileConfig) error {
	return r.record("InstallProfile", profile.Name)
}

func (r *Recorder) SetTimezone(_ context.Context, tz string) error {
	return r.record("SetTimezone", tz)
}

func (r *Recorder) ActivateTimeSynchronization(context.Context) error {
	return r.record("ActivateTimeSynchronization")
}

// SetUserPassword records the user only.
func (r *Recorder) SetUserPassword(_ context.Context, user, _ string) error {
	return r.record("SetUserPassword", user)
}

func (r *Recorder) ProfilePostInstall(_ context.Context, profile config.ProfileConfig) error {
	return r.record("ProfilePostInstall", profile.Name)
}

func (r *Recorder) EnableServices(_ context.Context, services []string) error {
	return r.record("EnableServices", strings.Join(services, " "))
}

func (r *Recorder) RunCustomCommands(_ context.Context, cmds []string) error {
	return r.record("RunCustomCommands", len(cmds))
}

func (r *Recorder) Genfstab(context.Context) error { return r.record("Genfstab") }

func (r *Recorder) Unmount(context.Context) error { return r.record("Unmount") }
