// Package chroot runs commands against the mounted target root through arch-chroot.
package chroot

import (
	"context"
	"fmt"

	"arch-setup/internal/logger"
	"arch-setup/internal/system"
)

// DefaultUser is the account commands run as when no user is given.
const DefaultUser = "root"

// Runner executes shell commands inside the target root.
type Runner struct {
	MountPoint string
	Exec       system.Executor
}

// New returns a Runner for the target mounted at mountPoint.
func New(mountPoint string, exec system.Executor) *Runner {
	return &Runner{MountPoint: mountPoint, Exec: exec}
}

// Command builds the arch-chroot invocation for cmd without running it.
// The command string is handed to bash unmodified.
func (r *Runner) Command(cmd, user string) system.Command {
	if user == "" {
		user = DefaultUser
	}
	return system.Command{
		Name: "arch-chroot",
		Args: []string{"-u", user, r.MountPoint, "/bin/bash", "-c", cmd},
	}
}

// Run executes cmd as user inside the target root. A non-zero exit is returned
// as a *system.CommandError whose Command is the original cmd string.
func (r *Runner) Run(ctx context.Context, cmd, user string) error {
	if r.MountPoint == "" {
		return fmt.Errorf("chroot: mount point not set")
	}
	logger.Debug("[DEBUG] chroot (%s) as %s: %s\n", r.MountPoint, userOrDefault(user), cmd)

	res, err := r.Exec.Run(ctx, r.Command(cmd, user))
	if err != nil {
		if res != nil && res.ExitCode != 0 {
			return &system.CommandError{Command: cmd, ExitCode: res.ExitCode, Output: res.Output, Stderr: res.Stderr}
		}
		return fmt.Errorf("chroot: %s: %w", cmd, err)
	}
	return nil
}

// Shell drops the operator into an interactive shell inside the target root.
func (r *Runner) Shell(ctx context.Context) error {
	logger.Info("[INFO] Dropping into chroot shell at %s. Type 'exit' to leave.\n", r.MountPoint)
	_, err := r.Exec.Run(ctx, system.Command{
		Name:        "arch-chroot",
		Args:        []string{r.MountPoint},
		Interactive: true,
	})
	return err
}

func userOrDefault(user string) string {
	if user == "" {
		return DefaultUser
	}
	return user
}
