package chroot

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"arch-setup/internal/system"
)

func TestRun_PassesCommandUnmodified(t *testing.T) {
	fake := &system.FakeExecutor{}
	r := New("/mnt", fake)

	cmd := `chown -R kippster:kippster "/opt/archinstall" && echo '$HOME'`
	require.NoError(t, r.Run(context.Background(), cmd, ""))

	require.Len(t, fake.Commands, 1)
	got := fake.Commands[0]
	require.Equal(t, "arch-chroot", got.Name)
	require.Equal(t, []string{"-u", "root", "/mnt", "/bin/bash", "-c", cmd}, got.Args)
}

func TestRun_AsUser(t *testing.T) {
	fake := &system.FakeExecutor{}
	r := New("/mnt", fake)

	require.NoError(t, r.Run(context.Background(), "whoami", "kippster"))
	require.Equal(t, []string{"-u", "kippster", "/mnt", "/bin/bash", "-c", "whoami"}, fake.Commands[0].Args)
}

func TestRun_NonZeroExitCarriesCommand(t *testing.T) {
	fake := &system.FakeExecutor{}
	fake.Respond("arch-chroot", 2, "")
	r := New("/mnt", fake)

	err := r.Run(context.Background(), "false", "")
	require.Error(t, err)

	var cmdErr *system.CommandError
	require.True(t, errors.As(err, &cmdErr))
	require.Equal(t, "false", cmdErr.Command)
	require.Equal(t, 2, cmdErr.ExitCode)
	require.Equal(t, "failed to run command: false (exit status 2)", cmdErr.Error())
}

func TestRun_StartFailure(t *testing.T) {
	fake := &system.FakeExecutor{}
	fake.Fail("arch-chroot", errors.New("exec: not found"))
	r := New("/mnt", fake)

	err := r.Run(context.Background(), "true", "")
	require.Error(t, err)
	require.Contains(t, err.Error(), "exec: not found")
}

func TestRun_RequiresMountPoint(t *testing.T) {
	r := New("", &system.FakeExecutor{})
	require.Error(t, r.Run(context.Background(), "true", ""))
}

func TestShell_IsInteractive(t *testing.T) {
	fake := &system.FakeExecutor{}
	r := New("/mnt", fake)

	require.NoError(t, r.Shell(context.Background()))
	require.True(t, fake.Commands[0].Interactive)
	require.Equal(t, "arch-chroot /mnt", fake.Commands[0].String())
}
