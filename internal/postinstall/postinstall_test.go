package postinstall

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"arch-setup/internal/config"
	"arch-setup/internal/state"
	"arch-setup/internal/steps"
)

type fakeChroot struct {
	cmds []string
	fail map[string]error
}

func (f *fakeChroot) Run(_ context.Context, cmd, user string) error {
	f.cmds = append(f.cmds, cmd)
	for prefix, err := range f.fail {
		if strings.HasPrefix(cmd, prefix) {
			return err
		}
	}
	return nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := config.Defaults()
	cfg.Hostname = "arch"
	cfg.Users = []config.User{{Name: "kippster", Sudo: true}}
	cfg.MountPoint = filepath.Join(root, "mnt")
	cfg.ISOConfigDir = filepath.Join(root, "iso", "archinstall")
	require.NoError(t, os.MkdirAll(cfg.MountPoint, 0755))
	return cfg
}

func writeISOConfig(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	}
}

func TestConfigureSystem_RunsStepsInOrder(t *testing.T) {
	cfg := testConfig(t)
	cfg.PostInstall.PackageLists = []string{"packages/desktop.txt"}
	writeISOConfig(t, cfg.ISOConfigDir, map[string]string{
		"post_install.sh":      "#!/bin/sh\n",
		"packages/desktop.txt": "git\n# editor\nneovim\ngit\n",
	})
	ch := &fakeChroot{}

	j, err := ConfigureSystem(context.Background(), cfg, ch, "")
	require.NoError(t, err)

	require.Equal(t, []string{
		"chown -R kippster:kippster /opt/archinstall",
		"chmod +x /opt/archinstall/post_install.sh",
		"pacman -S --needed --noconfirm git neovim",
		"/opt/archinstall/post_install.sh kippster",
	}, ch.cmds)

	_, err = os.Stat(filepath.Join(cfg.MountPoint, "opt/archinstall/post_install.sh"))
	require.NoError(t, err)
	_, err = os.Stat(cfg.ISOConfigDir)
	require.True(t, os.IsNotExist(err))

	require.Equal(t, state.StatusCompleted, j.Status)
	require.Len(t, j.Steps, 5)

	saved := state.LoadJournal(filepath.Join(cfg.MountPoint, state.JournalPath))
	require.Equal(t, j.RunID, saved.RunID)
}

func TestConfigureSystem_StopsAtFirstFailure(t *testing.T) {
	cfg := testConfig(t)
	writeISOConfig(t, cfg.ISOConfigDir, map[string]string{"post_install.sh": "#!/bin/sh\n"})
	boom := errors.New("exit status 1")
	ch := &fakeChroot{fail: map[string]error{"chmod": boom}}

	j, err := ConfigureSystem(context.Background(), cfg, ch, "")

	var stepErr *steps.StepError
	require.ErrorAs(t, err, &stepErr)
	require.Equal(t, "chmod post-install script", stepErr.Step)
	require.ErrorIs(t, err, boom)

	require.Len(t, ch.cmds, 2)
	require.Equal(t, state.StatusFailed, j.Status)
	require.Equal(t, steps.StatusSkipped, j.Steps[3].Status)
}

func TestConfigureSystem_MissingSourceIsNoop(t *testing.T) {
	cfg := testConfig(t)
	ch := &fakeChroot{}

	j, err := ConfigureSystem(context.Background(), cfg, ch, "")
	require.NoError(t, err)
	require.Equal(t, steps.StatusOK, j.Steps[0].Status)
	require.Len(t, ch.cmds, 3)
}

func TestConfigureSystem_ExtractsBundle(t *testing.T) {
	cfg := testConfig(t)
	bundlePath := filepath.Join(t.TempDir(), "archinstall.zip")
	f, err := os.Create(bundlePath)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("archinstall/post_install.sh")
	require.NoError(t, err)
	_, err = w.Write([]byte("#!/bin/sh\n"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	cfg.ISOConfigDir = bundlePath

	_, err = ConfigureSystem(context.Background(), cfg, &fakeChroot{}, "")
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(cfg.MountPoint, "opt/archinstall/post_install.sh"))
	require.NoError(t, err)
}

func TestConfigureSystem_RerunWithBundle(t *testing.T) {
	cfg := testConfig(t)
	bundlePath := filepath.Join(t.TempDir(), "archinstall.zip")
	f, err := os.Create(bundlePath)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("archinstall/post_install.sh")
	require.NoError(t, err)
	_, err = w.Write([]byte("#!/bin/sh\n"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	cfg.ISOConfigDir = bundlePath

	_, err = ConfigureSystem(context.Background(), cfg, &fakeChroot{}, "")
	require.NoError(t, err)

	script := filepath.Join(cfg.MountPoint, "opt/archinstall/post_install.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\n# edited\n"), 0755))

	ch := &fakeChroot{}
	j, err := ConfigureSystem(context.Background(), cfg, ch, "")
	require.NoError(t, err)
	require.Equal(t, steps.StatusOK, j.Steps[0].Status)
	require.Len(t, ch.cmds, 3)

	data, err := os.ReadFile(script)
	require.NoError(t, err)
	require.Contains(t, string(data), "# edited")
}

func TestSteps_RequiresUser(t *testing.T) {
	cfg := testConfig(t)
	cfg.Users = nil
	_, err := Steps(cfg, &fakeChroot{})
	require.ErrorContains(t, err, "no user")

	cfg.Users = []config.User{{Name: "alice"}}
	cfg.PostInstall.User = "alice"
	list, err := Steps(cfg, &fakeChroot{})
	require.NoError(t, err)
	require.Equal(t, "/opt/archinstall/post_install.sh alice", list[len(list)-1].Action.(steps.ChrootCommand).Cmd)
}

func TestConfigureSystem_JournalFallsBackToLogDir(t *testing.T) {
	cfg := testConfig(t)
	cfg.Users = nil
	// A regular file where the target root should be.
	blocked := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocked, nil, 0644))
	cfg.MountPoint = blocked
	logDir := t.TempDir()

	j, err := ConfigureSystem(context.Background(), cfg, &fakeChroot{}, logDir)
	require.Error(t, err)
	require.Equal(t, state.StatusFailed, j.Status)

	saved := state.LoadJournal(filepath.Join(logDir, "journal.json"))
	require.Equal(t, j.RunID, saved.RunID)
}
