// Package postinstall relocates the configuration directory into the target
// root and runs the post-install script inside a chroot.
package postinstall

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"arch-setup/internal/bundle"
	"arch-setup/internal/config"
	"arch-setup/internal/logger"
	"arch-setup/internal/packages"
	"arch-setup/internal/state"
	"arch-setup/internal/steps"
)

// Steps returns the post-install pass for cfg, in execution order. Every step
// is required: the pass stops at the first failure.
func Steps(cfg *config.Config, ch steps.Chrooter) ([]steps.Step, error) {
	user := cfg.SudoUser()
	if user == "" {
		return nil, errors.New("post-install: no user owns the configuration directory")
	}
	if cfg.MountPoint == "" {
		return nil, errors.New("post-install: mount point not set")
	}

	// Paths as seen from inside the chroot.
	configDir := cfg.ConfigDir
	script := path.Join(configDir, cfg.PostInstall.Script)

	list := []steps.Step{
		{Name: "copy configuration", Action: copyAction(cfg), Required: true},
		{
			Name:     "chown configuration",
			Action:   steps.ChrootCommand{Chroot: ch, Cmd: fmt.Sprintf("chown -R %s:%s %s", user, user, configDir)},
			Required: true,
		},
		{
			Name:     "chmod post-install script",
			Action:   steps.ChrootCommand{Chroot: ch, Cmd: "chmod +x " + script},
			Required: true,
		},
	}

	if len(cfg.PostInstall.PackageLists) > 0 {
		list = append(list, steps.Step{
			Name:     "install package lists",
			Action:   packageListsAction(cfg, ch),
			Required: true,
		})
	}

	list = append(list, steps.Step{
		Name:     "run post-install script",
		Action:   steps.ChrootCommand{Chroot: ch, Cmd: script + " " + user},
		Required: true,
	})
	return list, nil
}

// copyAction moves the ISO configuration directory into the target, or
// extracts it there when it was shipped as an archive. Either way a second run
// finds nothing to do.
func copyAction(cfg *config.Config) steps.Action {
	dst := filepath.Join(cfg.MountPoint, cfg.ConfigDir)
	src := cfg.ISOConfigDir
	if !bundle.IsArchive(src) {
		return steps.HostMove{Src: src, Dst: dst}
	}
	return steps.Func{
		Desc: fmt.Sprintf("extract %s to %s", src, dst),
		Fn: func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if _, err := os.Stat(src); os.IsNotExist(err) {
				logger.Warn("[WARN] %s no longer exists, nothing to extract\n", src)
				return nil
			}
			if _, err := os.Stat(dst); err == nil {
				logger.Warn("[WARN] %s already exists, not extracting %s again\n", dst, src)
				return nil
			}
			return bundle.Extract(src, dst)
		},
	}
}

// packageListsAction installs the packages listed in the configured files.
// The lists are read when the step runs, after the configuration was copied.
func packageListsAction(cfg *config.Config, ch steps.Chrooter) steps.Action {
	lists := make([]string, len(cfg.PostInstall.PackageLists))
	for i, l := range cfg.PostInstall.PackageLists {
		if !path.IsAbs(l) {
			l = path.Join(cfg.ConfigDir, l)
		}
		lists[i] = l
	}
	return steps.Func{
		Desc: "pacman -S --needed --noconfirm < " + strings.Join(lists, " "),
		Fn: func(ctx context.Context) error {
			hostPaths := make([]string, len(lists))
			for i, l := range lists {
				hostPaths[i] = filepath.Join(cfg.MountPoint, l)
			}
			pkgs, err := packages.ReadLists(hostPaths...)
			if err != nil {
				return err
			}
			if len(pkgs) == 0 {
				logger.Info("[INFO] Package lists are empty, nothing to install\n")
				return nil
			}
			logger.Info("[INFO] Installing %d packages from package lists\n", len(pkgs))
			return ch.Run(ctx, "pacman -S --needed --noconfirm "+strings.Join(pkgs, " "), "")
		},
	}
}

// ConfigureSystem runs the post-install pass and records it in a journal,
// saved inside the target root, or in logDir when the target cannot be
// written. The journal is returned even when the pass failed.
func ConfigureSystem(ctx context.Context, cfg *config.Config, ch steps.Chrooter, logDir string) (*state.Journal, error) {
	journal := state.NewJournal(cfg.Hostname)

	list, err := Steps(cfg, ch)
	if err != nil {
		journal.Finish(err)
		saveJournal(cfg, journal, logDir)
		return journal, err
	}

	runner := &steps.Runner{}
	outcomes, err := runner.Run(ctx, list)
	journal.Record(outcomes)
	journal.Finish(err)
	saveJournal(cfg, journal, logDir)
	return journal, err
}

func saveJournal(cfg *config.Config, j *state.Journal, logDir string) {
	target := filepath.Join(cfg.MountPoint, state.JournalPath)
	err := state.SaveJournal(target, j)
	if err == nil {
		logger.Debug("[DEBUG] Journal written to %s\n", target)
		return
	}
	logger.Warn("[WARN] Could not write journal to %s: %v\n", target, err)
	if logDir == "" {
		return
	}
	fallback := filepath.Join(logDir, filepath.Base(state.JournalPath))
	if err := state.SaveJournal(fallback, j); err != nil {
		logger.Error("[ERROR] Could not write journal to %s: %v\n", fallback, err)
		return
	}
	logger.Info("[INFO] Journal written to %s\n", fallback)
}
