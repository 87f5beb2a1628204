// Package fsutil holds the file relocation helpers used to move the
// configuration directory from the live medium into the target root.
package fsutil

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"

	"arch-setup/internal/logger"
)

// Move relocates src to dst. When dst is an existing directory, src is moved
// inside it (mv semantics). A source that no longer exists is not an error:
// Move logs it and reports moved=false, so re-running a half finished pass is safe.
// Moves across filesystems fall back to copy + remove.
func Move(src, dst string) (moved bool, err error) {
	if _, err := os.Lstat(src); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warn("[WARN] %s no longer exists, nothing to move\n", src)
			return false, nil
		}
		return false, err
	}

	if info, err := os.Stat(dst); err == nil && info.IsDir() {
		dst = filepath.Join(dst, filepath.Base(src))
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return false, fmt.Errorf("mkdir failed: %w", err)
	}

	logger.Debug("[DEBUG] Moving %s to %s\n", src, dst)
	err = os.Rename(src, dst)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return false, fmt.Errorf("move %s to %s: %w", src, dst, err)
	}

	logger.Debug("[DEBUG] %s and %s are on different filesystems, copying\n", src, dst)
	if err := CopyTree(src, dst); err != nil {
		return false, err
	}
	if err := os.RemoveAll(src); err != nil {
		return true, fmt.Errorf("remove %s after copy: %w", src, err)
	}
	return true, nil
}

// CopyTree copies src (a file, a symlink or a directory tree) to dst,
// preserving permission bits and symlinks.
func CopyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		info, err := d.Info()
		if err != nil {
			return err
		}

		switch {
		case d.IsDir():
			return os.MkdirAll(target, info.Mode().Perm())
		case info.Mode()&fs.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		case info.Mode().IsRegular():
			return CopyFile(path, target, 0)
		default:
			logger.Warn("[WARN] Skipping special file %s\n", path)
			return nil
		}
	})
}

// CopyFile copies a file from src to dst, preserving permissions unless
// modeOverride is non-zero. Missing directories in the destination path are created.
func CopyFile(src, dst string, modeOverride os.FileMode) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source failed: %w", err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("mkdir failed: %w", err)
	}

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create target failed: %w", err)
	}
	defer func() {
		cerr := out.Close()
		if err == nil {
			err = cerr
		}
	}()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copy failed: %w", err)
	}

	if modeOverride != 0 {
		return os.Chmod(dst, modeOverride)
	}
	stat, err := os.Stat(src)
	if err != nil {
		return err
	}
	return os.Chmod(dst, stat.Mode().Perm())
}
