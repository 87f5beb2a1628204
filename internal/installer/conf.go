package installer

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	parallelDownloadsRe = regexp.MustCompile(`(?m)^#?\s*ParallelDownloads\s*=.*$`)
	grubCmdlineRe       = regexp.MustCompile(`(?m)^GRUB_CMDLINE_LINUX=.*$`)
)

// EnableRepositories uncomments the sections of a pacman.conf named in repos,
// together with the Include line that follows each header.
func EnableRepositories(conf string, repos ...string) string {
	if len(repos) == 0 {
		return conf
	}
	want := make(map[string]bool, len(repos))
	for _, r := range repos {
		want["#["+r+"]"] = true
	}

	lines := strings.Split(conf, "\n")
	inSection := false
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case want[trimmed]:
			lines[i] = strings.TrimPrefix(trimmed, "#")
			inSection = true
		case inSection && strings.HasPrefix(trimmed, "#Include"):
			lines[i] = strings.TrimPrefix(trimmed, "#")
			inSection = false
		case trimmed == "" || strings.HasPrefix(trimmed, "["), strings.HasPrefix(trimmed, "#["):
			inSection = false
		}
	}
	return strings.Join(lines, "\n")
}

// SetParallelDownloads sets (or uncomments) ParallelDownloads in a pacman.conf.
// n <= 0 leaves the file unchanged.
func SetParallelDownloads(conf string, n int) string {
	if n <= 0 {
		return conf
	}
	line := fmt.Sprintf("ParallelDownloads = %d", n)
	if parallelDownloadsRe.MatchString(conf) {
		return parallelDownloadsRe.ReplaceAllLiteralString(conf, line)
	}
	return strings.Replace(conf, "[options]", "[options]\n"+line, 1)
}

// SetGrubCmdline replaces GRUB_CMDLINE_LINUX in /etc/default/grub.
func SetGrubCmdline(conf, cmdline string) string {
	line := fmt.Sprintf("GRUB_CMDLINE_LINUX=%q", cmdline)
	if grubCmdlineRe.MatchString(conf) {
		return grubCmdlineRe.ReplaceAllLiteralString(conf, line)
	}
	return conf + line + "\n"
}
