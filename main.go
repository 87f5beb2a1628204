package main

import (
	"arch-setup/cmd" // Import the cmd package which contains the CLI commands and execution logic
)

// main is the program entry point.
// It delegates to cmd.Execute() which handles command line argument parsing and execution.
//
// arch-setup installs Arch Linux from the live medium:
//   - Collects the installation answers (target disk, filesystem, encryption
//     passphrase, users, hostname) from a YAML/TOML file and interactive prompts
//   - Hands the typed configuration to an installer backend that partitions,
//     formats and installs the base system through pacstrap and arch-chroot
//   - Moves the configuration directory from the ISO into the new system and runs
//     its post-install script inside a chroot, recording every step in a journal
//
// Failures stop the run at the first failing step; the target is always unmounted
// and the program exits with a non-zero status.
func main() {
	cmd.Execute()
}
