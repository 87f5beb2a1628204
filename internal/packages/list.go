// Package packages reads plain-text package lists: one package name per line.
package packages

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// ReadList reads the package list at path. Blank lines and '#' comments are
// ignored, duplicates are dropped keeping the first occurrence.
func ReadList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open package list %s: %w", path, err)
	}
	defer f.Close()

	pkgs, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("read package list %s: %w", path, err)
	}
	return pkgs, nil
}

// ReadLists reads several lists and merges them in order.
func ReadLists(paths ...string) ([]string, error) {
	var all []string
	for _, p := range paths {
		pkgs, err := ReadList(p)
		if err != nil {
			return nil, err
		}
		all = append(all, pkgs...)
	}
	return Dedup(all), nil
}

// Parse reads package names from r.
func Parse(r io.Reader) ([]string, error) {
	var pkgs []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		pkgs = append(pkgs, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return Dedup(pkgs), nil
}

// Dedup drops repeated and empty names, keeping first occurrences in order.
func Dedup(pkgs []string) []string {
	seen := make(map[string]bool, len(pkgs))
	out := make([]string, 0, len(pkgs))
	for _, p := range pkgs {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}
