package packages

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	input := `
# window manager
qtile
  rofi
eww # bar

qtile
`
	pkgs, err := Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Equal(t, []string{"qtile", "rofi", "eww"}, pkgs)
}

func TestReadLists_MergesInOrder(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "base.txt")
	b := filepath.Join(dir, "desktop.txt")
	require.NoError(t, os.WriteFile(a, []byte("zsh\ngit\n"), 0644))
	require.NoError(t, os.WriteFile(b, []byte("git\nkitty\n"), 0644))

	pkgs, err := ReadLists(a, b)
	require.NoError(t, err)
	require.Equal(t, []string{"zsh", "git", "kitty"}, pkgs)
}

func TestReadList_Missing(t *testing.T) {
	_, err := ReadList(filepath.Join(t.TempDir(), "nope.txt"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "nope.txt")
}

func TestDedup(t *testing.T) {
	require.Equal(t, []string{"a", "b"}, Dedup([]string{"a", "", "b", "a"}))
	require.Empty(t, Dedup(nil))
}
