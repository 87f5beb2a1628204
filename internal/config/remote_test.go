package config

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsRemote(t *testing.T) {
	require.True(t, IsRemote("https://example.org/install.yaml"))
	require.True(t, IsRemote("http://10.0.0.1/install.toml"))
	require.False(t, IsRemote("/root/install.yaml"))
	require.False(t, IsRemote("install.yaml"))
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/configs/install.yaml" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("hostname: remote\n"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	path, err := Download(context.Background(), srv.URL+"/configs/install.yaml", dir)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "install.yaml"), path)

	cfg := Defaults()
	require.NoError(t, Load(path, cfg))
	require.Equal(t, "remote", cfg.Hostname)

	_, err = Download(context.Background(), srv.URL+"/missing.yaml", dir)
	require.ErrorContains(t, err, "404")

	_, err = Download(context.Background(), srv.URL+"/", dir)
	require.ErrorContains(t, err, "does not name a file")
}
