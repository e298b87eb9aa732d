package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aussiebroadwan/pulse/internal/pulse/app"
	"github.com/stretchr/testify/require"
)

func TestCLI_Version(t *testing.T) {
	var out bytes.Buffer
	c := newCLI()
	c.Writer = &out

	require.NoError(t, c.Run([]string{"pulse", "version"}))
	require.Equal(t, app.BuildVersion, strings.TrimSpace(out.String()))
}

func TestCLI_Migrate(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "pulse.yaml")
	dbPath := filepath.Join(dir, "pulse.db")
	yaml := "log_level: error\n" +
		"database:\n  url: \"file:" + dbPath + "\"\n" +
		"auth:\n  jwt_secret: \"0123456789abcdef0123456789abcdef\"\n" +
		"avatar:\n  dir: \"" + filepath.Join(dir, "media") + "\"\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(yaml), 0o600))

	c := newCLI()
	require.NoError(t, c.Run([]string{"pulse", "--config", cfgPath, "migrate"}))

	_, err := os.Stat(dbPath)
	require.NoError(t, err)
}

func TestCLI_BadConfig(t *testing.T) {
	c := newCLI()
	err := c.Run([]string{"pulse", "--config", filepath.Join(t.TempDir(), "missing.yaml"), "migrate"})
	require.Error(t, err)
}
