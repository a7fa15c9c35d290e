package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupRenamesKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("subledgerd", "test", Options{Writer: &buf, Level: "debug"})
	logger.Debug("hello", slog.Int("tick", 3))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "hello", line["message"])
	require.Equal(t, "DEBUG", line["severity"])
	require.Equal(t, "subledgerd", line["service"])
	require.Equal(t, "test", line["env"])
	require.Contains(t, line, "timestamp")
	require.EqualValues(t, 3, line["tick"])
}

func TestSetupFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("subledgerd", "", Options{Writer: &buf, Level: "warn"})
	logger.Info("dropped")
	require.Zero(t, buf.Len())
}

func TestSetupWritesRotatedFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "node.log")
	logger := Setup("subledgerd", "", Options{Writer: &buf, File: &FileOptions{Path: path, MaxSizeMB: 1}})
	logger.Info("persisted")
	require.FileExists(t, path)
}

func TestMaskField(t *testing.T) {
	require.Equal(t, RedactedValue, MaskField("rpcToken", "secret").Value.String())
	require.Equal(t, "", MaskField("rpcToken", "").Value.String())
	require.Equal(t, "market_subscribe", MaskField("method", "market_subscribe").Value.String())
}
