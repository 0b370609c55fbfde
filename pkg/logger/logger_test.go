package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "router.log")
	require.NoError(t, Init(Config{Level: "debug", OutputFile: path, MaxSize: 1}))
	t.Cleanup(func() {
		_ = Close()
		_ = InitDefault()
	})

	assert.Equal(t, path, GetCurrentLogFile())
	assert.Equal(t, logrus.DebugLevel, logrus.GetLevel())
	WithField("step", "order-signature").Info("写入测试")
	require.NoError(t, Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "写入测试")
	assert.Contains(t, string(raw), "order-signature")
}

func TestInitDefaultAndBadLevel(t *testing.T) {
	require.NoError(t, Init(Config{Level: "loud"}))
	assert.Equal(t, logrus.InfoLevel, Logger.GetLevel())
	require.NoError(t, InitDefault())
	assert.Empty(t, GetCurrentLogFile())
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "***", Redact("0x1234"))
	assert.Equal(t, "0xac09...ff80", Redact("0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"))
}
