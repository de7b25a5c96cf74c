package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWithWriter_ConsoleAndFile(t *testing.T) {
	var console bytes.Buffer
	file := filepath.Join(t.TempDir(), "logs", "session.log")

	require.NoError(t, InitWithWriter(Config{Level: "debug", OutputFile: file, MaxSize: 1, NoColors: true}, &console))
	t.Cleanup(func() { Logger = nil })

	Debugf("mark=%s", "150.25")
	WithField("run_id", "abc").Info("账户已订阅")

	assert.Equal(t, file, CurrentLogFile())
	assert.Equal(t, logrus.DebugLevel, Logger.GetLevel())
	assert.Contains(t, console.String(), "mark=150.25")
	assert.Contains(t, console.String(), "run_id=abc")

	b, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(b), "账户已订阅")
}

func TestInitWithWriter_BadLevelFallsBackToInfo(t *testing.T) {
	var console bytes.Buffer
	require.NoError(t, InitWithWriter(Config{Level: "chatty", NoColors: true}, &console))
	t.Cleanup(func() { Logger = nil })

	Debugf("hidden")
	Infof("shown %d", 1)
	assert.NotContains(t, console.String(), "hidden")
	assert.Contains(t, console.String(), "shown 1")
	assert.Empty(t, CurrentLogFile())
}

func TestInitWithWriter_JSON(t *testing.T) {
	var console bytes.Buffer
	require.NoError(t, InitWithWriter(Config{Level: "info", Format: "JSON"}, &console))
	t.Cleanup(func() { Logger = nil })

	WithFields(logrus.Fields{"step": "open"}).Info("LONGED $5000 worth of SOL")

	var line map[string]any
	require.NoError(t, json.Unmarshal(console.Bytes(), &line))
	assert.Equal(t, "open", line["step"])
	assert.Equal(t, "LONGED $5000 worth of SOL", line["msg"])
}

func TestHelpersWithoutInit(t *testing.T) {
	Logger = nil
	assert.NotPanics(t, func() {
		Debugf("x")
		Infof("x")
		Warnf("x")
	})
	assert.NotNil(t, WithFields(logrus.Fields{"a": 1}))
}
