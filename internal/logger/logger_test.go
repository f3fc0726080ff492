package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{
			name: "stdout only",
			opts: Options{Level: "info"},
		},
		{
			name: "unknown level defaults to info",
			opts: Options{Level: "chatty"},
		},
		{
			name: "with rotating file",
			opts: Options{Level: "debug", Directory: t.TempDir()},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := NewLogger(tt.opts)
			assert.NoError(t, err)
			assert.NotNil(t, log)
		})
	}
}

func TestNewLoggerCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	log, err := NewLogger(Options{Level: "info", Directory: dir})
	assert.NoError(t, err)
	assert.NotNil(t, log)

	_, err = os.Stat(dir)
	assert.NoError(t, err)
}

func TestLoggerMethods(t *testing.T) {
	log, err := NewLogger(Options{Level: "debug"})
	assert.NoError(t, err)

	// Exercise each level with key-value args
	log.Debug("debug message", "key", "value")
	log.Info("info message", "key", "value")
	log.Warn("warn message", "key", "value")
	log.Error("error message", "key", "value")
	log.Sync()
}
