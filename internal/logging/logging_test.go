package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults", Config{}, false},
		{"debug console", Config{Level: "debug", Format: "console"}, false},
		{"upper case", Config{Level: "WARN", Format: "JSON"}, false},
		{"bad level", Config{Level: "loud"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg, "regclean")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			Sync(logger)
		})
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("REGOPS_LOG_LEVEL", "debug")
	t.Setenv("REGOPS_LOG_FORMAT", "json")

	cfg := FromEnv()
	assert.Equal(t, "debug", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
}
