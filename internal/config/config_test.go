package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyhis/regops/internal/db"
)

func flags(t *testing.T, add func(*pflag.FlagSet), args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	add(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestCleanupDefaults(t *testing.T) {
	cfg, err := LoadCleanup(flags(t, AddCleanupFlags))
	require.NoError(t, err)

	assert.Equal(t, db.Config{
		Driver:   db.DriverMySQL,
		Host:     "localhost",
		Port:     3306,
		User:     "root",
		Password: "tinyhis123",
		Name:     "tinyhis",
	}, cfg.DB)
	assert.Equal(t, DefaultBaseURL, cfg.API.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.API.Timeout)
	assert.Equal(t, "admin", cfg.AdminUser)
	assert.Equal(t, "admin123", cfg.AdminPass)
	assert.False(t, cfg.DryRun)
	assert.False(t, cfg.Delete)
}

func TestFlagsOverrideEnv(t *testing.T) {
	t.Setenv("REGOPS_DB_HOST", "db.internal")
	t.Setenv("REGOPS_DB_PORT", "3307")
	t.Setenv("REGOPS_ADMIN_USER", "root-admin")

	cfg, err := LoadCleanup(flags(t, AddCleanupFlags, "--admin-user", "ops", "--dry-run"))
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.DB.Host)
	assert.Equal(t, 3307, cfg.DB.Port)
	assert.Equal(t, "ops", cfg.AdminUser)
	assert.True(t, cfg.DryRun)
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "regprobe.yaml")
	require.NoError(t, os.WriteFile(path, []byte("base-url: http://his.test/api\npatients: 12\nsettle: 3s\n"), 0o600))

	cfg, err := LoadProbe(flags(t, AddProbeFlags, "--config", path, "--dept", "4"))
	require.NoError(t, err)

	assert.Equal(t, "http://his.test/api", cfg.API.BaseURL)
	assert.Equal(t, 12, cfg.Patients)
	assert.Equal(t, 3*time.Second, cfg.Settle)
	assert.Equal(t, int64(4), cfg.DeptID)
}

func TestMissingConfigFile(t *testing.T) {
	_, err := LoadProbe(flags(t, AddProbeFlags, "--config", "/nonexistent/regprobe.yaml"))
	assert.Error(t, err)
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		load func() error
	}{
		{"bad driver", func() error {
			_, err := LoadCleanup(flags(t, AddCleanupFlags, "--db-driver", "oracle"))
			return err
		}},
		{"bad base url", func() error {
			_, err := LoadProbe(flags(t, AddProbeFlags, "--base-url", "ftp://x"))
			return err
		}},
		{"negative patients", func() error {
			_, err := LoadProbe(flags(t, AddProbeFlags, "--patients", "-1"))
			return err
		}},
		{"bad date", func() error {
			_, err := LoadProbe(flags(t, AddProbeFlags, "--date", "15/10/2026"))
			return err
		}},
		{"short phone prefix", func() error {
			_, err := LoadProbe(flags(t, AddProbeFlags, "--phone-prefix", "155"))
			return err
		}},
		{"short jwt secret", func() error {
			_, err := LoadStub(flags(t, AddStubFlags, "--jwt-secret", "short"))
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.load(), ErrInvalid)
		})
	}
}

func TestLargePatientOverrideLoads(t *testing.T) {
	cfg, err := LoadProbe(flags(t, AddProbeFlags, "--patients", "300"))
	require.NoError(t, err)
	assert.Equal(t, 300, cfg.Patients)
}

func TestPurgeSkipsAPIValidation(t *testing.T) {
	_, err := LoadCleanup(flags(t, AddCleanupFlags, "--delete", "--base-url", "not a url"))
	assert.NoError(t, err)
}

func TestStubLoad(t *testing.T) {
	secret := "0123456789abcdef0123456789abcdef"
	cfg, err := LoadStub(flags(t, AddStubFlags, "--jwt-secret", secret, "--seed"))
	require.NoError(t, err)
	assert.Equal(t, secret, cfg.JWTSecret)
	assert.True(t, cfg.Seed)
	assert.Equal(t, 5, cfg.SeedQuota)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
}

func TestProbeDay(t *testing.T) {
	now := time.Date(2026, 10, 15, 14, 30, 0, 0, time.UTC)
	assert.Equal(t, now, (&Probe{}).Day(now))

	d := (&Probe{Date: "2026-10-20"}).Day(now)
	assert.Equal(t, "2026-10-20", d.Format("2006-01-02"))
}
