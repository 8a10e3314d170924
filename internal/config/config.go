// Package config loads tool settings from flags, REGOPS_* environment
// variables and an optional config file, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/tinyhis/regops/internal/db"
)

const (
	EnvPrefix = "REGOPS"

	DefaultBaseURL   = "http://localhost/api"
	DefaultAdminUser = "admin"
	DefaultAdminPass = "admin123"

	flagConfig = "config"

	minSecretLen = 32
)

var ErrInvalid = errors.New("invalid configuration")

// API addresses the HIS backend over HTTP.
type API struct {
	BaseURL string        `mapstructure:"base-url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Cleanup configures regclean.
type Cleanup struct {
	DB        db.Config `mapstructure:",squash"`
	API       API       `mapstructure:",squash"`
	AdminUser string    `mapstructure:"admin-user"`
	AdminPass string    `mapstructure:"admin-pass"`
	DryRun    bool      `mapstructure:"dry-run"`
	Delete    bool      `mapstructure:"delete"`
}

// Probe configures regprobe. Zero ids mean "discover".
type Probe struct {
	API          API           `mapstructure:",squash"`
	DeptID       int64         `mapstructure:"dept"`
	ScheduleID   int64         `mapstructure:"schedule"`
	Patients     int           `mapstructure:"patients"`
	Date         string        `mapstructure:"date"`
	PhonePrefix  string        `mapstructure:"phone-prefix"`
	RandomPhones bool          `mapstructure:"random-phones"`
	Settle       time.Duration `mapstructure:"settle"`
	Strict       bool          `mapstructure:"strict"`
}

// Stub configures the hisstub stand-in backend.
type Stub struct {
	DBPath    string        `mapstructure:"db"`
	Addr      string        `mapstructure:"addr"`
	JWTSecret string        `mapstructure:"jwt-secret"`
	TokenTTL  time.Duration `mapstructure:"token-ttl"`
	Seed      bool          `mapstructure:"seed"`
	SeedQuota int           `mapstructure:"seed-quota"`
	AdminUser string        `mapstructure:"admin-user"`
	AdminPass string        `mapstructure:"admin-pass"`
}

func addConfigFlag(fs *pflag.FlagSet) {
	fs.String(flagConfig, "", "config file (yaml, toml or json)")
}

func addAPIFlags(fs *pflag.FlagSet) {
	fs.String("base-url", DefaultBaseURL, "backend API base URL")
	fs.Duration("timeout", 10*time.Second, "per-request timeout")
}

// AddDBFlags registers the database connection flags.
func AddDBFlags(fs *pflag.FlagSet) {
	fs.String("db-driver", db.DriverMySQL, "database driver (mysql, postgres, sqlite)")
	fs.String("db-host", "localhost", "database host")
	fs.Int("db-port", 3306, "database port")
	fs.String("db-user", "root", "database user")
	fs.String("db-pass", "tinyhis123", "database password")
	fs.String("db-name", "tinyhis", "database name (file path for sqlite)")
	fs.String("db-dsn", "", "driver DSN, overrides the discrete db flags")
}

func AddCleanupFlags(fs *pflag.FlagSet) {
	addConfigFlag(fs)
	AddDBFlags(fs)
	addAPIFlags(fs)
	fs.String("admin-user", DefaultAdminUser, "admin username")
	fs.String("admin-pass", DefaultAdminPass, "admin password")
	fs.Bool("dry-run", false, "report what would happen without changing anything")
	fs.Bool("delete", false, "hard delete all registration data from the database")
}

func AddProbeFlags(fs *pflag.FlagSet) {
	addConfigFlag(fs)
	addAPIFlags(fs)
	fs.Int64("dept", 0, "department id to select schedules from")
	fs.Int64("schedule", 0, "schedule id to test directly")
	fs.Int("patients", 0, "number of test patients to create (overrides default)")
	fs.String("date", "", "schedule date YYYY-MM-DD (default today)")
	fs.String("phone-prefix", "1550000", "7-digit phone prefix for synthetic patients")
	fs.Bool("random-phones", false, "use a random phone prefix so accounts are fresh")
	fs.Duration("settle", time.Second, "wait before re-reading the schedule after the burst")
	fs.Bool("strict", false, "exit non-zero when a quota or permission check fails")
}

func AddStubFlags(fs *pflag.FlagSet) {
	addConfigFlag(fs)
	fs.String("db", "hisstub.db", "sqlite database path")
	fs.String("addr", "127.0.0.1:8090", "listen address")
	fs.String("jwt-secret", "", "HS256 signing secret, at least 32 bytes")
	fs.Duration("token-ttl", 24*time.Hour, "issued token lifetime")
	fs.Bool("seed", false, "populate a department, AM/PM/ER schedules and an admin")
	fs.Int("seed-quota", 5, "max quota of seeded schedules")
	fs.String("admin-user", DefaultAdminUser, "seeded admin username")
	fs.String("admin-pass", DefaultAdminPass, "seeded admin password")
}

// NewViper binds fs to a viper instance reading REGOPS_* variables, where
// a flag such as --db-host maps to REGOPS_DB_HOST.
func NewViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}

	if path := v.GetString(flagConfig); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return v, nil
}

func load[T any](fs *pflag.FlagSet, validate func(*T) error) (*T, error) {
	v, err := NewViper(fs)
	if err != nil {
		return nil, err
	}
	cfg := new(T)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return cfg, nil
}

func LoadCleanup(fs *pflag.FlagSet) (*Cleanup, error) {
	return load(fs, (*Cleanup).Validate)
}

func LoadProbe(fs *pflag.FlagSet) (*Probe, error) {
	return load(fs, (*Probe).Validate)
}

func LoadStub(fs *pflag.FlagSet) (*Stub, error) {
	return load(fs, (*Stub).Validate)
}

func (a *API) Validate() error {
	u, err := url.Parse(a.BaseURL)
	if err != nil {
		return fmt.Errorf("base-url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("base-url %q must be http or https", a.BaseURL)
	}
	if a.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", a.Timeout)
	}
	return nil
}

func (c *Cleanup) Validate() error {
	if err := c.DB.Validate(); err != nil {
		return err
	}
	// A purge never talks to the API.
	if c.Delete {
		return nil
	}
	if err := c.API.Validate(); err != nil {
		return err
	}
	if c.AdminUser == "" {
		return errors.New("admin-user is required")
	}
	return nil
}

func (c *Probe) Validate() error {
	if err := c.API.Validate(); err != nil {
		return err
	}
	if c.DeptID < 0 || c.ScheduleID < 0 {
		return errors.New("dept and schedule must not be negative")
	}
	if c.Patients < 0 {
		return errors.New("patients must not be negative")
	}
	if c.Date != "" {
		if _, err := time.Parse("2006-01-02", c.Date); err != nil {
			return fmt.Errorf("date %q: want YYYY-MM-DD", c.Date)
		}
	}
	if !c.RandomPhones && !isDigits(c.PhonePrefix, 7) {
		return fmt.Errorf("phone-prefix %q must be 7 digits", c.PhonePrefix)
	}
	if c.Settle < 0 {
		return errors.New("settle must not be negative")
	}
	return nil
}

// Day returns the configured schedule date, or today.
func (c *Probe) Day(now time.Time) time.Time {
	if c.Date == "" {
		return now
	}
	d, err := time.ParseInLocation("2006-01-02", c.Date, now.Location())
	if err != nil {
		return now
	}
	return d
}

func (c *Stub) Validate() error {
	if c.DBPath == "" {
		return errors.New("db is required")
	}
	if c.Addr == "" {
		return errors.New("addr is required")
	}
	if len(c.JWTSecret) < minSecretLen {
		return fmt.Errorf("jwt-secret must be at least %d bytes", minSecretLen)
	}
	if c.TokenTTL <= 0 {
		return errors.New("token-ttl must be positive")
	}
	if c.Seed && (c.SeedQuota <= 0 || c.AdminUser == "" || c.AdminPass == "") {
		return errors.New("seed needs a positive seed-quota and admin credentials")
	}
	return nil
}

func isDigits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
