package db

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Supported drivers.
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

var ErrUnknownDriver = errors.New("unknown database driver")

// Config selects and addresses the backend database. DSN, when set, is
// passed to the driver verbatim and the discrete fields are ignored.
type Config struct {
	Driver   string `mapstructure:"db-driver"`
	Host     string `mapstructure:"db-host"`
	Port     int    `mapstructure:"db-port"`
	User     string `mapstructure:"db-user"`
	Password string `mapstructure:"db-pass"`
	Name     string `mapstructure:"db-name"`
	DSN      string `mapstructure:"db-dsn"`
}

// sqlDriver is the database/sql registration name.
func (c Config) sqlDriver() (string, error) {
	switch c.Driver {
	case DriverMySQL:
		return "mysql", nil
	case DriverPostgres:
		return "pgx", nil
	case DriverSQLite:
		return "sqlite", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDriver, c.Driver)
	}
}

// dialect is the goqu dialect name.
func (c Config) dialect() string {
	switch c.Driver {
	case DriverPostgres:
		return "postgres"
	case DriverSQLite:
		return "sqlite3"
	default:
		return "mysql"
	}
}

// DataSource renders the driver-specific connection string.
func (c Config) DataSource() (string, error) {
	if c.DSN != "" {
		return c.DSN, nil
	}
	switch c.Driver {
	case DriverMySQL:
		mc := mysql.NewConfig()
		mc.User = c.User
		mc.Passwd = c.Password
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
		mc.DBName = c.Name
		mc.ParseTime = true
		mc.Timeout = 5 * time.Second
		return mc.FormatDSN(), nil
	case DriverPostgres:
		u := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(c.User, c.Password),
			Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
			Path:   "/" + c.Name,
		}
		return u.String(), nil
	case DriverSQLite:
		q := url.Values{}
		q.Add("_pragma", "foreign_keys(1)")
		q.Add("_pragma", "busy_timeout(5000)")
		q.Add("_pragma", "journal_mode(WAL)")
		return "file:" + c.Name + "?" + q.Encode(), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDriver, c.Driver)
	}
}

// Validate checks the fields needed by the selected driver.
func (c Config) Validate() error {
	if _, err := c.sqlDriver(); err != nil {
		return err
	}
	if c.DSN != "" {
		return nil
	}
	if c.Name == "" {
		return errors.New("db-name is required")
	}
	if c.Driver == DriverSQLite {
		return nil
	}
	if c.Host == "" {
		return errors.New("db-host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("db-port %d out of range", c.Port)
	}
	return nil
}

// String describes the target without credentials.
func (c Config) String() string {
	if c.DSN != "" {
		return c.Driver + " (dsn)"
	}
	if c.Driver == DriverSQLite {
		return "sqlite " + c.Name
	}
	return fmt.Sprintf("%s %s@%s:%d/%s", c.Driver, c.User, c.Host, c.Port, c.Name)
}
