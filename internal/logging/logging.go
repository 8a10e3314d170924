// Package logging provides structured logging configuration.
package logging

import (
	"os"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds logging configuration options.
type Config struct {
	Level  string // debug|info|warn|error
	Format string // json|console
}

// New creates a new configured zap logger tagged with the tool name and a
// fresh run id, so output from concurrent runs against one backend can be
// told apart.
func New(cfg Config, tool string) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.Set(strings.ToLower(cfg.Level)); err != nil {
			return nil, err
		}
	}

	format := strings.ToLower(cfg.Format)
	if format == "" {
		format = "console"
	}

	var zcfg zap.Config
	if format == "console" {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.DisableStacktrace = true
	} else {
		zcfg = zap.NewProductionConfig()
	}

	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.EncoderConfig.TimeKey = "ts"
	zcfg.EncoderConfig.LevelKey = "level"
	zcfg.EncoderConfig.MessageKey = "msg"
	zcfg.EncoderConfig.CallerKey = "caller"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zcfg.Build(zap.AddCaller())
	if err != nil {
		return nil, err
	}

	return logger.With(zap.String("tool", tool), RunID(uuid.NewString())), nil
}

// Sync flushes any buffered log entries.
func Sync(logger *zap.Logger) {
	_ = logger.Sync()
}

// FromEnv creates a Config from environment variables.
func FromEnv() Config {
	return Config{
		Level:  getenv("REGOPS_LOG_LEVEL", "info"),
		Format: getenv("REGOPS_LOG_FORMAT", "console"),
	}
}

func getenv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// RunID returns a zap field for the run correlation id.
func RunID(id string) zap.Field { return zap.String("run_id", id) }

// Addr returns a zap field for an address.
func Addr(addr string) zap.Field { return zap.String("addr", addr) }

// BaseURL returns a zap field for the backend base URL.
func BaseURL(u string) zap.Field { return zap.String("base_url", u) }

// Method returns a zap field for an HTTP method.
func Method(method string) zap.Field { return zap.String("method", method) }

// Path returns a zap field for a URL path.
func Path(path string) zap.Field { return zap.String("path", path) }

// Status returns a zap field for an HTTP status code.
func Status(code int) zap.Field { return zap.Int("status", code) }

// RegID returns a zap field for a registration id.
func RegID(id int64) zap.Field { return zap.Int64("reg_id", id) }

// RegStatus returns a zap field for a registration status.
func RegStatus(status int) zap.Field { return zap.Int("reg_status", status) }

// ScheduleID returns a zap field for a schedule id.
func ScheduleID(id int64) zap.Field { return zap.Int64("schedule_id", id) }

// DeptID returns a zap field for a department id.
func DeptID(id int64) zap.Field { return zap.Int64("dept_id", id) }

// PatientID returns a zap field for a patient id.
func PatientID(id int64) zap.Field { return zap.Int64("patient_id", id) }

// Phone returns a zap field for a phone number.
func Phone(phone string) zap.Field { return zap.String("phone", phone) }

// Table returns a zap field for a database table name.
func Table(name string) zap.Field { return zap.String("table", name) }

// Driver returns a zap field for a database driver name.
func Driver(name string) zap.Field { return zap.String("driver", name) }
