// Package config resolves dbfriend's settings from flags, environment
// variables, and an optional config file, in that priority order.
//
// Environment variables are uppercase flag names with dashes replaced by
// underscores and prefixed with DBFRIEND_, e.g. DBFRIEND_PASSWORD. The
// password is deliberately not a flag so it never shows up in process
// listings or shell history.
package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds everything a load run needs.
type Config struct {
	// Connection settings.
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string

	// Load behavior.
	Schema      string
	Table       string
	KeyColumn   string
	TargetEPSG  int
	NoBackup    bool
	OnDuplicate string

	// Logging.
	LogLevel string
	LogFile  string
	Verbose  bool
}

// Load binds the flag set plus the DBFRIEND_* environment and an optional
// config file into a Config. Flags win over environment, environment wins
// over file.
func Load(flags *pflag.FlagSet, configFile string) (*Config, error) {
	v := viper.New()
	if err := v.BindPFlags(flags); err != nil {
		return nil, err
	}

	v.SetEnvPrefix("DBFRIEND")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	// Password is environment-only.
	if err := v.BindEnv("password"); err != nil {
		return nil, err
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}

	cfg := &Config{
		Host:        v.GetString("host"),
		Port:        v.GetInt("port"),
		User:        v.GetString("user"),
		Password:    v.GetString("password"),
		DBName:      v.GetString("dbname"),
		SSLMode:     v.GetString("sslmode"),
		Schema:      v.GetString("schema"),
		Table:       v.GetString("table"),
		KeyColumn:   v.GetString("key"),
		TargetEPSG:  v.GetInt("epsg"),
		NoBackup:    v.GetBool("no-backup"),
		OnDuplicate: v.GetString("on-duplicate"),
		LogLevel:    v.GetString("log-level"),
		LogFile:     v.GetString("log-file"),
		Verbose:     v.GetBool("verbose"),
	}
	return cfg, cfg.Validate()
}

// Validate checks the fields that have no sensible default.
func (c *Config) Validate() error {
	var missing []string
	if c.Host == "" {
		missing = append(missing, "host")
	}
	if c.User == "" {
		missing = append(missing, "user")
	}
	if c.DBName == "" {
		missing = append(missing, "dbname")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	switch c.OnDuplicate {
	case "", "first-wins", "abort":
	default:
		return fmt.Errorf("invalid --on-duplicate value %q (want first-wins or abort)", c.OnDuplicate)
	}
	return nil
}

// DSN renders the connection string for the pgx driver. The password is
// URL-escaped so special characters survive.
func (c *Config) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   "/" + c.DBName,
	}
	if c.Password != "" {
		u.User = url.UserPassword(c.User, c.Password)
	} else {
		u.User = url.User(c.User)
	}
	if c.SSLMode != "" {
		q := url.Values{}
		q.Set("sslmode", c.SSLMode)
		u.RawQuery = q.Encode()
	}
	return u.String()
}
