// Package config reads the TOML configuration file shared by rdbserver and
// rdbutil.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/bitmark-inc/logger"
	"github.com/pkg/errors"
)

// basic defaults (files are relative to DataDirectory)
const (
	defaultDataDirectory = "."
	defaultStore         = "assets.rdb"
	defaultListen        = ":14000"
	defaultMaxRequests   = 10

	defaultJournalDriver = "ql"
	defaultJournalDSN    = "journal.ql"

	defaultLogDirectory = "log"
	defaultLogFile      = "assetdb.log"
	defaultLogCount     = 10          // number of log files retained
	defaultLogSize      = 1024 * 1024 // rotate when the log exceeds this size
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("config: invalid configuration")

// Duration is a time.Duration written as a string such as "1m30s".
type Duration struct {
	time.Duration
}

// UnmarshalText parses a duration for the TOML decoder.
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText is the inverse of UnmarshalText.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig configures the HTTP service.
type ServerConfig struct {
	Listen string `toml:"listen"`
	// the most requests served at once; the rest wait
	MaxRequests int `toml:"max_requests"`
	// how long an unreferenced asset stays loaded
	UnloadDelay Duration `toml:"unload_delay"`
	// how often the asset library is swept
	SweepInterval Duration `toml:"sweep_interval"`
	// how often the store file is checked for changes
	ReloadInterval Duration `toml:"reload_interval"`
}

// JournalConfig selects the build journal database.
type JournalConfig struct {
	Driver string `toml:"driver"` // memory, ql or mysql
	DSN    string `toml:"dsn"`
}

// Configuration is the whole configuration file.
type Configuration struct {
	DataDirectory string `toml:"data_directory"`
	Store         string `toml:"store"`
	SentryDSN     string `toml:"sentry_dsn"`

	Server  ServerConfig         `toml:"server"`
	Journal JournalConfig        `toml:"journal"`
	Logging logger.Configuration `toml:"logging"`
}

// Default returns the configuration used for anything a file leaves out.
func Default() *Configuration {
	return &Configuration{
		DataDirectory: defaultDataDirectory,
		Store:         defaultStore,
		Server: ServerConfig{
			Listen:         defaultListen,
			MaxRequests:    defaultMaxRequests,
			UnloadDelay:    Duration{2 * time.Second},
			SweepInterval:  Duration{time.Second},
			ReloadInterval: Duration{30 * time.Second},
		},
		Journal: JournalConfig{
			Driver: defaultJournalDriver,
			DSN:    defaultJournalDSN,
		},
		Logging: logger.Configuration{
			Directory: defaultLogDirectory,
			File:      defaultLogFile,
			Size:      defaultLogSize,
			Count:     defaultLogCount,
			Levels: map[string]string{
				logger.DefaultTag: "info",
			},
		},
	}
}

// Load reads the configuration file at path over the defaults and checks
// it. A data directory of "." means the directory holding the file. Relative
// paths are made absolute against the data directory, and the log directory
// is created if needed.
func Load(path string) (*Configuration, error) {
	path, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	c := Default()
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		var keys []string
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return nil, errors.Wrapf(ErrInvalid, "unknown keys %s", strings.Join(keys, ", "))
	}
	dir, _ := filepath.Split(path)
	if err := c.resolve(dir); err != nil {
		return nil, err
	}
	return c, nil
}

// resolve validates c and makes its paths absolute, relative to base when
// the data directory is ".".
func (c *Configuration) resolve(base string) error {
	switch c.DataDirectory {
	case "", "~":
		return errors.Wrapf(ErrInvalid, "data directory %q", c.DataDirectory)
	case ".":
		c.DataDirectory = filepath.Clean(base)
	default:
		c.DataDirectory = filepath.Clean(c.DataDirectory)
	}
	if fi, err := os.Stat(c.DataDirectory); err != nil {
		return err
	} else if !fi.IsDir() {
		return errors.Wrapf(ErrInvalid, "%q is not a directory", c.DataDirectory)
	}

	switch c.Journal.Driver {
	case "memory":
	case "ql":
		c.Journal.DSN = EnsureAbsolute(c.DataDirectory, c.Journal.DSN)
	case "mysql":
		if c.Journal.DSN == "" {
			return errors.Wrap(ErrInvalid, "mysql journal needs a dsn")
		}
	default:
		return errors.Wrapf(ErrInvalid, "journal driver %q", c.Journal.Driver)
	}
	if c.Server.MaxRequests < 1 {
		return errors.Wrapf(ErrInvalid, "max_requests %d", c.Server.MaxRequests)
	}
	for name, d := range map[string]Duration{
		"unload_delay":    c.Server.UnloadDelay,
		"sweep_interval":  c.Server.SweepInterval,
		"reload_interval": c.Server.ReloadInterval,
	} {
		if d.Duration < 0 {
			return errors.Wrapf(ErrInvalid, "%s %s", name, d)
		}
	}
	if c.Server.SweepInterval.Duration == 0 {
		return errors.Wrap(ErrInvalid, "sweep_interval must be positive")
	}
	if filepath.Dir(c.Logging.File) != "." {
		return errors.Wrapf(ErrInvalid, "log file %q is not a plain name", c.Logging.File)
	}

	c.Store = EnsureAbsolute(c.DataDirectory, c.Store)
	c.Logging.Directory = EnsureAbsolute(c.DataDirectory, c.Logging.Directory)
	return os.MkdirAll(c.Logging.Directory, 0700)
}

// EnsureAbsolute returns path unchanged if it is absolute and otherwise
// joined to dir.
func EnsureAbsolute(dir, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(dir, path)
}
