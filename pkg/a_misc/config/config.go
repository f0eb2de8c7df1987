package config

import (
	"flag"
	"net"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pingcap/log"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config is the xacto server configuration.
type Config struct {
	*flag.FlagSet `json:"-"`

	// Addr is the host:port the server listens on.
	Addr string `toml:"addr" json:"addr"`
	// Port overrides the port of Addr when non-zero.
	Port int `toml:"port" json:"port"`
	// StatusAddr serves /status and /metrics; empty disables it.
	StatusAddr string `toml:"status-addr" json:"status-addr"`

	Quiet bool `toml:"quiet" json:"quiet"`

	// ShutdownTimeout bounds how long shutdown waits for clients to go away.
	ShutdownTimeout Duration `toml:"shutdown-timeout" json:"shutdown-timeout"`
	MaxPayload      uint32   `toml:"max-payload" json:"max-payload"`

	Log log.Config `toml:"log" json:"log"`

	configFile string

	// For all warnings during parsing.
	WarningMsgs []string

	logger   *zap.Logger
	logProps *log.ZapProperties
}

const (
	defaultAddr            = "127.0.0.1:9999"
	defaultShutdownTimeout = 10 * time.Second
	defaultMaxPayload      = 16 << 20
	defaultLogLevel        = "info"
)

// NewConfig creates a new config.
func NewConfig() *Config {
	cfg := &Config{}
	cfg.FlagSet = flag.NewFlagSet("xacto", flag.ContinueOnError)
	fs := cfg.FlagSet

	fs.StringVar(&cfg.configFile, "config", "", "Config file")
	fs.StringVar(&cfg.Addr, "addr", "", "address to listen on (default '127.0.0.1:9999')")
	fs.IntVar(&cfg.Port, "p", 0, "port to listen on, overrides the port of -addr")
	fs.StringVar(&cfg.StatusAddr, "status-addr", "", "address serving /status and /metrics")
	fs.BoolVar(&cfg.Quiet, "q", false, "quiet mode, only log warnings and errors")

	fs.StringVar(&cfg.Log.Level, "L", "", "log level: debug, info, warn, error, fatal (default 'info')")
	fs.StringVar(&cfg.Log.File.Filename, "log-file", "", "log file path")

	return cfg
}

// NewTestConfig returns a config listening on a random local port.
func NewTestConfig() *Config {
	cfg := NewConfig()
	cfg.Addr = "127.0.0.1:0"
	cfg.ShutdownTimeout = NewDuration(5 * time.Second)
	cfg.Log.Level = "warn"
	_ = cfg.Adjust(nil)
	return cfg
}

func adjustString(v *string, defValue string) {
	if len(*v) == 0 {
		*v = defValue
	}
}

func adjustUint32(v *uint32, defValue uint32) {
	if *v == 0 {
		*v = defValue
	}
}

func adjustDuration(v *Duration, defValue time.Duration) {
	if v.Duration == 0 {
		v.Duration = defValue
	}
}

// Parse parses flag definitions from the argument list.
func (c *Config) Parse(arguments []string) error {
	// Parse first to get config file.
	err := c.FlagSet.Parse(arguments)
	if err != nil {
		return errors.WithStack(err)
	}

	var meta *toml.MetaData
	if c.configFile != "" {
		meta, err = c.configFromFile(c.configFile)
		if err != nil {
			return err
		}
	}

	// Parse again to replace with command line options.
	err = c.FlagSet.Parse(arguments)
	if err != nil {
		return errors.WithStack(err)
	}

	if len(c.FlagSet.Args()) != 0 {
		return errors.Errorf("'%s' is an invalid flag", c.FlagSet.Arg(0))
	}

	return c.Adjust(meta)
}

// Adjust fills in defaults and applies the flags that override other fields.
func (c *Config) Adjust(meta *toml.MetaData) error {
	if meta != nil {
		for _, key := range meta.Undecoded() {
			c.WarningMsgs = append(c.WarningMsgs, "config contains undefined item: "+key.String())
		}
	}

	adjustString(&c.Addr, defaultAddr)
	if c.Port != 0 {
		host, _, err := net.SplitHostPort(c.Addr)
		if err != nil {
			return errors.WithStack(err)
		}
		c.Addr = net.JoinHostPort(host, strconv.Itoa(c.Port))
	}

	if c.Quiet {
		c.Log.Level = "warn"
	}
	adjustString(&c.Log.Level, defaultLogLevel)
	adjustDuration(&c.ShutdownTimeout, defaultShutdownTimeout)
	adjustUint32(&c.MaxPayload, defaultMaxPayload)

	return c.Validate()
}

// Validate is used to validate if some configurations are right.
func (c *Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.Addr); err != nil {
		return errors.Wrapf(err, "invalid addr %q", c.Addr)
	}
	if c.Port < 0 || c.Port > 65535 {
		return errors.Errorf("invalid port %d", c.Port)
	}
	if c.StatusAddr != "" {
		if _, _, err := net.SplitHostPort(c.StatusAddr); err != nil {
			return errors.Wrapf(err, "invalid status-addr %q", c.StatusAddr)
		}
	}
	if c.ShutdownTimeout.Duration < 0 {
		return errors.Errorf("invalid shutdown-timeout %s", c.ShutdownTimeout)
	}
	return nil
}

// configFromFile loads config from file.
func (c *Config) configFromFile(path string) (*toml.MetaData, error) {
	meta, err := toml.DecodeFile(path, c)
	return &meta, errors.WithStack(err)
}

// SetupLogger setup the logger.
func (c *Config) SetupLogger() error {
	lg, p, err := log.InitLogger(&c.Log, zap.AddStacktrace(zapcore.FatalLevel))
	if err != nil {
		return err
	}
	c.logger = lg
	c.logProps = p
	return nil
}

// GetZapLogger gets the created zap logger.
func (c *Config) GetZapLogger() *zap.Logger {
	return c.logger
}

// GetZapLogProperties gets properties of the zap logger.
func (c *Config) GetZapLogProperties() *log.ZapProperties {
	return c.logProps
}
