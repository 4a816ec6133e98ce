// Package config holds the knobs a supervised process can be started with and
// loads them from YAML or TOML files and PROCSTREAM_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/codecrafters-io/procstream/executable"
	"github.com/codecrafters-io/procstream/executable/blocking_pool"
	"github.com/codecrafters-io/procstream/logger"
	"gopkg.in/yaml.v2"
)

const (
	debugEnvVar           = "PROCSTREAM_DEBUG"
	bufferSizeEnvVar      = "PROCSTREAM_BUFFER_SIZE"
	dispatcherEnvVar      = "PROCSTREAM_DISPATCHER"
	killGracePeriodEnvVar = "PROCSTREAM_KILL_GRACE_PERIOD"
)

type Config struct {
	Debug      bool   `yaml:"debug" toml:"debug"`
	BufferSize int    `yaml:"buffer_size" toml:"buffer_size"`
	Dispatcher string `yaml:"dispatcher" toml:"dispatcher"`

	// KillGracePeriod is a duration string such as "2s" or "500ms". "0s"
	// means SIGKILL straight away.
	KillGracePeriod string `yaml:"kill_grace_period" toml:"kill_grace_period"`

	Detached   bool              `yaml:"detached" toml:"detached"`
	UsePTY     bool              `yaml:"use_pty" toml:"use_pty"`
	WorkingDir string            `yaml:"working_dir" toml:"working_dir"`
	Env        map[string]string `yaml:"env" toml:"env"`

	// Dispatchers declares extra blocking pools by name.
	Dispatchers map[string]Dispatcher `yaml:"dispatchers" toml:"dispatchers"`
}

type Dispatcher struct {
	// MaxWorkers caps concurrent blocking calls, 0 means unbounded.
	MaxWorkers int `yaml:"max_workers" toml:"max_workers"`
}

func Default() *Config {
	return &Config{
		BufferSize:      executable.DefaultBufferSize,
		Dispatcher:      blocking_pool.DefaultPoolName,
		KillGracePeriod: executable.DefaultKillGracePeriod.String(),
	}
}

// Load reads the config file at path on top of the defaults. The format is
// picked by extension. A missing file, or an empty path, yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	switch ext := filepath.Ext(path); ext {
	case ".yml", ".yaml":
		if err := yaml.UnmarshalStrict(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q (expected .yml, .yaml or .toml)", ext)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overrides fields from PROCSTREAM_* variables found by lookup
// (usually os.LookupEnv).
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if value, ok := lookup(debugEnvVar); ok {
		debug, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s: %w", debugEnvVar, err)
		}
		c.Debug = debug
	}

	if value, ok := lookup(bufferSizeEnvVar); ok {
		bufferSize, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%s: %w", bufferSizeEnvVar, err)
		}
		c.BufferSize = bufferSize
	}

	if value, ok := lookup(dispatcherEnvVar); ok {
		c.Dispatcher = value
	}

	if value, ok := lookup(killGracePeriodEnvVar); ok {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("%s: %w", killGracePeriodEnvVar, err)
		}
		c.KillGracePeriod = value
	}

	return c.Validate()
}

func (c *Config) Validate() error {
	if c.BufferSize <= 0 {
		return fmt.Errorf("buffer_size must be positive, got %d", c.BufferSize)
	}

	if _, err := c.killGracePeriod(); err != nil {
		return err
	}

	for name, dispatcher := range c.Dispatchers {
		if dispatcher.MaxWorkers < 0 {
			return fmt.Errorf("dispatcher %q: max_workers cannot be negative", name)
		}
	}

	pools, err := c.Pools()
	if err != nil {
		return err
	}

	if _, err := pools.Lookup(c.Dispatcher); err != nil {
		return fmt.Errorf("dispatcher: %w", err)
	}

	return nil
}

// Pools builds a registry holding the default pool and every declared
// dispatcher.
func (c *Config) Pools() (*blocking_pool.Registry, error) {
	limits := make(map[string]int, len(c.Dispatchers))
	for name, dispatcher := range c.Dispatchers {
		limits[name] = dispatcher.MaxWorkers
	}

	return blocking_pool.NewRegistry(limits)
}

// ExecutableOptions turns the config into options for executable.Spawn.
func (c *Config) ExecutableOptions(args []string, consumer chan<- executable.Message, log *logger.Logger) (executable.Options, error) {
	killGracePeriod, err := c.killGracePeriod()
	if err != nil {
		return executable.Options{}, err
	}

	pools, err := c.Pools()
	if err != nil {
		return executable.Options{}, err
	}

	return executable.Options{
		Args:            args,
		Env:             c.Env,
		Consumer:        consumer,
		Detached:        c.Detached,
		Dispatcher:      c.Dispatcher,
		Pools:           pools,
		BufferSize:      c.BufferSize,
		UsePTY:          c.UsePTY,
		WorkingDir:      c.WorkingDir,
		KillGracePeriod: killGracePeriod,
		Logger:          log,
	}, nil
}

// killGracePeriod maps the configured duration onto executable.Options, where
// zero means "use the default" and negative means "kill immediately".
func (c *Config) killGracePeriod() (time.Duration, error) {
	if c.KillGracePeriod == "" {
		return executable.DefaultKillGracePeriod, nil
	}

	duration, err := time.ParseDuration(c.KillGracePeriod)
	if err != nil {
		return 0, fmt.Errorf("kill_grace_period: %w", err)
	}

	if duration < 0 {
		return 0, fmt.Errorf("kill_grace_period cannot be negative, got %s", c.KillGracePeriod)
	}

	if duration == 0 {
		return -1, nil
	}

	return duration, nil
}
