// Package config loads the process-wide ServerConfig. It is not part of the
// reactor core (spec §1 treats the config front-end as an external
// collaborator) but every core component is constructed from the values it
// produces.
package config

import (
	"flag"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// ServerConfig holds every knob the reactor core and HTTP server need at
// startup. Field names match the TOML keys one-to-one.
type ServerConfig struct {
	ListenAddr     string        `toml:"listen_addr"`
	IOLoops        int           `toml:"io_loops"`
	ReusePort      bool          `toml:"reuse_port"`
	IdleTimeout    time.Duration `toml:"idle_timeout"`
	HighWaterBytes int           `toml:"high_water_bytes"`
	LogFile        string        `toml:"log_file"`
	Env            string        `toml:"env"`
}

// Default returns the configuration the teacher's config.New used as
// flag defaults, translated into ServerConfig's fields.
func Default() ServerConfig {
	return ServerConfig{
		ListenAddr:     ":8080",
		IOLoops:        4,
		ReusePort:      false,
		IdleTimeout:    60 * time.Second,
		HighWaterBytes: 64 << 10,
		LogFile:        "",
		Env:            "development",
	}
}

// Load builds a ServerConfig from, in increasing priority: the built-in
// defaults, an optional TOML file at path (skipped silently if path is
// empty or the file does not exist), and environment variable overrides
// (REACTOR_LISTEN_ADDR, REACTOR_IO_LOOPS, REACTOR_REUSE_PORT,
// REACTOR_IDLE_TIMEOUT, REACTOR_HIGH_WATER_BYTES, REACTOR_LOG_FILE,
// REACTOR_ENV), mirroring the teacher's "flag default, then env override"
// shape in config.New.
func Load(path string) (ServerConfig, error) {
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return ServerConfig{}, err
			}
		}
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *ServerConfig) {
	if v := os.Getenv("REACTOR_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("REACTOR_IO_LOOPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.IOLoops = n
		}
	}
	if v := os.Getenv("REACTOR_REUSE_PORT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.ReusePort = b
		}
	}
	if v := os.Getenv("REACTOR_IDLE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.IdleTimeout = d
		}
	}
	if v := os.Getenv("REACTOR_HIGH_WATER_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HighWaterBytes = n
		}
	}
	if v := os.Getenv("REACTOR_LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
	if v := os.Getenv("REACTOR_ENV"); v != "" {
		cfg.Env = v
	}
}

// LoadFromFlags parses command-line flags on top of Load, for cmd/reactord.
// -config selects the TOML file; remaining flags override individual
// fields, following config.New's flag.IntVar/StringVar pattern.
func LoadFromFlags(args []string) (ServerConfig, error) {
	fs := flag.NewFlagSet("reactord", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to a TOML config file")
	listenAddr := fs.String("listen", "", "override listen address (host:port)")
	ioLoops := fs.Int("io-loops", 0, "override number of IO loop threads (0 = use config)")
	if err := fs.Parse(args); err != nil {
		return ServerConfig{}, err
	}

	cfg, err := Load(*configPath)
	if err != nil {
		return ServerConfig{}, err
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}
	if *ioLoops > 0 {
		cfg.IOLoops = *ioLoops
	}
	return cfg, nil
}
