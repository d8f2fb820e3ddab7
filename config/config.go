// Package config loads csvplay settings from an optional .env file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// DefaultPrefix is the environment variable prefix used by the CLI.
const DefaultPrefix = "CSVPLAY_"

// MemoryPath selects the in-memory state medium.
const MemoryPath = ":memory:"

type Config struct {
	Log    LogConfig
	State  StateConfig
	Script ScriptConfig
	Server ServerConfig
	Query  QueryConfig
}

type LogConfig struct {
	Level  string
	Format string // "json" or "console"
	Output string // "stderr", "stdout" or a file path
}

type StateConfig struct {
	Path string // SQLite file, or MemoryPath
}

type ScriptConfig struct {
	Dialect string        // "js" or "cel"
	Timeout time.Duration // per call; 0 disables
}

type ServerConfig struct {
	Addr string
}

type QueryConfig struct {
	RowCap int
}

// defaults lists every key Load understands.
var defaults = map[string]interface{}{
	"log.level":      "info",
	"log.format":     "console",
	"log.output":     "stderr",
	"state.path":     "csvplay.db",
	"script.dialect": "js",
	"script.timeout": "2s",
	"server.addr":    ":8080",
	"query.row_cap":  1000,
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	cfg, _ := decode(newViper())
	return cfg
}

// Load reads .env in the working directory when present, then environment
// variables named prefix + the upper-cased key with dots as underscores, e.g.
// CSVPLAY_SCRIPT_TIMEOUT for script.timeout. The environment wins.
func Load(prefix string) (Config, error) {
	return LoadFile(prefix, ".env")
}

// LoadFile is Load with an explicit dotenv path.
func LoadFile(prefix, envFile string) (Config, error) {
	v := newViper()

	dotenv := viper.New()
	dotenv.SetConfigFile(envFile)
	dotenv.SetConfigType("env")
	if err := dotenv.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		// The file is optional.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("failed to read %s: %w", envFile, err)
		}
	}

	for key := range defaults {
		name := envName(prefix, key)
		if val, ok := os.LookupEnv(name); ok {
			v.Set(key, val)
		} else if dotenv.IsSet(strings.ToLower(name)) {
			v.Set(key, dotenv.GetString(strings.ToLower(name)))
		}
	}

	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	return v
}

func envName(prefix, key string) string {
	return strings.ToUpper(prefix) + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func decode(v *viper.Viper) (Config, error) {
	timeout, err := cast.ToDurationE(v.Get("script.timeout"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid script.timeout: %w", err)
	}
	if timeout < 0 {
		return Config{}, fmt.Errorf("invalid script.timeout: %s is negative", timeout)
	}

	rowCap, err := cast.ToIntE(v.Get("query.row_cap"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid query.row_cap: %w", err)
	}
	if rowCap < 0 {
		return Config{}, fmt.Errorf("invalid query.row_cap: %d is negative", rowCap)
	}

	return Config{
		Log: LogConfig{
			Level:  cast.ToString(v.Get("log.level")),
			Format: cast.ToString(v.Get("log.format")),
			Output: cast.ToString(v.Get("log.output")),
		},
		State: StateConfig{
			Path: cast.ToString(v.Get("state.path")),
		},
		Script: ScriptConfig{
			Dialect: strings.ToLower(cast.ToString(v.Get("script.dialect"))),
			Timeout: timeout,
		},
		Server: ServerConfig{
			Addr: cast.ToString(v.Get("server.addr")),
		},
		Query: QueryConfig{
			RowCap: rowCap,
		},
	}, nil
}
