// Package config provides configuration management for the gcsim tools.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/engine-gc/internal/gc"
	apperrors "github.com/engine-gc/pkg/errors"
)

// Config holds all configuration for the application.
type Config struct {
	GC       GCConfig       `mapstructure:"gc"`
	Sim      SimConfig      `mapstructure:"sim"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Log      LogConfig      `mapstructure:"log"`
}

// GCConfig holds collector tunables.
type GCConfig struct {
	Pause        int    `mapstructure:"pause"`
	StepMul      int    `mapstructure:"step_mul"`
	StepSize     int    `mapstructure:"step_size"`
	StepBytes    uint64 `mapstructure:"step_bytes"`
	SweepMax     int    `mapstructure:"sweep_max"`
	FinalizeMax  int    `mapstructure:"finalize_max"`
	FinalizeCost int    `mapstructure:"finalize_cost"`
	MinEstimate  uint64 `mapstructure:"min_estimate"`
	MaxObjects   int    `mapstructure:"max_objects"`
	HistorySize  int    `mapstructure:"history_size"`
	Debug        bool   `mapstructure:"debug"`
}

// SimConfig holds simulation workload settings.
type SimConfig struct {
	Seed          int64  `mapstructure:"seed"`
	Ticks         int    `mapstructure:"ticks"`
	Actors        int    `mapstructure:"actors"`
	SpawnPerTick  int    `mapstructure:"spawn_per_tick"`
	KillPercent   int    `mapstructure:"kill_percent"`
	RelinkPerTick int    `mapstructure:"relink_per_tick"`
	Widgets       int    `mapstructure:"widgets"`
	VerifyEvery   int    `mapstructure:"verify_every"`
	FullGCEvery   int    `mapstructure:"fullgc_every"`
	Workers       int    `mapstructure:"workers"`
	OutputDir     string `mapstructure:"output_dir"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Type     string `mapstructure:"type"` // sqlite, postgres or mysql
	Path     string `mapstructure:"path"` // sqlite file
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	MaxConns int    `mapstructure:"max_conns"`
}

// StorageConfig holds report storage configuration.
type StorageConfig struct {
	Type      string `mapstructure:"type"` // cos or local
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	SecretID  string `mapstructure:"secret_id"`
	SecretKey string `mapstructure:"secret_key"`
	Domain    string `mapstructure:"domain"`
	Scheme    string `mapstructure:"scheme"`
	LocalPath string `mapstructure:"local_path"`
	Prefix    string `mapstructure:"prefix"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Color      bool   `mapstructure:"color"`
}

// Load reads configuration from the specified file path. A missing file
// leaves the defaults in place. GCSIM_* environment variables override file
// values, e.g. GCSIM_GC_PAUSE.
func Load(configPath string) (*Config, error) {
	v := newViper()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("gcsim")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, apperrors.Wrap(apperrors.CodeConfigError, "failed to read config file", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConfigError, "failed to unmarshal config", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromReader loads configuration from raw content (useful for testing).
func LoadFromReader(configType string, content []byte) (*Config, error) {
	v := newViper()
	v.SetConfigType(configType)
	if err := v.ReadConfig(bytes.NewReader(content)); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConfigError, "failed to read config", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConfigError, "failed to unmarshal config", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration with every default applied.
func Default() *Config {
	cfg, err := LoadFromReader("yaml", nil)
	if err != nil {
		panic(err)
	}
	return cfg
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("gcsim")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func setDefaults(v *viper.Viper) {
	def := gc.DefaultConfig()
	v.SetDefault("gc.pause", def.Pause)
	v.SetDefault("gc.step_mul", def.StepMul)
	v.SetDefault("gc.step_size", def.StepSize)
	v.SetDefault("gc.step_bytes", def.StepBytes)
	v.SetDefault("gc.sweep_max", def.SweepMax)
	v.SetDefault("gc.finalize_max", def.FinalizeMax)
	v.SetDefault("gc.finalize_cost", def.FinalizeCost)
	v.SetDefault("gc.min_estimate", def.MinEstimate)
	v.SetDefault("gc.max_objects", 0)
	v.SetDefault("gc.history_size", def.HistorySize)
	v.SetDefault("gc.debug", false)

	v.SetDefault("sim.seed", 1)
	v.SetDefault("sim.ticks", 2000)
	v.SetDefault("sim.actors", 200)
	v.SetDefault("sim.spawn_per_tick", 8)
	v.SetDefault("sim.kill_percent", 3)
	v.SetDefault("sim.relink_per_tick", 16)
	v.SetDefault("sim.widgets", 12)
	v.SetDefault("sim.verify_every", 0)
	v.SetDefault("sim.fullgc_every", 500)
	v.SetDefault("sim.workers", 4)
	v.SetDefault("sim.output_dir", "./out")

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.path", "./gcsim.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.max_conns", 10)

	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local_path", "./reports")
	v.SetDefault("storage.scheme", "https")
	v.SetDefault("storage.domain", "myqcloud.com")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.color", true)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.GC.Pause <= 0 {
		return apperrors.Newf(apperrors.CodeConfigError, "gc.pause must be positive, got %d", c.GC.Pause)
	}
	if c.GC.StepMul < 0 {
		return apperrors.Newf(apperrors.CodeConfigError, "gc.step_mul must not be negative, got %d", c.GC.StepMul)
	}
	if c.GC.StepSize <= 0 || c.GC.SweepMax <= 0 || c.GC.FinalizeMax <= 0 || c.GC.FinalizeCost <= 0 {
		return apperrors.New(apperrors.CodeConfigError, "gc step, sweep and finalize sizes must be positive")
	}
	if c.Sim.Ticks < 0 || c.Sim.Actors < 0 {
		return apperrors.New(apperrors.CodeConfigError, "sim.ticks and sim.actors must not be negative")
	}
	if c.Sim.KillPercent < 0 || c.Sim.KillPercent > 100 {
		return apperrors.Newf(apperrors.CodeConfigError, "sim.kill_percent must be within 0..100, got %d", c.Sim.KillPercent)
	}
	if c.Database.Enabled {
		switch c.Database.Type {
		case "sqlite":
			if c.Database.Path == "" {
				return apperrors.New(apperrors.CodeConfigError, "database.path is required for sqlite")
			}
		case "postgres", "mysql":
			if c.Database.Host == "" {
				return apperrors.New(apperrors.CodeConfigError, "database host is required")
			}
		default:
			return apperrors.Newf(apperrors.CodeConfigError, "unsupported database type: %s", c.Database.Type)
		}
	}
	return nil
}

// ToCollectorConfig maps the gc section onto collector tunables. Logger,
// clock and observer are left for the caller.
func (g GCConfig) ToCollectorConfig() gc.Config {
	return gc.Config{
		Pause:        g.Pause,
		StepMul:      g.StepMul,
		StepSize:     g.StepSize,
		StepBytes:    g.StepBytes,
		SweepMax:     g.SweepMax,
		FinalizeMax:  g.FinalizeMax,
		FinalizeCost: g.FinalizeCost,
		MinEstimate:  g.MinEstimate,
		MaxObjects:   g.MaxObjects,
		HistorySize:  g.HistorySize,
		Debug:        g.Debug,
	}
}

// String renders the gc section for log lines.
func (g GCConfig) String() string {
	return fmt.Sprintf("pause=%d step_mul=%d step_size=%d step_bytes=%d sweep_max=%d finalize_max=%d",
		g.Pause, g.StepMul, g.StepSize, g.StepBytes, g.SweepMax, g.FinalizeMax)
}
