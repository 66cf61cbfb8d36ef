package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port            string `yaml:"port"`
		ReadTimeout     string `yaml:"readTimeout"`
		WriteTimeout    string `yaml:"writeTimeout"`
		ShutdownTimeout string `yaml:"shutdownTimeout"`
	} `yaml:"server"`
	Log struct {
		Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
		// File enables a rotated JSON log next to the console output.
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"maxSizeMB" validate:"gte=0"`
		MaxBackups int    `yaml:"maxBackups" validate:"gte=0"`
	} `yaml:"log"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db" validate:"gte=0"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url" validate:"omitempty,url"`
	} `yaml:"postgres"`
	Exam struct {
		TTL string `yaml:"ttl"`
		// Fixtures is a YAML file of exams served when Postgres is not configured,
		// and the input of the seed command.
		Fixtures string `yaml:"fixtures"`
	} `yaml:"exam"`
	Engine struct {
		MaxAnswerBytes int `yaml:"maxAnswerBytes" validate:"gte=0"`
	} `yaml:"engine"`
	Events struct {
		Capacity  int    `yaml:"capacity" validate:"gte=0"`
		Retention string `yaml:"retention"`
	} `yaml:"events"`
}

// Load reads YAML config from path, applies environment overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	applyEnv(&cfg)
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks field constraints and that every duration parses.
func Validate(cfg Config) error {
	if err := newValidator().Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	durations := map[string]string{
		"server.readTimeout":     cfg.Server.ReadTimeout,
		"server.writeTimeout":    cfg.Server.WriteTimeout,
		"server.shutdownTimeout": cfg.Server.ShutdownTimeout,
		"redis.ttl":              cfg.Redis.TTL,
		"exam.ttl":               cfg.Exam.TTL,
		"events.retention":       cfg.Events.Retention,
	}
	for field, raw := range durations {
		if raw == "" {
			continue
		}
		if _, err := time.ParseDuration(raw); err != nil {
			return fmt.Errorf("invalid config: %s: %w", field, err)
		}
	}
	return nil
}

func newValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

// applyEnv lets deployments override connection settings without editing the file.
func applyEnv(cfg *Config) {
	if v := os.Getenv("POSTGRES_URL"); v != "" {
		cfg.Postgres.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = db
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
