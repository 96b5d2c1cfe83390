// Package config loads the service configuration from YAML with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel string `yaml:"log_level"`

	Server struct {
		HTTPAddress string `yaml:"http_address"`
		GRPCAddress string `yaml:"grpc_address"`
		// MaxUploadBytes bounds multipart uploads.
		MaxUploadBytes int64 `yaml:"max_upload_bytes"`
	} `yaml:"server"`

	Models struct {
		// Paths is the model ladder, tried in order.
		Paths       []string      `yaml:"paths"`
		Device      string        `yaml:"device"`
		Language    string        `yaml:"language"`
		Threads     uint          `yaml:"threads"`
		BeamSize    int           `yaml:"beam_size"`
		WindowSize  time.Duration `yaml:"window_size"`
		SplitOnWord bool          `yaml:"split_on_word"`
	} `yaml:"models"`

	Noise struct {
		Enabled         bool    `yaml:"enabled"`
		BandLowHz       float64 `yaml:"band_low_hz"`
		BandHighHz      float64 `yaml:"band_high_hz"`
		BandCoefficient float64 `yaml:"band_coefficient"`
	} `yaml:"noise"`

	Diarization struct {
		Enabled bool   `yaml:"enabled"`
		HFToken string `yaml:"hf_token"`
		Python  string `yaml:"python"`
		Model   string `yaml:"model"`
	} `yaml:"diarization"`

	Pipeline struct {
		MaxConcurrency  int64   `yaml:"max_concurrency"`
		HealthThreshold float64 `yaml:"health_threshold"`
		WaitForSlot     bool    `yaml:"wait_for_slot"`
	} `yaml:"pipeline"`

	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`

	Kafka struct {
		Enabled   bool     `yaml:"enabled"`
		Brokers   []string `yaml:"brokers"`
		Topic     string   `yaml:"topic"`
		Principal string   `yaml:"principal"`
	} `yaml:"kafka"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	var c Config
	c.LogLevel = "info"

	c.Server.HTTPAddress = ":8080"
	c.Server.GRPCAddress = ":50051"
	c.Server.MaxUploadBytes = 512 << 20

	c.Models.Paths = []string{
		"models/ggml-large-v3.bin",
		"models/ggml-medium.bin",
		"models/ggml-base.bin",
		"models/ggml-tiny.bin",
	}
	c.Models.Device = "cpu"
	c.Models.Language = "auto"
	c.Models.BeamSize = 5
	c.Models.WindowSize = 30 * time.Second
	c.Models.SplitOnWord = true

	c.Noise.Enabled = true
	c.Noise.BandLowHz = 50
	c.Noise.BandHighHz = 150
	c.Noise.BandCoefficient = 2.0

	c.Diarization.Enabled = true
	c.Diarization.Python = "python3"
	c.Diarization.Model = "pyannote/speaker-diarization-3.1"

	c.Pipeline.MaxConcurrency = 2
	c.Pipeline.HealthThreshold = 0.8

	c.Storage.Path = "transcripts.db"

	c.Kafka.Topic = "court.transcripts"
	c.Kafka.Principal = "court-transcriber"

	return c
}

// Load reads path over the defaults and then applies environment overrides.
// A missing file is not an error.
func Load(path string) (Config, error) {
	c := Default()

	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return c, err
	default:
		if err := yaml.Unmarshal(b, &c); err != nil {
			return c, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := c.applyEnv(); err != nil {
		return c, err
	}
	return c, nil
}

func (c *Config) applyEnv() error {
	c.LogLevel = envOrDefault("COURT_LOG_LEVEL", c.LogLevel)
	c.Server.HTTPAddress = envOrDefault("COURT_HTTP_ADDRESS", c.Server.HTTPAddress)
	c.Server.GRPCAddress = envOrDefault("COURT_GRPC_ADDRESS", c.Server.GRPCAddress)
	c.Models.Device = envOrDefault("COURT_DEVICE", c.Models.Device)
	c.Models.Language = envOrDefault("COURT_LANGUAGE", c.Models.Language)
	c.Diarization.HFToken = envOrDefault("HF_TOKEN", c.Diarization.HFToken)
	c.Diarization.Python = envOrDefault("COURT_PYTHON", c.Diarization.Python)
	c.Storage.Path = envOrDefault("COURT_STORAGE_PATH", c.Storage.Path)
	c.Kafka.Topic = envOrDefault("COURT_KAFKA_TOPIC", c.Kafka.Topic)

	if v := os.Getenv("COURT_MODEL_PATHS"); v != "" {
		c.Models.Paths = splitList(v)
	}
	if v := os.Getenv("COURT_KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
		c.Kafka.Enabled = true
	}

	var err error
	if c.Noise.Enabled, err = envBool("COURT_NOISE_ENABLED", c.Noise.Enabled); err != nil {
		return err
	}
	if c.Diarization.Enabled, err = envBool("COURT_DIARIZATION_ENABLED", c.Diarization.Enabled); err != nil {
		return err
	}
	if c.Pipeline.WaitForSlot, err = envBool("COURT_WAIT_FOR_SLOT", c.Pipeline.WaitForSlot); err != nil {
		return err
	}
	if v := os.Getenv("COURT_MAX_CONCURRENCY"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("COURT_MAX_CONCURRENCY: %w", err)
		}
		c.Pipeline.MaxConcurrency = n
	}
	return nil
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
