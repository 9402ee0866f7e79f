// Package config loads the avimjpeg command configuration from YAML.
package config

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gen2brain/avimjpeg"
)

// Config represents the complete command configuration
type Config struct {
	Stream StreamConfig `yaml:"stream"`
	Codec  CodecConfig  `yaml:"codec"`
	Log    LogConfig    `yaml:"log"`
}

// StreamConfig describes the AVI video stream
type StreamConfig struct {
	Width      int    `yaml:"width"`
	Height     int    `yaml:"height"`
	Interlaced bool   `yaml:"interlaced"`
	FieldOrder string `yaml:"field_order"` // even, odd
	// Quality is the JPEG quality factor (0-100), QualityUnset when not given.
	Quality int `yaml:"quality"`
	// StoredQuality is the quality as stored in the AVI stream header (0-10000).
	// It is used when quality is unset.
	StoredQuality int `yaml:"stored_quality"`
}

// CodecConfig contains codec settings
type CodecConfig struct {
	OmitHuffmanTables bool  `yaml:"omit_huffman_tables"`
	MemoryLimitMB     int64 `yaml:"memory_limit_mb"` // 0 = unlimited
	Workers           int   `yaml:"workers"`         // 0 = GOMAXPROCS
}

// LogConfig contains logging settings
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// QualityUnset marks a stream quality that was not configured.
const QualityUnset = -1

// Default returns a validated configuration with every default filled in.
func Default() *Config {
	cfg := &Config{Stream: StreamConfig{Quality: QualityUnset}}
	_ = Validate(cfg)

	return cfg
}

// Load reads and parses a YAML configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse parses and validates YAML configuration data
func Parse(data []byte) (*Config, error) {
	cfg := Config{Stream: StreamConfig{Quality: QualityUnset}}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Descriptor returns the stream descriptor for the configured stream.
func (c *Config) Descriptor() avimjpeg.StreamDescriptor {
	order := avimjpeg.EvenFirst
	if c.Stream.FieldOrder == "odd" {
		order = avimjpeg.OddFirst
	}

	return avimjpeg.StreamDescriptor{
		Width:      c.Stream.Width,
		Height:     c.Stream.Height,
		Interlaced: c.Stream.Interlaced,
		FieldOrder: order,
		Quality:    c.Stream.Quality,
	}
}

// Options returns codec options for the configuration, logging to logger.
func (c *Config) Options(logger *slog.Logger) *avimjpeg.Options {
	opts := &avimjpeg.Options{
		Logger:            logger,
		OmitHuffmanTables: c.Codec.OmitHuffmanTables,
		Workers:           c.Codec.Workers,
	}

	if c.Codec.MemoryLimitMB > 0 {
		opts.Allocator = avimjpeg.NewPoolAllocator(c.Codec.MemoryLimitMB << 20)
	}

	return opts
}

// Level returns the configured log level.
func (c *Config) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}

	return level
}
