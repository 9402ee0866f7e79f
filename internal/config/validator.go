package config

import (
	"fmt"
	"strings"

	"github.com/gen2brain/avimjpeg"
)

// Validate checks if the configuration is valid and fills in defaults
func Validate(cfg *Config) error {
	// Width and height may be left unset when they come from the input image.
	if cfg.Stream.Width < 0 || cfg.Stream.Width >= 1<<16 {
		return fmt.Errorf("stream.width must be in [0, 65535], got %d", cfg.Stream.Width)
	}
	if cfg.Stream.Height < 0 || cfg.Stream.Height >= 1<<16 {
		return fmt.Errorf("stream.height must be in [0, 65535], got %d", cfg.Stream.Height)
	}
	if cfg.Stream.Interlaced && cfg.Stream.Height%2 != 0 {
		return fmt.Errorf("stream.height must be even for interlaced streams, got %d", cfg.Stream.Height)
	}

	cfg.Stream.FieldOrder = strings.ToLower(cfg.Stream.FieldOrder)
	switch cfg.Stream.FieldOrder {
	case "":
		cfg.Stream.FieldOrder = "even"
	case "even", "odd":
	default:
		return fmt.Errorf("stream.field_order must be 'even' or 'odd', got '%s'", cfg.Stream.FieldOrder)
	}

	if cfg.Stream.Quality < QualityUnset || cfg.Stream.Quality > 100 {
		return fmt.Errorf("stream.quality must be in [0, 100], got %d", cfg.Stream.Quality)
	}
	if cfg.Stream.Quality == QualityUnset {
		if cfg.Stream.StoredQuality > 0 {
			cfg.Stream.Quality = avimjpeg.QualityFromStreamHeader(cfg.Stream.StoredQuality)
		} else {
			cfg.Stream.Quality = 75 // default
		}
	}

	if cfg.Codec.MemoryLimitMB < 0 {
		return fmt.Errorf("codec.memory_limit_mb must be >= 0, got %d", cfg.Codec.MemoryLimitMB)
	}
	if cfg.Codec.Workers < 0 {
		return fmt.Errorf("codec.workers must be >= 0, got %d", cfg.Codec.Workers)
	}

	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	switch cfg.Log.Level {
	case "":
		cfg.Log.Level = "info"
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got '%s'", cfg.Log.Level)
	}

	return nil
}
