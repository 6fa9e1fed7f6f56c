// Package config loads the beam process configuration from environment
// variables with sensible defaults.
package config

import (
	"os"
	"strconv"
)

// Config holds all process configuration.
type Config struct {
	// APIAddr is the control/metrics HTTP listen address.
	APIAddr string

	// LinkURL selects the device link: srt://host:port, ws://host/path,
	// or empty for the local discard link.
	LinkURL string

	// StreamID is carried in the SRT handshake for receiver-side routing.
	StreamID string

	// Encoder pacing for the synthetic source.
	FPS       int
	GOPLength int

	// InitialBitrateKbps seeds the engine's bitrate hint.
	InitialBitrateKbps int
}

// Load reads configuration from the environment.
func Load() *Config {
	return &Config{
		APIAddr:            getEnv("API_ADDR", ":4750"),
		LinkURL:            getEnv("LINK_URL", ""),
		StreamID:           getEnv("STREAM_ID", ""),
		FPS:                getIntEnv("FPS", 30),
		GOPLength:          getIntEnv("GOP_LENGTH", 60),
		InitialBitrateKbps: getIntEnv("INITIAL_BITRATE_KBPS", 4000),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
