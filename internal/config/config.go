// Package config provides configuration management for the lacylights-dmx daemon.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration values for the daemon.
type Config struct {
	// Server configuration
	Port     string
	Env      string
	LogLevel string

	// Database configuration
	DatabaseURL string
	PatchFile   string // TOML patch imported at startup when set

	// DMX configuration
	SerialDevice           string // serial adapter path, empty or "simulate" for no hardware
	DMXChannels            int
	DMXFrameRate           int // Hz
	DMXStatsInterval       time.Duration
	DMXStopTimeout         time.Duration
	DMXMaxTransmitFailures int

	// Idle watch
	IdleShutdown      time.Duration // darken after this long without frames, 0 disables
	IdleCheckInterval time.Duration

	// Art-Net mirror configuration
	ArtNetEnabled          bool
	ArtNetPort             int
	ArtNetBroadcast        string // "auto", an IPv4 address or an interface name
	ArtNetRefreshRate      int    // Hz (active)
	ArtNetIdleRate         int    // Hz (idle)
	ArtNetHighRateDuration time.Duration

	// MQTT configuration, disabled when MQTTBroker is empty
	MQTTBroker      string
	MQTTClientID    string
	MQTTTopicPrefix string
	MQTTUser        string
	MQTTPassword    string

	// CORS configuration
	CORSOrigin string

	// Indicator breathing curve
	IndicatorEasing string
}

// Load loads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		// Server
		Port:     getEnv("PORT", "4000"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Database
		DatabaseURL: getEnv("DATABASE_URL", "file:./dev.db"),
		PatchFile:   getEnv("PATCH_FILE", ""),

		// DMX
		SerialDevice:           getEnv("SERIAL_DEVICE", ""),
		DMXChannels:            getEnvInt("DMX_CHANNELS", 512),
		DMXFrameRate:           getEnvInt("DMX_FRAME_RATE", 44),
		DMXStatsInterval:       getEnvDuration("DMX_STATS_INTERVAL", 2*time.Second),
		DMXStopTimeout:         getEnvDuration("DMX_STOP_TIMEOUT", time.Second),
		DMXMaxTransmitFailures: getEnvInt("DMX_MAX_TRANSMIT_FAILURES", 50),

		// Idle watch
		IdleShutdown:      getEnvDuration("IDLE_SHUTDOWN", 10*time.Minute),
		IdleCheckInterval: getEnvDuration("IDLE_CHECK_INTERVAL", time.Second),

		// Art-Net
		ArtNetEnabled:          getEnvBool("ARTNET_ENABLED", false),
		ArtNetPort:             getEnvInt("ARTNET_PORT", 6454),
		ArtNetBroadcast:        getEnv("ARTNET_BROADCAST", "auto"),
		ArtNetRefreshRate:      getEnvInt("ARTNET_REFRESH_RATE", 44),
		ArtNetIdleRate:         getEnvInt("ARTNET_IDLE_RATE", 1),
		ArtNetHighRateDuration: getEnvDuration("ARTNET_HIGH_RATE_DURATION", 2*time.Second),

		// MQTT
		MQTTBroker:      getEnv("MQTT_BROKER", ""),
		MQTTClientID:    getEnv("MQTT_CLIENT_ID", "lacylights-dmx"),
		MQTTTopicPrefix: getEnv("MQTT_TOPIC_PREFIX", "lacylights"),
		MQTTUser:        getEnv("MQTT_USER", ""),
		MQTTPassword:    getEnv("MQTT_PASSWORD", ""),

		// CORS
		CORSOrigin: getEnv("CORS_ORIGIN", "http://localhost:3000"),

		// Indicator
		IndicatorEasing: getEnv("INDICATOR_EASING", "EASE_IN_OUT_SINE"),
	}
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// MQTTEnabled reports whether a broker is configured.
func (c *Config) MQTTEnabled() bool {
	return c.MQTTBroker != ""
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvInt returns the integer value of an environment variable or a default value.
func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvBool returns the boolean value of an environment variable or a default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvDuration accepts a Go duration ("10m", "250ms") or a bare integer
// in milliseconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}
