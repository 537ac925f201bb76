// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultPath is the config file the binaries look for in the working
// directory.
const DefaultPath = "cluster_config.txt"

// Config holds all application configuration values.
type Config struct {
	// MQTT
	MQTTEnabled         bool
	MQTTBroker          string
	MQTTClientIDCluster string
	MQTTClientIDConsole string
	MQTTClientIDWeb     string
	MQTTClientIDDisplay string

	// Topics
	TopicOdometer string
	TopicGPS      string
	TopicCommand  string

	// GPS
	GPSSerialPort string
	GPSBaudRate   uint

	// Storage
	StoragePath        string
	StorageOffset      int64
	StorageSectorSize  int
	StoragePoolSectors int

	// Hardware wiring, periph pin names
	StepperPins         []string // IN1..IN4
	LimitPin            string
	ButtonPin           string
	DisplayI2CBus       string
	DisplayTotalI2CAddr uint16
	DisplayTripI2CAddr  uint16
	DisplayFontScale    int
	WatchdogDevice      string // empty disables the watchdog

	// Mirror display (cmd/display): total, trip, speed, gps or clock
	MirrorUpperContent string
	MirrorLowerContent string

	// Gauge
	GaugeProfile string // YAML profile, empty for the built-in speedometer
	MaxSpeedKmh  float64

	// Timing (milliseconds)
	LoopInterval          int
	DisplayUpdateInterval int
	SaveInterval          int
	TelemetryInterval     int
	GPSStatusInterval     int

	// Time mode
	UTCOffsetHours int

	// Servers
	MetricsAddr   string // empty disables /metrics
	WebServerPort int

	// Logging
	LogLevel  string
	LogFormat string // "console", "json" or "auto"
}

var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Default returns the compiled-in configuration used when no file is given.
func Default() *Config {
	return &Config{
		MQTTEnabled:         true,
		MQTTBroker:          "tcp://localhost:1883",
		MQTTClientIDCluster: "gauge-cluster",
		MQTTClientIDConsole: "gauge-cluster-console",
		MQTTClientIDWeb:     "gauge-cluster-web",
		MQTTClientIDDisplay: "gauge-cluster-display",

		TopicOdometer: "cluster/odometer",
		TopicGPS:      "cluster/gps",
		TopicCommand:  "cluster/command",

		GPSSerialPort: "/dev/serial0",
		GPSBaudRate:   9600,

		StoragePath:        "/var/lib/gauge_cluster/odometer.img",
		StorageOffset:      0,
		StorageSectorSize:  4096,
		StoragePoolSectors: 16,

		StepperPins:         []string{"GPIO5", "GPIO6", "GPIO13", "GPIO19"},
		LimitPin:            "GPIO26",
		ButtonPin:           "GPIO21",
		DisplayI2CBus:       "",
		DisplayTotalI2CAddr: 0x3C,
		DisplayTripI2CAddr:  0x3D,
		DisplayFontScale:    2,

		MirrorUpperContent: "speed",
		MirrorLowerContent: "trip",

		MaxSpeedKmh: 240,

		LoopInterval:          5,
		DisplayUpdateInterval: 100,
		SaveInterval:          3000,
		TelemetryInterval:     1000,
		GPSStatusInterval:     2000,

		UTCOffsetHours: -3,

		MetricsAddr:   ":9100",
		WebServerPort: 8080,

		LogLevel:  "info",
		LogFormat: "auto",
	}
}

// Load reads a KEY=VALUE file on top of Default.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := Default()
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		if err := cfg.setValue(strings.TrimSpace(key), strings.TrimSpace(value)); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func parseInt(key, value string, lo, hi int) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if v < lo || v > hi {
		return 0, fmt.Errorf("%s must be %d-%d, got %d", key, lo, hi, v)
	}
	return v, nil
}

func parseAddr(key, value string) (uint16, error) {
	addr, err := strconv.ParseUint(value, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if addr > 0x7F {
		return 0, fmt.Errorf("%s must be a 7-bit address, got 0x%X", key, addr)
	}
	return uint16(addr), nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error
	switch key {
	// MQTT
	case "MQTT_ENABLED":
		c.MQTTEnabled, err = strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid MQTT_ENABLED %q: %w", value, err)
		}
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_CLUSTER":
		c.MQTTClientIDCluster = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value
	case "MQTT_CLIENT_ID_DISPLAY":
		c.MQTTClientIDDisplay = value

	// Topics
	case "TOPIC_ODOMETER":
		c.TopicOdometer = value
	case "TOPIC_GPS":
		c.TopicGPS = value
	case "TOPIC_COMMAND":
		c.TopicCommand = value

	// GPS
	case "GPS_SERIAL_PORT":
		c.GPSSerialPort = value
	case "GPS_BAUD_RATE":
		baud, err := parseInt(key, value, 1200, 921600)
		if err != nil {
			return err
		}
		c.GPSBaudRate = uint(baud)

	// Storage
	case "STORAGE_PATH":
		c.StoragePath = value
	case "STORAGE_OFFSET":
		off, err := strconv.ParseInt(value, 0, 64)
		if err != nil || off < 0 {
			return fmt.Errorf("invalid STORAGE_OFFSET %q", value)
		}
		c.StorageOffset = off
	case "STORAGE_SECTOR_SIZE":
		c.StorageSectorSize, err = parseInt(key, value, 32, 1<<20)
	case "STORAGE_POOL_SECTORS":
		c.StoragePoolSectors, err = parseInt(key, value, 2, 1024)

	// Hardware
	case "STEPPER_PINS":
		pins := strings.Split(value, ",")
		for i := range pins {
			pins[i] = strings.TrimSpace(pins[i])
		}
		if len(pins) != 4 {
			return fmt.Errorf("STEPPER_PINS needs 4 comma-separated pins, got %d", len(pins))
		}
		c.StepperPins = pins
	case "LIMIT_PIN":
		c.LimitPin = value
	case "BUTTON_PIN":
		c.ButtonPin = value
	case "DISPLAY_I2C_BUS":
		c.DisplayI2CBus = value
	case "DISPLAY_TOTAL_I2C_ADDR":
		c.DisplayTotalI2CAddr, err = parseAddr(key, value)
	case "DISPLAY_TRIP_I2C_ADDR":
		c.DisplayTripI2CAddr, err = parseAddr(key, value)
	case "DISPLAY_FONT_SCALE":
		c.DisplayFontScale, err = parseInt(key, value, 1, 4)
	case "WATCHDOG_DEVICE":
		c.WatchdogDevice = value
	case "MIRROR_UPPER_CONTENT", "MIRROR_LOWER_CONTENT":
		switch value {
		case "total", "trip", "speed", "gps", "clock":
		default:
			return fmt.Errorf("%s must be total, trip, speed, gps or clock, got %q", key, value)
		}
		if key == "MIRROR_UPPER_CONTENT" {
			c.MirrorUpperContent = value
		} else {
			c.MirrorLowerContent = value
		}

	// Gauge
	case "GAUGE_PROFILE":
		c.GaugeProfile = value
	case "MAX_SPEED_KMH":
		v, perr := strconv.ParseFloat(value, 64)
		if perr != nil || v <= 0 {
			return fmt.Errorf("invalid MAX_SPEED_KMH %q", value)
		}
		c.MaxSpeedKmh = v

	// Timing
	case "LOOP_INTERVAL":
		c.LoopInterval, err = parseInt(key, value, 1, 1000)
	case "DISPLAY_UPDATE_INTERVAL":
		c.DisplayUpdateInterval, err = parseInt(key, value, 10, 10000)
	case "SAVE_INTERVAL":
		c.SaveInterval, err = parseInt(key, value, 3000, 3600000)
	case "TELEMETRY_INTERVAL":
		c.TelemetryInterval, err = parseInt(key, value, 100, 3600000)
	case "GPS_STATUS_INTERVAL":
		c.GPSStatusInterval, err = parseInt(key, value, 100, 3600000)

	case "UTC_OFFSET_HOURS":
		c.UTCOffsetHours, err = parseInt(key, value, -12, 14)

	// Servers
	case "METRICS_ADDR":
		c.MetricsAddr = value
	case "WEB_SERVER_PORT":
		c.WebServerPort, err = parseInt(key, value, 1, 65535)

	// Logging
	case "LOG_LEVEL":
		c.LogLevel = strings.ToLower(value)
	case "LOG_FORMAT":
		switch value {
		case "console", "json", "auto":
			c.LogFormat = value
		default:
			return fmt.Errorf("LOG_FORMAT must be console, json or auto, got %q", value)
		}

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return err
}

// validate checks cross-field constraints.
func (c *Config) validate() error {
	if c.MQTTEnabled && c.MQTTBroker == "" {
		return errors.New("MQTT_BROKER is required when MQTT_ENABLED is true")
	}
	if c.GPSSerialPort == "" {
		return errors.New("GPS_SERIAL_PORT is required")
	}
	if c.StoragePath == "" {
		return errors.New("STORAGE_PATH is required")
	}
	if c.DisplayTotalI2CAddr == c.DisplayTripI2CAddr {
		return fmt.Errorf("DISPLAY_TOTAL_I2C_ADDR and DISPLAY_TRIP_I2C_ADDR are both 0x%02X", c.DisplayTripI2CAddr)
	}
	return nil
}

// Ms converts a millisecond setting to a Duration.
func Ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

// InitGlobal initializes the global configuration. An empty path uses
// Default. Only the first call has any effect.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		if configPath == "" {
			globalConfig = Default()
			return
		}
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
