// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Config holds all application configuration values.
type Config struct {
	// Sensor bus
	I2CBus           string // periph bus name, "" selects the first bus
	IMUI2CAddr       uint16
	MagI2CAddr       uint16
	Simulation       bool // use the simulated register bus instead of hardware
	SimHeadingDeg    float64
	SimSpinDegPerSec float64

	// IMU Sensor Ranges
	// Accelerometer: 0=±2g, 1=±4g, 2=±8g, 3=±16g
	IMUAccelRange byte
	// Gyroscope: 0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s
	IMUGyroRange byte
	// Magnetometer: 0=14 bit, 1=16 bit
	MagScale byte
	// Magnetometer continuous output rate in Hz: 8 or 100
	MagRateHz int

	// Attitude filter
	FilterKp       float64
	FilterKi       float64
	DeclinationDeg float64
	TrueNorth      bool
	AxisAccel      string // body-to-NEU remap, e.g. "x,-y,z"
	AxisGyro       string
	AxisMag        string

	// Calibration
	CalibrationFile      string
	SelfTestTolerancePct float64
	SelfTestOnStart      bool

	// Input
	ButtonPin        string
	DebounceMS       int
	LongPressMS      int
	ScrollDebounceMS int
	TiltThresholdG   float64
	TiltAxis         string // "x", "y" or "z", optionally negated

	// Navigation
	NavIntervalMS      int
	ResponseTimeoutMS  int
	UserID             string
	CurrentFloor       string
	RoutingURL         string
	GeolocationURL     string
	GeolocationKey     string
	GeolocationFormat  string // "google", "flat" or "auto"
	MaxAccessPoints    int
	WiFiAccessPoints   string // static scan: mac|rssi|channel;...
	RequestBufferSize  int
	ResponseBufferSize int

	// Timing
	LoopIntervalMS int

	// MQTT
	MQTTBroker   string // empty disables telemetry
	MQTTClientID string

	// Topics
	TopicHeading    string
	TopicSelection  string
	TopicNavigation string

	// Web Server
	WebServerPort     int // 0 disables the web server
	WebPushIntervalMS int

	// Display
	DisplayEnabled        bool
	DisplayUpdateInterval int // milliseconds

	// Logging
	LogLevel string
}

// Package-level unexported variables for singleton pattern:
//   - globalConfig: only reachable through InitGlobal/Get.
//   - configOnce: ensures InitGlobal() only runs once.
//   - configMu: write lock for initialization, read lock for Get().
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Default returns a configuration with every key set to the device defaults.
// A config file only needs to list the keys it overrides.
func Default() *Config {
	return &Config{
		IMUI2CAddr:       0x68,
		MagI2CAddr:       0x0C,
		SimSpinDegPerSec: 0,

		IMUAccelRange: 0,
		IMUGyroRange:  0,
		MagScale:      1,
		MagRateHz:     8,

		FilterKp:       40,
		FilterKi:       0,
		DeclinationDeg: -14.23,
		TrueNorth:      true,
		AxisAccel:      "x,-y,z",
		AxisGyro:       "x,-y,z",
		AxisMag:        "y,-x,-z",

		CalibrationFile:      "calibration/profile.yaml",
		SelfTestTolerancePct: 14,
		SelfTestOnStart:      true,

		ButtonPin:        "GPIO17",
		DebounceMS:       10,
		LongPressMS:      1000,
		ScrollDebounceMS: 150,
		TiltThresholdG:   0.3,
		TiltAxis:         "y",

		NavIntervalMS:      10000,
		ResponseTimeoutMS:  6000,
		UserID:             "Team8",
		CurrentFloor:       "1",
		RoutingURL:         "http://608dev-2.net/sandbox/sc/team8/server_src/request_handler.py",
		GeolocationURL:     "https://www.googleapis.com/geolocation/v1/geolocate",
		GeolocationFormat:  "google",
		MaxAccessPoints:    5,
		RequestBufferSize:  1000,
		ResponseBufferSize: 1000,

		LoopIntervalMS: 20,

		MQTTClientID:    "indoor-nav-device",
		TopicHeading:    "indoor_nav/heading",
		TopicSelection:  "indoor_nav/selection",
		TopicNavigation: "indoor_nav/navigation",

		WebServerPort:     8080,
		WebPushIntervalMS: 250,

		DisplayEnabled:        true,
		DisplayUpdateInterval: 100,

		LogLevel: "info",
	}
}

// Load reads the configuration file and returns a Config struct.
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

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
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

func parseInt(key, value string, min, max int) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if v < min || v > max {
		return 0, fmt.Errorf("%s must be %d-%d, got %d", key, min, max, v)
	}
	return v, nil
}

func parseFloat(key, value string) (float64, error) {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return v, nil
}

func parseBool(key, value string) (bool, error) {
	v, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return v, nil
}

func parseAddr(key, value string) (uint16, error) {
	addr, err := strconv.ParseUint(value, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return uint16(addr), nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error
	switch key {
	// Sensor bus
	case "I2C_BUS":
		c.I2CBus = value
	case "IMU_I2C_ADDR":
		c.IMUI2CAddr, err = parseAddr(key, value)
	case "MAG_I2C_ADDR":
		c.MagI2CAddr, err = parseAddr(key, value)
	case "SIMULATION":
		c.Simulation, err = parseBool(key, value)
	case "SIM_HEADING_DEG":
		c.SimHeadingDeg, err = parseFloat(key, value)
	case "SIM_SPIN_DEG_PER_SEC":
		c.SimSpinDegPerSec, err = parseFloat(key, value)

	// IMU Sensor Ranges
	case "IMU_ACCEL_RANGE":
		v, perr := parseInt(key, value, 0, 3)
		if perr != nil {
			return fmt.Errorf("IMU_ACCEL_RANGE (0=±2g, 1=±4g, 2=±8g, 3=±16g): %w", perr)
		}
		c.IMUAccelRange = byte(v)
	case "IMU_GYRO_RANGE":
		v, perr := parseInt(key, value, 0, 3)
		if perr != nil {
			return fmt.Errorf("IMU_GYRO_RANGE (0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s): %w", perr)
		}
		c.IMUGyroRange = byte(v)
	case "MAG_SCALE":
		v, perr := parseInt(key, value, 0, 1)
		if perr != nil {
			return fmt.Errorf("MAG_SCALE (0=14 bit, 1=16 bit): %w", perr)
		}
		c.MagScale = byte(v)
	case "MAG_RATE_HZ":
		v, perr := strconv.Atoi(value)
		if perr != nil {
			return fmt.Errorf("invalid MAG_RATE_HZ %q: %w", value, perr)
		}
		if v != 8 && v != 100 {
			return fmt.Errorf("MAG_RATE_HZ must be 8 or 100, got %d", v)
		}
		c.MagRateHz = v

	// Attitude filter
	case "FILTER_KP":
		c.FilterKp, err = parseFloat(key, value)
	case "FILTER_KI":
		c.FilterKi, err = parseFloat(key, value)
	case "DECLINATION_DEG":
		c.DeclinationDeg, err = parseFloat(key, value)
	case "TRUE_NORTH":
		c.TrueNorth, err = parseBool(key, value)
	case "AXIS_ACCEL":
		c.AxisAccel = value
	case "AXIS_GYRO":
		c.AxisGyro = value
	case "AXIS_MAG":
		c.AxisMag = value

	// Calibration
	case "CALIBRATION_FILE":
		c.CalibrationFile = value
	case "SELFTEST_TOLERANCE_PCT":
		c.SelfTestTolerancePct, err = parseFloat(key, value)
	case "SELFTEST_ON_START":
		c.SelfTestOnStart, err = parseBool(key, value)

	// Input
	case "BUTTON_PIN":
		c.ButtonPin = value
	case "DEBOUNCE_MS":
		c.DebounceMS, err = parseInt(key, value, 0, 1000)
	case "LONG_PRESS_MS":
		c.LongPressMS, err = parseInt(key, value, 1, 60000)
	case "SCROLL_DEBOUNCE_MS":
		c.ScrollDebounceMS, err = parseInt(key, value, 0, 10000)
	case "TILT_THRESHOLD_G":
		c.TiltThresholdG, err = parseFloat(key, value)
	case "TILT_AXIS":
		c.TiltAxis = value

	// Navigation
	case "NAV_INTERVAL_MS":
		c.NavIntervalMS, err = parseInt(key, value, 100, 3600000)
	case "RESPONSE_TIMEOUT_MS":
		c.ResponseTimeoutMS, err = parseInt(key, value, 1, 600000)
	case "USER_ID":
		c.UserID = value
	case "CURRENT_FLOOR":
		c.CurrentFloor = value
	case "ROUTING_URL":
		c.RoutingURL = value
	case "GEOLOCATION_URL":
		c.GeolocationURL = value
	case "GEOLOCATION_KEY":
		c.GeolocationKey = value
	case "GEOLOCATION_FORMAT":
		switch value {
		case "google", "flat", "auto":
			c.GeolocationFormat = value
		default:
			return fmt.Errorf("GEOLOCATION_FORMAT must be google, flat or auto, got %q", value)
		}
	case "MAX_ACCESS_POINTS":
		c.MaxAccessPoints, err = parseInt(key, value, 1, 64)
	case "WIFI_ACCESS_POINTS":
		c.WiFiAccessPoints = value
	case "REQUEST_BUFFER_SIZE":
		c.RequestBufferSize, err = parseInt(key, value, 64, 1<<20)
	case "RESPONSE_BUFFER_SIZE":
		c.ResponseBufferSize, err = parseInt(key, value, 64, 1<<20)

	// Timing
	case "LOOP_INTERVAL_MS":
		c.LoopIntervalMS, err = parseInt(key, value, 1, 10000)

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID":
		c.MQTTClientID = value

	// Topics
	case "TOPIC_HEADING":
		c.TopicHeading = value
	case "TOPIC_SELECTION":
		c.TopicSelection = value
	case "TOPIC_NAVIGATION":
		c.TopicNavigation = value

	// Web Server
	case "WEB_SERVER_PORT":
		c.WebServerPort, err = parseInt(key, value, 0, 65535)
	case "WEB_PUSH_INTERVAL_MS":
		c.WebPushIntervalMS, err = parseInt(key, value, 10, 60000)

	// Display
	case "DISPLAY_ENABLED":
		c.DisplayEnabled, err = parseBool(key, value)
	case "DISPLAY_UPDATE_INTERVAL":
		c.DisplayUpdateInterval, err = parseInt(key, value, 10, 60000)

	// Logging
	case "LOG_LEVEL":
		c.LogLevel = value

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return err
}

// validate checks cross-field constraints that a single key cannot.
func (c *Config) validate() error {
	if c.FilterKp < 0 || c.FilterKi < 0 {
		return fmt.Errorf("FILTER_KP and FILTER_KI must be non-negative")
	}
	if c.TiltThresholdG <= 0 {
		return fmt.Errorf("TILT_THRESHOLD_G must be positive, got %g", c.TiltThresholdG)
	}
	if c.UserID == "" {
		return fmt.Errorf("USER_ID is required")
	}
	if c.RoutingURL == "" {
		return fmt.Errorf("ROUTING_URL is required")
	}
	if c.GeolocationURL == "" {
		return fmt.Errorf("GEOLOCATION_URL is required")
	}
	if c.SelfTestTolerancePct <= 0 {
		return fmt.Errorf("SELFTEST_TOLERANCE_PCT must be positive, got %g", c.SelfTestTolerancePct)
	}
	if c.CalibrationFile == "" {
		return fmt.Errorf("CALIBRATION_FILE is required")
	}
	return nil
}

// InitGlobal initializes the global configuration from file.
// An empty path keeps the defaults.
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
