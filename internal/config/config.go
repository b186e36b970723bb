package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "aeroduel.cfg.json"

// EnvPrefix prefixes environment overrides, e.g. AERODUEL_MATCH_MAXLIVES.
const EnvPrefix = "AERODUEL"

// MatchConfig holds combat rules.
type MatchConfig struct {
	ActiveOnStart         bool          `json:"activeOnStart" mapstructure:"activeOnStart"`
	MaxLives              int           `json:"maxLives" mapstructure:"maxLives"`
	MaxPlanes             int           `json:"maxPlanes" mapstructure:"maxPlanes"`
	DecrementWhenInactive bool          `json:"decrementWhenInactive" mapstructure:"decrementWhenInactive"`
	ResetLivesOnStart     bool          `json:"resetLivesOnStart" mapstructure:"resetLivesOnStart"`
	RequireKnownTarget    bool          `json:"requireKnownTarget" mapstructure:"requireKnownTarget"`
	DedupWindow           time.Duration `json:"dedupWindow" mapstructure:"dedupWindow"`
}

// RadioConfig selects and configures the radio driver.
type RadioConfig struct {
	Driver        string `json:"driver" mapstructure:"driver"`
	ListenAddr    string `json:"listenAddr" mapstructure:"listenAddr"`
	BroadcastAddr string `json:"broadcastAddr" mapstructure:"broadcastAddr"`
}

// CameraConfig holds the serial link settings for the hit camera.
// An empty Port disables the camera; "-" reads tokens from stdin.
type CameraConfig struct {
	Port string `json:"port" mapstructure:"port"`
	Baud int    `json:"baud" mapstructure:"baud"`
}

// SQLiteConfig holds in-memory SQLite journal settings
type SQLiteConfig struct {
	FlushInterval time.Duration `json:"flushInterval" mapstructure:"flushInterval"`
}

// StorageConfig selects the combat journal backend.
type StorageConfig struct {
	Type       string       `json:"type" mapstructure:"type"`
	MaxEntries int          `json:"maxEntries" mapstructure:"maxEntries"`
	SQLite     SQLiteConfig `json:"sqlite" mapstructure:"sqlite"`
}

// InfluxConfig holds InfluxDB settings.
type InfluxConfig struct {
	Enabled    bool
	Host       string
	Port       string
	Protocol   string
	Token      string
	Org        string
	Bucket     string
	BackupPath string
}

// OTelConfig holds OpenTelemetry settings.
type OTelConfig struct {
	Enabled      bool
	ServiceName  string
	BatchTimeout time.Duration
	Endpoint     string
	Insecure     bool
}

// Load reads configuration from JSON file and environment and sets default values.
// A missing config file is not an error; the defaults apply.
func Load(configDir string) error {
	viper.SetDefault("planeId", "BOARD1")
	viper.SetDefault("planeModel", "F22")
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")

	viper.SetDefault("http.addr", ":8080")

	viper.SetDefault("match.activeOnStart", true)
	viper.SetDefault("match.maxLives", 5)
	viper.SetDefault("match.maxPlanes", 5)
	viper.SetDefault("match.decrementWhenInactive", true)
	viper.SetDefault("match.resetLivesOnStart", false)
	viper.SetDefault("match.requireKnownTarget", true)
	viper.SetDefault("match.dedupWindow", "2s")

	viper.SetDefault("radio.driver", "udp")
	viper.SetDefault("radio.listenAddr", ":4330")
	viper.SetDefault("radio.broadcastAddr", "255.255.255.255:4330")

	viper.SetDefault("camera.port", "")
	viper.SetDefault("camera.baud", 115200)

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.maxEntries", 1000)
	viper.SetDefault("storage.sqlite.flushInterval", "1s")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "")
	viper.SetDefault("influx.org", "aeroduel")
	viper.SetDefault("influx.bucket", "combat_events")
	viper.SetDefault("influx.backupPath", "./logs/influx_backup.lp.gz")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "aeroduel-plane")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return Validate()
}

// flagKeys maps command-line flags to the config keys they override.
var flagKeys = map[string]string{
	"plane-id":     "planeId",
	"log-level":    "logLevel",
	"logs-dir":     "logsDir",
	"http-addr":    "http.addr",
	"radio-driver": "radio.driver",
	"camera-port":  "camera.port",
	"storage-type": "storage.type",
}

// BindFlags registers command-line overrides on fs and binds them to their
// config keys. A flag only wins over file and environment when it is set.
func BindFlags(fs *pflag.FlagSet) error {
	fs.String("plane-id", "", "board id announced on the radio")
	fs.String("log-level", "", "debug, info, warn or error")
	fs.String("logs-dir", "", "directory for session logs")
	fs.String("http-addr", "", "HTTP listen address")
	fs.String("radio-driver", "", "udp or loopback")
	fs.String("camera-port", "", `camera serial port, "-" for stdin`)
	fs.String("storage-type", "", "memory or sqlite")

	for flag, key := range flagKeys {
		if err := viper.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return fmt.Errorf("binding flag %s: %w", flag, err)
		}
	}
	return nil
}

// Validate checks the loaded values for settings the controller cannot run with.
func Validate() error {
	if GetInt("match.maxLives") < 1 {
		return fmt.Errorf("match.maxLives must be at least 1, got %d", GetInt("match.maxLives"))
	}
	if GetInt("match.maxPlanes") < 1 {
		return fmt.Errorf("match.maxPlanes must be at least 1, got %d", GetInt("match.maxPlanes"))
	}
	if strings.TrimSpace(GetString("planeId")) == "" {
		return errors.New("planeId must not be empty")
	}
	switch strings.ToLower(GetString("logLevel")) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown logLevel: %s", GetString("logLevel"))
	}
	switch GetString("storage.type") {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("unknown storage type: %s", GetString("storage.type"))
	}
	switch GetString("radio.driver") {
	case "udp", "loopback":
	default:
		return fmt.Errorf("unknown radio driver: %s", GetString("radio.driver"))
	}
	return nil
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetMatchConfig returns the combat rules.
func GetMatchConfig() MatchConfig {
	return MatchConfig{
		ActiveOnStart:         viper.GetBool("match.activeOnStart"),
		MaxLives:              viper.GetInt("match.maxLives"),
		MaxPlanes:             viper.GetInt("match.maxPlanes"),
		DecrementWhenInactive: viper.GetBool("match.decrementWhenInactive"),
		ResetLivesOnStart:     viper.GetBool("match.resetLivesOnStart"),
		RequireKnownTarget:    viper.GetBool("match.requireKnownTarget"),
		DedupWindow:           viper.GetDuration("match.dedupWindow"),
	}
}

// GetRadioConfig returns the radio link settings.
func GetRadioConfig() RadioConfig {
	return RadioConfig{
		Driver:        viper.GetString("radio.driver"),
		ListenAddr:    viper.GetString("radio.listenAddr"),
		BroadcastAddr: viper.GetString("radio.broadcastAddr"),
	}
}

// GetCameraConfig returns the camera serial link settings.
func GetCameraConfig() CameraConfig {
	return CameraConfig{
		Port: viper.GetString("camera.port"),
		Baud: viper.GetInt("camera.baud"),
	}
}

// GetStorageConfig returns the journal backend settings.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type:       viper.GetString("storage.type"),
		MaxEntries: viper.GetInt("storage.maxEntries"),
		SQLite: SQLiteConfig{
			FlushInterval: viper.GetDuration("storage.sqlite.flushInterval"),
		},
	}
}

// GetInfluxConfig returns the InfluxDB settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:    viper.GetBool("influx.enabled"),
		Host:       viper.GetString("influx.host"),
		Port:       viper.GetString("influx.port"),
		Protocol:   viper.GetString("influx.protocol"),
		Token:      viper.GetString("influx.token"),
		Org:        viper.GetString("influx.org"),
		Bucket:     viper.GetString("influx.bucket"),
		BackupPath: viper.GetString("influx.backupPath"),
	}
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}
