// Package conf loads and validates the application configuration.
package conf

import (
	"fmt"
	"sync"

	"github.com/spf13/viper"

	"github.com/tphakala/birdcam-go/internal/errors"
)

// LogConfig defines the configuration for a log file
type LogConfig struct {
	Enabled bool   // true to enable this log
	Path    string // path to log file
}

// InputConfig holds the watched-directory settings.
type InputConfig struct {
	Path            string   // directory watched for new images
	Patterns        []string // case-insensitive file extensions to accept
	ProcessExisting bool     // enqueue files already present at startup
	SettleDelayMs   int      // delay before a created file is considered complete
	QueueSize       int      // bounded processing queue capacity
	Workers         int      // number of worker goroutines draining the queue
}

// StorageConfig holds the result store settings.
type StorageConfig struct {
	BasePath       string // base directory for images/annotated/results/uploads
	SQLitePath     string // path to the index database, relative to basepath if not absolute
	MaxResults     int    // retention limit, oldest results evicted beyond this
	OrganizeByDate bool   // nest stored files under YYYY-MM-DD subdirectories
}

// DetectionConfig selects and tunes the detection engine.
type DetectionConfig struct {
	Type                string  // engine type, empty disables on-demand inference
	ModelPath           string  // path to the model file
	ConfidenceThreshold float64 // minimum confidence for reported detections
}

// Security holds the API access settings.
type Security struct {
	AccessKey string // shared secret, empty disables authentication
	RateLimit int    // allowed requests per client per minute, 0 disables
}

// Settings contains all application configuration
type Settings struct {
	Debug bool // true to enable debug mode

	// Runtime values, not stored in config file
	Version   string `yaml:"-"` // Version from build
	BuildDate string `yaml:"-"` // Build date from build

	Main struct {
		Name string    // name of this node, attached to results as source
		Log  LogConfig // main logging configuration
	}

	Input     InputConfig
	Storage   StorageConfig
	Detection DetectionConfig

	WebServer struct {
		Debug   bool      // true to enable debug mode
		Enabled bool      // true to enable web server
		Port    string    // port for web server
		Log     LogConfig // logging configuration for web server
	}

	Security Security
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into a
// Settings struct. Missing config files fall back to defaults; invalid
// values are fatal.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// Setting returns the current settings instance, or nil before Load.
func Setting() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// initViper initializes viper with default values and reads the
// configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	for _, path := range configPaths() {
		viper.AddConfigPath(path)
	}

	setDefaultConfig()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// No config file is fine, defaults apply.
			return nil
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// configPaths returns the directories searched for config.yaml, in
// priority order.
func configPaths() []string {
	return []string{
		".",
		"$HOME/.config/birdcam-go",
		"/etc/birdcam-go",
	}
}
