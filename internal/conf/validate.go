package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// ValidateSettings checks the loaded settings for values that would
// prevent the application from running. Configuration errors at startup
// are the only fatal errors in this system.
func ValidateSettings(settings *Settings) error {
	if settings.Storage.BasePath == "" {
		return fmt.Errorf("storage.basepath must not be empty")
	}
	if settings.Storage.MaxResults <= 0 {
		return fmt.Errorf("storage.maxresults must be positive, got %d", settings.Storage.MaxResults)
	}

	if err := validateWritableDir(settings.Storage.BasePath); err != nil {
		return fmt.Errorf("storage.basepath: %w", err)
	}

	if settings.Input.Path == "" {
		return fmt.Errorf("input.path must not be empty")
	}
	if settings.Input.QueueSize <= 0 {
		return fmt.Errorf("input.queuesize must be positive, got %d", settings.Input.QueueSize)
	}
	if settings.Input.Workers <= 0 {
		return fmt.Errorf("input.workers must be positive, got %d", settings.Input.Workers)
	}
	if settings.Input.SettleDelayMs < 0 {
		return fmt.Errorf("input.settledelayms must not be negative, got %d", settings.Input.SettleDelayMs)
	}

	if settings.WebServer.Enabled {
		port, err := strconv.Atoi(settings.WebServer.Port)
		if err != nil || port < 1 || port > 65535 {
			return fmt.Errorf("webserver.port must be a valid port number, got %q", settings.WebServer.Port)
		}
	}

	if settings.Security.RateLimit < 0 {
		return fmt.Errorf("security.ratelimit must not be negative, got %d", settings.Security.RateLimit)
	}

	return nil
}

// validateWritableDir ensures the directory exists (creating it if
// needed) and is writable by the current process.
func validateWritableDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create directory %q: %w", dir, err)
	}

	probe := filepath.Join(dir, ".write-probe")
	f, err := os.Create(probe)
	if err != nil {
		return fmt.Errorf("directory %q is not writable: %w", dir, err)
	}
	_ = f.Close()
	_ = os.Remove(probe)
	return nil
}
