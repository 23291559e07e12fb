package conf

import (
	"github.com/spf13/viper"
)

// setDefaultConfig sets the default configuration values for viper.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "BirdCam-Go")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "birdcam.log")

	viper.SetDefault("input.path", "input")
	viper.SetDefault("input.patterns", []string{"jpg", "jpeg", "png"})
	viper.SetDefault("input.processexisting", false)
	viper.SetDefault("input.settledelayms", 500)
	viper.SetDefault("input.queuesize", 100)
	viper.SetDefault("input.workers", 1)

	viper.SetDefault("storage.basepath", "data")
	viper.SetDefault("storage.sqlitepath", "results.db")
	viper.SetDefault("storage.maxresults", 1000)
	viper.SetDefault("storage.organizebydate", true)

	viper.SetDefault("detection.type", "")
	viper.SetDefault("detection.modelpath", "")
	viper.SetDefault("detection.confidencethreshold", 0.5)

	viper.SetDefault("webserver.enabled", true)
	viper.SetDefault("webserver.debug", false)
	viper.SetDefault("webserver.port", "8080")
	viper.SetDefault("webserver.log.enabled", true)
	viper.SetDefault("webserver.log.path", "logs/web.log")

	viper.SetDefault("security.accesskey", "")
	viper.SetDefault("security.ratelimit", 100)
}
