// Package cmd builds the birdcam command tree.
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/birdcam-go/cmd/serve"
	"github.com/tphakala/birdcam-go/internal/conf"
)

// RootCommand creates and returns the root command.
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "birdcam",
		Short: "Bird camera ingest and serving pipeline",
		Long: "birdcam watches a directory for camera images, runs each new image " +
			"through a detection engine and serves the recorded results over HTTP.",
	}

	setupFlags(rootCmd, settings)

	rootCmd.AddCommand(serve.Command(settings))

	return rootCmd
}

// setupFlags configures the global flags, bound to viper so command
// line arguments take precedence over the config file.
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")

	_ = viper.BindPFlags(rootCmd.PersistentFlags())
}
