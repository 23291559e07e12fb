// Package serve implements the pipeline command: watcher, detection
// engine, result store and HTTP gateway wired together.
package serve

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/birdcam-go/internal/api"
	"github.com/tphakala/birdcam-go/internal/conf"
	"github.com/tphakala/birdcam-go/internal/detection"
	"github.com/tphakala/birdcam-go/internal/errors"
	"github.com/tphakala/birdcam-go/internal/ingest"
	"github.com/tphakala/birdcam-go/internal/logging"
	"github.com/tphakala/birdcam-go/internal/resultstore"
	"github.com/tphakala/birdcam-go/internal/watcher"
)

// shutdownTimeout bounds the graceful HTTP shutdown.
const shutdownTimeout = 10 * time.Second

// Command creates the serve command.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the full ingest and serving pipeline",
		Long: "Watch the input directory for new images, process each through the " +
			"detection engine, store the results and serve them over HTTP.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(settings)
		},
	}

	if err := setupFlags(cmd, settings); err != nil {
		cobra.CheckErr(err)
	}

	return cmd
}

// setupFlags configures flags specific to the serve command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().StringVar(&settings.Input.Path, "input", viper.GetString("input.path"), "Directory watched for new images")
	cmd.Flags().StringVar(&settings.Storage.BasePath, "basepath", viper.GetString("storage.basepath"), "Base directory for stored results")
	cmd.Flags().IntVar(&settings.Storage.MaxResults, "maxresults", viper.GetInt("storage.maxresults"), "Retention limit, oldest results evicted beyond this")
	cmd.Flags().StringVar(&settings.WebServer.Port, "port", viper.GetString("webserver.port"), "Port for the web server")

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return errors.New(err).
			Component("serve").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return nil
}

// run wires the pipeline together and blocks until a shutdown signal.
func run(settings *conf.Settings) error {
	logging.Init(settings.Debug)
	log := logging.ForService("serve")

	store, err := resultstore.New(settings)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("error closing result store", "error", err)
		}
	}()

	engine, err := detection.NewEngine(settings)
	if err != nil {
		return err
	}
	if engine == nil {
		log.Warn("no detection engine configured, images are recorded without detections and uploads are disabled")
	}

	processor := ingest.New(engine, store)

	w, err := watcher.New(settings.Input.Path, processor.WatcherCallback,
		watcher.WithPatterns(settings.Input.Patterns),
		watcher.WithSettleDelay(time.Duration(settings.Input.SettleDelayMs)*time.Millisecond),
		watcher.WithQueueSize(settings.Input.QueueSize),
		watcher.WithWorkers(settings.Input.Workers),
		watcher.WithProcessExisting(settings.Input.ProcessExisting),
	)
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		return err
	}
	log.Info("watching for images", "path", settings.Input.Path, "patterns", settings.Input.Patterns)

	var (
		e          *echo.Echo
		controller *api.Controller
	)
	if settings.WebServer.Enabled {
		e = echo.New()
		e.HideBanner = true
		e.HidePort = true

		limiter := api.NewRateLimiter(settings.Security.RateLimit)
		controller, err = api.New(e, store, engine, settings, limiter)
		if err != nil {
			w.Stop()
			return err
		}

		go func() {
			addr := ":" + settings.WebServer.Port
			log.Info("starting web server", "addr", addr)
			if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("web server failed", "error", err)
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutdown signal received")

	// Stop producing new work before tearing down the consumers.
	w.Stop()

	if e != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := e.Shutdown(ctx); err != nil {
			log.Error("error during web server shutdown", "error", err)
		}
		controller.Shutdown()
	}

	log.Info("shutdown complete")
	return nil
}
