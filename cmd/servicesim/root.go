package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"servicesim/internal/chaos"
	"servicesim/internal/config"
	"servicesim/internal/logger"
	"servicesim/internal/metrics"
	"servicesim/internal/rules"
	"servicesim/internal/script"
	"servicesim/internal/server"
	"servicesim/internal/watcher"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// flagKeys maps command line flags to settings keys.
var flagKeys = map[string]string{
	"port":            "port",
	"address":         "address",
	"concurrent":      "concurrent",
	"script-timeout":  "script_timeout",
	"metrics-address": "metrics_address",
	"ignore":          "ignore",
	"log-level":       "log.min_level",
}

// newRootCommand builds the command; flags are bound to v.
func newRootCommand(v *viper.Viper) *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "servicesim [flags] CALL_DIRECTORY",
		Short: "Serve simulated HTTP services from call definition files",
		Long: `Serve simulated HTTP services from a directory of call definition files.

Every file in CALL_DIRECTORY describes one call: a method, a path pattern and
an ordered list of candidate responses. The directory is watched and reloaded
when a definition changes; SIGHUP forces a reload.`,
		Example: `  # Serve the definitions in ./calls on the default port
  servicesim ./calls

  # Listen on all interfaces and expose Prometheus metrics
  servicesim -a 0.0.0.0 -p 9000 --metrics-address :9100 ./calls`,
		Version:      fmt.Sprintf("%s (%s)", Version, Commit),
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			v.Set("call_dir", args[0])
			return run(cmd.Context(), v, configFile)
		},
	}

	f := cmd.Flags()
	f.IntP("port", "p", 8000, "port to listen on")
	f.StringP("address", "a", "127.0.0.1", "address to listen on")
	f.StringVarP(&configFile, "config", "c", "", "YAML settings file")
	f.Bool("concurrent", false, "resolve requests concurrently instead of one at a time")
	f.Duration("script-timeout", script.DefaultBudget, "time budget of a single response script")
	f.String("metrics-address", "", "address to serve Prometheus metrics on (disabled when empty)")
	f.StringSlice("ignore", []string{"**/*.db"}, "doublestar patterns of files whose changes do not trigger a reload")
	f.String("log-level", "info", "minimum log level (trace, debug, info, warn, error)")

	for flag, key := range flagKeys {
		if err := v.BindPFlag(key, f.Lookup(flag)); err != nil {
			panic(err)
		}
	}

	return cmd
}

func run(ctx context.Context, v *viper.Viper, configFile string) error {
	settings, err := config.LoadSettings(v, configFile)
	if err != nil {
		return err
	}

	log, err := logger.New(settings.Log)
	if err != nil {
		return fmt.Errorf("error creating logger: %w", err)
	}

	m := metrics.New()
	opts := config.Options{
		Log:          log,
		Chaos:        chaos.NewEngine(),
		ScriptBudget: settings.ScriptTimeout,
	}
	load := func() (*rules.Registry, error) {
		return config.LoadDefinitions(settings.CallDir, opts)
	}

	srv, err := server.New(*settings, log, load, m)
	if err != nil {
		log.Error().AnErr("error", err).Msg("Initial load failed")
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	reloadOpts := watcher.DefaultOptions()
	reloadOpts.Fatal = func(err error) bool { return errors.Is(err, config.ErrMissingResponseFile) }
	srv.Fatal = reloadOpts.Fatal
	reloader := watcher.NewReloader(srv.Reload, log, reloadOpts)

	w, err := watcher.New(settings.CallDir, settings.Ignore, log)
	if err != nil {
		return err
	}
	go w.Run(ctx, func(name string) { reloader.Trigger("change " + name) })

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				log.Info().Msg("SIGHUP received")
				reloader.Trigger("SIGHUP")
			}
		}
	}()

	reloadErr := make(chan error, 1)
	go func() { reloadErr <- reloader.Run(ctx) }()
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Run(ctx) }()

	select {
	case err = <-serveErr:
		cancel()
	case err = <-reloadErr:
		cancel()
		if serr := <-serveErr; err == nil {
			err = serr
		}
	}

	if err != nil {
		log.Error().AnErr("error", err).Msg("Shutting down")
		return err
	}
	log.Info().Msg("Server stopped")
	return nil
}
