// Command dittofm serves a file manager API over one or more storages.
//
// Usage:
//
//	dittofm [--config path] [--host addr] [--port n] [--local-storage dir] [--log-level level]
//	dittofm init [--config path] [--force]
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/marmos91/dittofm/internal/logger"
	"github.com/marmos91/dittofm/pkg/config"
	"github.com/marmos91/dittofm/pkg/server"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "dittofm: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) > 0 && args[0] == "init" {
		return runInit(args[1:])
	}
	return runServe(args)
}

func runInit(args []string) error {
	flags := pflag.NewFlagSet("dittofm init", pflag.ContinueOnError)
	force := flags.Bool("force", false, "Overwrite an existing configuration file")
	configPath := flags.String(config.FlagConfig, "", "Where to write the configuration (default: "+config.GetDefaultConfigPath()+")")
	if err := flags.Parse(args); err != nil {
		return err
	}

	path := *configPath
	if path == "" {
		path = config.GetDefaultConfigPath()
	}
	if err := config.InitConfigToPath(path, *force); err != nil {
		return err
	}

	fmt.Printf("Configuration written to %s\n", path)
	return nil
}

func runServe(args []string) error {
	flags := pflag.NewFlagSet("dittofm", pflag.ContinueOnError)
	configPath := flags.String(config.FlagConfig, "", "Path to the configuration file (default: "+config.GetDefaultConfigPath()+")")
	flags.String(config.FlagHost, "127.0.0.1", "Interface to listen on")
	flags.Int(config.FlagPort, config.DefaultPort, "Port to listen on")
	flags.String(config.FlagLocalStorage, config.DefaultLocalStoragePath, "Root directory of the \"local\" storage")
	flags.String(config.FlagLogLevel, "info", "Log level (debug, info, warn, error)")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := config.LoadWithFlags(*configPath, flags)
	if err != nil {
		return err
	}

	if err := logger.Configure(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("DittoFM - file manager backend")
	logger.Debug("Log level set to: %s", cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Metrics first: storage adapters pick up their collectors on creation
	metricsResult := config.InitializeMetrics(cfg)

	reg, err := config.InitializeRegistry(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize storages: %w", err)
	}
	defer func() {
		if err := reg.Close(); err != nil {
			logger.Error("Closing storages: %v", err)
		}
	}()

	adapters, err := config.CreateAdapters(cfg, metricsResult.FinderMetrics)
	if err != nil {
		return err
	}

	srv := server.New(reg)
	for _, a := range adapters {
		if err := srv.AddAdapter(a); err != nil {
			return err
		}
	}

	metricsDone := make(chan struct{})
	if metricsResult.Server != nil {
		metricsResult.Server.SetStorages(reg)
		go func() {
			defer close(metricsDone)
			if err := metricsResult.Server.Start(ctx); err != nil {
				logger.Error("Metrics server: %v", err)
			}
		}()
	} else {
		close(metricsDone)
	}

	serveErr := srv.Serve(ctx)
	stop()

	select {
	case <-metricsDone:
	case <-time.After(cfg.ShutdownTimeout()):
		logger.Warn("Metrics server did not stop within %v", cfg.ShutdownTimeout())
	}

	if serveErr != nil {
		return serveErr
	}
	logger.Info("DittoFM stopped")
	return nil
}
