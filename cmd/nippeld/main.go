package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/pifinski/PanikNippelboard/internal/app"
	"github.com/pifinski/PanikNippelboard/internal/config"
	"github.com/pifinski/PanikNippelboard/internal/logging"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var (
	configFile  = flag.String("config", "", "Path to configuration file (default: ~/.nippelboardrc or /etc/nippelboard/config.yaml)")
	audioDevice = flag.String("device", "", "Audio input device name (use --list-devices to see available devices)")
	logLevel    = flag.String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
	listDevices = flag.Bool("list-devices", false, "List all available audio input devices")
	showVersion = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("nippeld v%s\n", Version)
		fmt.Printf("  Commit: %s\n", GitCommit)
		fmt.Printf("  Built:  %s\n", BuildTime)
		os.Exit(0)
	}

	if *listDevices {
		if err := app.ListDevices(); err != nil {
			os.Exit(1)
		}
		return
	}

	cfg, err := config.LoadWithFallback(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to load config: %v\n", err)
		cfg = config.DefaultConfig()
	}
	if *audioDevice != "" {
		cfg.Audio.Device = *audioDevice
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	log, err := logging.New(logging.Options{File: cfg.Log.File, Level: cfg.Log.Level})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Infow("nippeld starting", "version", Version, "commit", GitCommit)

	daemon := app.NewDaemon(cfg, log)
	if err := daemon.Run(context.Background()); err != nil {
		log.Errorw("daemon exited with error", "error", err)
		os.Exit(1)
	}
}
