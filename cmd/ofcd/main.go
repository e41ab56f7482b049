// Package main is the entry point for ofcd, the OpenFlow controller core
// daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/ofcore/ofcore/internal/buildinfo"
	"github.com/ofcore/ofcore/internal/ofconfig"
	"github.com/ofcore/ofcore/internal/ofcontroller"
	"github.com/ofcore/ofcore/internal/ofevents"
	"github.com/ofcore/ofcore/examples"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	if flag.NArg() == 0 {
		printUsage()
		return
	}

	switch flag.Arg(0) {
	case "run":
		runDaemon(logger, *configPath)
	case "init":
		runInit()
	case "version":
		fmt.Println(buildinfo.String())
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", flag.Arg(0))
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("ofcd - OpenFlow controller core daemon")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  run      Start the controller")
	fmt.Println("  init     Write an example ofcore.yaml to the current directory")
	fmt.Println("  version  Show version")
	fmt.Println()
	fmt.Println("Flags:")
	flag.PrintDefaults()
}

func runInit() {
	if _, err := os.Stat("ofcore.yaml"); err == nil {
		fmt.Fprintln(os.Stderr, "ofcore.yaml already exists, refusing to overwrite")
		os.Exit(1)
	}
	if err := os.WriteFile("ofcore.yaml", examples.ConfigYAML, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "write ofcore.yaml: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("wrote ofcore.yaml")
}

func runDaemon(logger *slog.Logger, configPath string) {
	logger.Info("starting ofcd", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "built", buildinfo.BuildTime)

	cfgPath, err := ofconfig.FindConfig(configPath)
	if err != nil {
		logger.Error("config", "error", err)
		os.Exit(1)
	}

	cfg, err := ofconfig.Load(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "path", cfgPath, "error", err)
		os.Exit(1)
	}

	if cfg.LogLevel != "" {
		level, err := ofconfig.ParseLogLevel(cfg.LogLevel)
		if err != nil {
			logger.Error("invalid log_level in config", "error", err)
			os.Exit(1)
		}
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level:       level,
			ReplaceAttr: ofconfig.ReplaceLogLevelNames,
		}))
	}

	logger.Info("config loaded", "path", cfgPath, "backend", cfg.Backend, "listen", cfg.Listen)

	bus := ofevents.NewBus()
	ctrl := ofcontroller.New(cfg, logger, bus)

	if err := ctrl.RegisterApp(&examples.HubApp{Logger: logger}); err != nil {
		logger.Error("failed to register app", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	exitCode, err := ctrl.Run(ctx)
	if err != nil {
		logger.Error("controller exited with error", "error", err)
	}
	logger.Info("ofcd stopped", "exit_code", int(exitCode))
	os.Exit(int(exitCode))
}
