// cmd/buildimage/main.go - build a customized ISO from a standard Windows image.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/windowsadmins/winforge/pkg/build"
	"github.com/windowsadmins/winforge/pkg/config"
	"github.com/windowsadmins/winforge/pkg/logging"
	"github.com/windowsadmins/winforge/pkg/version"
	"github.com/windowsadmins/winforge/pkg/winutil"
)

func main() {
	winutil.EnableANSIConsole()

	source := pflag.StringP("source", "s", "", "Path to the source Windows ISO.")
	output := pflag.StringP("output", "o", "", "Path for the finished ISO (default: derived under OutputPath).")
	label := pflag.String("label", "", "Volume label for the finished ISO.")
	forceUnsigned := pflag.Bool("force-unsigned", false, "Allow unsigned drivers during injection.")
	checkOnly := pflag.Bool("checkonly", false, "Validate the source and selected edition, then exit.")
	showConfig := pflag.Bool("show-config", false, "Display the current configuration and exit.")
	versionFlag := pflag.Bool("version", false, "Print the version and exit.")

	// Count the number of -v flags.
	var verbosity int
	pflag.CountVarP(&verbosity, "verbose", "v", "Increase verbosity (e.g. -v, -vv, -vvv)")
	pflag.Parse()

	if *versionFlag {
		if verbosity > 0 {
			version.PrintFull()
		} else {
			version.Print()
		}
		os.Exit(0)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 0 => ERROR, 1 => WARN, 2 => INFO, 3+ => DEBUG
	switch verbosity {
	case 0:
		cfg.LogLevel = "ERROR"
	case 1:
		cfg.LogLevel = "WARN"
	case 2:
		cfg.LogLevel = "INFO"
	default:
		cfg.LogLevel = "DEBUG"
	}
	if verbosity > 0 {
		cfg.Verbose = true
		if verbosity >= 3 {
			cfg.Debug = true
		}
	}

	console := logging.NewConsole(verbosity > 0)
	if err := logging.Init(cfg); err != nil {
		console.Fatal("Error initializing logger: %v", err)
	}
	defer logging.CloseLogger()

	if *showConfig {
		if cfgYaml, err := yaml.Marshal(cfg); err == nil {
			console.Printf("Current configuration:\n%s", string(cfgYaml))
		}
		os.Exit(0)
	}

	if *source == "" {
		console.Error("A source ISO is required (--source)")
		pflag.Usage()
		os.Exit(1)
	}

	// Handle system signals for graceful shutdown.
	ctx, cancel := context.WithCancel(context.Background())
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-signalChan
		console.Warning("Signal received, aborting build: %s", sig.String())
		cancel()
	}()

	pipeline := build.New(cfg, console)
	opts := build.Options{
		SourceISO:            *source,
		OutputISO:            *output,
		Label:                *label,
		ForceUnsignedDrivers: *forceUnsigned,
		CheckOnly:            *checkOnly,
	}

	if err := pipeline.Run(ctx, opts); err != nil {
		console.Fatal("Build failed: %v", err)
	}
}
