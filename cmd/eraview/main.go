package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/arcfield/eraview/internal/app"
	"github.com/arcfield/eraview/internal/log"
	"github.com/arcfield/eraview/pkg/config"
)

const version = "1.2-" + runtime.GOOS + "/" + runtime.GOARCH

// configEnvVar selects the config file inside the container, where flags are
// awkward to pass through the image entrypoint.
const configEnvVar = "ERAVIEW_CONFIG"

func main() {
	cfgFile := flag.String("config", "", "Path to YAML configuration file (default: $ERAVIEW_CONFIG or config.yaml)")
	logFile := flag.String("log-file", "", "Also write logs to this file, with rotation")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("eraview %s\n", version)
		os.Exit(0)
	}

	// Set up logging
	if err := log.Init(*debug, *logFile); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Load configuration
	provider, err := loadConfig(*cfgFile)
	if err != nil {
		log.Errorf("Failed to load configuration: %v", err)
		os.Exit(1)
	}
	defer provider.Close()

	// Create and run the application
	application := app.New(provider, log.GetSugaredLogger())
	if err := application.Run(context.Background()); err != nil {
		log.Errorf("Application error: %v", err)
		os.Exit(1)
	}
}

func loadConfig(cfgFile string) (config.ConfigProvider, error) {
	if cfgFile == "" {
		cfgFile = os.Getenv(configEnvVar)
	}
	if cfgFile == "" {
		cfgFile = "config.yaml"
	}
	filename, _ := filepath.Abs(cfgFile)

	provider := config.NewYAMLProvider(filename)
	if _, err := provider.LoadConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file. Did you pass the -config flag? Run with -h for help: %w", err)
	}

	return provider, nil
}
