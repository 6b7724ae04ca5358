// Command detect runs capability detection once and prints the result, for
// verifying what the exporter would enable on this host.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"proxmox-adaptive-exporter/config"
	"proxmox-adaptive-exporter/internal/features"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	verbose := flag.Bool("v", false, "Log probe details")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load configuration: %v\n", err)
		os.Exit(1)
	}

	level := zerolog.WarnLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).With().Timestamp().Logger()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	detector := features.NewDetector(logger, cfg.Features.ProbeTimeout, cfg.Features.Overrides)
	fs := detector.Detect(ctx)

	fmt.Printf("Detected at %s\n", fs.DetectedAt().Format(time.RFC3339))
	for _, c := range features.All() {
		state := "absent"
		if fs.Enabled(c) {
			state = "present"
		}
		if forced, ok := cfg.Features.Overrides[string(c)]; ok {
			state += fmt.Sprintf(" (forced by override: %v)", forced)
		}
		fmt.Printf("  %-12s %s\n", c, state)
	}
}
