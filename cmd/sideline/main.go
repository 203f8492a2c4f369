// Sideline - native client for the team analytics assistant.
// Maintains a duplex voice/text session with the assistant backend,
// arbitrates between autonomous agent responses and the local assist
// overlay, and plays assembled agent speech in order.
package main

import (
	"context"
	"errors"
	"flag"
	stdlog "log"
	"os/signal"
	"syscall"

	"github.com/fieldside/sideline/internal/config"
	"github.com/fieldside/sideline/internal/log"
	"github.com/fieldside/sideline/pkg/client"
)

func main() {
	cfg := parseFlags()
	log.Init(cfg.LogLevel)

	app, err := client.New(cfg, log.L())
	if err != nil {
		stdlog.Fatalf("configuration error: %v", err)
	}

	if err := app.Init(); err != nil {
		stdlog.Fatalf("initialization failed: %v", err)
	}
	defer app.Shutdown()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		stdlog.Fatalf("runtime error: %v", err)
	}
}

// parseFlags layers command line flags over the environment config.
func parseFlags() config.Config {
	cfg := config.FromEnv()

	server := flag.String("server", "", "session endpoint URL (overrides SIDELINE_SERVER_URL)")
	api := flag.String("api", "", "assist API base URL (overrides SIDELINE_API_BASE)")
	panelAddr := flag.String("panel", cfg.PanelAddr, "observer panel listen address, empty to disable")
	debug := flag.Bool("debug", false, "enable verbose debug logging")
	flag.Parse()

	if *server != "" {
		cfg.ServerURL = *server
	}
	if *api != "" {
		cfg.APIBase = *api
	}
	cfg.PanelAddr = *panelAddr
	if *debug {
		cfg.LogLevel = "debug"
	}
	return cfg
}
