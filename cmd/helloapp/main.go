// Command helloapp serves plain text greetings to OIDC authenticated callers.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/b4fun/oidcapps/internal/config"
	"github.com/b4fun/oidcapps/internal/helloapp"
	"github.com/b4fun/oidcapps/internal/logging"
	"github.com/b4fun/oidcapps/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file (default: ./config.yaml)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "helloapp: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath, nil)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	logger = logger.With(zap.String("service", "helloapp"))

	srv, err := server.New(cfg, logger)
	if err != nil {
		return err
	}

	helloapp.New(logger, srv.LoginPath()).Mount(srv.Router())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.Run(ctx)
}
