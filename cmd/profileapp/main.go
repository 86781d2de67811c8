// Command profileapp serves the HTML home and profile pages behind OIDC
// authentication.
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
	"github.com/b4fun/oidcapps/internal/logging"
	"github.com/b4fun/oidcapps/internal/profileapp"
	"github.com/b4fun/oidcapps/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file (default: ./config.yaml)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "profileapp: %v\n", err)
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
	logger = logger.With(zap.String("service", "profileapp"))

	srv, err := server.New(cfg, logger)
	if err != nil {
		return err
	}

	app, err := profileapp.New(logger, profileapp.Options{
		LoginPath:  srv.LoginPath(),
		LogoutPath: logoutPath(srv),
	})
	if err != nil {
		return err
	}
	app.Mount(srv.Router())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.Run(ctx)
}

func logoutPath(srv *server.Server) string {
	if srv.LoginPath() == "" {
		return ""
	}
	return server.LogoutPath
}
