package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/platinummonkey/ssobridge/pkg/config"
	"github.com/platinummonkey/ssobridge/pkg/observability"
	"github.com/platinummonkey/ssobridge/pkg/server"
)

const usage = `Usage: ssobridge [command]

Commands:
  serve   Run the API and health servers (default)
  sweep   Delete expired SSO tokens once and exit

Configuration is read from the environment (SSOBRIDGE_*), an optional .env
file and the YAML file named by SSOBRIDGE_CONFIG_FILE.
`

func main() {
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	command := "serve"
	if flag.NArg() > 0 {
		command = flag.Arg(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch command {
	case "serve":
		err = serve(ctx)
	case "sweep":
		err = sweep(ctx)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "ssobridge %s: %v\n", command, err)
		os.Exit(1)
	}
}

func setup(ctx context.Context) (*server.App, *observability.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, err
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).
		WithField("service", cfg.Observability.OTelServiceName)

	app, err := server.NewApp(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return app, logger, nil
}

func serve(ctx context.Context) error {
	app, logger, err := setup(ctx)
	if err != nil {
		return err
	}
	defer app.Close()
	cfg := app.Config

	o := cfg.Observability
	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        o.OTelEnabled,
		Endpoint:       o.OTelEndpoint,
		ServiceName:    o.OTelServiceName,
		ServiceVersion: o.OTelServiceVersion,
		Insecure:       o.OTelInsecure,
		SampleRatio:    o.OTelSampleRatio,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize opentelemetry: %w", err)
	}

	if err := app.Start(ctx); err != nil {
		return err
	}

	logger.WithFields(map[string]interface{}{
		"app_url":     cfg.SSO.AppURL,
		"partner_url": cfg.SSO.PartnerURL,
		"tokens":      cfg.Storage.TokenBackend,
		"sessions":    cfg.Storage.SessionBackend,
		"rate_limit":  cfg.RateLimit.Enabled,
	}).Info("ssobridge starting")

	runErr := server.Run(ctx, logger, cfg.Server.ShutdownTimeout,
		server.NewHTTPServer(cfg.Server, cfg.Server.Port, app.API),
		server.NewHTTPServer(cfg.Server, cfg.Server.HealthPort, app.Health),
	)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := app.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Warn("background work did not stop cleanly")
	}
	otelErr := observability.ShutdownOTel(shutdownCtx, providers, logger)

	logger.Info("ssobridge stopped")
	return errors.Join(runErr, otelErr)
}

func sweep(ctx context.Context) error {
	app, logger, err := setup(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	n, err := app.Sweeper.RunOnce(ctx)
	if err != nil {
		return err
	}
	logger.WithField("deleted", n).Info("expired tokens swept")
	return nil
}
