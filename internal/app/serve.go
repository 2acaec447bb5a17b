package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/4wpdev/4wp-polylang-api-sync/internal/auth"
	"github.com/4wpdev/4wp-polylang-api-sync/internal/cli"
	"github.com/4wpdev/4wp-polylang-api-sync/internal/config"
	"github.com/4wpdev/4wp-polylang-api-sync/internal/httpapi"
	"github.com/4wpdev/4wp-polylang-api-sync/internal/logging"
)

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	host := fs.String("host", "0.0.0.0", "Host interface to bind")
	port := fs.Int("port", 8090, "HTTP port")
	readTimeout := fs.Duration("read-timeout", 10*time.Second, "HTTP read timeout")
	writeTimeout := fs.Duration("write-timeout", 30*time.Second, "HTTP write timeout")
	shutdownTimeout := fs.Duration("shutdown-timeout", 10*time.Second, "Graceful shutdown timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if *port <= 0 || *port > 65535 {
		fmt.Fprintln(os.Stderr, "--port must be between 1 and 65535")
		return 2
	}

	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}

	openCtx, openCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer openCancel()

	b, err := openBackend(openCtx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Str("store_driver", cfg.StoreDriver).Msg("serve failed to open store")
		fmt.Fprintf(os.Stderr, "Failed to open store: %v\n", err)
		return 1
	}
	defer b.close()

	if err := ensureDefaultAdmin(openCtx, b.users, cfg, logger); err != nil {
		logger.Error().Err(err).Msg("serve failed to provision default admin")
		fmt.Fprintf(os.Stderr, "Failed to provision default admin: %v\n", err)
		return 1
	}

	nonces, err := auth.NewNonceIssuer(cfg.NonceSecret)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize nonces: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		<-sigCh
		cancel()
	}()

	srv := httpapi.NewServer(b.syncHandler(logger), b.users, nonces, logger, httpapi.Options{
		Host:               *host,
		Port:               *port,
		ReadTimeout:        *readTimeout,
		WriteTimeout:       *writeTimeout,
		ShutdownTimeout:    *shutdownTimeout,
		SessionTTL:         time.Duration(cfg.SessionTTLHours) * time.Hour,
		SessionCookie:      cfg.SessionCookieName,
		SessionSecure:      cfg.SessionCookieSecure,
		APIPrefix:          cfg.APIPrefix(),
		CORSAllowedOrigins: cfg.CORSAllowedOriginsList(),
	})

	if err := srv.Start(ctx); err != nil {
		logger.Error().Err(err).Str("host", *host).Int("port", *port).Msg("server failed")
		fmt.Fprintf(os.Stderr, "Server failed: %v\n", err)
		return 1
	}

	return 0
}
