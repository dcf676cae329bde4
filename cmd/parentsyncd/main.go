// Package main runs the credential authentication service: an HTTP
// server that walks a user through a browser login and persists the
// captured cookies for other processes to consume.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"

	"github.com/parentsync/parentsync/pkg/auth"
	"github.com/parentsync/parentsync/pkg/config"
	"github.com/parentsync/parentsync/pkg/credentials/store"
	"github.com/parentsync/parentsync/pkg/logging"
	"github.com/parentsync/parentsync/pkg/server"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigFile  string
	ShowVersion bool
}

func main() {
	cli := parseFlags()

	if cli.ShowVersion {
		fmt.Printf("parentsyncd v%s\n", server.Version)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nShutting down gracefully...")
		cancel()
	}()

	if err := run(ctx, cli); err != nil {
		cancel()
		fmt.Fprintf(os.Stderr, "parentsyncd: %v\n", err)
		os.Exit(1)
	}
	cancel()
}

// parseFlags parses command line flags
func parseFlags() *CLIConfig {
	cli := &CLIConfig{}

	flag.StringVar(&cli.ConfigFile, "config", "", "Path to configuration file (YAML)")
	flag.BoolVar(&cli.ShowVersion, "version", false, "Show version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "parentsyncd - Parent Dashboard authentication service\n\n")
		fmt.Fprintf(os.Stderr, "Usage: parentsyncd [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}

	flag.Parse()
	return cli
}

func run(ctx context.Context, cli *CLIConfig) error {
	cfg, err := config.Load(cli.ConfigFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logging.NewLogger("parentsyncd")
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()

	log.Infof("starting auth service: listen=%s share_dir=%s auth_timeout=%s",
		cfg.ListenAddr(), cfg.ShareDir, cfg.AuthTimeout)

	cookieStore, err := store.New(afero.NewOsFs(), cfg.ShareDir)
	if err != nil {
		return fmt.Errorf("failed to open credential store: %w", err)
	}

	authCfg := auth.DefaultConfig()
	authCfg.Headless = cfg.Headless
	authCfg.AuthTimeout = cfg.AuthTimeout
	if cfg.NavTimeout > 0 {
		authCfg.NavTimeout = cfg.NavTimeout
	}
	if cfg.CSRFCookie != "" {
		authCfg.CSRFCookie = cfg.CSRFCookie
	}

	authLog, _ := logging.NewLogger("auth")
	defer authLog.Close()
	manager := auth.NewManager(authCfg, cookieStore, authLog)
	if err := manager.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize browser runtime: %w", err)
	}
	defer manager.Shutdown()

	serverLog, _ := logging.NewLogger("server")
	defer serverLog.Close()
	srv := &http.Server{
		Addr:    cfg.ListenAddr(),
		Handler: server.New(cookieStore, manager, serverLog).Handler(),
	}

	errChan := make(chan error, 1)
	go func() {
		log.Infof("listening on %s", cfg.ListenAddr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	log.Infof("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warnf("server shutdown: %v", err)
	}
	return nil
}
