// Package main runs the dashboard poller: it resolves stored
// credentials, refreshes household data on an interval, and logs a
// re-authentication notice when the session can no longer be renewed.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"

	"github.com/parentsync/parentsync/pkg/config"
	"github.com/parentsync/parentsync/pkg/coordinator"
	"github.com/parentsync/parentsync/pkg/credentials/resolver"
	"github.com/parentsync/parentsync/pkg/credentials/store"
	"github.com/parentsync/parentsync/pkg/dashboard"
	"github.com/parentsync/parentsync/pkg/logging"
)

const version = "1.0.0"

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigFile  string
	Once        bool
	ShowVersion bool
}

func main() {
	cli := parseFlags()

	if cli.ShowVersion {
		fmt.Printf("parentsync-poller v%s\n", version)
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
		fmt.Fprintf(os.Stderr, "parentsync-poller: %v\n", err)
		os.Exit(1)
	}
	cancel()
}

// parseFlags parses command line flags
func parseFlags() *CLIConfig {
	cli := &CLIConfig{}

	flag.StringVar(&cli.ConfigFile, "config", "", "Path to configuration file (YAML)")
	flag.BoolVar(&cli.Once, "once", false, "Run a single refresh cycle and exit")
	flag.BoolVar(&cli.ShowVersion, "version", false, "Show version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "parentsync-poller - Parent Dashboard refresh loop\n\n")
		fmt.Fprintf(os.Stderr, "Usage: parentsync-poller [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}

	flag.Parse()
	return cli
}

// logNotifier surfaces re-authentication notices through the log file.
// A deployment with a real notification channel can swap this out.
type logNotifier struct {
	log *logging.Logger
}

func (n *logNotifier) Notify(title, message, dedupID string) error {
	n.log.Warnf("notification [%s] %s: %s", dedupID, title, message)
	return nil
}

func run(ctx context.Context, cli *CLIConfig) error {
	cfg, err := config.Load(cli.ConfigFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logging.NewLogger("poller")
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()

	log.Infof("starting poller: share_dir=%s auth_service=%s interval=%s",
		cfg.ShareDir, cfg.AuthServiceURL, cfg.UpdateInterval)

	cookieStore, err := store.New(afero.NewOsFs(), cfg.ShareDir)
	if err != nil {
		return fmt.Errorf("failed to open credential store: %w", err)
	}

	resolverLog, _ := logging.NewLogger("resolver")
	defer resolverLog.Close()
	resolverOpts := []resolver.Option{}
	if cfg.CSRFCookie != "" {
		resolverOpts = append(resolverOpts, resolver.WithCSRFCookie(cfg.CSRFCookie))
	}
	source := resolver.New(cfg.AuthServiceURL, cookieStore, resolverLog, resolverOpts...)

	clientLog, _ := logging.NewLogger("dashboard")
	defer clientLog.Close()
	clientOpts := []dashboard.Option{}
	if cfg.DashboardBaseURL != "" {
		clientOpts = append(clientOpts, dashboard.WithBaseURL(cfg.DashboardBaseURL))
	}
	if cfg.CSRFCookie != "" {
		clientOpts = append(clientOpts, dashboard.WithCSRFCookie(cfg.CSRFCookie))
	}
	client := dashboard.NewClient(source, clientLog, clientOpts...)
	defer client.Close()

	coordLog, _ := logging.NewLogger("coordinator")
	defer coordLog.Close()
	coord := coordinator.New(client, &logNotifier{log: coordLog}, coordLog, cfg.UpdateInterval)

	if cli.Once {
		if err := coord.Refresh(ctx); err != nil {
			return fmt.Errorf("refresh failed: %w", err)
		}
		snapshot := coord.Data()
		log.Infof("refresh complete: %d members, %d devices",
			len(snapshot.Members), len(snapshot.Devices))
		return nil
	}

	return coord.Run(ctx)
}
