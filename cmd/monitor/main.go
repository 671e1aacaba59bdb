// Command monitor watches a Bitcoin address, ingests new payments into a
// durable ledger, and exposes the pending-mint queue over HTTP.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/antron3000/bitbar-mint-coordinator/internal/chainwatch"
	"github.com/antron3000/bitbar-mint-coordinator/internal/explorer"
	"github.com/antron3000/bitbar-mint-coordinator/internal/ledger"
	"github.com/antron3000/bitbar-mint-coordinator/internal/mintconf"
	"github.com/antron3000/bitbar-mint-coordinator/internal/monitorapi"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/log"
	cli "gopkg.in/urfave/cli.v1"
)

var (
	configFileFlag = cli.StringFlag{
		Name:  "config",
		Usage: "TOML configuration file",
	}

	runCommand = cli.Command{
		Action: run,
		Name:   "run",
		Usage:  "Start the monitor (default action)",
		Flags:  []cli.Flag{configFileFlag},
	}

	dumpConfigCommand = cli.Command{
		Action: dumpConfig,
		Name:   "dumpconfig",
		Usage:  "Show the effective configuration",
		Flags:  []cli.Flag{configFileFlag},
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "monitor"
	app.Usage = "Bitcoin payment monitor"
	app.Flags = []cli.Flag{configFileFlag}
	app.Commands = []cli.Command{runCommand, dumpConfigCommand}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(ctx *cli.Context) (mintconf.Monitor, error) {
	return mintconf.LoadMonitor(ctx.GlobalString(configFileFlag.Name))
}

func dumpConfig(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	return mintconf.DumpMonitor(os.Stdout, cfg)
}

func run(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	setupLogging(cfg.LogPath)

	if cfg.WatchedAddress == "" {
		return fmt.Errorf("watched_address must be set")
	}
	if err := explorer.ValidateAddress(cfg.WatchedAddress, &chaincfg.MainNetParams); err != nil {
		return err
	}

	l, err := ledger.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer l.Close()

	client := explorer.New(cfg.ExplorerBaseURL, cfg.UpstreamTimeout)
	poller := chainwatch.New(client, l, cfg.WatchedAddress, cfg.PollInterval, cfg.UpstreamTimeout)
	poller.Start()
	defer poller.Stop()

	if cfg.RetentionHorizon > 0 {
		go runRetentionSweep(l, cfg.RetentionHorizon)
	}

	api := monitorapi.New(cfg.HTTPAddr, l, poller)

	serveErrCh := make(chan error, 1)
	go func() {
		serveErrCh <- api.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case err := <-serveErrCh:
		return err
	case sig := <-sigCh:
		log.Info("monitor: received signal, shutting down", "signal", sig)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := api.Shutdown(shutdownCtx); err != nil {
			log.Error("monitor: error during HTTP shutdown", "err", err)
		}
		return nil
	}
}

// runRetentionSweep runs the opt-in retention sweep once an hour. It is
// disabled unless a positive retention horizon is configured.
func runRetentionSweep(l *ledger.Ledger, horizon time.Duration) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for range ticker.C {
		if _, err := l.SweepRetention(horizon); err != nil {
			log.Warn("monitor: retention sweep failed", "err", err)
		}
	}
}

func setupLogging(path string) {
	if path == "" {
		log.Root().SetHandler(log.StreamHandler(os.Stderr, log.TerminalFormat(true)))
		return
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Root().SetHandler(log.StreamHandler(os.Stderr, log.TerminalFormat(true)))
		log.Warn("monitor: failed to open log file, logging to stderr instead", "path", path, "err", err)
		return
	}
	writer := bufio.NewWriter(f)
	log.Root().SetHandler(log.StreamHandler(writer, log.LogfmtFormat()))
	go flushPeriodically(writer)
}

func flushPeriodically(w *bufio.Writer) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for range ticker.C {
		_ = w.Flush()
	}
}
