// Command worker polls the monitor's pending-mint queue and invokes the
// external inscription tool once per eligible transaction.
package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/antron3000/bitbar-mint-coordinator/internal/journal"
	"github.com/antron3000/bitbar-mint-coordinator/internal/mintconf"
	"github.com/antron3000/bitbar-mint-coordinator/internal/mintworker"
	"github.com/ethereum/go-ethereum/log"
	cli "gopkg.in/urfave/cli.v1"
)

var configFileFlag = cli.StringFlag{
	Name:  "config",
	Usage: "TOML configuration file",
}

var dumpConfigCommand = cli.Command{
	Action: dumpConfig,
	Name:   "dumpconfig",
	Usage:  "Show the effective configuration",
	Flags:  []cli.Flag{configFileFlag},
}

var mintCommand = cli.Command{
	Action:    mint,
	Name:      "mint",
	Usage:     "Run the minting worker against a wallet and inscription file",
	ArgsUsage: "<wallet-name> <file-path>",
	Flags:     []cli.Flag{configFileFlag},
}

func main() {
	app := cli.NewApp()
	app.Name = "worker"
	app.Usage = "Minting worker"
	app.Flags = []cli.Flag{configFileFlag}
	app.Commands = []cli.Command{mintCommand, dumpConfigCommand}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(ctx *cli.Context) (mintconf.Worker, error) {
	return mintconf.LoadWorker(ctx.GlobalString(configFileFlag.Name))
}

func dumpConfig(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	return mintconf.DumpWorker(os.Stdout, cfg)
}

// mint is the `mint <wallet-name> <file-path>` command: it exits non-zero
// if either argument is missing or file-path doesn't exist.
func mint(ctx *cli.Context) error {
	if ctx.NArg() < 2 {
		return fmt.Errorf("usage: worker mint <wallet-name> <file-path>")
	}
	walletName := ctx.Args().Get(0)
	filePath := ctx.Args().Get(1)
	if walletName == "" {
		return fmt.Errorf("wallet-name is required")
	}
	if _, err := os.Stat(filePath); err != nil {
		return fmt.Errorf("file-path %q does not exist: %w", filePath, err)
	}

	cfg, err := loadConfig(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	setupLogging(cfg.LogPath)

	j := journal.Open(cfg.JournalPath)

	scheduler := mintworker.New(mintworker.Config{
		ServerURL:       cfg.ServerURL,
		WalletName:      walletName,
		FilePath:        filePath,
		Interval:        cfg.WorkerInterval,
		MaxRetries:      cfg.MaxRetries,
		InterDispatch:   cfg.InterDispatch,
		InscriptionTool: cfg.InscriptionTool,
	}, j)
	scheduler.Start()
	defer scheduler.Stop()

	introspection := mintworker.NewIntrospectionServer(cfg.HTTPAddr, scheduler, j)
	serveErrCh := make(chan error, 1)
	go func() {
		serveErrCh <- introspection.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case err := <-serveErrCh:
		return err
	case sig := <-sigCh:
		// A subprocess in flight at this moment is orphaned intentionally:
		// the next run rediscovers the txid through the pending list.
		log.Info("worker: received signal, exiting", "signal", sig)
		return nil
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
		log.Warn("worker: failed to open log file, logging to stderr instead", "path", path, "err", err)
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
