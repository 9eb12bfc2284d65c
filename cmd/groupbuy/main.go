package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/router-for-me/GroupBuyBusiness/internal/app"
	"github.com/router-for-me/GroupBuyBusiness/internal/config"

	log "github.com/sirupsen/logrus"
)

// main runs the CLI entrypoint and exits on unrecoverable command errors.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if errRun := run(ctx, os.Args[1:]); errRun != nil {
		log.WithError(errRun).Error("command failed")
		os.Exit(1)
	}
}

// run parses flags, loads config, and dispatches the subcommand:
// serve (default), migrate, or sweep <expiration|refund|reminder>.
func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("groupbuy", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "config file path (or env CONFIG_PATH)")
	if errParse := fs.Parse(args); errParse != nil {
		return errParse
	}

	appCfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}
	if strings.TrimSpace(*cfgPath) != "" {
		appCfg.ConfigPath = config.ResolveConfigPath(*cfgPath)
	}

	cfg, err := config.Load(appCfg.ConfigPath)
	if err != nil {
		return err
	}
	app.ConfigureLogging(cfg.LogLevel)

	command := "serve"
	rest := fs.Args()
	if len(rest) > 0 {
		command, rest = rest[0], rest[1:]
	}

	switch command {
	case "serve":
		return app.RunServer(ctx, cfg)
	case "migrate":
		return app.Migrate(ctx, cfg)
	case "sweep":
		if len(rest) != 1 {
			return fmt.Errorf("usage: groupbuy sweep <expiration|refund|reminder>")
		}
		processed, errSweep := app.RunSweep(ctx, cfg, rest[0])
		if errSweep != nil {
			return errSweep
		}
		log.WithFields(log.Fields{"job": rest[0], "processed": processed}).Info("sweep finished")
		return nil
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}
