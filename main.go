package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danthegoodman1/adaptree/config"
	"github.com/danthegoodman1/adaptree/gologger"
	"github.com/danthegoodman1/adaptree/http_server"
	"github.com/danthegoodman1/adaptree/partitioner"
	"github.com/danthegoodman1/adaptree/utils"
)

var logger = gologger.NewLogger()

func main() {
	logger.Debug().Msg("starting adaptree")
	ctx := logger.WithContext(context.Background())

	cfg, err := config.Load(utils.CONFIG_PATH)
	if err != nil {
		logger.Error().Err(err).Msg("error loading config")
		os.Exit(1)
	}

	partitioner.RegisterFunctions()

	ms, err := openMetaStore(ctx, cfg.MetaStore)
	if err != nil {
		logger.Error().Err(err).Msg("error opening metastore")
		os.Exit(1)
	}
	ds, err := openDataStore(cfg.DataStore)
	if err != nil {
		logger.Error().Err(err).Msg("error opening datastore")
		os.Exit(1)
	}

	at, err := NewAdapTree(ms, ds, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("error creating adaptree")
		os.Exit(1)
	}
	if err := at.LoadTables(ctx); err != nil {
		logger.Error().Err(err).Msg("error loading tables")
		os.Exit(1)
	}
	logger.Info().Strs("tables", at.Tables.Names()).Msg("loaded tables")

	httpServer := http_server.StartHTTPServer(at.Tables, cfg.Server.Port)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	logger.Warn().Msg("received shutdown signal!")

	// For AWS ALB needing some time to de-register pod
	// Convert the time to seconds
	sleepTime := utils.GetEnvOrDefaultInt("SHUTDOWN_SLEEP_SEC", 0)
	logger.Info().Msg(fmt.Sprintf("sleeping for %ds before exiting", sleepTime))

	time.Sleep(time.Second * time.Duration(sleepTime))
	logger.Info().Msg(fmt.Sprintf("slept for %ds, exiting", sleepTime))

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown HTTP server")
	} else {
		logger.Info().Msg("successfully shutdown HTTP server")
	}

	if utils.GetEnvOrDefault("CHECKPOINT_ON_SHUTDOWN", "1") == "1" {
		for _, name := range at.Tables.Names() {
			tbl, _ := at.Tables.Get(name)
			if _, err := tbl.Checkpoint(ctx); err != nil {
				logger.Error().Err(err).Str("table", name).Msg("failed to checkpoint table")
			}
		}
	}

	if err := at.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown stores")
	} else {
		logger.Info().Msg("successfully shutdown stores")
	}
}
