package main

import (
	"context"
	"fmt"

	"github.com/danthegoodman1/adaptree/config"
	"github.com/danthegoodman1/adaptree/crdb"
	"github.com/danthegoodman1/adaptree/datastore"
	"github.com/danthegoodman1/adaptree/metastore"
	"github.com/danthegoodman1/adaptree/migrations"
	"github.com/danthegoodman1/adaptree/s3_helper"
	"github.com/danthegoodman1/adaptree/utils"
)

func openMetaStore(ctx context.Context, cfg config.MetaStoreConfig) (metastore.MetaStore, error) {
	switch cfg.Kind {
	case config.MetaStoreCRDB:
		if utils.RUN_MIGRATIONS {
			n, err := migrations.RunMigrations(cfg.CRDBDSN)
			if err != nil {
				return nil, fmt.Errorf("error in RunMigrations: %w", err)
			}
			logger.Info().Int("applied", n).Msg("ran migrations")
		}
		if err := migrations.CheckMigrations(cfg.CRDBDSN); err != nil {
			return nil, fmt.Errorf("error in CheckMigrations: %w", err)
		}
		pool, err := crdb.ConnectToDB(ctx, cfg.CRDBDSN)
		if err != nil {
			return nil, fmt.Errorf("error in crdb.ConnectToDB: %w", err)
		}
		return metastore.NewCRDBMetaStore(pool), nil
	default:
		return metastore.NewSQLiteMetaStore(ctx, cfg.SQLitePath)
	}
}

func openDataStore(cfg config.DataStoreConfig) (datastore.DataStore, error) {
	switch cfg.Kind {
	case config.DataStoreS3:
		client, err := s3_helper.NewClient(s3_helper.Config{
			Bucket:   cfg.S3Bucket,
			Region:   cfg.S3Region,
			Endpoint: cfg.S3Endpoint,
		})
		if err != nil {
			return nil, fmt.Errorf("error in s3_helper.NewClient: %w", err)
		}
		return datastore.NewS3DataStore(client, cfg.S3Prefix), nil
	default:
		return datastore.NewDiskDataStore(cfg.Path)
	}
}
