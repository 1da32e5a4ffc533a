// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package command implements the feedproxy CLI.
package command

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/feedproxy/feedproxy/pkg/config"
	"github.com/feedproxy/feedproxy/pkg/handlers/catalog"
	"github.com/feedproxy/feedproxy/pkg/metrics"
	"github.com/feedproxy/feedproxy/pkg/outbox"
	"github.com/feedproxy/feedproxy/pkg/pipeline"
	"github.com/feedproxy/feedproxy/pkg/ratelimit"
	"github.com/feedproxy/feedproxy/pkg/sentry"
	"github.com/feedproxy/feedproxy/pkg/storage"
	"github.com/feedproxy/feedproxy/pkg/util/log"
)

// RootCommand returns the feedproxy command tree.
func RootCommand() *cobra.Command {
	var configFolder string

	root := &cobra.Command{
		Use:          "feedproxy",
		Short:        "Fetch feeds and fan their posts out to receivers",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configFolder, "config", "config", "folder with the YAML configuration files")

	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run the ingestion pipeline until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configFolder)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "dump-config",
		Short: "Print the merged configuration and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return dumpConfig(cmd, configFolder)
		},
	})
	return root
}

func run(configFolder string) error {
	conf, err := config.ReadFromFolder(configFolder)
	if err != nil {
		return err
	}

	if err := log.SetupLogger(conf.AppSettings.LogLevel); err != nil {
		return err
	}
	defer log.Flush()
	if err := sentry.Setup(conf.AppSettings.SentryDSN); err != nil {
		return err
	}
	defer sentry.Flush()

	registry := catalog.New(ratelimit.NewHostLimiter(), os.Stdout)
	if err := registry.Init(conf.Subhandlers, conf.Sources); err != nil {
		return sentry.CaptureErr(err)
	}

	postStore, outboxStore, closeStores, err := buildStores(conf.AppSettings)
	if err != nil {
		return sentry.CaptureErr(err)
	}
	defer closeStores()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m, err := buildMetrics(ctx, conf.AppSettings)
	if err != nil {
		return sentry.CaptureErr(err)
	}

	p := pipeline.New(pipeline.Params{
		Sources:   conf.Sources,
		Registry:  registry,
		PostStore: postStore,
		Outbox:    outbox.New(outboxStore),
		Metrics:   m,
	}, pipeline.Options{})

	log.Infof("Starting feed proxy with %d sources", len(conf.Sources))
	p.Run(ctx)
	log.Infof("Feed proxy stopped")
	return nil
}

func buildStores(settings config.AppSettings) (storage.PostStore, storage.OutboxStore, func(), error) {
	closeStores := func() {}

	var db *sqlx.DB
	if settings.PostStorage == config.StorageSQLite || settings.OutboxStorage == config.StorageSQLite {
		var err error
		db, err = storage.OpenSQLite(settings.SQLiteDB)
		if err != nil {
			return nil, nil, nil, err
		}
		closeStores = func() {
			if err := db.Close(); err != nil {
				log.Warnf("Can't close the database: %v", err)
			}
		}
	}

	var postStore storage.PostStore = storage.NewMemoryPostStore()
	if settings.PostStorage == config.StorageSQLite {
		postStore = storage.NewSQLitePostStore(db)
	}
	var outboxStore storage.OutboxStore = storage.NewMemoryOutboxStore()
	if settings.OutboxStorage == config.StorageSQLite {
		outboxStore = storage.NewSQLiteOutboxStore(db)
	}
	return postStore, outboxStore, closeStores, nil
}

func buildMetrics(ctx context.Context, settings config.AppSettings) (metrics.Metrics, error) {
	if settings.MetricsClient != config.MetricsPrometheus {
		return metrics.NullMetrics{}, nil
	}
	m := metrics.NewPrometheusMetrics()
	go m.RunFileWriter(ctx, settings.MetricsFile, metrics.DefaultWritePeriod)
	return m, nil
}

func dumpConfig(cmd *cobra.Command, configFolder string) error {
	conf, err := config.ReadFromFolder(configFolder)
	if err != nil {
		return err
	}
	dump, err := conf.Dump()
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), dump)
	return nil
}
