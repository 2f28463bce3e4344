package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/openstats/datasetsvc/internal/columnar"
	"github.com/openstats/datasetsvc/internal/data/db"
	"github.com/openstats/datasetsvc/internal/data/repos"
	"github.com/openstats/datasetsvc/internal/events"
	"github.com/openstats/datasetsvc/internal/extractor"
	"github.com/openstats/datasetsvc/internal/importer"
	"github.com/openstats/datasetsvc/internal/locks"
	"github.com/openstats/datasetsvc/internal/mapper"
	"github.com/openstats/datasetsvc/internal/pkg/logger"
	"github.com/openstats/datasetsvc/internal/platform/envutil"
	"github.com/openstats/datasetsvc/internal/publicid"
	"github.com/openstats/datasetsvc/internal/temporalx"
	"github.com/openstats/datasetsvc/internal/temporalx/temporalworker"
	"github.com/openstats/datasetsvc/internal/temporalx/versionimport"
)

func main() {
	// Logger
	logMode := envutil.String("LOG_MODE", "development")
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err := postgresService.AutoMigrateAll(); err != nil {
		log.Error("Postgres auto migration failed", "error", err)
		os.Exit(1)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up repos from main...")
	dataSetRepo := repos.NewDataSetRepo(thePG, log)
	dataSetVersionRepo := repos.NewDataSetVersionRepo(thePG, log)
	dataSetVersionImportRepo := repos.NewDataSetVersionImportRepo(thePG, log)
	locationMetaRepo := repos.NewLocationMetaRepo(thePG, log)
	filterMetaRepo := repos.NewFilterMetaRepo(thePG, log)
	indicatorMetaRepo := repos.NewIndicatorMetaRepo(thePG, log)
	timePeriodMetaRepo := repos.NewTimePeriodMetaRepo(thePG, log)
	mappingRepo := repos.NewMappingRepo(thePG, log)
	changeSetRepo := repos.NewChangeSetRepo(thePG, log)

	// Columnar store
	dataRoot := envutil.String("DATA_ROOT", "./data")
	columnarService := columnar.NewService(dataRoot, log)

	// Services
	log.Info("Setting up services from main...")
	codec, err := publicid.NewCodec()
	if err != nil {
		log.Error("Could not init public id codec", "error", err)
		os.Exit(1)
	}
	importService := importer.New(log)
	extractService := extractor.New(log, codec, locationMetaRepo, filterMetaRepo, indicatorMetaRepo, timePeriodMetaRepo)
	mapService := mapper.New(log, locationMetaRepo, filterMetaRepo, indicatorMetaRepo, timePeriodMetaRepo, mappingRepo, changeSetRepo)

	sqlDB, err := thePG.DB()
	if err != nil {
		log.Error("Could not obtain sql.DB for advisory locks", "error", err)
		os.Exit(1)
	}
	lockService := locks.New(sqlDB, log)

	// Event bus
	bus, err := events.NewRedisBus(log)
	if err != nil {
		log.Warn("Redis bus unavailable, import events disabled", "error", err)
		bus = events.NopBus{}
	}
	defer bus.Close()

	// Temporal
	tc, err := temporalx.NewClient(log)
	if err != nil {
		log.Error("Temporal client init failed", "error", err)
		os.Exit(1)
	}
	if tc == nil {
		log.Error("TEMPORAL_ADDRESS is not set; worker cannot start")
		os.Exit(1)
	}
	defer tc.Close()

	acts := &versionimport.Activities{
		Log:         log,
		DB:          thePG,
		Sets:        dataSetRepo,
		Versions:    dataSetVersionRepo,
		Imports:     dataSetVersionImportRepo,
		Locations:   locationMetaRepo,
		Filters:     filterMetaRepo,
		Indicators:  indicatorMetaRepo,
		TimePeriods: timePeriodMetaRepo,
		Columnar:    columnarService,
		Importer:    importService,
		Extractor:   extractService,
		Mapper:      mapService,
		Locks:       lockService,
		Bus:         bus,
	}

	runner, err := temporalworker.NewRunner(log, tc, acts)
	if err != nil {
		log.Error("Temporal worker init failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := runner.Start(ctx); err != nil {
		log.Error("Temporal worker failed to start", "error", err)
		os.Exit(1)
	}

	log.Info("Worker running", "data_root", dataRoot)
	<-ctx.Done()
	log.Info("Shutting down")
}
