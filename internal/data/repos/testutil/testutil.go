package testutil

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/openstats/datasetsvc/internal/data/db"
	types "github.com/openstats/datasetsvc/internal/domain"
	"github.com/openstats/datasetsvc/internal/pkg/logger"
)

var errMissingDSN = errors.New("missing TEST_POSTGRES_DSN")

var (
	dbOnce sync.Once
	gdb    *gorm.DB
	dbErr  error

	logOnce sync.Once
	logg    *logger.Logger
	logErr  error
)

func Logger(tb testing.TB) *logger.Logger {
	tb.Helper()
	logOnce.Do(func() {
		logg, logErr = logger.New("test")
	})
	if logErr != nil {
		tb.Fatalf("failed to init logger: %v", logErr)
	}
	return logg
}

func DB(tb testing.TB) *gorm.DB {
	tb.Helper()

	dbOnce.Do(func() {
		dsn := os.Getenv("TEST_POSTGRES_DSN")
		if dsn == "" {
			dbErr = errMissingDSN
			return
		}

		var err error
		gdb, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
			DisableForeignKeyConstraintWhenMigrating: true,
			Logger:                                   gormLogger.Default.LogMode(gormLogger.Silent),
		})
		if err != nil {
			dbErr = err
			return
		}

		if err := gdb.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
			dbErr = err
			return
		}

		if err := db.AutoMigrateAll(gdb); err != nil {
			dbErr = err
			return
		}
	})

	if errors.Is(dbErr, errMissingDSN) {
		tb.Skip("set TEST_POSTGRES_DSN to run repo integration tests")
	}
	if dbErr != nil {
		tb.Fatalf("failed to init test db: %v", dbErr)
	}
	return gdb
}

func Tx(tb testing.TB, db *gorm.DB) *gorm.DB {
	tb.Helper()
	tx := db.Begin()
	if tx.Error != nil {
		tb.Fatalf("begin tx: %v", tx.Error)
	}
	tb.Cleanup(func() {
		_ = tx.Rollback().Error
	})
	return tx
}

func SeedDataSet(tb testing.TB, ctx context.Context, tx *gorm.DB) *types.DataSet {
	tb.Helper()
	ds := &types.DataSet{
		ID:          uuid.New(),
		Title:       "Pupil absence in schools",
		Summary:     "Absence statistics by school, authority and region",
		PublisherID: uuid.New(),
		Status:      types.DataSetStatusDraft,
	}
	if err := tx.WithContext(ctx).Create(ds).Error; err != nil {
		tb.Fatalf("seed data set: %v", err)
	}
	return ds
}

func SeedDataSetVersion(tb testing.TB, ctx context.Context, tx *gorm.DB, dataSetID uuid.UUID, major int, status types.DataSetVersionStatus) *types.DataSetVersion {
	tb.Helper()
	v := &types.DataSetVersion{
		ID:           uuid.New(),
		DataSetID:    dataSetID,
		SubjectID:    uuid.New(),
		VersionMajor: major,
		VersionMinor: 0,
		VersionPatch: 0,
		Status:       status,
	}
	v.Directory = v.DefaultDirectory()
	if err := tx.WithContext(ctx).Create(v).Error; err != nil {
		tb.Fatalf("seed data set version: %v", err)
	}
	return v
}
