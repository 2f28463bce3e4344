package versionimport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"gorm.io/gorm"

	"github.com/openstats/datasetsvc/internal/columnar"
	"github.com/openstats/datasetsvc/internal/data/repos"
	types "github.com/openstats/datasetsvc/internal/domain"
	"github.com/openstats/datasetsvc/internal/events"
	"github.com/openstats/datasetsvc/internal/extractor"
	"github.com/openstats/datasetsvc/internal/importer"
	"github.com/openstats/datasetsvc/internal/locks"
	"github.com/openstats/datasetsvc/internal/mapper"
	"github.com/openstats/datasetsvc/internal/pkg/dbctx"
	pkgerrors "github.com/openstats/datasetsvc/internal/pkg/errors"
	"github.com/openstats/datasetsvc/internal/pkg/logger"
	"github.com/openstats/datasetsvc/internal/query"
)

type Activities struct {
	Log         *logger.Logger
	DB          *gorm.DB
	Sets        repos.DataSetRepo
	Versions    repos.DataSetVersionRepo
	Imports     repos.DataSetVersionImportRepo
	Locations   repos.LocationMetaRepo
	Filters     repos.FilterMetaRepo
	Indicators  repos.IndicatorMetaRepo
	TimePeriods repos.TimePeriodMetaRepo
	Columnar    *columnar.Service
	Importer    *importer.Importer
	Extractor   *extractor.Extractor
	Mapper      *mapper.Mapper
	Locks       *locks.Service
	Bus         events.Bus
}

// run bundles the rows every stage needs.
type run struct {
	imp     *types.DataSetVersionImport
	version *types.DataSetVersion
}

func (a *Activities) load(ctx context.Context, importID uuid.UUID) (*run, error) {
	dbc := dbctx.New(ctx)
	imp, err := a.Imports.GetByID(dbc, importID)
	if err != nil {
		return nil, asAppError(err)
	}
	version, err := a.Versions.GetByID(dbc, imp.DataSetVersionID)
	if err != nil {
		return nil, asAppError(err)
	}
	return &run{imp: imp, version: version}, nil
}

func (a *Activities) Validate(ctx context.Context, in Input) error {
	r, err := a.load(ctx, in.ImportID)
	if err != nil {
		return err
	}
	dbc := dbctx.New(ctx)
	if a.Imports.StageComplete(r.imp, types.StageValidate) {
		return nil
	}

	if r.version.Status != types.DataSetVersionStatusDraft {
		return temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("version %s is %s, only Draft versions can be imported", r.version.ID, r.version.Status),
			"Conflict", nil,
		)
	}
	for _, p := range []string{r.imp.DataFilePath, r.imp.MetaFilePath} {
		if _, err := os.Stat(p); err != nil {
			return temporal.NewNonRetryableApplicationError(
				fmt.Sprintf("source file %q is not readable", p), "InvalidArgument", err,
			)
		}
	}

	if err := a.Imports.UpdateFields(dbc, r.imp.ID, map[string]interface{}{
		"status": types.ImportStatusRunning,
		"stage":  types.StageValidate,
	}); err != nil {
		return err
	}
	if err := a.Imports.MarkStageComplete(dbc, r.imp.ID, types.StageValidate); err != nil {
		return err
	}
	a.publish(ctx, r, types.StageValidate, "completed", "")
	return nil
}

func (a *Activities) ImportData(ctx context.Context, in Input) error {
	r, err := a.load(ctx, in.ImportID)
	if err != nil {
		return err
	}
	dbc := dbctx.New(ctx)
	if a.Imports.StageComplete(r.imp, types.StageImportData) {
		return nil
	}
	if err := a.Imports.UpdateFields(dbc, r.imp.ID, map[string]interface{}{"stage": types.StageImportData}); err != nil {
		return err
	}

	// The heartbeat must already be running while we wait on the lock:
	// blocking behind another run's hours-long hold is expected, not a
	// reason to trip the heartbeat timeout.
	stop := a.heartbeat(ctx)
	defer stop()

	// The version directory and its database file are single-writer; the
	// lock serializes against any other run importing into the same engine.
	err = a.Locks.WithLock(ctx, ActivityImportData, func(ctx context.Context) error {
		db, err := a.Columnar.OpenVersion(r.version.Directory, r.version.ID.String())
		if err != nil {
			return err
		}
		defer db.Close()

		res, err := a.Importer.ImportFiles(ctx, db, r.version.SubjectID, r.imp.DataFilePath, r.imp.MetaFilePath)
		if err != nil {
			return err
		}

		layout := a.Columnar.Layout(r.version.Directory)
		if err := copyFile(r.imp.DataFilePath, layout.Path(retainedName(r.imp.DataFilePath, columnar.DataCSVFile, columnar.DataCSVGzFile))); err != nil {
			return err
		}
		if err := copyFile(r.imp.MetaFilePath, layout.Path(retainedName(r.imp.MetaFilePath, columnar.MetaCSVFile, columnar.MetaCSVGzFile))); err != nil {
			return err
		}

		return a.Versions.UpdateFields(dbc, r.version.ID, map[string]interface{}{
			"total_rows": res.RowCount,
		})
	})
	if err != nil {
		return asAppError(err)
	}

	if err := a.Imports.MarkStageComplete(dbc, r.imp.ID, types.StageImportData); err != nil {
		return err
	}
	a.publish(ctx, r, types.StageImportData, "completed", "")
	return nil
}

func (a *Activities) ExtractMetadata(ctx context.Context, in Input) error {
	r, err := a.load(ctx, in.ImportID)
	if err != nil {
		return err
	}
	dbc := dbctx.New(ctx)
	if a.Imports.StageComplete(r.imp, types.StageExtractMetadata) {
		return nil
	}
	if err := a.Imports.UpdateFields(dbc, r.imp.ID, map[string]interface{}{"stage": types.StageExtractMetadata}); err != nil {
		return err
	}

	stop := a.heartbeat(ctx)
	defer stop()

	err = a.Locks.WithLock(ctx, ActivityExtractMetadata, func(ctx context.Context) error {
		db, err := a.Columnar.OpenVersion(r.version.Directory, r.version.ID.String())
		if err != nil {
			return err
		}
		defer db.Close()

		res, err := a.Importer.LoadStaged(ctx, db, r.version.SubjectID)
		if err != nil {
			return err
		}
		_, err = a.Extractor.ExtractAndPersist(dbctx.New(ctx), db, r.version.ID, *res)
		return err
	})
	if err != nil {
		return asAppError(err)
	}

	if err := a.Imports.MarkStageComplete(dbc, r.imp.ID, types.StageExtractMetadata); err != nil {
		return err
	}
	a.publish(ctx, r, types.StageExtractMetadata, "completed", "")
	return nil
}

func (a *Activities) ComputeMapping(ctx context.Context, in Input) error {
	r, err := a.load(ctx, in.ImportID)
	if err != nil {
		return err
	}
	dbc := dbctx.New(ctx)
	if a.Imports.StageComplete(r.imp, types.StageComputeMapping) {
		return nil
	}
	if err := a.Imports.UpdateFields(dbc, r.imp.ID, map[string]interface{}{"stage": types.StageComputeMapping}); err != nil {
		return err
	}

	previous, err := a.Versions.GetLatestPublished(dbc, r.version.DataSetID)
	if err != nil {
		return err
	}

	stop := a.heartbeat(ctx)
	defer stop()

	// The renumbering below may move the version directory, so it runs
	// under the same exclusivity as the other directory writers.
	err = a.Locks.WithLock(ctx, ActivityComputeMapping, func(ctx context.Context) error {
		dbc := dbctx.New(ctx)
		mapping, err := a.computeMapping(dbc, previous, r)
		if err != nil {
			return err
		}
		return a.applyBump(dbc, previous, r, mapping.Bump)
	})
	if err != nil {
		return asAppError(err)
	}

	if err := a.Imports.MarkStageComplete(dbc, r.imp.ID, types.StageComputeMapping); err != nil {
		return err
	}
	a.publish(ctx, r, types.StageComputeMapping, "completed", "")
	return nil
}

func (a *Activities) computeMapping(dbc dbctx.Context, previous *types.DataSetVersion, r *run) (*types.DataSetVersionMapping, error) {
	if previous == nil {
		return a.Mapper.ComputeAndPersist(dbc, nil, r.version.ID)
	}
	id := previous.ID
	return a.Mapper.ComputeAndPersist(dbc, &id, r.version.ID)
}

// applyBump renumbers the Draft according to the computed bump and moves
// its directory to the new semver path. A first version is always 1.0.0.
func (a *Activities) applyBump(dbc dbctx.Context, previous *types.DataSetVersion, r *run, bump types.VersionBump) error {
	major, minor, patch := 1, 0, 0
	if previous != nil {
		switch bump {
		case types.VersionBumpMajor:
			major, minor, patch = previous.VersionMajor+1, 0, 0
		case types.VersionBumpMinor:
			major, minor, patch = previous.VersionMajor, previous.VersionMinor+1, 0
		default:
			major, minor, patch = previous.VersionMajor, previous.VersionMinor, previous.VersionPatch+1
		}
	}
	if major == r.version.VersionMajor && minor == r.version.VersionMinor && patch == r.version.VersionPatch {
		return nil
	}

	renumbered := *r.version
	renumbered.VersionMajor, renumbered.VersionMinor, renumbered.VersionPatch = major, minor, patch
	newDir := renumbered.DefaultDirectory()

	oldPath := a.Columnar.Layout(r.version.Directory).Dir()
	newPath := a.Columnar.Layout(newDir).Dir()
	if oldPath != newPath {
		if err := moveDir(oldPath, newPath); err != nil {
			return err
		}
	}

	if err := a.Versions.UpdateFields(dbc, r.version.ID, map[string]interface{}{
		"version_major": major,
		"version_minor": minor,
		"version_patch": patch,
		"directory":     newDir,
	}); err != nil {
		return err
	}
	r.version.VersionMajor, r.version.VersionMinor, r.version.VersionPatch = major, minor, patch
	r.version.Directory = newDir
	return nil
}

func (a *Activities) Finalize(ctx context.Context, in Input) error {
	r, err := a.load(ctx, in.ImportID)
	if err != nil {
		return err
	}
	dbc := dbctx.New(ctx)
	if a.Imports.StageComplete(r.imp, types.StageFinalize) {
		return nil
	}
	if err := a.Imports.UpdateFields(dbc, r.imp.ID, map[string]interface{}{"stage": types.StageFinalize}); err != nil {
		return err
	}

	stop := a.heartbeat(ctx)
	defer stop()

	err = a.Locks.WithLock(ctx, ActivityFinalize, func(ctx context.Context) error {
		return a.finalizeFiles(ctx, r)
	})
	if err != nil {
		return asAppError(err)
	}

	now := time.Now().UTC()
	if err := a.Versions.Publish(dbc, r.version.ID, now); err != nil {
		return asAppError(err)
	}
	if err := a.Sets.SetLatestLiveVersion(dbc, r.version.DataSetID, r.version.ID); err != nil {
		return err
	}
	if err := a.Imports.MarkStageComplete(dbc, r.imp.ID, types.StageFinalize); err != nil {
		return err
	}
	if err := a.Imports.MarkCompleted(dbc, r.imp.ID); err != nil {
		return err
	}
	a.publish(ctx, r, types.StageFinalize, "completed", "")
	return nil
}

func (a *Activities) MarkFailed(ctx context.Context, fail FailInput) error {
	dbc := dbctx.New(ctx)
	if err := a.Imports.MarkFailed(dbc, fail.ImportID, fail.Stage, fail.Detail); err != nil {
		return err
	}
	if a.Bus != nil {
		imp, err := a.Imports.GetByID(dbc, fail.ImportID)
		versionID := fail.ImportID
		if err == nil {
			versionID = imp.DataSetVersionID
		}
		_ = a.Bus.Publish(ctx, events.ImportEvent{
			ImportID:         fail.ImportID,
			DataSetVersionID: versionID,
			Stage:            string(fail.Stage),
			Status:           "failed",
			Detail:           fail.Detail,
		})
	}
	return nil
}

// finalizeFiles writes the version's immutable artifacts: the observation
// parquet exported from the staging table, one parquet per metadata
// dimension, and the load script rebuilding views over them.
func (a *Activities) finalizeFiles(ctx context.Context, r *run) error {
	db, err := a.Columnar.OpenVersion(r.version.Directory, r.version.ID.String())
	if err != nil {
		return err
	}
	defer db.Close()

	layout := a.Columnar.Layout(r.version.Directory)

	if err := copyTableToParquet(ctx, db, importer.StagingDataTable, layout.DataParquetPath()); err != nil {
		return err
	}
	if err := a.exportMetaParquet(ctx, db, layout, r.version.ID); err != nil {
		return err
	}

	script := loadScript()
	if err := os.WriteFile(layout.LoadScriptPath(), []byte(script), 0o644); err != nil {
		return err
	}
	return nil
}

func (a *Activities) heartbeat(ctx context.Context) func() {
	return heartbeatLoop(ctx, 15*time.Second, func() { activity.RecordHeartbeat(ctx) })
}

// heartbeatLoop beats in the background until the returned stop func is
// called, covering lock waits and long engine work alike.
func heartbeatLoop(ctx context.Context, every time.Duration, beat func()) func() {
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				beat()
			}
		}
	}()
	return func() { close(stop) }
}

func (a *Activities) publish(ctx context.Context, r *run, stage types.ImportStage, status, detail string) {
	if a.Bus == nil {
		return
	}
	if err := a.Bus.Publish(ctx, events.ImportEvent{
		ImportID:         r.imp.ID,
		DataSetVersionID: r.version.ID,
		Stage:            string(stage),
		Status:           status,
		Detail:           detail,
	}); err != nil {
		a.Log.Warn("failed to publish import event", "import_id", r.imp.ID, "stage", stage, "error", err)
	}
}

// asAppError converts domain failures into non-retryable application
// errors so the retry policy stops immediately; everything else passes
// through and retries under the activity policy.
func asAppError(err error) error {
	if err == nil {
		return nil
	}
	typ := ""
	switch {
	case errors.As(err, new(*importer.InvalidRowError)):
		typ = "InvalidRowError"
	case errors.As(err, new(*importer.InvalidMetaHeaderError)):
		typ = "InvalidMetaHeaderError"
	case errors.As(err, new(*importer.InvalidMetaRowError)):
		typ = "InvalidMetaRowError"
	case errors.As(err, new(*importer.InvalidObservationError)):
		typ = "InvalidObservationError"
	case errors.As(err, new(*extractor.InvalidGeographicLevelError)):
		typ = "InvalidGeographicLevelError"
	case errors.As(err, new(*extractor.InvalidTimeIdentifierError)):
		typ = "InvalidTimeIdentifierError"
	case errors.As(err, new(*extractor.InvalidTimePeriodError)):
		typ = "InvalidTimePeriodError"
	case errors.As(err, new(*mapper.DuplicateKeyError)):
		typ = "DuplicateKeyError"
	case errors.As(err, new(*mapper.InvalidHierarchyLinkError)):
		typ = "InvalidHierarchyLinkError"
	case errors.As(err, new(*query.ValidationError)):
		typ = "InvalidArgument"
	case errors.Is(err, pkgerrors.ErrNotFound):
		typ = "NotFound"
	case errors.Is(err, pkgerrors.ErrConflict):
		typ = "Conflict"
	case errors.Is(err, pkgerrors.ErrInvalidArgument):
		typ = "InvalidArgument"
	default:
		return err
	}
	return temporal.NewNonRetryableApplicationError(err.Error(), typ, err)
}

func copyTableToParquet(ctx context.Context, db *columnar.DB, table, path string) error {
	stmt := fmt.Sprintf("COPY %s TO '%s' (FORMAT PARQUET)", table, strings.ReplaceAll(path, "'", "''"))
	_, err := db.SQL().ExecContext(ctx, stmt)
	return err
}

// retainedName keeps the gz suffix of a source file when present.
func retainedName(src, plain, gz string) string {
	if strings.HasSuffix(strings.ToLower(src), ".gz") {
		return gz
	}
	return plain
}

// moveDir renames a version directory. A retry after a crash between the
// rename and the row update finds the move already done; treat that as
// success instead of failing every attempt.
func moveDir(oldPath, newPath string) error {
	if _, err := os.Stat(oldPath); os.IsNotExist(err) {
		if _, err := os.Stat(newPath); err == nil {
			return nil
		}
	}
	return os.Rename(oldPath, newPath)
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func loadScript() string {
	return strings.Join([]string{
		"CREATE OR REPLACE VIEW data AS SELECT * FROM read_parquet('" + columnar.DataParquetFile + "');",
		"CREATE OR REPLACE VIEW filters AS SELECT * FROM read_parquet('" + columnar.FiltersParquetFile + "');",
		"CREATE OR REPLACE VIEW filter_options AS SELECT * FROM read_parquet('" + columnar.FilterOptionsParquetFile + "');",
		"CREATE OR REPLACE VIEW locations AS SELECT * FROM read_parquet('" + columnar.LocationsParquetFile + "');",
		"CREATE OR REPLACE VIEW time_periods AS SELECT * FROM read_parquet('" + columnar.TimePeriodsParquetFile + "');",
		"CREATE OR REPLACE VIEW indicators AS SELECT * FROM read_parquet('" + columnar.IndicatorsParquetFile + "');",
		"",
	}, "\n")
}
