package services_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/openstats/datasetsvc/internal/data/repos"
	"github.com/openstats/datasetsvc/internal/data/repos/testutil"
	types "github.com/openstats/datasetsvc/internal/domain"
	"github.com/openstats/datasetsvc/internal/pkg/dbctx"
	pkgerrors "github.com/openstats/datasetsvc/internal/pkg/errors"
	"github.com/openstats/datasetsvc/internal/services"
)

// A second import for a data set must be refused while the first is still
// in flight: both would claim the same provisional version number.
func TestStartImportRefusedWhileImportInFlight(t *testing.T) {
	gdb := testutil.DB(t)
	log := testutil.Logger(t)
	tx := testutil.Tx(t, gdb)
	ctx := context.Background()
	dbc := dbctx.WithTx(ctx, tx)

	sets := repos.NewDataSetRepo(tx, log)
	versions := repos.NewDataSetVersionRepo(tx, log)
	imports := repos.NewDataSetVersionImportRepo(tx, log)

	ds := testutil.SeedDataSet(t, ctx, tx)
	v := testutil.SeedDataSetVersion(t, ctx, tx, ds.ID, 1, types.DataSetVersionStatusDraft)
	if _, err := imports.Create(dbc, []*types.DataSetVersionImport{{
		DataSetVersionID: v.ID,
		InstanceID:       uuid.New(),
		Status:           types.ImportStatusRunning,
		Stage:            types.StageImportData,
		DataFilePath:     "/srv/uploads/data.csv",
		MetaFilePath:     "/srv/uploads/data.meta.csv",
		CompletedStages:  datatypes.JSON("[]"),
	}}); err != nil {
		t.Fatalf("seed import: %v", err)
	}

	svc := services.NewVersionImportService(log, tx, sets, versions, imports, nil)
	_, err := svc.StartImport(ctx, services.StartImportInput{
		DataSetID:    ds.ID,
		DataFilePath: "/srv/uploads/next.csv",
		MetaFilePath: "/srv/uploads/next.meta.csv",
	})
	if !errors.Is(err, pkgerrors.ErrConflict) {
		t.Fatalf("expected ErrConflict while an import is in flight, got %v", err)
	}
}
