package query_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/openstats/datasetsvc/internal/columnar"
	"github.com/openstats/datasetsvc/internal/data/repos"
	"github.com/openstats/datasetsvc/internal/data/repos/testutil"
	types "github.com/openstats/datasetsvc/internal/domain"
	"github.com/openstats/datasetsvc/internal/pkg/dbctx"
	"github.com/openstats/datasetsvc/internal/query"
)

func newTranslator(t *testing.T) (*query.Translator, dbctx.Context) {
	t.Helper()
	gdb := testutil.DB(t)
	log := testutil.Logger(t)
	tx := testutil.Tx(t, gdb)
	dbc := dbctx.WithTx(context.Background(), tx)

	store := columnar.NewService(t.TempDir(), log)
	tr := query.New(
		log,
		repos.NewDataSetVersionRepo(gdb, log),
		repos.NewLocationMetaRepo(gdb, log),
		repos.NewFilterMetaRepo(gdb, log),
		repos.NewIndicatorMetaRepo(gdb, log),
		repos.NewTimePeriodMetaRepo(gdb, log),
		store,
	)
	return tr, dbc
}

func TestTranslateRefusesDraftVersion(t *testing.T) {
	tr, dbc := newTranslator(t)
	tx := dbc.Tx
	ctx := dbc.Ctx

	ds := testutil.SeedDataSet(t, ctx, tx)
	version := testutil.SeedDataSetVersion(t, ctx, tx, ds.ID, 1, types.DataSetVersionStatusDraft)

	q := &query.FullTableQuery{
		SubjectID:   version.SubjectID,
		LocationIDs: []int64{1},
		TimePeriod: &query.TimePeriodRange{
			StartYear: 2022, StartCode: types.TimeAcademicYear,
			EndYear: 2022, EndCode: types.TimeAcademicYear,
		},
		IndicatorIDs: []int64{1},
	}
	_, err := tr.Translate(dbc, q)
	var notQueryable *query.VersionNotQueryableError
	if !errors.As(err, &notQueryable) {
		t.Fatalf("expected VersionNotQueryableError, got %v", err)
	}
	if notQueryable.Status != types.DataSetVersionStatusDraft {
		t.Fatalf("unexpected status %q", notQueryable.Status)
	}
}

func TestTranslateBuildsParquetQuery(t *testing.T) {
	tr, dbc := newTranslator(t)
	tx := dbc.Tx
	ctx := dbc.Ctx
	gdb := testutil.DB(t)
	log := testutil.Logger(t)

	ds := testutil.SeedDataSet(t, ctx, tx)
	version := testutil.SeedDataSetVersion(t, ctx, tx, ds.ID, 1, types.DataSetVersionStatusPublished)

	locations := repos.NewLocationMetaRepo(gdb, log)
	indicators := repos.NewIndicatorMetaRepo(gdb, log)
	timePeriods := repos.NewTimePeriodMetaRepo(gdb, log)

	levels, err := locations.CreateLevels(dbc, []*types.LocationMeta{
		{DataSetVersionID: version.ID, Level: types.LevelNational},
	})
	if err != nil {
		t.Fatalf("seed level: %v", err)
	}
	optRow := types.NewLocationOptionMeta(version.ID, levels[0].ID, "England", types.LocationCodedOption{
		OptionLevel: types.LevelNational, Code: "E92000001",
	})
	opts, err := locations.CreateOptions(dbc, []*types.LocationOptionMeta{&optRow})
	if err != nil {
		t.Fatalf("seed option: %v", err)
	}
	inds, err := indicators.Create(dbc, []*types.IndicatorMeta{
		{DataSetVersionID: version.ID, ColumnName: "enrolments", Label: "Enrolments"},
	})
	if err != nil {
		t.Fatalf("seed indicator: %v", err)
	}
	if _, err := timePeriods.Create(dbc, []*types.TimePeriodMeta{
		{DataSetVersionID: version.ID, Year: 2022, Code: types.TimeAcademicYear},
	}); err != nil {
		t.Fatalf("seed period: %v", err)
	}

	q := &query.FullTableQuery{
		SubjectID:   version.SubjectID,
		LocationIDs: []int64{opts[0].ID},
		TimePeriod: &query.TimePeriodRange{
			StartYear: 2022, StartCode: types.TimeAcademicYear,
			EndYear: 2022, EndCode: types.TimeAcademicYear,
		},
		IndicatorIDs: []int64{inds[0].ID},
	}
	trn, err := tr.Translate(dbc, q)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if !strings.HasPrefix(trn.SQL, "SELECT ") || !strings.Contains(trn.SQL, "read_parquet(?)") {
		t.Fatalf("unexpected SQL: %q", trn.SQL)
	}
	if !strings.Contains(trn.SQL, `"enrolments"`) {
		t.Fatalf("select list missing indicator column: %q", trn.SQL)
	}
	if len(trn.Args) == 0 {
		t.Fatalf("expected parquet path as first arg")
	}
	path, ok := trn.Args[0].(string)
	if !ok || !strings.HasSuffix(path, columnar.DataParquetFile) {
		t.Fatalf("first arg should be the data parquet path, got %v", trn.Args[0])
	}
}
