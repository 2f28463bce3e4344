package extractor_test

import (
	"context"
	"testing"

	"github.com/openstats/datasetsvc/internal/columnar"
	"github.com/openstats/datasetsvc/internal/data/repos"
	"github.com/openstats/datasetsvc/internal/data/repos/testutil"
	types "github.com/openstats/datasetsvc/internal/domain"
	"github.com/openstats/datasetsvc/internal/extractor"
	"github.com/openstats/datasetsvc/internal/importer"
	"github.com/openstats/datasetsvc/internal/pkg/dbctx"
	"github.com/openstats/datasetsvc/internal/publicid"
)

func TestExtractAndPersist(t *testing.T) {
	gdb := testutil.DB(t)
	log := testutil.Logger(t)
	tx := testutil.Tx(t, gdb)
	ctx := context.Background()
	dbc := dbctx.WithTx(ctx, tx)

	ds := testutil.SeedDataSet(t, ctx, tx)
	version := testutil.SeedDataSetVersion(t, ctx, tx, ds.ID, 1, types.DataSetVersionStatusDraft)

	eng, err := columnar.Open("")
	if err != nil {
		t.Fatalf("open engine: %v", err)
	}
	defer eng.Close()
	if _, err := eng.SQL().ExecContext(ctx, `CREATE TABLE `+importer.StagingDataTable+` AS
		SELECT * FROM (VALUES
			('2022',   'AY', 'National',        'E92000001', 'England', '',          '',       'Primary',   'State-funded', '10'),
			('202324', 'AY', 'National',        'E92000001', 'England', '',          '',       'Secondary', 'State-funded', '20'),
			('2022',   'AY', 'Local authority', '',          '',        'E09000003', 'Barnet', 'Primary',   'State-funded', '30')
		) t(time_period, time_identifier, geographic_level, country_code, country_name, new_la_code, la_name, school_type, school_group, enrolments)`); err != nil {
		t.Fatalf("stage data: %v", err)
	}

	res := importer.Result{
		RowCount: 3,
		DataColumns: []string{
			"time_period", "time_identifier", "geographic_level",
			"country_code", "country_name", "new_la_code", "la_name",
			"school_type", "school_group", "enrolments",
		},
		MetaRows: []importer.MetaFileRow{
			{ColName: "school_type", ColType: importer.ColumnTypeFilter, Label: "School type", FilterGroupingColumn: "school_group"},
			{ColName: "enrolments", ColType: importer.ColumnTypeIndicator, Label: "Number of enrolments", IndicatorUnit: ""},
		},
	}

	codec, err := publicid.NewCodec()
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	locations := repos.NewLocationMetaRepo(gdb, log)
	filters := repos.NewFilterMetaRepo(gdb, log)
	indicators := repos.NewIndicatorMetaRepo(gdb, log)
	timePeriods := repos.NewTimePeriodMetaRepo(gdb, log)
	ex := extractor.New(log, codec, locations, filters, indicators, timePeriods)

	summary, err := ex.ExtractAndPersist(dbc, eng, version.ID, res)
	if err != nil {
		t.Fatalf("ExtractAndPersist: %v", err)
	}
	if summary.Locations != 2 || summary.Filters != 1 || summary.Options != 2 ||
		summary.Indicators != 1 || summary.TimePeriods != 2 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	opts, err := locations.GetOptionsByVersion(dbc, version.ID)
	if err != nil {
		t.Fatalf("GetOptionsByVersion: %v", err)
	}
	if len(opts) != 2 {
		t.Fatalf("expected 2 location options, got %d", len(opts))
	}
	for _, o := range opts {
		if o.PublicID == "" {
			t.Fatalf("option %d has no public id", o.ID)
		}
		switch o.Type {
		case types.LocationOptionTypeCoded:
			if o.OldCode != nil || o.UKPRN != nil || o.URN != nil || o.LAEstab != nil {
				t.Fatalf("coded option carries foreign variant fields: %+v", o)
			}
		case types.LocationOptionTypeLocalAuthority:
			if o.Code == nil || *o.Code != "E09000003" {
				t.Fatalf("expected LA code, got %+v", o)
			}
			if o.UKPRN != nil || o.URN != nil || o.LAEstab != nil {
				t.Fatalf("LA option carries foreign variant fields: %+v", o)
			}
		default:
			t.Fatalf("unexpected option type %q", o.Type)
		}
	}

	// A retried extraction replaces, never duplicates.
	if _, err := ex.ExtractAndPersist(dbc, eng, version.ID, res); err != nil {
		t.Fatalf("second ExtractAndPersist: %v", err)
	}
	opts, err = locations.GetOptionsByVersion(dbc, version.ID)
	if err != nil {
		t.Fatalf("GetOptionsByVersion after retry: %v", err)
	}
	if len(opts) != 2 {
		t.Fatalf("retry duplicated options: got %d", len(opts))
	}
}
