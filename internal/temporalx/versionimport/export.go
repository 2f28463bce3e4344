package versionimport

import (
	"context"
	"database/sql/driver"
	"fmt"

	"github.com/google/uuid"

	"github.com/openstats/datasetsvc/internal/columnar"
	"github.com/openstats/datasetsvc/internal/pkg/dbctx"
)

// exportMetaParquet materializes the version's dimension metadata into the
// engine via the native appender and copies each table out as parquet.
func (a *Activities) exportMetaParquet(ctx context.Context, db *columnar.DB, layout columnar.Layout, versionID uuid.UUID) error {
	dbc := dbctx.New(ctx)

	levels, err := a.Locations.GetLevelsByVersion(dbc, versionID)
	if err != nil {
		return err
	}
	levelByID := make(map[int64]string, len(levels))
	for _, lvl := range levels {
		levelByID[lvl.ID] = string(lvl.Level)
	}
	locOpts, err := a.Locations.GetOptionsByVersion(dbc, versionID)
	if err != nil {
		return err
	}
	locRows := make([][]driver.Value, 0, len(locOpts))
	for _, o := range locOpts {
		locRows = append(locRows, []driver.Value{
			o.ID, o.PublicID, levelByID[o.LocationMetaID], o.Label, string(o.Type),
			nullable(o.Code), nullable(o.OldCode), nullable(o.UKPRN), nullable(o.URN), nullable(o.LAEstab),
		})
	}
	if err := exportTable(ctx, db, "meta_locations", layout.Path(columnar.LocationsParquetFile),
		"id BIGINT, public_id VARCHAR, level VARCHAR, label VARCHAR, type VARCHAR, "+
			"code VARCHAR, old_code VARCHAR, ukprn VARCHAR, urn VARCHAR, la_estab VARCHAR",
		locRows); err != nil {
		return err
	}

	filters, err := a.Filters.GetFiltersByVersion(dbc, versionID)
	if err != nil {
		return err
	}
	filterRows := make([][]driver.Value, 0, len(filters))
	for _, f := range filters {
		filterRows = append(filterRows, []driver.Value{
			f.ID, f.PublicID, f.ColumnName, f.Label, f.Hint, f.Hierarchical,
		})
	}
	if err := exportTable(ctx, db, "meta_filters", layout.Path(columnar.FiltersParquetFile),
		"id BIGINT, public_id VARCHAR, column_name VARCHAR, label VARCHAR, hint VARCHAR, hierarchical BOOLEAN",
		filterRows); err != nil {
		return err
	}

	filterOpts, err := a.Filters.GetOptionsByVersion(dbc, versionID)
	if err != nil {
		return err
	}
	optRows := make([][]driver.Value, 0, len(filterOpts))
	for _, o := range filterOpts {
		optRows = append(optRows, []driver.Value{
			o.ID, o.PublicID, o.FilterMetaID, o.Label, o.GroupLabel,
		})
	}
	if err := exportTable(ctx, db, "meta_filter_options", layout.Path(columnar.FilterOptionsParquetFile),
		"id BIGINT, public_id VARCHAR, filter_id BIGINT, label VARCHAR, group_label VARCHAR",
		optRows); err != nil {
		return err
	}

	indicators, err := a.Indicators.GetByVersion(dbc, versionID)
	if err != nil {
		return err
	}
	indRows := make([][]driver.Value, 0, len(indicators))
	for _, ind := range indicators {
		var dp driver.Value
		if ind.DecimalPlaces != nil {
			dp = int32(*ind.DecimalPlaces)
		}
		indRows = append(indRows, []driver.Value{
			ind.ID, ind.PublicID, ind.ColumnName, ind.Label, ind.Unit, dp,
		})
	}
	if err := exportTable(ctx, db, "meta_indicators", layout.Path(columnar.IndicatorsParquetFile),
		"id BIGINT, public_id VARCHAR, column_name VARCHAR, label VARCHAR, unit VARCHAR, decimal_places INTEGER",
		indRows); err != nil {
		return err
	}

	periods, err := a.TimePeriods.GetByVersion(dbc, versionID)
	if err != nil {
		return err
	}
	tpRows := make([][]driver.Value, 0, len(periods))
	for _, p := range periods {
		tpRows = append(tpRows, []driver.Value{
			p.ID, p.PublicID, int32(p.Year), string(p.Code),
		})
	}
	return exportTable(ctx, db, "meta_time_periods", layout.Path(columnar.TimePeriodsParquetFile),
		"id BIGINT, public_id VARCHAR, year INTEGER, code VARCHAR",
		tpRows)
}

func exportTable(ctx context.Context, db *columnar.DB, table, path, schema string, rows [][]driver.Value) error {
	if _, err := db.SQL().ExecContext(ctx, fmt.Sprintf("CREATE OR REPLACE TABLE %s (%s)", table, schema)); err != nil {
		return err
	}
	app, err := db.Appender("", table)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if err := app.AppendRow(row...); err != nil {
			_ = app.Close()
			return err
		}
	}
	if err := app.Close(); err != nil {
		return err
	}
	return copyTableToParquet(ctx, db, table, path)
}

func nullable(s *string) driver.Value {
	if s == nil {
		return nil
	}
	return *s
}
