package mapper_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openstats/datasetsvc/internal/data/repos"
	"github.com/openstats/datasetsvc/internal/data/repos/testutil"
	types "github.com/openstats/datasetsvc/internal/domain"
	"github.com/openstats/datasetsvc/internal/mapper"
	"github.com/openstats/datasetsvc/internal/pkg/dbctx"
	"github.com/openstats/datasetsvc/internal/pkg/logger"
)

type mapperFixture struct {
	m           *mapper.Mapper
	locations   repos.LocationMetaRepo
	filters     repos.FilterMetaRepo
	indicators  repos.IndicatorMetaRepo
	timePeriods repos.TimePeriodMetaRepo
	mappings    repos.MappingRepo
	changeSets  repos.ChangeSetRepo
	log         *logger.Logger
}

func newMapperFixture(t *testing.T, gdb *gorm.DB) mapperFixture {
	t.Helper()
	log := testutil.Logger(t)
	f := mapperFixture{
		locations:   repos.NewLocationMetaRepo(gdb, log),
		filters:     repos.NewFilterMetaRepo(gdb, log),
		indicators:  repos.NewIndicatorMetaRepo(gdb, log),
		timePeriods: repos.NewTimePeriodMetaRepo(gdb, log),
		mappings:    repos.NewMappingRepo(gdb, log),
		changeSets:  repos.NewChangeSetRepo(gdb, log),
		log:         log,
	}
	f.m = mapper.New(log, f.locations, f.filters, f.indicators, f.timePeriods, f.mappings, f.changeSets)
	return f
}

func seedIndicator(t *testing.T, f mapperFixture, dbc dbctx.Context, versionID uuid.UUID, col, label string) {
	t.Helper()
	rows := []*types.IndicatorMeta{{
		DataSetVersionID: versionID,
		ColumnName:       col,
		Label:            label,
	}}
	if _, err := f.indicators.Create(dbc, rows); err != nil {
		t.Fatalf("seed indicator: %v", err)
	}
}

func TestComputeAndPersistFirstVersionIsAllAdded(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	ctx := context.Background()
	dbc := dbctx.WithTx(ctx, tx)
	f := newMapperFixture(t, gdb)

	ds := testutil.SeedDataSet(t, ctx, tx)
	v1 := testutil.SeedDataSetVersion(t, ctx, tx, ds.ID, 1, types.DataSetVersionStatusDraft)
	seedIndicator(t, f, dbc, v1.ID, "enrolments", "Number of enrolments")

	mapping, err := f.m.ComputeAndPersist(dbc, nil, v1.ID)
	if err != nil {
		t.Fatalf("ComputeAndPersist: %v", err)
	}
	if mapping.SourceVersionID != nil {
		t.Fatalf("first version should have no source")
	}
	if mapping.Bump != types.VersionBumpMinor {
		t.Fatalf("all-added mapping should bump minor, got %q", mapping.Bump)
	}

	var entries []types.MappingEntry
	if err := json.Unmarshal(mapping.IndicatorMappings, &entries); err != nil {
		t.Fatalf("unmarshal indicator mappings: %v", err)
	}
	if len(entries) != 1 || entries[0].Type != types.ChangeTypeAdded {
		t.Fatalf("unexpected indicator entries: %+v", entries)
	}
}

func TestComputeAndPersistDetectsRemovalAndUpdate(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	ctx := context.Background()
	dbc := dbctx.WithTx(ctx, tx)
	f := newMapperFixture(t, gdb)

	ds := testutil.SeedDataSet(t, ctx, tx)
	v1 := testutil.SeedDataSetVersion(t, ctx, tx, ds.ID, 1, types.DataSetVersionStatusPublished)
	v2 := testutil.SeedDataSetVersion(t, ctx, tx, ds.ID, 2, types.DataSetVersionStatusDraft)

	seedIndicator(t, f, dbc, v1.ID, "enrolments", "Number of enrolments")
	seedIndicator(t, f, dbc, v1.ID, "absences", "Number of absences")
	// v2 renames enrolments' label and drops absences entirely.
	seedIndicator(t, f, dbc, v2.ID, "enrolments", "Enrolment count")

	mapping, err := f.m.ComputeAndPersist(dbc, &v1.ID, v2.ID)
	if err != nil {
		t.Fatalf("ComputeAndPersist: %v", err)
	}
	if mapping.Bump != types.VersionBumpMajor {
		t.Fatalf("removal and update should bump major, got %q", mapping.Bump)
	}

	var entries []types.MappingEntry
	if err := json.Unmarshal(mapping.IndicatorMappings, &entries); err != nil {
		t.Fatalf("unmarshal indicator mappings: %v", err)
	}
	byKey := make(map[string]types.MappingEntry, len(entries))
	for _, e := range entries {
		byKey[e.Key] = e
	}
	if byKey[types.IndicatorKey("enrolments")].Type != types.ChangeTypeUpdated {
		t.Fatalf("expected enrolments Updated, got %+v", byKey)
	}
	if byKey[types.IndicatorKey("absences")].Type != types.ChangeTypeRemoved {
		t.Fatalf("expected absences Removed, got %+v", byKey)
	}
}

func TestComputeAndPersistIsIdempotent(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	ctx := context.Background()
	dbc := dbctx.WithTx(ctx, tx)
	f := newMapperFixture(t, gdb)

	ds := testutil.SeedDataSet(t, ctx, tx)
	v1 := testutil.SeedDataSetVersion(t, ctx, tx, ds.ID, 1, types.DataSetVersionStatusDraft)
	seedIndicator(t, f, dbc, v1.ID, "enrolments", "Number of enrolments")

	if _, err := f.m.ComputeAndPersist(dbc, nil, v1.ID); err != nil {
		t.Fatalf("first ComputeAndPersist: %v", err)
	}
	if _, err := f.m.ComputeAndPersist(dbc, nil, v1.ID); err != nil {
		t.Fatalf("second ComputeAndPersist: %v", err)
	}

	mapping, err := f.mappings.GetByTargetVersion(dbc, v1.ID)
	if err != nil {
		t.Fatalf("GetByTargetVersion: %v", err)
	}
	if mapping == nil {
		t.Fatalf("expected a single mapping row after retry")
	}
}

func TestComputeAndPersistRejectsNonHierarchicalLinkLeaf(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	ctx := context.Background()
	dbc := dbctx.WithTx(ctx, tx)
	f := newMapperFixture(t, gdb)

	ds := testutil.SeedDataSet(t, ctx, tx)
	v1 := testutil.SeedDataSetVersion(t, ctx, tx, ds.ID, 1, types.DataSetVersionStatusDraft)

	filters := []*types.FilterMeta{
		{DataSetVersionID: v1.ID, ColumnName: "school_type", Label: "School type", Hierarchical: true},
		{DataSetVersionID: v1.ID, ColumnName: "la_filter", Label: "Authority", Hierarchical: false},
	}
	if _, err := f.filters.CreateFilters(dbc, filters); err != nil {
		t.Fatalf("seed filters: %v", err)
	}
	opts := []*types.FilterOptionMeta{
		{DataSetVersionID: v1.ID, FilterMetaID: filters[0].ID, Label: "Primary"},
		{DataSetVersionID: v1.ID, FilterMetaID: filters[1].ID, Label: "Barnet"},
	}
	if _, err := f.filters.CreateOptions(dbc, opts); err != nil {
		t.Fatalf("seed options: %v", err)
	}
	links := []*types.FilterOptionMetaLink{{
		DataSetVersionID:   v1.ID,
		ParentFilterMetaID: filters[0].ID,
		ParentOptionID:     opts[0].ID,
		ChildFilterMetaID:  filters[1].ID,
		ChildOptionID:      opts[1].ID,
	}}
	if _, err := f.filters.CreateLinks(dbc, links); err != nil {
		t.Fatalf("seed links: %v", err)
	}

	_, err := f.m.ComputeAndPersist(dbc, nil, v1.ID)
	var linkErr *mapper.InvalidHierarchyLinkError
	if !errors.As(err, &linkErr) {
		t.Fatalf("expected InvalidHierarchyLinkError, got %v", err)
	}
	if linkErr.FilterColumn != "la_filter" {
		t.Fatalf("unexpected filter column %q", linkErr.FilterColumn)
	}
}
