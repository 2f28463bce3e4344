package query

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	types "github.com/openstats/datasetsvc/internal/domain"
	"github.com/openstats/datasetsvc/internal/pkg/logger"
)

func testTranslator(t *testing.T) *Translator {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return New(log, nil, nil, nil, nil, nil, nil)
}

func validQuery() *FullTableQuery {
	return &FullTableQuery{
		SubjectID:   uuid.New(),
		LocationIDs: []int64{1},
		TimePeriod: &TimePeriodRange{
			StartYear: 2022, StartCode: types.TimeAcademicYear,
			EndYear: 2023, EndCode: types.TimeAcademicYear,
		},
		IndicatorIDs: []int64{1},
	}
}

func TestValidateRules(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(q *FullTableQuery)
		field  string
	}{
		{name: "missing subject", mutate: func(q *FullTableQuery) { q.SubjectID = uuid.Nil }, field: "subject_id"},
		{name: "no locations", mutate: func(q *FullTableQuery) { q.LocationIDs = nil }, field: "location_ids"},
		{name: "no indicators", mutate: func(q *FullTableQuery) { q.IndicatorIDs = nil }, field: "indicator_ids"},
		{name: "no time period", mutate: func(q *FullTableQuery) { q.TimePeriod = nil }, field: "time_period"},
		{name: "bad start identifier", mutate: func(q *FullTableQuery) { q.TimePeriod.StartCode = "LUNAR" }, field: "time_period.start_code"},
		{name: "bad end identifier", mutate: func(q *FullTableQuery) { q.TimePeriod.EndCode = "LUNAR" }, field: "time_period.end_code"},
		{name: "start after end", mutate: func(q *FullTableQuery) { q.TimePeriod.StartYear = 2024 }, field: "time_period"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q := validQuery()
			tc.mutate(q)
			err := q.Validate()
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if vErr.Field != tc.field {
				t.Fatalf("expected field %q, got %q", tc.field, vErr.Field)
			}
		})
	}

	if err := validQuery().Validate(); err != nil {
		t.Fatalf("valid query rejected: %v", err)
	}
}

func strPtr(s string) *string { return &s }

func testMeta() *versionQueryMeta {
	versionID := uuid.New()
	return &versionQueryMeta{
		levelsByMetaID: map[int64]types.GeographicLevel{
			10: types.LevelNational,
			11: types.LevelRscRegion,
		},
		locationByID: map[int64]*types.LocationOptionMeta{
			1: {ID: 1, LocationMetaID: 10, DataSetVersionID: versionID, Label: "England", Type: types.LocationOptionTypeCoded, Code: strPtr("E92000001")},
			2: {ID: 2, LocationMetaID: 11, DataSetVersionID: versionID, Label: "North of England", Type: types.LocationOptionTypeRscRegion},
		},
		filters: []*types.FilterMeta{
			{ID: 20, ColumnName: "school_type", Label: "School type", Hierarchical: true},
			{ID: 21, ColumnName: "la_filter", Label: "Authority", Hierarchical: true},
		},
		filterByID: map[int64]*types.FilterMeta{
			20: {ID: 20, ColumnName: "school_type", Label: "School type", Hierarchical: true},
			21: {ID: 21, ColumnName: "la_filter", Label: "Authority", Hierarchical: true},
			22: {ID: 22, ColumnName: "flat_filter", Label: "Flat", Hierarchical: false},
		},
		optionByID: map[int64]*types.FilterOptionMeta{
			30: {ID: 30, FilterMetaID: 20, Label: "Primary"},
			31: {ID: 31, FilterMetaID: 20, Label: "Secondary"},
			32: {ID: 32, FilterMetaID: 21, Label: "Barnet"},
			33: {ID: 33, FilterMetaID: 21, Label: "Camden"},
		},
		indicatorByID: map[int64]*types.IndicatorMeta{
			40: {ID: 40, ColumnName: "enrolments", Label: "Enrolments"},
		},
		periods: []*types.TimePeriodMeta{
			{ID: 50, Year: 2022, Code: types.TimeAcademicYear},
			{ID: 51, Year: 2023, Code: types.TimeAcademicYear},
			{ID: 52, Year: 2024, Code: types.TimeAcademicYear},
		},
		links: []*types.FilterOptionMetaLink{
			{ParentFilterMetaID: 20, ParentOptionID: 30, ChildFilterMetaID: 21, ChildOptionID: 32},
			{ParentFilterMetaID: 20, ParentOptionID: 31, ChildFilterMetaID: 21, ChildOptionID: 33},
		},
	}
}

func TestLocationPredicate(t *testing.T) {
	tr := testTranslator(t)
	meta := testMeta()

	q := validQuery()
	q.LocationIDs = []int64{1, 2}
	pred, args, err := tr.locationPredicate(q, meta)
	if err != nil {
		t.Fatalf("locationPredicate: %v", err)
	}
	if !strings.Contains(pred, `trim("country_code") = ?`) {
		t.Fatalf("expected coded country match, got %q", pred)
	}
	if !strings.Contains(pred, `trim("rsc_region_lead_name") = ?`) {
		t.Fatalf("expected rsc label match, got %q", pred)
	}
	found := false
	for _, a := range args {
		if a == "North of England" {
			found = true
		}
	}
	if !found {
		t.Fatalf("rsc region should match by label, args: %v", args)
	}

	q.LocationIDs = []int64{99}
	_, _, err = tr.locationPredicate(q, meta)
	var vErr *ValidationError
	if !errors.As(err, &vErr) || vErr.Field != "location_ids" {
		t.Fatalf("expected location_ids ValidationError, got %v", err)
	}
}

func TestTimePeriodPredicateEnumeratesRange(t *testing.T) {
	tr := testTranslator(t)
	meta := testMeta()

	q := validQuery()
	pred, args, err := tr.timePeriodPredicate(q, meta)
	if err != nil {
		t.Fatalf("timePeriodPredicate: %v", err)
	}
	// 2022 and 2023 are in range, 2024 is not.
	if got := strings.Count(pred, "substr"); got != 2 {
		t.Fatalf("expected 2 period terms, got %d: %q", got, pred)
	}
	if len(args) != 4 {
		t.Fatalf("expected 4 args, got %v", args)
	}

	q.TimePeriod = &TimePeriodRange{
		StartYear: 1990, StartCode: types.TimeAcademicYear,
		EndYear: 1991, EndCode: types.TimeAcademicYear,
	}
	_, _, err = tr.timePeriodPredicate(q, meta)
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError for empty range, got %v", err)
	}
}

func TestFilterPredicateGroupsByColumn(t *testing.T) {
	tr := testTranslator(t)
	meta := testMeta()

	q := validQuery()
	q.FilterOptionIDs = []int64{30, 31, 32}
	pred, args, err := tr.filterPredicate(q, meta)
	if err != nil {
		t.Fatalf("filterPredicate: %v", err)
	}
	// Columns sort alphabetically and AND together; options of one column
	// collapse into a single IN list.
	want := `trim("la_filter") IN (?) AND trim("school_type") IN (?, ?)`
	if pred != want {
		t.Fatalf("predicate = %q, want %q", pred, want)
	}
	if len(args) != 3 || args[0] != "Barnet" {
		t.Fatalf("unexpected args: %v", args)
	}
}

func TestCheckHierarchies(t *testing.T) {
	tr := testTranslator(t)

	t.Run("reachable option passes", func(t *testing.T) {
		q := validQuery()
		q.FilterOptionIDs = []int64{32}
		q.FilterHierarchiesOptions = map[int64][][]int64{
			21: {{30, 32}},
		}
		if err := tr.checkHierarchies(q, testMeta()); err != nil {
			t.Fatalf("checkHierarchies: %v", err)
		}
	})

	t.Run("combo that is not a real chain", func(t *testing.T) {
		q := validQuery()
		q.FilterOptionIDs = []int64{32}
		// Secondary links to Camden, not Barnet, so the combo is discarded
		// and Barnet is unreachable.
		q.FilterHierarchiesOptions = map[int64][][]int64{
			21: {{31, 32}},
		}
		err := tr.checkHierarchies(q, testMeta())
		var hErr *UnreachableHierarchyOptionError
		if !errors.As(err, &hErr) {
			t.Fatalf("expected UnreachableHierarchyOptionError, got %v", err)
		}
		if hErr.LeafFilterID != 21 || hErr.OptionID != 32 {
			t.Fatalf("unexpected error detail: %+v", hErr)
		}
	})

	t.Run("chosen option missing from combos", func(t *testing.T) {
		q := validQuery()
		q.FilterOptionIDs = []int64{33}
		q.FilterHierarchiesOptions = map[int64][][]int64{
			21: {{30, 32}},
		}
		err := tr.checkHierarchies(q, testMeta())
		var hErr *UnreachableHierarchyOptionError
		if !errors.As(err, &hErr) {
			t.Fatalf("expected UnreachableHierarchyOptionError, got %v", err)
		}
	})

	t.Run("unknown leaf filter", func(t *testing.T) {
		q := validQuery()
		q.FilterHierarchiesOptions = map[int64][][]int64{
			999: {{30, 32}},
		}
		err := tr.checkHierarchies(q, testMeta())
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	})

	t.Run("non-hierarchical leaf filter", func(t *testing.T) {
		q := validQuery()
		q.FilterHierarchiesOptions = map[int64][][]int64{
			22: {{30}},
		}
		err := tr.checkHierarchies(q, testMeta())
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	})
}

func TestIndicatorColumns(t *testing.T) {
	tr := testTranslator(t)
	meta := testMeta()

	q := validQuery()
	q.IndicatorIDs = []int64{40}
	cols, err := tr.indicatorColumns(q, meta)
	if err != nil {
		t.Fatalf("indicatorColumns: %v", err)
	}
	if len(cols) != 1 || cols[0] != `"enrolments"` {
		t.Fatalf("unexpected columns: %v", cols)
	}

	q.IndicatorIDs = []int64{999}
	_, err = tr.indicatorColumns(q, meta)
	var vErr *ValidationError
	if !errors.As(err, &vErr) || vErr.Field != "indicator_ids" {
		t.Fatalf("expected indicator_ids ValidationError, got %v", err)
	}
}
