package importer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/openstats/datasetsvc/internal/columnar"
	"github.com/openstats/datasetsvc/internal/pkg/logger"
)

func testImporter(t *testing.T) (*Importer, *columnar.DB) {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	db, err := columnar.Open("")
	if err != nil {
		t.Fatalf("open engine: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(log), db
}

func writeFixture(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

const validMeta = `col_name,col_type,label,filter_grouping_column,filter_hint,parent_filter,indicator_unit,indicator_dp
school_type,Filter,School type,school_group,Filter by school type,,,
enrolments,Indicator,Number of enrolments,,,,,0
`

func validDataHeader() string {
	return "time_period,time_identifier,geographic_level,country_code,country_name,school_type,school_group,enrolments"
}

func validDataRows(n int) string {
	var b strings.Builder
	b.WriteString(validDataHeader())
	b.WriteByte('\n')
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "2023,AY,National,E92000001,England,Primary,State-funded,%d\n", i)
	}
	return b.String()
}

func TestImportFilesStagesDataAndMeta(t *testing.T) {
	imp, db := testImporter(t)
	dataPath := writeFixture(t, "data.csv", validDataRows(25))
	metaPath := writeFixture(t, "meta.csv", validMeta)

	res, err := imp.ImportFiles(context.Background(), db, uuid.New(), dataPath, metaPath)
	if err != nil {
		t.Fatalf("ImportFiles: %v", err)
	}
	if res.RowCount != 25 {
		t.Fatalf("expected 25 rows, got %d", res.RowCount)
	}
	if len(res.MetaRows) != 2 {
		t.Fatalf("expected 2 meta rows, got %d", len(res.MetaRows))
	}
	if got := len(res.DataColumns); got != 8 {
		t.Fatalf("expected 8 data columns, got %d", got)
	}
}

// A quoted cell containing the delimiter and an embedded newline appears
// tens of thousands of rows into the file. A parser that commits to a plan
// from an early sample mis-counts this file; the pinned whole-file
// configuration must stage exactly as many rows as the file carries.
func TestImportFilesQuotedCellDeepInLargeFile(t *testing.T) {
	const total = 20499
	var b strings.Builder
	b.WriteString(validDataHeader())
	b.WriteByte('\n')
	for i := 0; i < total; i++ {
		schoolType := "Primary"
		if i == total-3 {
			schoolType = "\"Voluntary aided, with a\nline break\""
		}
		fmt.Fprintf(&b, "2023,AY,National,E92000001,England,%s,State-funded,%d\n", schoolType, i)
	}

	imp, db := testImporter(t)
	dataPath := writeFixture(t, "data.csv", b.String())
	metaPath := writeFixture(t, "meta.csv", validMeta)

	res, err := imp.ImportFiles(context.Background(), db, uuid.New(), dataPath, metaPath)
	if err != nil {
		t.Fatalf("ImportFiles: %v", err)
	}
	if res.RowCount != total {
		t.Fatalf("expected %d rows, got %d", total, res.RowCount)
	}
}

func TestImportFilesRejectsWrongMetaHeader(t *testing.T) {
	imp, db := testImporter(t)
	dataPath := writeFixture(t, "data.csv", validDataRows(1))
	metaPath := writeFixture(t, "meta.csv", "col_name,col_type,label\nx,Filter,X\n")

	_, err := imp.ImportFiles(context.Background(), db, uuid.New(), dataPath, metaPath)
	var headerErr *InvalidMetaHeaderError
	if !errors.As(err, &headerErr) {
		t.Fatalf("expected InvalidMetaHeaderError, got %v", err)
	}
}

func TestImportFilesRejectsMissingRequiredColumn(t *testing.T) {
	imp, db := testImporter(t)
	data := "time_period,time_identifier,school_type,school_group,enrolments\n2023,AY,Primary,State-funded,1\n"
	dataPath := writeFixture(t, "data.csv", data)
	metaPath := writeFixture(t, "meta.csv", validMeta)

	_, err := imp.ImportFiles(context.Background(), db, uuid.New(), dataPath, metaPath)
	var headerErr *InvalidMetaHeaderError
	if !errors.As(err, &headerErr) {
		t.Fatalf("expected InvalidMetaHeaderError, got %v", err)
	}
	if !strings.Contains(headerErr.Detail, "geographic_level") {
		t.Fatalf("expected missing geographic_level, got %q", headerErr.Detail)
	}
}

func TestImportFilesRejectsMetaColumnAbsentFromData(t *testing.T) {
	imp, db := testImporter(t)
	data := "time_period,time_identifier,geographic_level,enrolments\n2023,AY,National,1\n"
	dataPath := writeFixture(t, "data.csv", data)
	metaPath := writeFixture(t, "meta.csv", validMeta)

	_, err := imp.ImportFiles(context.Background(), db, uuid.New(), dataPath, metaPath)
	var headerErr *InvalidMetaHeaderError
	if !errors.As(err, &headerErr) {
		t.Fatalf("expected InvalidMetaHeaderError, got %v", err)
	}
}

func TestImportFilesRejectsNonNumericObservation(t *testing.T) {
	imp, db := testImporter(t)
	data := validDataHeader() + "\n" +
		"2023,AY,National,E92000001,England,Primary,State-funded,10\n" +
		"2023,AY,National,E92000001,England,Secondary,State-funded,banana\n"
	dataPath := writeFixture(t, "data.csv", data)
	metaPath := writeFixture(t, "meta.csv", validMeta)

	_, err := imp.ImportFiles(context.Background(), db, uuid.New(), dataPath, metaPath)
	var obsErr *InvalidObservationError
	if !errors.As(err, &obsErr) {
		t.Fatalf("expected InvalidObservationError, got %v", err)
	}
	if obsErr.Row != 3 {
		t.Fatalf("expected failure reported at row 3, got %d", obsErr.Row)
	}
}

// Line numbers must track file order even when the staged table was built
// by a parallel scan, and the earliest bad value in the file is the one
// reported.
func TestImportFilesObservationRowOnLargeFile(t *testing.T) {
	const total = 8000
	var b strings.Builder
	b.WriteString(validDataHeader())
	b.WriteByte('\n')
	for i := 0; i < total; i++ {
		value := fmt.Sprintf("%d", i)
		switch i {
		case 5120, 7300:
			value = "n/a"
		}
		fmt.Fprintf(&b, "2023,AY,National,E92000001,England,Primary,State-funded,%s\n", value)
	}

	imp, db := testImporter(t)
	dataPath := writeFixture(t, "data.csv", b.String())
	metaPath := writeFixture(t, "meta.csv", validMeta)

	_, err := imp.ImportFiles(context.Background(), db, uuid.New(), dataPath, metaPath)
	var obsErr *InvalidObservationError
	if !errors.As(err, &obsErr) {
		t.Fatalf("expected InvalidObservationError, got %v", err)
	}
	// Data row 5120 is file line 5122 (header plus one-based rows), and it
	// precedes the second bad value at 7300.
	if obsErr.Row != 5122 {
		t.Fatalf("expected failure reported at row 5122, got %d", obsErr.Row)
	}
}

func TestImportFilesAcceptsMissingValueMarkers(t *testing.T) {
	imp, db := testImporter(t)
	data := validDataHeader() + "\n" +
		"2023,AY,National,E92000001,England,Primary,State-funded,z\n" +
		"2023,AY,National,E92000001,England,Secondary,State-funded,~\n" +
		"2023,AY,National,E92000001,England,Special,State-funded,\"1,234\"\n" +
		"2023,AY,National,E92000001,England,Nursery,State-funded,12.5%\n"
	dataPath := writeFixture(t, "data.csv", data)
	metaPath := writeFixture(t, "meta.csv", validMeta)

	if _, err := imp.ImportFiles(context.Background(), db, uuid.New(), dataPath, metaPath); err != nil {
		t.Fatalf("ImportFiles: %v", err)
	}
}

func TestImportFilesRejectsUnknownParentFilter(t *testing.T) {
	meta := `col_name,col_type,label,filter_grouping_column,filter_hint,parent_filter,indicator_unit,indicator_dp
school_type,Filter,School type,,,establishment_type,,
enrolments,Indicator,Number of enrolments,,,,,
`
	imp, db := testImporter(t)
	dataPath := writeFixture(t, "data.csv", validDataRows(1))
	metaPath := writeFixture(t, "meta.csv", meta)

	_, err := imp.ImportFiles(context.Background(), db, uuid.New(), dataPath, metaPath)
	var rowErr *InvalidMetaRowError
	if !errors.As(err, &rowErr) {
		t.Fatalf("expected InvalidMetaRowError, got %v", err)
	}
}

func TestLoadStagedRebuildsResult(t *testing.T) {
	imp, db := testImporter(t)
	subjectID := uuid.New()
	dataPath := writeFixture(t, "data.csv", validDataRows(7))
	metaPath := writeFixture(t, "meta.csv", validMeta)

	staged, err := imp.ImportFiles(context.Background(), db, subjectID, dataPath, metaPath)
	if err != nil {
		t.Fatalf("ImportFiles: %v", err)
	}

	loaded, err := imp.LoadStaged(context.Background(), db, subjectID)
	if err != nil {
		t.Fatalf("LoadStaged: %v", err)
	}
	if loaded.RowCount != staged.RowCount {
		t.Fatalf("row count mismatch: %d vs %d", loaded.RowCount, staged.RowCount)
	}
	if len(loaded.MetaRows) != len(staged.MetaRows) {
		t.Fatalf("meta rows mismatch: %d vs %d", len(loaded.MetaRows), len(staged.MetaRows))
	}
	if loaded.MetaRows[0].ColName != "school_type" || loaded.MetaRows[0].ColType != ColumnTypeFilter {
		t.Fatalf("unexpected first meta row: %+v", loaded.MetaRows[0])
	}
}

func TestParseMetaRowRejections(t *testing.T) {
	subjectID := uuid.New()
	cases := []struct {
		name    string
		colName string
		colType string
		label   string
		unit    string
		dp      string
	}{
		{name: "unknown col_type", colName: "x", colType: "Dimension", label: "X"},
		{name: "empty label", colName: "x", colType: "Filter", label: ""},
		{name: "empty col_name", colName: "", colType: "Filter", label: "X"},
		{name: "negative dp", colName: "x", colType: "Indicator", label: "X", dp: "-1"},
		{name: "non-integer dp", colName: "x", colType: "Indicator", label: "X", dp: "two"},
		{name: "filter with unit", colName: "x", colType: "Filter", label: "X", unit: "%"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parseMetaRow(subjectID, 2, tc.colName, tc.colType, tc.label, "", "", "", tc.unit, tc.dp)
			var rowErr *InvalidMetaRowError
			if !errors.As(err, &rowErr) {
				t.Fatalf("expected InvalidMetaRowError, got %v", err)
			}
		})
	}
}

func TestMapDataFileErrorExtractsLine(t *testing.T) {
	err := mapDataFileError(fmt.Errorf(`Invalid Input Error: CSV Error on Line: 4821
Value with unterminated quote`), "data.csv")
	var rowErr *InvalidRowError
	if !errors.As(err, &rowErr) {
		t.Fatalf("expected InvalidRowError, got %v", err)
	}
	if rowErr.Row != 4821 {
		t.Fatalf("expected row 4821, got %d", rowErr.Row)
	}
	if rowErr.FileName != "data.csv" {
		t.Fatalf("expected file name preserved, got %q", rowErr.FileName)
	}
}
