// Package importer stages a subject's CSV data and metadata files into the
// embedded columnar engine under a fixed, explicit parsing configuration.
//
// The configuration is deliberately not adaptive. An engine that samples
// the first N rows to infer quoting or delimiter behaviour can commit to a
// parse plan that fails (or worse, silently mis-parses) when a
// differently-quoted cell appears millions of rows in. Every option is
// pinned and the sniffer is forced over the whole file, so a given file
// either parses losslessly end to end or fails immediately with a row
// diagnostic.
package importer

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/openstats/datasetsvc/internal/columnar"
	"github.com/openstats/datasetsvc/internal/pkg/logger"
)

const (
	StagingDataTable = "staging_data"
	StagingMetaTable = "staging_meta"
)

// fixedCSVOptions is the pinned read_csv configuration: explicit quote,
// escape and delimiter, header required, whole-file sniffing
// (sample_size=-1), everything read as varchar, strict shape checking.
const fixedCSVOptions = "header=true, delim=',', quote='\"', escape='\"', " +
	"sample_size=-1, all_varchar=true, strict_mode=true, null_padding=false"

// Result summarises a successful staging run.
type Result struct {
	RowCount    int64
	DataColumns []string
	MetaRows    []MetaFileRow
}

type Importer struct {
	log *logger.Logger
}

func New(baseLog *logger.Logger) *Importer {
	return &Importer{log: baseLog.With("service", "Importer")}
}

// ImportFiles stages the data and metadata files for a subject into the
// version database, replacing any staging tables from an earlier attempt.
func (i *Importer) ImportFiles(ctx context.Context, db *columnar.DB, subjectID uuid.UUID, dataPath, metaPath string) (*Result, error) {
	log := i.log.With("subject_id", subjectID)

	metaRows, err := i.stageMetaFile(ctx, db, subjectID, metaPath)
	if err != nil {
		return nil, err
	}
	log.Info("Staged metadata file", "path", metaPath, "columns", len(metaRows))

	columns, rowCount, err := i.stageDataFile(ctx, db, dataPath)
	if err != nil {
		return nil, err
	}
	log.Info("Staged data file", "path", dataPath, "rows", rowCount, "columns", len(columns))

	if err := i.checkDataColumns(subjectID, columns, metaRows); err != nil {
		return nil, err
	}
	if err := i.checkObservations(ctx, db, subjectID, metaRows); err != nil {
		return nil, err
	}

	return &Result{RowCount: rowCount, DataColumns: columns, MetaRows: metaRows}, nil
}

// LoadStaged rebuilds the staging summary from tables a completed
// ImportFiles left in the version database. Later pipeline stages use it
// instead of carrying the result across process restarts.
func (i *Importer) LoadStaged(ctx context.Context, db *columnar.DB, subjectID uuid.UUID) (*Result, error) {
	metaRows, err := i.readStagedMeta(ctx, db, subjectID)
	if err != nil {
		return nil, err
	}
	columns, err := tableColumns(ctx, db.SQL(), StagingDataTable)
	if err != nil {
		return nil, err
	}
	var rowCount int64
	if err := db.SQL().QueryRowContext(ctx, fmt.Sprintf("SELECT count(*) FROM %s", StagingDataTable)).Scan(&rowCount); err != nil {
		return nil, err
	}
	return &Result{RowCount: rowCount, DataColumns: columns, MetaRows: metaRows}, nil
}

func (i *Importer) readStagedMeta(ctx context.Context, db *columnar.DB, subjectID uuid.UUID) ([]MetaFileRow, error) {
	rows, err := db.SQL().QueryContext(ctx, fmt.Sprintf(
		`SELECT coalesce(col_name, ''), coalesce(col_type, ''), coalesce(label, ''),
		        coalesce(filter_grouping_column, ''), coalesce(filter_hint, ''),
		        coalesce(parent_filter, ''), coalesce(indicator_unit, ''), coalesce(indicator_dp, '')
		 FROM %s`, StagingMetaTable))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MetaFileRow
	line := int64(1) // header is line 1
	for rows.Next() {
		line++
		var colName, colType, label, groupingCol, hint, parentFilter, unit, dp string
		if err := rows.Scan(&colName, &colType, &label, &groupingCol, &hint, &parentFilter, &unit, &dp); err != nil {
			return nil, err
		}
		row, err := parseMetaRow(subjectID, line, colName, colType, label, groupingCol, hint, parentFilter, unit, dp)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (i *Importer) stageMetaFile(ctx context.Context, db *columnar.DB, subjectID uuid.UUID, metaPath string) ([]MetaFileRow, error) {
	stmt := fmt.Sprintf(
		"CREATE OR REPLACE TABLE %s AS SELECT * FROM read_csv(%s, %s)",
		StagingMetaTable, quoteLiteral(metaPath), fixedCSVOptions,
	)
	if _, err := db.SQL().ExecContext(ctx, stmt); err != nil {
		return nil, &InvalidMetaHeaderError{SubjectID: subjectID, Detail: fmt.Sprintf("cannot parse metadata file: %v", err)}
	}

	columns, err := tableColumns(ctx, db.SQL(), StagingMetaTable)
	if err != nil {
		return nil, err
	}
	if !equalColumns(columns, metaHeader) {
		return nil, &InvalidMetaHeaderError{
			SubjectID: subjectID,
			Detail:    fmt.Sprintf("expected header %v, got %v", metaHeader, columns),
		}
	}

	out, err := i.readStagedMeta(ctx, db, subjectID)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, &InvalidMetaHeaderError{SubjectID: subjectID, Detail: "metadata file has no rows"}
	}

	// Every named parent filter must itself be described by the file.
	byName := make(map[string]MetaFileRow, len(out))
	for _, r := range out {
		byName[r.ColName] = r
	}
	for _, r := range out {
		if r.ParentFilter == "" {
			continue
		}
		parent, ok := byName[r.ParentFilter]
		if !ok || parent.ColType != ColumnTypeFilter {
			return nil, &InvalidMetaRowError{
				SubjectID: subjectID,
				Row:       0,
				Detail:    fmt.Sprintf("filter %q names unknown parent filter %q", r.ColName, r.ParentFilter),
			}
		}
	}
	return out, nil
}

func (i *Importer) stageDataFile(ctx context.Context, db *columnar.DB, dataPath string) ([]string, int64, error) {
	stmt := fmt.Sprintf(
		"CREATE OR REPLACE TABLE %s AS SELECT * FROM read_csv(%s, %s)",
		StagingDataTable, quoteLiteral(dataPath), fixedCSVOptions,
	)
	if _, err := db.SQL().ExecContext(ctx, stmt); err != nil {
		return nil, 0, mapDataFileError(err, dataPath)
	}

	columns, err := tableColumns(ctx, db.SQL(), StagingDataTable)
	if err != nil {
		return nil, 0, err
	}

	var rowCount int64
	if err := db.SQL().QueryRowContext(ctx, fmt.Sprintf("SELECT count(*) FROM %s", StagingDataTable)).Scan(&rowCount); err != nil {
		return nil, 0, err
	}
	return columns, rowCount, nil
}

func (i *Importer) checkDataColumns(subjectID uuid.UUID, columns []string, metaRows []MetaFileRow) error {
	present := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		present[c] = struct{}{}
	}
	for _, required := range []string{"time_period", "time_identifier", "geographic_level"} {
		if _, ok := present[required]; !ok {
			return &InvalidMetaHeaderError{
				SubjectID: subjectID,
				Detail:    fmt.Sprintf("data file is missing required column %q", required),
			}
		}
	}
	for _, r := range metaRows {
		if _, ok := present[r.ColName]; !ok {
			return &InvalidMetaHeaderError{
				SubjectID: subjectID,
				Detail:    fmt.Sprintf("metadata describes column %q absent from the data file", r.ColName),
			}
		}
		if r.FilterGroupingColumn != "" {
			if _, ok := present[r.FilterGroupingColumn]; !ok {
				return &InvalidMetaHeaderError{
					SubjectID: subjectID,
					Detail:    fmt.Sprintf("filter %q groups by column %q absent from the data file", r.ColName, r.FilterGroupingColumn),
				}
			}
		}
	}
	return nil
}

// Observation values must be numeric or one of the statistical
// missing-value markers used across published tables.
const observationPattern = `^-?[0-9,]+(\.[0-9]+)?%?$`

var allowedMarkers = []string{"z", "x", "c", "u", "low", "~", ":", ".."}

func (i *Importer) checkObservations(ctx context.Context, db *columnar.DB, subjectID uuid.UUID, metaRows []MetaFileRow) error {
	markers := make([]string, 0, len(allowedMarkers)+1)
	for _, m := range allowedMarkers {
		markers = append(markers, quoteLiteral(m))
	}
	markers = append(markers, "''")
	markerList := strings.Join(markers, ", ")

	for _, r := range metaRows {
		if r.ColType != ColumnTypeIndicator {
			continue
		}
		// rowid is the insertion order of the staged table, which matches
		// file order; an unordered window over a parallel scan does not.
		stmt := fmt.Sprintf(
			`SELECT rn, val FROM (
			    SELECT rowid AS rn, %s AS val FROM %s
			 )
			 WHERE val IS NOT NULL
			   AND NOT regexp_matches(val, %s)
			   AND lower(trim(val)) NOT IN (%s)
			 ORDER BY rn
			 LIMIT 1`,
			quoteIdent(r.ColName), StagingDataTable, quoteLiteral(observationPattern), markerList,
		)
		var rn int64
		var val string
		err := db.SQL().QueryRowContext(ctx, stmt).Scan(&rn, &val)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return err
		}
		return &InvalidObservationError{
			SubjectID: subjectID,
			Row:       rn + 2, // rowid is zero-based and the header line is line 1
			Message:   fmt.Sprintf("column %q: value %q is not numeric", r.ColName, val),
		}
	}
	return nil
}

var lineRe = regexp.MustCompile(`(?i)line:?\s*(\d+)`)

// mapDataFileError converts the engine's parse failure into the row-level
// diagnostic operators need, when a line number is recoverable.
func mapDataFileError(err error, fileName string) error {
	msg := err.Error()
	row := int64(0)
	if m := lineRe.FindStringSubmatch(msg); m != nil {
		if n, perr := strconv.ParseInt(m[1], 10, 64); perr == nil {
			row = n
		}
	}
	return &InvalidRowError{Row: row, FileName: fileName, Detail: msg}
}

func tableColumns(ctx context.Context, db *sql.DB, table string) ([]string, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT 0", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return rows.Columns()
}

func equalColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
