package importer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

type ColumnType string

const (
	ColumnTypeFilter    ColumnType = "Filter"
	ColumnTypeIndicator ColumnType = "Indicator"
)

// metaHeader is the exact header the metadata file must carry, in order.
// The parser makes no attempt to recover from a different shape: a file
// that does not match fails fast rather than being guessed at.
var metaHeader = []string{
	"col_name",
	"col_type",
	"label",
	"filter_grouping_column",
	"filter_hint",
	"parent_filter",
	"indicator_unit",
	"indicator_dp",
}

// MetaFileRow is one parsed metadata row describing a data-file column.
type MetaFileRow struct {
	ColName              string
	ColType              ColumnType
	Label                string
	FilterGroupingColumn string
	FilterHint           string
	ParentFilter         string
	IndicatorUnit        string
	IndicatorDP          *int
}

// Hierarchical reports whether the described filter is the leaf of a
// hierarchy link (it names a parent filter column).
func (r MetaFileRow) Hierarchical() bool {
	return r.ColType == ColumnTypeFilter && strings.TrimSpace(r.ParentFilter) != ""
}

func parseMetaRow(subjectID uuid.UUID, line int64, colName, colType, label, groupingCol, hint, parentFilter, unit, dp string) (MetaFileRow, error) {
	row := MetaFileRow{
		ColName:              strings.TrimSpace(colName),
		Label:                strings.TrimSpace(label),
		FilterGroupingColumn: strings.TrimSpace(groupingCol),
		FilterHint:           strings.TrimSpace(hint),
		ParentFilter:         strings.TrimSpace(parentFilter),
		IndicatorUnit:        strings.TrimSpace(unit),
	}
	if row.ColName == "" {
		return row, &InvalidMetaRowError{SubjectID: subjectID, Row: line, Detail: "empty col_name"}
	}
	if row.Label == "" {
		return row, &InvalidMetaRowError{SubjectID: subjectID, Row: line, Detail: fmt.Sprintf("empty label for column %q", row.ColName)}
	}
	switch ColumnType(strings.TrimSpace(colType)) {
	case ColumnTypeFilter:
		row.ColType = ColumnTypeFilter
	case ColumnTypeIndicator:
		row.ColType = ColumnTypeIndicator
	default:
		return row, &InvalidMetaRowError{SubjectID: subjectID, Row: line, Detail: fmt.Sprintf("unknown col_type %q", colType)}
	}
	if dp = strings.TrimSpace(dp); dp != "" {
		n, err := strconv.Atoi(dp)
		if err != nil || n < 0 {
			return row, &InvalidMetaRowError{SubjectID: subjectID, Row: line, Detail: fmt.Sprintf("indicator_dp %q is not a non-negative integer", dp)}
		}
		row.IndicatorDP = &n
	}
	if row.ColType == ColumnTypeFilter && row.IndicatorUnit != "" {
		return row, &InvalidMetaRowError{SubjectID: subjectID, Row: line, Detail: fmt.Sprintf("filter column %q carries an indicator unit", row.ColName)}
	}
	return row, nil
}
