package extractor

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/openstats/datasetsvc/internal/columnar"
	types "github.com/openstats/datasetsvc/internal/domain"
	"github.com/openstats/datasetsvc/internal/importer"
)

// locationCandidate is one distinct location tuple from the staged data,
// classified into its geography variant.
type locationCandidate struct {
	Level  types.GeographicLevel
	Label  string
	Option types.LocationOption
}

func (c locationCandidate) key() string {
	return types.LocationKey(c.Level, types.OptionCode(c.Option), c.Label)
}

// filterCandidate is one filter column plus its distinct options.
type filterCandidate struct {
	Meta    importer.MetaFileRow
	Options []filterOptionCandidate
}

type filterOptionCandidate struct {
	Label      string
	GroupLabel string
}

// linkPair is one observed (parent option, child option) co-occurrence for
// a hierarchical filter.
type linkPair struct {
	ParentCol   string
	ParentLabel string
	ChildCol    string
	ChildLabel  string
}

// ClassifyLocation builds the geography variant for a level from the
// populated columns of a distinct location tuple. Fields that do not
// belong to the level's variant are never read, so they can never leak in.
func ClassifyLocation(level types.GeographicLevel, values map[string]string) (types.LocationOption, string, error) {
	cols, ok := types.ColumnsForLevel(level)
	if !ok {
		return nil, "", &InvalidGeographicLevelError{LevelName: string(level)}
	}
	label := strings.TrimSpace(values[cols.NameColumn])

	switch level {
	case types.LevelLocalAuthority:
		return types.LocationLocalAuthorityOption{
			OptionLevel: level,
			Code:        strings.TrimSpace(values["new_la_code"]),
			OldCode:     strings.TrimSpace(values["old_la_code"]),
		}, label, nil
	case types.LevelProvider:
		return types.LocationProviderOption{
			UKPRN: strings.TrimSpace(values["provider_ukprn"]),
		}, label, nil
	case types.LevelRscRegion:
		return types.LocationRscRegionOption{}, label, nil
	case types.LevelSchool:
		return types.LocationSchoolOption{
			URN:     strings.TrimSpace(values["school_urn"]),
			LAEstab: strings.TrimSpace(values["school_laestab"]),
		}, label, nil
	}

	code := ""
	if len(cols.CodeColumns) > 0 {
		code = strings.TrimSpace(values[cols.CodeColumns[0]])
	}
	return types.LocationCodedOption{OptionLevel: level, Code: code}, label, nil
}

// ParseTimePeriodYear accepts the two published forms: a plain 4-digit
// year ("2023") and a 6-digit spanning year ("202324"), which identifies
// by its opening year.
func ParseTimePeriodYear(raw string) (int, error) {
	s := strings.TrimSpace(raw)
	switch len(s) {
	case 4:
		y, err := strconv.Atoi(s)
		if err != nil {
			return 0, &InvalidTimePeriodError{Value: raw}
		}
		return y, nil
	case 6:
		y, err := strconv.Atoi(s[:4])
		if err != nil {
			return 0, &InvalidTimePeriodError{Value: raw}
		}
		return y, nil
	}
	return 0, &InvalidTimePeriodError{Value: raw}
}

func collectLocations(ctx context.Context, db *columnar.DB, dataColumns []string) ([]locationCandidate, error) {
	present := make(map[string]struct{}, len(dataColumns))
	for _, c := range dataColumns {
		present[c] = struct{}{}
	}
	geoCols := make([]string, 0, 16)
	for col := range types.ReservedColumns() {
		if col == "time_period" || col == "time_identifier" {
			continue
		}
		if _, ok := present[col]; ok {
			geoCols = append(geoCols, col)
		}
	}
	// geographic_level always sorts first; the remaining order only needs
	// to be stable within this query.
	selectCols := make([]string, 0, len(geoCols))
	for _, c := range geoCols {
		if c != "geographic_level" {
			selectCols = append(selectCols, c)
		}
	}

	quoted := make([]string, 0, len(selectCols)+1)
	quoted = append(quoted, `"geographic_level"`)
	for _, c := range selectCols {
		quoted = append(quoted, `"`+c+`"`)
	}
	stmt := fmt.Sprintf(
		"SELECT DISTINCT %s FROM %s",
		strings.Join(quoted, ", "), importer.StagingDataTable,
	)

	rows, err := db.SQL().QueryContext(ctx, stmt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	seen := make(map[string]struct{})
	var out []locationCandidate
	for rows.Next() {
		vals := make([]*string, len(selectCols)+1)
		scan := make([]interface{}, len(vals))
		for i := range vals {
			scan[i] = &vals[i]
		}
		if err := rows.Scan(scan...); err != nil {
			return nil, err
		}
		rawLevel := strDeref(vals[0])
		level, ok := types.ParseGeographicLevel(rawLevel)
		if !ok {
			return nil, &InvalidGeographicLevelError{LevelName: rawLevel}
		}
		values := make(map[string]string, len(selectCols))
		for i, c := range selectCols {
			values[c] = strDeref(vals[i+1])
		}
		option, label, err := ClassifyLocation(level, values)
		if err != nil {
			return nil, err
		}
		cand := locationCandidate{Level: level, Label: label, Option: option}
		if _, dup := seen[cand.key()]; dup {
			continue
		}
		seen[cand.key()] = struct{}{}
		out = append(out, cand)
	}
	return out, rows.Err()
}

func collectTimePeriods(ctx context.Context, db *columnar.DB) ([]types.TimePeriod, error) {
	stmt := fmt.Sprintf(
		`SELECT DISTINCT "time_period", "time_identifier" FROM %s`,
		importer.StagingDataTable,
	)
	rows, err := db.SQL().QueryContext(ctx, stmt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	seen := make(map[string]struct{})
	var out []types.TimePeriod
	for rows.Next() {
		var rawPeriod, rawCode *string
		if err := rows.Scan(&rawPeriod, &rawCode); err != nil {
			return nil, err
		}
		year, err := ParseTimePeriodYear(strDeref(rawPeriod))
		if err != nil {
			return nil, err
		}
		code, ok := types.ParseTimeIdentifier(strDeref(rawCode))
		if !ok {
			return nil, &InvalidTimeIdentifierError{Value: strDeref(rawCode)}
		}
		p := types.TimePeriod{Year: year, Code: code}
		k := types.TimePeriodKey(p.Year, p.Code)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, p)
	}
	return out, rows.Err()
}

func collectFilters(ctx context.Context, db *columnar.DB, metaRows []importer.MetaFileRow) ([]filterCandidate, []linkPair, error) {
	var filters []filterCandidate
	var links []linkPair

	for _, meta := range metaRows {
		if meta.ColType != importer.ColumnTypeFilter {
			continue
		}
		groupExpr := "''"
		if meta.FilterGroupingColumn != "" {
			groupExpr = fmt.Sprintf(`coalesce("%s", '')`, meta.FilterGroupingColumn)
		}
		stmt := fmt.Sprintf(
			`SELECT DISTINCT %s, coalesce("%s", '') FROM %s`,
			groupExpr, meta.ColName, importer.StagingDataTable,
		)
		rows, err := db.SQL().QueryContext(ctx, stmt)
		if err != nil {
			return nil, nil, err
		}
		cand := filterCandidate{Meta: meta}
		seen := make(map[string]struct{})
		for rows.Next() {
			var group, label string
			if err := rows.Scan(&group, &label); err != nil {
				rows.Close()
				return nil, nil, err
			}
			label = strings.TrimSpace(label)
			if label == "" {
				continue
			}
			key := types.FilterOptionKey(meta.ColName, label)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			cand.Options = append(cand.Options, filterOptionCandidate{
				Label:      label,
				GroupLabel: strings.TrimSpace(group),
			})
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, nil, err
		}
		rows.Close()
		filters = append(filters, cand)

		if meta.Hierarchical() {
			pairs, err := collectLinkPairs(ctx, db, meta.ParentFilter, meta.ColName)
			if err != nil {
				return nil, nil, err
			}
			links = append(links, pairs...)
		}
	}
	return filters, links, nil
}

func collectLinkPairs(ctx context.Context, db *columnar.DB, parentCol, childCol string) ([]linkPair, error) {
	stmt := fmt.Sprintf(
		`SELECT DISTINCT coalesce("%s", ''), coalesce("%s", '') FROM %s`,
		parentCol, childCol, importer.StagingDataTable,
	)
	rows, err := db.SQL().QueryContext(ctx, stmt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []linkPair
	for rows.Next() {
		var parent, child string
		if err := rows.Scan(&parent, &child); err != nil {
			return nil, err
		}
		parent, child = strings.TrimSpace(parent), strings.TrimSpace(child)
		if parent == "" || child == "" {
			continue
		}
		out = append(out, linkPair{
			ParentCol:   parentCol,
			ParentLabel: parent,
			ChildCol:    childCol,
			ChildLabel:  child,
		})
	}
	return out, rows.Err()
}

func strDeref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
