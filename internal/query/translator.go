package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/openstats/datasetsvc/internal/columnar"
	"github.com/openstats/datasetsvc/internal/data/repos"
	types "github.com/openstats/datasetsvc/internal/domain"
	"github.com/openstats/datasetsvc/internal/pkg/dbctx"
	"github.com/openstats/datasetsvc/internal/pkg/logger"
)

// Translator resolves a FullTableQuery against the live version of its
// subject and compiles it into a parameterized SELECT over the version's
// parquet files.
type Translator struct {
	log         *logger.Logger
	versions    repos.DataSetVersionRepo
	locations   repos.LocationMetaRepo
	filters     repos.FilterMetaRepo
	indicators  repos.IndicatorMetaRepo
	timePeriods repos.TimePeriodMetaRepo
	store       *columnar.Service
}

func New(
	baseLog *logger.Logger,
	versions repos.DataSetVersionRepo,
	locations repos.LocationMetaRepo,
	filters repos.FilterMetaRepo,
	indicators repos.IndicatorMetaRepo,
	timePeriods repos.TimePeriodMetaRepo,
	store *columnar.Service,
) *Translator {
	return &Translator{
		log:         baseLog.With("service", "QueryTranslator"),
		versions:    versions,
		locations:   locations,
		filters:     filters,
		indicators:  indicators,
		timePeriods: timePeriods,
		store:       store,
	}
}

// Translation is the compiled form of a query: a SQL statement over the
// version's data parquet plus its bind arguments.
type Translation struct {
	Version *types.DataSetVersion
	SQL     string
	Args    []interface{}
}

// Translate validates q, resolves its subject's version, checks hierarchy
// reachability, and builds the predicate set. Draft versions are refused.
func (t *Translator) Translate(dbc dbctx.Context, q *FullTableQuery) (*Translation, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	version, err := t.versions.GetBySubjectID(dbc, q.SubjectID)
	if err != nil {
		return nil, err
	}
	if !version.Status.Queryable() {
		return nil, &VersionNotQueryableError{VersionID: version.ID, Status: version.Status}
	}

	meta, err := t.loadMeta(dbc, version)
	if err != nil {
		return nil, err
	}

	locPred, locArgs, err := t.locationPredicate(q, meta)
	if err != nil {
		return nil, err
	}
	timePred, timeArgs, err := t.timePeriodPredicate(q, meta)
	if err != nil {
		return nil, err
	}
	filterPred, filterArgs, err := t.filterPredicate(q, meta)
	if err != nil {
		return nil, err
	}

	indicatorCols, err := t.indicatorColumns(q, meta)
	if err != nil {
		return nil, err
	}

	selectCols := []string{`"time_period"`, `"time_identifier"`, `"geographic_level"`}
	for _, f := range meta.filters {
		selectCols = append(selectCols, `"`+f.ColumnName+`"`)
	}
	selectCols = append(selectCols, indicatorCols...)

	preds := []string{locPred, timePred}
	args := append(locArgs, timeArgs...)
	if filterPred != "" {
		preds = append(preds, filterPred)
		args = append(args, filterArgs...)
	}

	layout := t.store.Layout(version.Directory)
	stmt := fmt.Sprintf(
		"SELECT %s FROM read_parquet(?) WHERE %s",
		strings.Join(selectCols, ", "),
		"("+strings.Join(preds, ") AND (")+")",
	)
	args = append([]interface{}{layout.DataParquetPath()}, args...)

	t.log.Info("translated query",
		"subjectID", q.SubjectID,
		"versionID", version.ID,
		"locations", len(q.LocationIDs),
		"indicators", len(q.IndicatorIDs),
		"filterOptions", len(q.FilterOptionIDs),
	)
	return &Translation{Version: version, SQL: stmt, Args: args}, nil
}

// versionQueryMeta is the version's metadata indexed by internal id.
type versionQueryMeta struct {
	levelsByMetaID map[int64]types.GeographicLevel
	locationByID   map[int64]*types.LocationOptionMeta
	filters        []*types.FilterMeta
	filterByID     map[int64]*types.FilterMeta
	optionByID     map[int64]*types.FilterOptionMeta
	indicatorByID  map[int64]*types.IndicatorMeta
	periods        []*types.TimePeriodMeta
	links          []*types.FilterOptionMetaLink
}

func (t *Translator) loadMeta(dbc dbctx.Context, version *types.DataSetVersion) (*versionQueryMeta, error) {
	meta := &versionQueryMeta{
		levelsByMetaID: map[int64]types.GeographicLevel{},
		locationByID:   map[int64]*types.LocationOptionMeta{},
		filterByID:     map[int64]*types.FilterMeta{},
		optionByID:     map[int64]*types.FilterOptionMeta{},
		indicatorByID:  map[int64]*types.IndicatorMeta{},
	}

	levels, err := t.locations.GetLevelsByVersion(dbc, version.ID)
	if err != nil {
		return nil, err
	}
	for _, lvl := range levels {
		meta.levelsByMetaID[lvl.ID] = lvl.Level
	}
	locOpts, err := t.locations.GetOptionsByVersion(dbc, version.ID)
	if err != nil {
		return nil, err
	}
	for _, opt := range locOpts {
		meta.locationByID[opt.ID] = opt
	}

	meta.filters, err = t.filters.GetFiltersByVersion(dbc, version.ID)
	if err != nil {
		return nil, err
	}
	for _, f := range meta.filters {
		meta.filterByID[f.ID] = f
	}
	filterOpts, err := t.filters.GetOptionsByVersion(dbc, version.ID)
	if err != nil {
		return nil, err
	}
	for _, opt := range filterOpts {
		meta.optionByID[opt.ID] = opt
	}
	meta.links, err = t.filters.GetLinksByVersion(dbc, version.ID)
	if err != nil {
		return nil, err
	}

	indicators, err := t.indicators.GetByVersion(dbc, version.ID)
	if err != nil {
		return nil, err
	}
	for _, ind := range indicators {
		meta.indicatorByID[ind.ID] = ind
	}

	meta.periods, err = t.timePeriods.GetByVersion(dbc, version.ID)
	if err != nil {
		return nil, err
	}
	return meta, nil
}

func (t *Translator) locationPredicate(q *FullTableQuery, meta *versionQueryMeta) (string, []interface{}, error) {
	var terms []string
	var args []interface{}
	for _, id := range q.LocationIDs {
		row, ok := meta.locationByID[id]
		if !ok {
			return "", nil, &ValidationError{Field: "location_ids", Detail: fmt.Sprintf("unknown location option id %d", id)}
		}
		level := meta.levelsByMetaID[row.LocationMetaID]
		option, err := row.ToOption(level)
		if err != nil {
			return "", nil, err
		}

		conds := []string{`lower(trim("geographic_level")) IN (?, ?)`}
		optArgs := []interface{}{
			strings.ToLower(string(level)),
			strings.ToLower(level.Label()),
		}
		switch o := option.(type) {
		case types.LocationCodedOption:
			cols, _ := types.ColumnsForLevel(level)
			conds = append(conds, fmt.Sprintf(`trim("%s") = ?`, cols.CodeColumns[0]))
			optArgs = append(optArgs, o.Code)
		case types.LocationLocalAuthorityOption:
			conds = append(conds, `trim("new_la_code") = ?`)
			optArgs = append(optArgs, o.Code)
		case types.LocationProviderOption:
			conds = append(conds, `trim("provider_ukprn") = ?`)
			optArgs = append(optArgs, o.UKPRN)
		case types.LocationRscRegionOption:
			conds = append(conds, `trim("rsc_region_lead_name") = ?`)
			optArgs = append(optArgs, row.Label)
		case types.LocationSchoolOption:
			conds = append(conds, `trim("school_urn") = ?`)
			optArgs = append(optArgs, o.URN)
		}
		terms = append(terms, "("+strings.Join(conds, " AND ")+")")
		args = append(args, optArgs...)
	}
	return strings.Join(terms, " OR "), args, nil
}

// timePeriodPredicate enumerates the version's periods inside the requested
// range and matches rows on the (year prefix, identifier) pair.
func (t *Translator) timePeriodPredicate(q *FullTableQuery, meta *versionQueryMeta) (string, []interface{}, error) {
	start, end := q.TimePeriod.Start(), q.TimePeriod.End()
	var terms []string
	var args []interface{}
	for _, p := range meta.periods {
		if !p.Period().InRange(start, end) {
			continue
		}
		terms = append(terms, `(substr(trim("time_period"), 1, 4) = ? AND upper(trim("time_identifier")) = ?)`)
		args = append(args, fmt.Sprintf("%04d", p.Year), string(p.Code))
	}
	if len(terms) == 0 {
		return "", nil, &ValidationError{Field: "time_period", Detail: "range matches no time period of the data set"}
	}
	return strings.Join(terms, " OR "), args, nil
}

// filterPredicate groups the chosen options per filter column: options of
// one filter OR together, distinct filters AND together. Hierarchy
// reachability is checked before any SQL is produced.
func (t *Translator) filterPredicate(q *FullTableQuery, meta *versionQueryMeta) (string, []interface{}, error) {
	if err := t.checkHierarchies(q, meta); err != nil {
		return "", nil, err
	}
	if len(q.FilterOptionIDs) == 0 {
		return "", nil, nil
	}

	byColumn := map[string][]string{}
	for _, id := range q.FilterOptionIDs {
		opt, ok := meta.optionByID[id]
		if !ok {
			return "", nil, &ValidationError{Field: "filter_option_ids", Detail: fmt.Sprintf("unknown filter option id %d", id)}
		}
		col := meta.filterByID[opt.FilterMetaID].ColumnName
		byColumn[col] = append(byColumn[col], opt.Label)
	}

	cols := make([]string, 0, len(byColumn))
	for col := range byColumn {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	var terms []string
	var args []interface{}
	for _, col := range cols {
		labels := byColumn[col]
		ph := make([]string, len(labels))
		for i, l := range labels {
			ph[i] = "?"
			args = append(args, l)
		}
		terms = append(terms, fmt.Sprintf(`trim("%s") IN (%s)`, col, strings.Join(ph, ", ")))
	}
	return strings.Join(terms, " AND "), args, nil
}

// checkHierarchies rejects any hierarchical leaf option not covered by an
// allowed combination. Each combination is also verified to be a real
// parent chain of the version's hierarchy links.
func (t *Translator) checkHierarchies(q *FullTableQuery, meta *versionQueryMeta) error {
	if len(q.FilterHierarchiesOptions) == 0 {
		return nil
	}

	linkSet := make(map[[2]int64]struct{}, len(meta.links))
	for _, l := range meta.links {
		linkSet[[2]int64{l.ParentOptionID, l.ChildOptionID}] = struct{}{}
	}

	for leafFilterID, combos := range q.FilterHierarchiesOptions {
		leaf, ok := meta.filterByID[leafFilterID]
		if !ok {
			return &ValidationError{Field: "filter_hierarchies_options", Detail: fmt.Sprintf("unknown filter id %d", leafFilterID)}
		}
		if !leaf.Hierarchical {
			return &ValidationError{Field: "filter_hierarchies_options", Detail: fmt.Sprintf("filter %q is not hierarchical", leaf.ColumnName)}
		}

		reachable := make(map[int64]struct{})
		for _, combo := range combos {
			if len(combo) == 0 {
				continue
			}
			valid := true
			for i := 1; i < len(combo); i++ {
				if _, ok := linkSet[[2]int64{combo[i-1], combo[i]}]; !ok {
					valid = false
					break
				}
			}
			if valid {
				reachable[combo[len(combo)-1]] = struct{}{}
			}
		}

		for _, id := range q.FilterOptionIDs {
			opt, ok := meta.optionByID[id]
			if !ok || opt.FilterMetaID != leafFilterID {
				continue
			}
			if _, ok := reachable[id]; !ok {
				return &UnreachableHierarchyOptionError{LeafFilterID: leafFilterID, OptionID: id}
			}
		}
	}
	return nil
}

func (t *Translator) indicatorColumns(q *FullTableQuery, meta *versionQueryMeta) ([]string, error) {
	cols := make([]string, 0, len(q.IndicatorIDs))
	for _, id := range q.IndicatorIDs {
		ind, ok := meta.indicatorByID[id]
		if !ok {
			return nil, &ValidationError{Field: "indicator_ids", Detail: fmt.Sprintf("unknown indicator id %d", id)}
		}
		cols = append(cols, `"`+ind.ColumnName+`"`)
	}
	return cols, nil
}
