package extractor

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/openstats/datasetsvc/internal/columnar"
	"github.com/openstats/datasetsvc/internal/data/repos"
	types "github.com/openstats/datasetsvc/internal/domain"
	"github.com/openstats/datasetsvc/internal/importer"
	"github.com/openstats/datasetsvc/internal/pkg/dbctx"
	"github.com/openstats/datasetsvc/internal/pkg/logger"
	"github.com/openstats/datasetsvc/internal/publicid"
)

// Extractor derives the dimension metadata of a Draft version from its
// staged data and meta tables and mints the version-scoped id spaces.
type Extractor struct {
	log         *logger.Logger
	codec       *publicid.Codec
	locations   repos.LocationMetaRepo
	filters     repos.FilterMetaRepo
	indicators  repos.IndicatorMetaRepo
	timePeriods repos.TimePeriodMetaRepo
}

func New(
	baseLog *logger.Logger,
	codec *publicid.Codec,
	locations repos.LocationMetaRepo,
	filters repos.FilterMetaRepo,
	indicators repos.IndicatorMetaRepo,
	timePeriods repos.TimePeriodMetaRepo,
) *Extractor {
	return &Extractor{
		log:         baseLog.With("service", "Extractor"),
		codec:       codec,
		locations:   locations,
		filters:     filters,
		indicators:  indicators,
		timePeriods: timePeriods,
	}
}

// Summary reports what an extraction minted.
type Summary struct {
	Locations   int
	Filters     int
	Options     int
	Links       int
	Indicators  int
	TimePeriods int
}

// ExtractAndPersist collects the distinct dimension values from the staged
// tables, classifies them, and persists the metadata rows. Any rows a
// previous attempt left for the version are cleared first, so a retried
// stage re-mints cleanly.
func (e *Extractor) ExtractAndPersist(dbc dbctx.Context, db *columnar.DB, versionID uuid.UUID, res importer.Result) (Summary, error) {
	var (
		locs    []locationCandidate
		periods []types.TimePeriod
		filters []filterCandidate
		links   []linkPair
	)

	g, gctx := errgroup.WithContext(dbc.Ctx)
	g.Go(func() error {
		var err error
		locs, err = collectLocations(gctx, db, res.DataColumns)
		return err
	})
	g.Go(func() error {
		var err error
		periods, err = collectTimePeriods(gctx, db)
		return err
	})
	g.Go(func() error {
		var err error
		filters, links, err = collectFilters(gctx, db, res.MetaRows)
		return err
	})
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}

	if err := e.clearVersion(dbc, versionID); err != nil {
		return Summary{}, err
	}

	sum := Summary{}
	if err := e.persistLocations(dbc, versionID, locs, &sum); err != nil {
		return Summary{}, err
	}
	if err := e.persistFilters(dbc, versionID, filters, links, &sum); err != nil {
		return Summary{}, err
	}
	if err := e.persistIndicators(dbc, versionID, res.MetaRows, &sum); err != nil {
		return Summary{}, err
	}
	if err := e.persistTimePeriods(dbc, versionID, periods, &sum); err != nil {
		return Summary{}, err
	}

	e.log.Info("extracted metadata",
		"versionID", versionID,
		"locations", sum.Locations,
		"filters", sum.Filters,
		"filterOptions", sum.Options,
		"hierarchyLinks", sum.Links,
		"indicators", sum.Indicators,
		"timePeriods", sum.TimePeriods,
	)
	return sum, nil
}

func (e *Extractor) clearVersion(dbc dbctx.Context, versionID uuid.UUID) error {
	if err := e.locations.DeleteByVersion(dbc, versionID); err != nil {
		return err
	}
	if err := e.filters.DeleteByVersion(dbc, versionID); err != nil {
		return err
	}
	if err := e.indicators.DeleteByVersion(dbc, versionID); err != nil {
		return err
	}
	return e.timePeriods.DeleteByVersion(dbc, versionID)
}

func (e *Extractor) persistLocations(dbc dbctx.Context, versionID uuid.UUID, cands []locationCandidate, sum *Summary) error {
	byLevel := make(map[types.GeographicLevel][]locationCandidate)
	var levels []types.GeographicLevel
	for _, c := range cands {
		if _, ok := byLevel[c.Level]; !ok {
			levels = append(levels, c.Level)
		}
		byLevel[c.Level] = append(byLevel[c.Level], c)
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i] < levels[j] })

	levelRows := make([]*types.LocationMeta, 0, len(levels))
	for _, lvl := range levels {
		levelRows = append(levelRows, &types.LocationMeta{DataSetVersionID: versionID, Level: lvl})
	}
	levelRows, err := e.locations.CreateLevels(dbc, levelRows)
	if err != nil {
		return err
	}

	var optionRows []*types.LocationOptionMeta
	for i, lvl := range levels {
		group := byLevel[lvl]
		sort.Slice(group, func(a, b int) bool { return group[a].key() < group[b].key() })
		for _, c := range group {
			row := types.NewLocationOptionMeta(versionID, levelRows[i].ID, c.Label, c.Option)
			optionRows = append(optionRows, &row)
		}
	}
	optionRows, err = e.locations.CreateOptions(dbc, optionRows)
	if err != nil {
		return err
	}
	ids := make(map[int64]string, len(optionRows))
	for _, row := range optionRows {
		pub, err := e.codec.Encode(row.ID)
		if err != nil {
			return err
		}
		ids[row.ID] = pub
	}
	if err := e.locations.UpdateOptionPublicIDs(dbc, ids); err != nil {
		return err
	}
	sum.Locations = len(optionRows)
	return nil
}

func (e *Extractor) persistFilters(dbc dbctx.Context, versionID uuid.UUID, cands []filterCandidate, links []linkPair, sum *Summary) error {
	// A filter participates in a hierarchy either as a leaf (it names a
	// parent) or as somebody's parent column.
	parents := make(map[string]struct{})
	for _, c := range cands {
		if c.Meta.Hierarchical() {
			parents[c.Meta.ParentFilter] = struct{}{}
		}
	}

	filterRows := make([]*types.FilterMeta, 0, len(cands))
	for _, c := range cands {
		_, isParent := parents[c.Meta.ColName]
		filterRows = append(filterRows, &types.FilterMeta{
			DataSetVersionID: versionID,
			ColumnName:       c.Meta.ColName,
			Label:            c.Meta.Label,
			Hint:             c.Meta.FilterHint,
			Hierarchical:     c.Meta.Hierarchical() || isParent,
		})
	}
	filterRows, err := e.filters.CreateFilters(dbc, filterRows)
	if err != nil {
		return err
	}
	filterByCol := make(map[string]*types.FilterMeta, len(filterRows))
	filterIDs := make(map[int64]string, len(filterRows))
	for _, row := range filterRows {
		filterByCol[row.ColumnName] = row
		pub, err := e.codec.Encode(row.ID)
		if err != nil {
			return err
		}
		filterIDs[row.ID] = pub
	}
	if err := e.filters.UpdateFilterPublicIDs(dbc, filterIDs); err != nil {
		return err
	}

	var optionRows []*types.FilterOptionMeta
	for i, c := range cands {
		for _, opt := range c.Options {
			optionRows = append(optionRows, &types.FilterOptionMeta{
				FilterMetaID:     filterRows[i].ID,
				DataSetVersionID: versionID,
				Label:            opt.Label,
				GroupLabel:       opt.GroupLabel,
			})
		}
	}
	optionRows, err = e.filters.CreateOptions(dbc, optionRows)
	if err != nil {
		return err
	}
	optionIDs := make(map[int64]string, len(optionRows))
	optionByKey := make(map[string]*types.FilterOptionMeta, len(optionRows))
	colByFilterID := make(map[int64]string, len(filterRows))
	for _, row := range filterRows {
		colByFilterID[row.ID] = row.ColumnName
	}
	for _, row := range optionRows {
		pub, err := e.codec.Encode(row.ID)
		if err != nil {
			return err
		}
		optionIDs[row.ID] = pub
		optionByKey[types.FilterOptionKey(colByFilterID[row.FilterMetaID], row.Label)] = row
	}
	if err := e.filters.UpdateOptionPublicIDs(dbc, optionIDs); err != nil {
		return err
	}

	var linkRows []*types.FilterOptionMetaLink
	for _, l := range links {
		parentFilter, ok := filterByCol[l.ParentCol]
		if !ok {
			return fmt.Errorf("hierarchy link names unknown parent filter column %q", l.ParentCol)
		}
		childFilter := filterByCol[l.ChildCol]
		parentOpt, ok := optionByKey[types.FilterOptionKey(l.ParentCol, l.ParentLabel)]
		if !ok {
			return fmt.Errorf("hierarchy link names unknown parent option %q of %q", l.ParentLabel, l.ParentCol)
		}
		childOpt, ok := optionByKey[types.FilterOptionKey(l.ChildCol, l.ChildLabel)]
		if !ok {
			return fmt.Errorf("hierarchy link names unknown child option %q of %q", l.ChildLabel, l.ChildCol)
		}
		linkRows = append(linkRows, &types.FilterOptionMetaLink{
			DataSetVersionID:   versionID,
			ParentFilterMetaID: parentFilter.ID,
			ParentOptionID:     parentOpt.ID,
			ChildFilterMetaID:  childFilter.ID,
			ChildOptionID:      childOpt.ID,
		})
	}
	if _, err := e.filters.CreateLinks(dbc, linkRows); err != nil {
		return err
	}

	sum.Filters = len(filterRows)
	sum.Options = len(optionRows)
	sum.Links = len(linkRows)
	return nil
}

func (e *Extractor) persistIndicators(dbc dbctx.Context, versionID uuid.UUID, metaRows []importer.MetaFileRow, sum *Summary) error {
	var rows []*types.IndicatorMeta
	for _, meta := range metaRows {
		if meta.ColType != importer.ColumnTypeIndicator {
			continue
		}
		rows = append(rows, &types.IndicatorMeta{
			DataSetVersionID: versionID,
			ColumnName:       meta.ColName,
			Label:            meta.Label,
			Unit:             meta.IndicatorUnit,
			DecimalPlaces:    meta.IndicatorDP,
		})
	}
	rows, err := e.indicators.Create(dbc, rows)
	if err != nil {
		return err
	}
	ids := make(map[int64]string, len(rows))
	for _, row := range rows {
		pub, err := e.codec.Encode(row.ID)
		if err != nil {
			return err
		}
		ids[row.ID] = pub
	}
	if err := e.indicators.UpdatePublicIDs(dbc, ids); err != nil {
		return err
	}
	sum.Indicators = len(rows)
	return nil
}

func (e *Extractor) persistTimePeriods(dbc dbctx.Context, versionID uuid.UUID, periods []types.TimePeriod, sum *Summary) error {
	sort.Slice(periods, func(i, j int) bool { return periods[i].Compare(periods[j]) < 0 })
	rows := make([]*types.TimePeriodMeta, 0, len(periods))
	for _, p := range periods {
		rows = append(rows, &types.TimePeriodMeta{
			DataSetVersionID: versionID,
			Year:             p.Year,
			Code:             p.Code,
		})
	}
	rows, err := e.timePeriods.Create(dbc, rows)
	if err != nil {
		return err
	}
	ids := make(map[int64]string, len(rows))
	for _, row := range rows {
		pub, err := e.codec.Encode(row.ID)
		if err != nil {
			return err
		}
		ids[row.ID] = pub
	}
	if err := e.timePeriods.UpdatePublicIDs(dbc, ids); err != nil {
		return err
	}
	sum.TimePeriods = len(rows)
	return nil
}
