package mapper

import (
	"encoding/json"
	"reflect"
	"sort"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/openstats/datasetsvc/internal/data/repos"
	types "github.com/openstats/datasetsvc/internal/domain"
	"github.com/openstats/datasetsvc/internal/pkg/dbctx"
	"github.com/openstats/datasetsvc/internal/pkg/logger"
)

// Mapper aligns the dimension metadata of a new version against the
// previous live version, classifies every value, and persists the mapping
// and change-set rows the translation layer reads later.
type Mapper struct {
	log         *logger.Logger
	locations   repos.LocationMetaRepo
	filters     repos.FilterMetaRepo
	indicators  repos.IndicatorMetaRepo
	timePeriods repos.TimePeriodMetaRepo
	mappings    repos.MappingRepo
	changeSets  repos.ChangeSetRepo
}

func New(
	baseLog *logger.Logger,
	locations repos.LocationMetaRepo,
	filters repos.FilterMetaRepo,
	indicators repos.IndicatorMetaRepo,
	timePeriods repos.TimePeriodMetaRepo,
	mappings repos.MappingRepo,
	changeSets repos.ChangeSetRepo,
) *Mapper {
	return &Mapper{
		log:         baseLog.With("service", "Mapper"),
		locations:   locations,
		filters:     filters,
		indicators:  indicators,
		timePeriods: timePeriods,
		mappings:    mappings,
		changeSets:  changeSets,
	}
}

// snapshot is one dimension value reduced to its natural key, its internal
// id, and the state the change-set records.
type snapshot struct {
	Key   string
	ID    int64
	State map[string]interface{}
}

type change struct {
	Type     types.ChangeType
	Previous map[string]interface{}
	Current  map[string]interface{}
}

// ComputeAndPersist diffs targetVersionID against sourceVersionID (nil for
// a first version, in which case everything classifies as Added) and writes
// the mapping plus change-set rows. Earlier rows for the target version are
// cleared first so a retried stage is idempotent.
func (m *Mapper) ComputeAndPersist(dbc dbctx.Context, sourceVersionID *uuid.UUID, targetVersionID uuid.UUID) (*types.DataSetVersionMapping, error) {
	target, err := m.loadVersion(dbc, targetVersionID)
	if err != nil {
		return nil, err
	}
	if err := m.checkHierarchy(dbc, targetVersionID); err != nil {
		return nil, err
	}

	source := versionMeta{}
	if sourceVersionID != nil {
		source, err = m.loadVersion(dbc, *sourceVersionID)
		if err != nil {
			return nil, err
		}
	}

	locEntries, locChanges, err := diff("location", source.locations, target.locations)
	if err != nil {
		return nil, err
	}
	filterEntries, filterChanges, err := diff("filter", source.filters, target.filters)
	if err != nil {
		return nil, err
	}
	optEntries, optChanges, err := diff("filter option", source.filterOptions, target.filterOptions)
	if err != nil {
		return nil, err
	}
	indEntries, indChanges, err := diff("indicator", source.indicators, target.indicators)
	if err != nil {
		return nil, err
	}
	tpEntries, tpChanges, err := diff("time period", source.timePeriods, target.timePeriods)
	if err != nil {
		return nil, err
	}

	bump := DecideVersionBump(locEntries, filterEntries, optEntries, indEntries, tpEntries)

	if err := m.mappings.DeleteByTargetVersion(dbc, targetVersionID); err != nil {
		return nil, err
	}
	if err := m.changeSets.DeleteByVersion(dbc, targetVersionID); err != nil {
		return nil, err
	}

	mapping := &types.DataSetVersionMapping{
		SourceVersionID: sourceVersionID,
		TargetVersionID: targetVersionID,
		Bump:            bump,
	}
	if mapping.LocationMappings, err = marshalEntries(locEntries); err != nil {
		return nil, err
	}
	if mapping.FilterMappings, err = marshalEntries(filterEntries); err != nil {
		return nil, err
	}
	if mapping.FilterOptMappings, err = marshalEntries(optEntries); err != nil {
		return nil, err
	}
	if mapping.IndicatorMappings, err = marshalEntries(indEntries); err != nil {
		return nil, err
	}
	if mapping.TimePeriodMappings, err = marshalEntries(tpEntries); err != nil {
		return nil, err
	}
	if mapping, err = m.mappings.Create(dbc, mapping); err != nil {
		return nil, err
	}

	if err := m.persistChangeSets(dbc, targetVersionID, locChanges, filterChanges, optChanges, indChanges, tpChanges); err != nil {
		return nil, err
	}

	m.log.Info("computed version mapping",
		"targetVersionID", targetVersionID,
		"bump", bump,
		"locations", len(locEntries),
		"filters", len(filterEntries),
		"filterOptions", len(optEntries),
		"indicators", len(indEntries),
		"timePeriods", len(tpEntries),
	)
	return mapping, nil
}

// DecideVersionBump applies the compatibility rules: anything removed or
// updated breaks consumers (major), purely additive changes extend them
// (minor), and an identical shape is a patch.
func DecideVersionBump(dims ...[]types.MappingEntry) types.VersionBump {
	added := false
	for _, entries := range dims {
		for _, e := range entries {
			switch e.Type {
			case types.ChangeTypeRemoved, types.ChangeTypeUpdated:
				return types.VersionBumpMajor
			case types.ChangeTypeAdded:
				added = true
			}
		}
	}
	if added {
		return types.VersionBumpMinor
	}
	return types.VersionBumpPatch
}

// diff classifies cur against prev by natural key. Every key from either
// side lands in exactly one entry.
func diff(dimension string, prev, cur []snapshot) ([]types.MappingEntry, []change, error) {
	prevByKey := make(map[string]snapshot, len(prev))
	for _, s := range prev {
		if _, dup := prevByKey[s.Key]; dup {
			return nil, nil, &DuplicateKeyError{Dimension: dimension, Key: s.Key}
		}
		prevByKey[s.Key] = s
	}
	curByKey := make(map[string]snapshot, len(cur))
	for _, s := range cur {
		if _, dup := curByKey[s.Key]; dup {
			return nil, nil, &DuplicateKeyError{Dimension: dimension, Key: s.Key}
		}
		curByKey[s.Key] = s
	}

	var entries []types.MappingEntry
	var changes []change
	for _, s := range cur {
		old, ok := prevByKey[s.Key]
		switch {
		case !ok:
			entries = append(entries, types.MappingEntry{Key: s.Key, NewID: &s.ID, Type: types.ChangeTypeAdded})
			changes = append(changes, change{Type: types.ChangeTypeAdded, Current: s.State})
		case reflect.DeepEqual(old.State, s.State):
			entries = append(entries, types.MappingEntry{Key: s.Key, PreviousID: &old.ID, NewID: &s.ID, Type: types.ChangeTypeUnchanged})
			changes = append(changes, change{Type: types.ChangeTypeUnchanged, Previous: old.State, Current: s.State})
		default:
			entries = append(entries, types.MappingEntry{Key: s.Key, PreviousID: &old.ID, NewID: &s.ID, Type: types.ChangeTypeUpdated})
			changes = append(changes, change{Type: types.ChangeTypeUpdated, Previous: old.State, Current: s.State})
		}
	}
	for _, s := range prev {
		if _, ok := curByKey[s.Key]; ok {
			continue
		}
		entries = append(entries, types.MappingEntry{Key: s.Key, PreviousID: &s.ID, Type: types.ChangeTypeRemoved})
		changes = append(changes, change{Type: types.ChangeTypeRemoved, Previous: s.State})
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, changes, nil
}

// versionMeta is one version's metadata reduced to snapshots.
type versionMeta struct {
	locations     []snapshot
	filters       []snapshot
	filterOptions []snapshot
	indicators    []snapshot
	timePeriods   []snapshot
}

func (m *Mapper) loadVersion(dbc dbctx.Context, versionID uuid.UUID) (versionMeta, error) {
	var out versionMeta

	levels, err := m.locations.GetLevelsByVersion(dbc, versionID)
	if err != nil {
		return out, err
	}
	levelByID := make(map[int64]types.GeographicLevel, len(levels))
	for _, lvl := range levels {
		levelByID[lvl.ID] = lvl.Level
	}
	locOpts, err := m.locations.GetOptionsByVersion(dbc, versionID)
	if err != nil {
		return out, err
	}
	for _, opt := range locOpts {
		level := levelByID[opt.LocationMetaID]
		union, err := opt.ToOption(level)
		if err != nil {
			return out, err
		}
		out.locations = append(out.locations, snapshot{
			Key: types.LocationKey(level, types.OptionCode(union), opt.Label),
			ID:  opt.ID,
			State: map[string]interface{}{
				"level":    string(level),
				"label":    opt.Label,
				"type":     string(opt.Type),
				"code":     strVal(opt.Code),
				"old_code": strVal(opt.OldCode),
				"ukprn":    strVal(opt.UKPRN),
				"urn":      strVal(opt.URN),
				"la_estab": strVal(opt.LAEstab),
			},
		})
	}

	filters, err := m.filters.GetFiltersByVersion(dbc, versionID)
	if err != nil {
		return out, err
	}
	colByFilterID := make(map[int64]string, len(filters))
	for _, f := range filters {
		colByFilterID[f.ID] = f.ColumnName
		out.filters = append(out.filters, snapshot{
			Key: types.FilterKey(f.ColumnName),
			ID:  f.ID,
			State: map[string]interface{}{
				"column_name":  f.ColumnName,
				"label":        f.Label,
				"hint":         f.Hint,
				"hierarchical": f.Hierarchical,
			},
		})
	}
	filterOpts, err := m.filters.GetOptionsByVersion(dbc, versionID)
	if err != nil {
		return out, err
	}
	for _, opt := range filterOpts {
		col := colByFilterID[opt.FilterMetaID]
		out.filterOptions = append(out.filterOptions, snapshot{
			Key: types.FilterOptionKey(col, opt.Label),
			ID:  opt.ID,
			State: map[string]interface{}{
				"filter":      col,
				"label":       opt.Label,
				"group_label": opt.GroupLabel,
			},
		})
	}

	indicators, err := m.indicators.GetByVersion(dbc, versionID)
	if err != nil {
		return out, err
	}
	for _, ind := range indicators {
		out.indicators = append(out.indicators, snapshot{
			Key: types.IndicatorKey(ind.ColumnName),
			ID:  ind.ID,
			State: map[string]interface{}{
				"column_name":    ind.ColumnName,
				"label":          ind.Label,
				"unit":           ind.Unit,
				"decimal_places": intVal(ind.DecimalPlaces),
			},
		})
	}

	periods, err := m.timePeriods.GetByVersion(dbc, versionID)
	if err != nil {
		return out, err
	}
	for _, p := range periods {
		out.timePeriods = append(out.timePeriods, snapshot{
			Key: types.TimePeriodKey(p.Year, p.Code),
			ID:  p.ID,
			State: map[string]interface{}{
				"year": p.Year,
				"code": string(p.Code),
			},
		})
	}
	return out, nil
}

// checkHierarchy verifies every link's leaf filter carries the
// hierarchical flag before the mapping is allowed to persist.
func (m *Mapper) checkHierarchy(dbc dbctx.Context, versionID uuid.UUID) error {
	filters, err := m.filters.GetFiltersByVersion(dbc, versionID)
	if err != nil {
		return err
	}
	byID := make(map[int64]*types.FilterMeta, len(filters))
	for _, f := range filters {
		byID[f.ID] = f
	}
	links, err := m.filters.GetLinksByVersion(dbc, versionID)
	if err != nil {
		return err
	}
	for _, l := range links {
		leaf, ok := byID[l.ChildFilterMetaID]
		if !ok || !leaf.Hierarchical {
			col := ""
			if ok {
				col = leaf.ColumnName
			}
			return &InvalidHierarchyLinkError{FilterColumn: col}
		}
	}
	return nil
}

func (m *Mapper) persistChangeSets(dbc dbctx.Context, versionID uuid.UUID, locs, filters, opts, inds, tps []change) error {
	locRows := make([]*types.ChangeSetLocation, 0, len(locs))
	for _, c := range locs {
		prev, cur, err := c.states()
		if err != nil {
			return err
		}
		locRows = append(locRows, &types.ChangeSetLocation{
			DataSetVersionID: versionID, ChangeType: c.Type, PreviousState: prev, CurrentState: cur,
		})
	}
	if err := m.changeSets.CreateLocations(dbc, locRows); err != nil {
		return err
	}

	filterRows := make([]*types.ChangeSetFilter, 0, len(filters))
	for _, c := range filters {
		prev, cur, err := c.states()
		if err != nil {
			return err
		}
		filterRows = append(filterRows, &types.ChangeSetFilter{
			DataSetVersionID: versionID, ChangeType: c.Type, PreviousState: prev, CurrentState: cur,
		})
	}
	if err := m.changeSets.CreateFilters(dbc, filterRows); err != nil {
		return err
	}

	optRows := make([]*types.ChangeSetFilterOption, 0, len(opts))
	for _, c := range opts {
		prev, cur, err := c.states()
		if err != nil {
			return err
		}
		optRows = append(optRows, &types.ChangeSetFilterOption{
			DataSetVersionID: versionID, ChangeType: c.Type, PreviousState: prev, CurrentState: cur,
		})
	}
	if err := m.changeSets.CreateFilterOptions(dbc, optRows); err != nil {
		return err
	}

	indRows := make([]*types.ChangeSetIndicator, 0, len(inds))
	for _, c := range inds {
		prev, cur, err := c.states()
		if err != nil {
			return err
		}
		indRows = append(indRows, &types.ChangeSetIndicator{
			DataSetVersionID: versionID, ChangeType: c.Type, PreviousState: prev, CurrentState: cur,
		})
	}
	if err := m.changeSets.CreateIndicators(dbc, indRows); err != nil {
		return err
	}

	tpRows := make([]*types.ChangeSetTimePeriod, 0, len(tps))
	for _, c := range tps {
		prev, cur, err := c.states()
		if err != nil {
			return err
		}
		tpRows = append(tpRows, &types.ChangeSetTimePeriod{
			DataSetVersionID: versionID, ChangeType: c.Type, PreviousState: prev, CurrentState: cur,
		})
	}
	return m.changeSets.CreateTimePeriods(dbc, tpRows)
}

func (c change) states() (datatypes.JSON, datatypes.JSON, error) {
	var prev, cur datatypes.JSON
	if c.Previous != nil {
		b, err := json.Marshal(c.Previous)
		if err != nil {
			return nil, nil, err
		}
		prev = datatypes.JSON(b)
	}
	if c.Current != nil {
		b, err := json.Marshal(c.Current)
		if err != nil {
			return nil, nil, err
		}
		cur = datatypes.JSON(b)
	}
	return prev, cur, nil
}

func marshalEntries(entries []types.MappingEntry) (datatypes.JSON, error) {
	if entries == nil {
		entries = []types.MappingEntry{}
	}
	b, err := json.Marshal(entries)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}

func strVal(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func intVal(n *int) int {
	if n == nil {
		return -1
	}
	return *n
}
