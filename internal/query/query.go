package query

import (
	"github.com/google/uuid"

	types "github.com/openstats/datasetsvc/internal/domain"
)

// TimePeriodRange is an inclusive range over (year, identifier) pairs.
type TimePeriodRange struct {
	StartYear int                  `json:"start_year"`
	StartCode types.TimeIdentifier `json:"start_code"`
	EndYear   int                  `json:"end_year"`
	EndCode   types.TimeIdentifier `json:"end_code"`
}

func (r TimePeriodRange) Start() types.TimePeriod {
	return types.TimePeriod{Year: r.StartYear, Code: r.StartCode}
}

func (r TimePeriodRange) End() types.TimePeriod {
	return types.TimePeriod{Year: r.EndYear, Code: r.EndCode}
}

// FullTableQuery selects observations from the live version of a subject.
// Dimension ids are internal ids; the boundary layer resolves public ids
// before the query reaches the translator.
type FullTableQuery struct {
	SubjectID                uuid.UUID           `json:"subject_id"`
	LocationIDs              []int64             `json:"location_ids"`
	TimePeriod               *TimePeriodRange    `json:"time_period"`
	FilterOptionIDs          []int64             `json:"filter_option_ids,omitempty"`
	IndicatorIDs             []int64             `json:"indicator_ids"`
	FilterHierarchiesOptions map[int64][][]int64 `json:"filter_hierarchies_options,omitempty"`
}

// Validate checks the shape rules that need no metadata: non-empty
// locations and indicators, a present time period range, and a range whose
// start does not follow its end.
func (q *FullTableQuery) Validate() error {
	if q.SubjectID == uuid.Nil {
		return &ValidationError{Field: "subject_id", Detail: "required"}
	}
	if len(q.LocationIDs) == 0 {
		return &ValidationError{Field: "location_ids", Detail: "at least one location is required"}
	}
	if len(q.IndicatorIDs) == 0 {
		return &ValidationError{Field: "indicator_ids", Detail: "at least one indicator is required"}
	}
	if q.TimePeriod == nil {
		return &ValidationError{Field: "time_period", Detail: "required"}
	}
	if _, ok := types.ParseTimeIdentifier(string(q.TimePeriod.StartCode)); !ok {
		return &ValidationError{Field: "time_period.start_code", Detail: "unknown time identifier"}
	}
	if _, ok := types.ParseTimeIdentifier(string(q.TimePeriod.EndCode)); !ok {
		return &ValidationError{Field: "time_period.end_code", Detail: "unknown time identifier"}
	}
	if q.TimePeriod.Start().Compare(q.TimePeriod.End()) > 0 {
		return &ValidationError{Field: "time_period", Detail: "start is after end"}
	}
	return nil
}
