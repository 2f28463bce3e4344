package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// Dimension metadata rows are minted once per Draft version by the metadata
// extractor and are immutable after the version is Published. Internal ids
// are bigserial; public ids are the codec-encoded internal id.

type LocationMeta struct {
	ID               int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	DataSetVersionID uuid.UUID       `gorm:"type:uuid;column:data_set_version_id;not null;index" json:"data_set_version_id"`
	Level            GeographicLevel `gorm:"column:level;not null" json:"level"`
}

func (LocationMeta) TableName() string { return "location_meta" }

type LocationOptionType string

const (
	LocationOptionTypeCoded          LocationOptionType = "coded"
	LocationOptionTypeLocalAuthority LocationOptionType = "local_authority"
	LocationOptionTypeProvider       LocationOptionType = "provider"
	LocationOptionTypeRscRegion      LocationOptionType = "rsc_region"
	LocationOptionTypeSchool         LocationOptionType = "school"
)

// LocationOptionMeta is the persisted form of the LocationOption union.
// Only the columns belonging to the row's Type are ever populated; the
// conversion helpers below enforce that in both directions.
type LocationOptionMeta struct {
	ID               int64              `gorm:"primaryKey;autoIncrement" json:"id"`
	LocationMetaID   int64              `gorm:"column:location_meta_id;not null;index" json:"location_meta_id"`
	DataSetVersionID uuid.UUID          `gorm:"type:uuid;column:data_set_version_id;not null;index" json:"data_set_version_id"`
	PublicID         string             `gorm:"column:public_id;not null" json:"public_id"`
	Label            string             `gorm:"column:label;not null" json:"label"`
	Type             LocationOptionType `gorm:"column:type;not null" json:"type"`
	Code             *string            `gorm:"column:code" json:"code,omitempty"`
	OldCode          *string            `gorm:"column:old_code" json:"old_code,omitempty"`
	UKPRN            *string            `gorm:"column:ukprn" json:"ukprn,omitempty"`
	URN              *string            `gorm:"column:urn" json:"urn,omitempty"`
	LAEstab          *string            `gorm:"column:la_estab" json:"la_estab,omitempty"`
}

func (LocationOptionMeta) TableName() string { return "location_option_meta" }

// NewLocationOptionMeta builds the persisted row for a union value, setting
// exactly the columns that belong to the variant.
func NewLocationOptionMeta(versionID uuid.UUID, locationMetaID int64, label string, opt LocationOption) LocationOptionMeta {
	row := LocationOptionMeta{
		LocationMetaID:   locationMetaID,
		DataSetVersionID: versionID,
		Label:            label,
	}
	switch o := opt.(type) {
	case LocationCodedOption:
		row.Type = LocationOptionTypeCoded
		row.Code = ptr(o.Code)
	case LocationLocalAuthorityOption:
		row.Type = LocationOptionTypeLocalAuthority
		row.Code = ptr(o.Code)
		row.OldCode = ptr(o.OldCode)
	case LocationProviderOption:
		row.Type = LocationOptionTypeProvider
		row.UKPRN = ptr(o.UKPRN)
	case LocationRscRegionOption:
		row.Type = LocationOptionTypeRscRegion
	case LocationSchoolOption:
		row.Type = LocationOptionTypeSchool
		row.URN = ptr(o.URN)
		row.LAEstab = ptr(o.LAEstab)
	}
	return row
}

// ToOption reconstructs the union value, rejecting rows whose populated
// columns do not match the declared variant.
func (m *LocationOptionMeta) ToOption(level GeographicLevel) (LocationOption, error) {
	switch m.Type {
	case LocationOptionTypeCoded:
		if m.UKPRN != nil || m.URN != nil || m.LAEstab != nil || m.OldCode != nil {
			return nil, fmt.Errorf("location option %d: coded variant has foreign fields", m.ID)
		}
		return LocationCodedOption{OptionLevel: level, Code: deref(m.Code)}, nil
	case LocationOptionTypeLocalAuthority:
		if m.UKPRN != nil || m.URN != nil || m.LAEstab != nil {
			return nil, fmt.Errorf("location option %d: local authority variant has foreign fields", m.ID)
		}
		return LocationLocalAuthorityOption{OptionLevel: level, Code: deref(m.Code), OldCode: deref(m.OldCode)}, nil
	case LocationOptionTypeProvider:
		if m.Code != nil || m.OldCode != nil || m.URN != nil || m.LAEstab != nil {
			return nil, fmt.Errorf("location option %d: provider variant has foreign fields", m.ID)
		}
		return LocationProviderOption{UKPRN: deref(m.UKPRN)}, nil
	case LocationOptionTypeRscRegion:
		if m.Code != nil || m.OldCode != nil || m.UKPRN != nil || m.URN != nil || m.LAEstab != nil {
			return nil, fmt.Errorf("location option %d: rsc region variant has foreign fields", m.ID)
		}
		return LocationRscRegionOption{}, nil
	case LocationOptionTypeSchool:
		if m.Code != nil || m.OldCode != nil || m.UKPRN != nil {
			return nil, fmt.Errorf("location option %d: school variant has foreign fields", m.ID)
		}
		return LocationSchoolOption{URN: deref(m.URN), LAEstab: deref(m.LAEstab)}, nil
	}
	return nil, fmt.Errorf("location option %d: unknown variant %q", m.ID, m.Type)
}

type FilterMeta struct {
	ID               int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	DataSetVersionID uuid.UUID `gorm:"type:uuid;column:data_set_version_id;not null;index" json:"data_set_version_id"`
	PublicID         string    `gorm:"column:public_id;not null" json:"public_id"`
	ColumnName       string    `gorm:"column:column_name;not null" json:"column_name"`
	Label            string    `gorm:"column:label;not null" json:"label"`
	Hint             string    `gorm:"column:hint;type:text" json:"hint,omitempty"`
	Hierarchical     bool      `gorm:"column:hierarchical;not null;default:false" json:"hierarchical"`
}

func (FilterMeta) TableName() string { return "filter_meta" }

type FilterOptionMeta struct {
	ID               int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	FilterMetaID     int64     `gorm:"column:filter_meta_id;not null;index" json:"filter_meta_id"`
	DataSetVersionID uuid.UUID `gorm:"type:uuid;column:data_set_version_id;not null;index" json:"data_set_version_id"`
	PublicID         string    `gorm:"column:public_id;not null" json:"public_id"`
	Label            string    `gorm:"column:label;not null" json:"label"`
	GroupLabel       string    `gorm:"column:group_label" json:"group_label,omitempty"`
}

func (FilterOptionMeta) TableName() string { return "filter_option_meta" }

// FilterOptionMetaLink ties a leaf filter option to its parent option in a
// filter hierarchy. The leaf filter must be marked hierarchical and the
// links must form a DAG; both are checked before persistence.
type FilterOptionMetaLink struct {
	ID                 int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	DataSetVersionID   uuid.UUID `gorm:"type:uuid;column:data_set_version_id;not null;index" json:"data_set_version_id"`
	ParentFilterMetaID int64     `gorm:"column:parent_filter_meta_id;not null" json:"parent_filter_meta_id"`
	ParentOptionID     int64     `gorm:"column:parent_option_id;not null;index" json:"parent_option_id"`
	ChildFilterMetaID  int64     `gorm:"column:child_filter_meta_id;not null" json:"child_filter_meta_id"`
	ChildOptionID      int64     `gorm:"column:child_option_id;not null;index" json:"child_option_id"`
}

func (FilterOptionMetaLink) TableName() string { return "filter_option_meta_link" }

type IndicatorMeta struct {
	ID               int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	DataSetVersionID uuid.UUID `gorm:"type:uuid;column:data_set_version_id;not null;index" json:"data_set_version_id"`
	PublicID         string    `gorm:"column:public_id;not null" json:"public_id"`
	ColumnName       string    `gorm:"column:column_name;not null" json:"column_name"`
	Label            string    `gorm:"column:label;not null" json:"label"`
	Unit             string    `gorm:"column:unit" json:"unit,omitempty"`
	DecimalPlaces    *int      `gorm:"column:decimal_places" json:"decimal_places,omitempty"`
}

func (IndicatorMeta) TableName() string { return "indicator_meta" }

type TimePeriodMeta struct {
	ID               int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	DataSetVersionID uuid.UUID      `gorm:"type:uuid;column:data_set_version_id;not null;index" json:"data_set_version_id"`
	PublicID         string         `gorm:"column:public_id;not null" json:"public_id"`
	Year             int            `gorm:"column:year;not null" json:"year"`
	Code             TimeIdentifier `gorm:"column:code;not null" json:"code"`
}

func (TimePeriodMeta) TableName() string { return "time_period_meta" }

func (m *TimePeriodMeta) Period() TimePeriod { return TimePeriod{Year: m.Year, Code: m.Code} }

func ptr(s string) *string { return &s }

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
