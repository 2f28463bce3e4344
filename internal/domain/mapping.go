package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type ChangeType string

const (
	ChangeTypeAdded     ChangeType = "added"
	ChangeTypeRemoved   ChangeType = "removed"
	ChangeTypeUnchanged ChangeType = "unchanged"
	ChangeTypeUpdated   ChangeType = "updated"
)

type VersionBump string

const (
	VersionBumpMajor VersionBump = "major"
	VersionBumpMinor VersionBump = "minor"
	VersionBumpPatch VersionBump = "patch"
)

// MappingEntry records how one dimension value in the previous version maps
// into the new one. PreviousID is nil for added values; NewID is nil for
// removed ones.
type MappingEntry struct {
	Key        string     `json:"key"`
	PreviousID *int64     `json:"previous_id,omitempty"`
	NewID      *int64     `json:"new_id,omitempty"`
	Type       ChangeType `json:"type"`
}

// DataSetVersionMapping holds the per-dimension maps between two
// consecutive versions of the same data set. Created once during the
// ComputeMapping stage; never mutated afterward.
type DataSetVersionMapping struct {
	ID                 uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	SourceVersionID    *uuid.UUID     `gorm:"type:uuid;column:source_version_id;index" json:"source_version_id,omitempty"`
	TargetVersionID    uuid.UUID      `gorm:"type:uuid;column:target_version_id;not null;uniqueIndex" json:"target_version_id"`
	LocationMappings   datatypes.JSON `gorm:"column:location_mappings;type:jsonb" json:"location_mappings"`
	FilterMappings     datatypes.JSON `gorm:"column:filter_mappings;type:jsonb" json:"filter_mappings"`
	FilterOptMappings  datatypes.JSON `gorm:"column:filter_option_mappings;type:jsonb" json:"filter_option_mappings"`
	IndicatorMappings  datatypes.JSON `gorm:"column:indicator_mappings;type:jsonb" json:"indicator_mappings"`
	TimePeriodMappings datatypes.JSON `gorm:"column:time_period_mappings;type:jsonb" json:"time_period_mappings"`
	Bump               VersionBump    `gorm:"column:bump;not null" json:"bump"`
	CreatedAt          time.Time      `gorm:"not null;default:now()" json:"created_at"`
}

func (DataSetVersionMapping) TableName() string { return "data_set_version_mapping" }
