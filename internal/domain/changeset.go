package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Change-set rows record the before/after state of every classified
// dimension value between two versions. One table per dimension kind,
// written alongside the mapping and read-only afterward.

type ChangeSetLocation struct {
	ID               uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	DataSetVersionID uuid.UUID      `gorm:"type:uuid;column:data_set_version_id;not null;index" json:"data_set_version_id"`
	ChangeType       ChangeType     `gorm:"column:change_type;not null" json:"change_type"`
	PreviousState    datatypes.JSON `gorm:"column:previous_state;type:jsonb" json:"previous_state,omitempty"`
	CurrentState     datatypes.JSON `gorm:"column:current_state;type:jsonb" json:"current_state,omitempty"`
	CreatedAt        time.Time      `gorm:"not null;default:now()" json:"created_at"`
}

func (ChangeSetLocation) TableName() string { return "change_set_locations" }

type ChangeSetFilter struct {
	ID               uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	DataSetVersionID uuid.UUID      `gorm:"type:uuid;column:data_set_version_id;not null;index" json:"data_set_version_id"`
	ChangeType       ChangeType     `gorm:"column:change_type;not null" json:"change_type"`
	PreviousState    datatypes.JSON `gorm:"column:previous_state;type:jsonb" json:"previous_state,omitempty"`
	CurrentState     datatypes.JSON `gorm:"column:current_state;type:jsonb" json:"current_state,omitempty"`
	CreatedAt        time.Time      `gorm:"not null;default:now()" json:"created_at"`
}

func (ChangeSetFilter) TableName() string { return "change_set_filters" }

type ChangeSetFilterOption struct {
	ID               uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	DataSetVersionID uuid.UUID      `gorm:"type:uuid;column:data_set_version_id;not null;index" json:"data_set_version_id"`
	ChangeType       ChangeType     `gorm:"column:change_type;not null" json:"change_type"`
	PreviousState    datatypes.JSON `gorm:"column:previous_state;type:jsonb" json:"previous_state,omitempty"`
	CurrentState     datatypes.JSON `gorm:"column:current_state;type:jsonb" json:"current_state,omitempty"`
	CreatedAt        time.Time      `gorm:"not null;default:now()" json:"created_at"`
}

func (ChangeSetFilterOption) TableName() string { return "change_set_filter_options" }

type ChangeSetIndicator struct {
	ID               uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	DataSetVersionID uuid.UUID      `gorm:"type:uuid;column:data_set_version_id;not null;index" json:"data_set_version_id"`
	ChangeType       ChangeType     `gorm:"column:change_type;not null" json:"change_type"`
	PreviousState    datatypes.JSON `gorm:"column:previous_state;type:jsonb" json:"previous_state,omitempty"`
	CurrentState     datatypes.JSON `gorm:"column:current_state;type:jsonb" json:"current_state,omitempty"`
	CreatedAt        time.Time      `gorm:"not null;default:now()" json:"created_at"`
}

func (ChangeSetIndicator) TableName() string { return "change_set_indicators" }

type ChangeSetTimePeriod struct {
	ID               uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	DataSetVersionID uuid.UUID      `gorm:"type:uuid;column:data_set_version_id;not null;index" json:"data_set_version_id"`
	ChangeType       ChangeType     `gorm:"column:change_type;not null" json:"change_type"`
	PreviousState    datatypes.JSON `gorm:"column:previous_state;type:jsonb" json:"previous_state,omitempty"`
	CurrentState     datatypes.JSON `gorm:"column:current_state;type:jsonb" json:"current_state,omitempty"`
	CreatedAt        time.Time      `gorm:"not null;default:now()" json:"created_at"`
}

func (ChangeSetTimePeriod) TableName() string { return "change_set_time_periods" }
