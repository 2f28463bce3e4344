package domain

import (
	"time"

	"github.com/google/uuid"
)

type DataSetStatus string

const (
	DataSetStatusDraft      DataSetStatus = "draft"
	DataSetStatusStaged     DataSetStatus = "staged"
	DataSetStatusPublished  DataSetStatus = "published"
	DataSetStatusDeprecated DataSetStatus = "deprecated"
)

// DataSet is the logical statistical data set. It is created once per
// subject and only ever mutated through version publication.
type DataSet struct {
	ID                  uuid.UUID     `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Title               string        `gorm:"column:title;not null" json:"title"`
	Summary             string        `gorm:"column:summary;type:text" json:"summary"`
	PublisherID         uuid.UUID     `gorm:"type:uuid;column:publisher_id;not null;index" json:"publisher_id"`
	Status              DataSetStatus `gorm:"column:status;not null;index" json:"status"`
	LatestLiveVersionID *uuid.UUID    `gorm:"type:uuid;column:latest_live_version_id" json:"latest_live_version_id,omitempty"`
	CreatedAt           time.Time     `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt           time.Time     `gorm:"not null;default:now()" json:"updated_at"`
}

func (DataSet) TableName() string { return "data_set" }
