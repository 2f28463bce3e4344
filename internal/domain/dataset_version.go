package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type DataSetVersionStatus string

const (
	DataSetVersionStatusDraft      DataSetVersionStatus = "draft"
	DataSetVersionStatusPublished  DataSetVersionStatus = "published"
	DataSetVersionStatusDeprecated DataSetVersionStatus = "deprecated"
	DataSetVersionStatusWithdrawn  DataSetVersionStatus = "withdrawn"
)

// Queryable reports whether the version's files may be read by the query
// translator. Draft versions are preview-only and gated separately.
func (s DataSetVersionStatus) Queryable() bool {
	switch s {
	case DataSetVersionStatusPublished, DataSetVersionStatusDeprecated, DataSetVersionStatusWithdrawn:
		return true
	}
	return false
}

// DataSetVersion is one immutable snapshot of a DataSet. Once Published its
// on-disk files are write-once; later status transitions (deprecate,
// withdraw) never touch the data.
type DataSetVersion struct {
	ID           uuid.UUID            `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	DataSetID    uuid.UUID            `gorm:"type:uuid;column:data_set_id;not null;index" json:"data_set_id"`
	SubjectID    uuid.UUID            `gorm:"type:uuid;column:subject_id;not null;index" json:"subject_id"`
	VersionMajor int                  `gorm:"column:version_major;not null" json:"version_major"`
	VersionMinor int                  `gorm:"column:version_minor;not null" json:"version_minor"`
	VersionPatch int                  `gorm:"column:version_patch;not null" json:"version_patch"`
	Status       DataSetVersionStatus `gorm:"column:status;not null;index" json:"status"`
	Directory    string               `gorm:"column:directory;not null" json:"directory"`
	TotalRows    int64                `gorm:"column:total_rows;not null;default:0" json:"total_rows"`
	Notes        string               `gorm:"column:notes;type:text" json:"notes,omitempty"`
	Published    *time.Time           `gorm:"column:published" json:"published,omitempty"`
	CreatedAt    time.Time            `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt    time.Time            `gorm:"not null;default:now()" json:"updated_at"`
}

func (DataSetVersion) TableName() string { return "data_set_version" }

func (v *DataSetVersion) SemVersion() string {
	return fmt.Sprintf("%d.%d.%d", v.VersionMajor, v.VersionMinor, v.VersionPatch)
}

// DefaultDirectory is the root-relative layout for a version's files.
func (v *DataSetVersion) DefaultDirectory() string {
	return fmt.Sprintf("%s/v%s", v.DataSetID, v.SemVersion())
}
