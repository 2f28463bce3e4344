package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type ImportStatus string

const (
	ImportStatusNotStarted ImportStatus = "not_started"
	ImportStatusRunning    ImportStatus = "running"
	ImportStatusCompleted  ImportStatus = "completed"
	ImportStatusFailed     ImportStatus = "failed"
)

type ImportStage string

const (
	StageValidate        ImportStage = "validate"
	StageImportData      ImportStage = "import_data"
	StageExtractMetadata ImportStage = "extract_metadata"
	StageComputeMapping  ImportStage = "compute_mapping"
	StageFinalize        ImportStage = "finalize"
)

// ImportStages lists the pipeline stages in execution order.
var ImportStages = []ImportStage{
	StageValidate,
	StageImportData,
	StageExtractMetadata,
	StageComputeMapping,
	StageFinalize,
}

// DataSetVersionImport tracks one orchestration run against a candidate
// DataSetVersion. CompletedStages is the checkpoint list the workflow
// consults so a resumed run skips work it already finished.
type DataSetVersionImport struct {
	ID               uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	DataSetVersionID uuid.UUID      `gorm:"type:uuid;column:data_set_version_id;not null;index" json:"data_set_version_id"`
	InstanceID       uuid.UUID      `gorm:"type:uuid;column:instance_id;not null;uniqueIndex" json:"instance_id"`
	Status           ImportStatus   `gorm:"column:status;not null;index" json:"status"`
	Stage            ImportStage    `gorm:"column:stage;not null" json:"stage"`
	Error            string         `gorm:"column:error;type:text" json:"error,omitempty"`
	DataFilePath     string         `gorm:"column:data_file_path;not null" json:"data_file_path"`
	MetaFilePath     string         `gorm:"column:meta_file_path;not null" json:"meta_file_path"`
	CompletedStages  datatypes.JSON `gorm:"column:completed_stages;type:jsonb" json:"completed_stages"`
	CompletedAt      *time.Time     `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CreatedAt        time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (DataSetVersionImport) TableName() string { return "data_set_version_import" }
