package versionimport

import (
	"github.com/google/uuid"

	types "github.com/openstats/datasetsvc/internal/domain"
)

const (
	WorkflowName = "data_set_version_import"

	ActivityValidate        = "version_import_validate"
	ActivityImportData      = "version_import_import_data"
	ActivityExtractMetadata = "version_import_extract_metadata"
	ActivityComputeMapping  = "version_import_compute_mapping"
	ActivityFinalize        = "version_import_finalize"
	ActivityMarkFailed      = "version_import_mark_failed"
)

// Input identifies the orchestration run. Everything else is loaded from
// the import row so replays see current state rather than stale arguments.
type Input struct {
	ImportID uuid.UUID `json:"import_id"`
}

// FailInput records which stage broke and why.
type FailInput struct {
	ImportID uuid.UUID         `json:"import_id"`
	Stage    types.ImportStage `json:"stage"`
	Detail   string            `json:"detail"`
}

// stageActivities orders the pipeline. The workflow walks it front to
// back; each activity checks the checkpoint list and skips itself when a
// previous run already completed it.
var stageActivities = []struct {
	Activity string
	Stage    types.ImportStage
}{
	{ActivityValidate, types.StageValidate},
	{ActivityImportData, types.StageImportData},
	{ActivityExtractMetadata, types.StageExtractMetadata},
	{ActivityComputeMapping, types.StageComputeMapping},
	{ActivityFinalize, types.StageFinalize},
}

// NonRetryableErrorTypes lists the application error types that retrying
// cannot fix: malformed input and domain inconsistencies.
var NonRetryableErrorTypes = []string{
	"InvalidRowError",
	"InvalidMetaHeaderError",
	"InvalidMetaRowError",
	"InvalidObservationError",
	"InvalidGeographicLevelError",
	"InvalidTimeIdentifierError",
	"InvalidTimePeriodError",
	"DuplicateKeyError",
	"InvalidHierarchyLinkError",
	"NotFound",
	"Conflict",
	"InvalidArgument",
}
