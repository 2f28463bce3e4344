package datasets

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/openstats/datasetsvc/internal/domain"
	"github.com/openstats/datasetsvc/internal/pkg/dbctx"
	pkgerrors "github.com/openstats/datasetsvc/internal/pkg/errors"
	"github.com/openstats/datasetsvc/internal/pkg/logger"
)

type DataSetVersionImportRepo interface {
	Create(dbc dbctx.Context, imports []*types.DataSetVersionImport) ([]*types.DataSetVersionImport, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.DataSetVersionImport, error)
	GetByInstanceID(dbc dbctx.Context, instanceID uuid.UUID) (*types.DataSetVersionImport, error)
	// GetActiveByDataSet returns a NotStarted or Running import against any
	// version of the data set, or nil when none is in flight.
	GetActiveByDataSet(dbc dbctx.Context, dataSetID uuid.UUID) (*types.DataSetVersionImport, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	// MarkStageComplete appends the stage to the checkpoint list. Appending
	// an already-recorded stage is a no-op so activity replays are safe.
	MarkStageComplete(dbc dbctx.Context, id uuid.UUID, stage types.ImportStage) error
	MarkFailed(dbc dbctx.Context, id uuid.UUID, stage types.ImportStage, detail string) error
	MarkCompleted(dbc dbctx.Context, id uuid.UUID) error
	// StageComplete reports whether the stage is in the checkpoint list.
	StageComplete(imp *types.DataSetVersionImport, stage types.ImportStage) bool
}

type dataSetVersionImportRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDataSetVersionImportRepo(db *gorm.DB, baseLog *logger.Logger) DataSetVersionImportRepo {
	return &dataSetVersionImportRepo{
		db:  db,
		log: baseLog.With("repo", "DataSetVersionImportRepo"),
	}
}

func (r *dataSetVersionImportRepo) Create(dbc dbctx.Context, imports []*types.DataSetVersionImport) ([]*types.DataSetVersionImport, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(imports) == 0 {
		return []*types.DataSetVersionImport{}, nil
	}
	now := time.Now().UTC()
	for _, imp := range imports {
		if imp.CreatedAt.IsZero() {
			imp.CreatedAt = now
		}
		imp.UpdatedAt = now
		if len(imp.CompletedStages) == 0 {
			imp.CompletedStages = datatypes.JSON([]byte("[]"))
		}
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&imports).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("import instance already recorded: %w", pkgerrors.ErrConflict)
		}
		return nil, err
	}
	return imports, nil
}

func (r *dataSetVersionImportRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.DataSetVersionImport, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out types.DataSetVersionImport
	err := transaction.WithContext(dbc.Ctx).Where("id = ?", id).First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *dataSetVersionImportRepo) GetByInstanceID(dbc dbctx.Context, instanceID uuid.UUID) (*types.DataSetVersionImport, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out types.DataSetVersionImport
	err := transaction.WithContext(dbc.Ctx).Where("instance_id = ?", instanceID).First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *dataSetVersionImportRepo) GetActiveByDataSet(dbc dbctx.Context, dataSetID uuid.UUID) (*types.DataSetVersionImport, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out types.DataSetVersionImport
	err := transaction.WithContext(dbc.Ctx).
		Joins("JOIN data_set_version v ON v.id = data_set_version_import.data_set_version_id").
		Where("v.data_set_id = ?", dataSetID).
		Where("data_set_version_import.status IN ?", []types.ImportStatus{
			types.ImportStatusNotStarted,
			types.ImportStatusRunning,
		}).
		First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *dataSetVersionImportRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(updates) == 0 {
		return nil
	}
	updates["updated_at"] = time.Now().UTC()
	return transaction.WithContext(dbc.Ctx).
		Model(&types.DataSetVersionImport{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *dataSetVersionImportRepo) MarkStageComplete(dbc dbctx.Context, id uuid.UUID, stage types.ImportStage) error {
	imp, err := r.GetByID(dbc, id)
	if err != nil {
		return err
	}
	if r.StageComplete(imp, stage) {
		return nil
	}
	stages := decodeStages(imp.CompletedStages)
	stages = append(stages, stage)
	raw, err := json.Marshal(stages)
	if err != nil {
		return err
	}
	return r.UpdateFields(dbc, id, map[string]interface{}{
		"completed_stages": datatypes.JSON(raw),
		"stage":            stage,
		"status":           types.ImportStatusRunning,
	})
}

func (r *dataSetVersionImportRepo) MarkFailed(dbc dbctx.Context, id uuid.UUID, stage types.ImportStage, detail string) error {
	return r.UpdateFields(dbc, id, map[string]interface{}{
		"status": types.ImportStatusFailed,
		"stage":  stage,
		"error":  detail,
	})
}

func (r *dataSetVersionImportRepo) MarkCompleted(dbc dbctx.Context, id uuid.UUID) error {
	now := time.Now().UTC()
	return r.UpdateFields(dbc, id, map[string]interface{}{
		"status":       types.ImportStatusCompleted,
		"stage":        types.StageFinalize,
		"completed_at": now,
	})
}

func (r *dataSetVersionImportRepo) StageComplete(imp *types.DataSetVersionImport, stage types.ImportStage) bool {
	if imp == nil {
		return false
	}
	for _, s := range decodeStages(imp.CompletedStages) {
		if s == stage {
			return true
		}
	}
	return false
}

func decodeStages(raw datatypes.JSON) []types.ImportStage {
	var out []types.ImportStage
	if len(raw) == 0 {
		return out
	}
	_ = json.Unmarshal(raw, &out)
	return out
}
