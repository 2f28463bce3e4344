package datasets

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/openstats/datasetsvc/internal/domain"
	"github.com/openstats/datasetsvc/internal/pkg/dbctx"
	pkgerrors "github.com/openstats/datasetsvc/internal/pkg/errors"
	"github.com/openstats/datasetsvc/internal/pkg/logger"
)

type DataSetVersionRepo interface {
	Create(dbc dbctx.Context, versions []*types.DataSetVersion) ([]*types.DataSetVersion, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.DataSetVersion, error)
	GetBySubjectID(dbc dbctx.Context, subjectID uuid.UUID) (*types.DataSetVersion, error)
	// GetLatestPublished returns the highest published version of the data
	// set, or nil when the set has never been published.
	GetLatestPublished(dbc dbctx.Context, dataSetID uuid.UUID) (*types.DataSetVersion, error)
	ListByDataSet(dbc dbctx.Context, dataSetID uuid.UUID) ([]*types.DataSetVersion, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	// Publish transitions a Draft version to Published. Refuses to touch a
	// version that already left Draft: published data is write-once.
	Publish(dbc dbctx.Context, id uuid.UUID, at time.Time) error
}

type dataSetVersionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDataSetVersionRepo(db *gorm.DB, baseLog *logger.Logger) DataSetVersionRepo {
	return &dataSetVersionRepo{
		db:  db,
		log: baseLog.With("repo", "DataSetVersionRepo"),
	}
}

func (r *dataSetVersionRepo) Create(dbc dbctx.Context, versions []*types.DataSetVersion) ([]*types.DataSetVersion, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(versions) == 0 {
		return []*types.DataSetVersion{}, nil
	}
	now := time.Now().UTC()
	for _, v := range versions {
		if v.CreatedAt.IsZero() {
			v.CreatedAt = now
		}
		v.UpdatedAt = now
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&versions).Error; err != nil {
		return nil, err
	}
	return versions, nil
}

func (r *dataSetVersionRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.DataSetVersion, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out types.DataSetVersion
	err := transaction.WithContext(dbc.Ctx).Where("id = ?", id).First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *dataSetVersionRepo) GetBySubjectID(dbc dbctx.Context, subjectID uuid.UUID) (*types.DataSetVersion, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out types.DataSetVersion
	err := transaction.WithContext(dbc.Ctx).Where("subject_id = ?", subjectID).First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *dataSetVersionRepo) GetLatestPublished(dbc dbctx.Context, dataSetID uuid.UUID) (*types.DataSetVersion, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out types.DataSetVersion
	err := transaction.WithContext(dbc.Ctx).
		Where("data_set_id = ? AND status = ?", dataSetID, types.DataSetVersionStatusPublished).
		Order("version_major DESC, version_minor DESC, version_patch DESC").
		Limit(1).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	if out.ID == uuid.Nil {
		return nil, nil
	}
	return &out, nil
}

func (r *dataSetVersionRepo) ListByDataSet(dbc dbctx.Context, dataSetID uuid.UUID) ([]*types.DataSetVersion, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.DataSetVersion
	err := transaction.WithContext(dbc.Ctx).
		Where("data_set_id = ?", dataSetID).
		Order("version_major ASC, version_minor ASC, version_patch ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *dataSetVersionRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(updates) == 0 {
		return nil
	}
	updates["updated_at"] = time.Now().UTC()
	return transaction.WithContext(dbc.Ctx).
		Model(&types.DataSetVersion{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *dataSetVersionRepo) Publish(dbc dbctx.Context, id uuid.UUID, at time.Time) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(dbc.Ctx).
		Model(&types.DataSetVersion{}).
		Where("id = ? AND status = ?", id, types.DataSetVersionStatusDraft).
		Updates(map[string]interface{}{
			"status":     types.DataSetVersionStatusPublished,
			"published":  at.UTC(),
			"updated_at": at.UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.ErrConflict
	}
	return nil
}
