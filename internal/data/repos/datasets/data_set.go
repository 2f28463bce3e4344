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

type DataSetRepo interface {
	Create(dbc dbctx.Context, sets []*types.DataSet) ([]*types.DataSet, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.DataSet, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	SetLatestLiveVersion(dbc dbctx.Context, id uuid.UUID, versionID uuid.UUID) error
}

type dataSetRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDataSetRepo(db *gorm.DB, baseLog *logger.Logger) DataSetRepo {
	return &dataSetRepo{
		db:  db,
		log: baseLog.With("repo", "DataSetRepo"),
	}
}

func (r *dataSetRepo) Create(dbc dbctx.Context, sets []*types.DataSet) ([]*types.DataSet, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(sets) == 0 {
		return []*types.DataSet{}, nil
	}
	now := time.Now().UTC()
	for _, s := range sets {
		if s.CreatedAt.IsZero() {
			s.CreatedAt = now
		}
		s.UpdatedAt = now
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&sets).Error; err != nil {
		return nil, err
	}
	return sets, nil
}

func (r *dataSetRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.DataSet, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out types.DataSet
	err := transaction.WithContext(dbc.Ctx).Where("id = ?", id).First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *dataSetRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(updates) == 0 {
		return nil
	}
	updates["updated_at"] = time.Now().UTC()
	return transaction.WithContext(dbc.Ctx).
		Model(&types.DataSet{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *dataSetRepo) SetLatestLiveVersion(dbc dbctx.Context, id uuid.UUID, versionID uuid.UUID) error {
	return r.UpdateFields(dbc, id, map[string]interface{}{
		"latest_live_version_id": versionID,
		"status":                 types.DataSetStatusPublished,
	})
}
