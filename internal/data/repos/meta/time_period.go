package meta

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/openstats/datasetsvc/internal/domain"
	"github.com/openstats/datasetsvc/internal/pkg/dbctx"
	"github.com/openstats/datasetsvc/internal/pkg/logger"
)

type TimePeriodMetaRepo interface {
	Create(dbc dbctx.Context, periods []*types.TimePeriodMeta) ([]*types.TimePeriodMeta, error)
	GetByVersion(dbc dbctx.Context, versionID uuid.UUID) ([]*types.TimePeriodMeta, error)
	UpdatePublicIDs(dbc dbctx.Context, ids map[int64]string) error
	DeleteByVersion(dbc dbctx.Context, versionID uuid.UUID) error
}

type timePeriodMetaRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTimePeriodMetaRepo(db *gorm.DB, baseLog *logger.Logger) TimePeriodMetaRepo {
	return &timePeriodMetaRepo{
		db:  db,
		log: baseLog.With("repo", "TimePeriodMetaRepo"),
	}
}

func (r *timePeriodMetaRepo) Create(dbc dbctx.Context, periods []*types.TimePeriodMeta) ([]*types.TimePeriodMeta, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(periods) == 0 {
		return []*types.TimePeriodMeta{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&periods).Error; err != nil {
		return nil, err
	}
	return periods, nil
}

func (r *timePeriodMetaRepo) GetByVersion(dbc dbctx.Context, versionID uuid.UUID) ([]*types.TimePeriodMeta, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.TimePeriodMeta
	err := transaction.WithContext(dbc.Ctx).
		Where("data_set_version_id = ?", versionID).
		Order("year ASC, code ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *timePeriodMetaRepo) UpdatePublicIDs(dbc dbctx.Context, ids map[int64]string) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	for id, publicID := range ids {
		if err := transaction.WithContext(dbc.Ctx).
			Model(&types.TimePeriodMeta{}).
			Where("id = ?", id).
			Update("public_id", publicID).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *timePeriodMetaRepo) DeleteByVersion(dbc dbctx.Context, versionID uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).
		Where("data_set_version_id = ?", versionID).
		Delete(&types.TimePeriodMeta{}).Error
}
