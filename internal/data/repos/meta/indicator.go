package meta

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/openstats/datasetsvc/internal/domain"
	"github.com/openstats/datasetsvc/internal/pkg/dbctx"
	"github.com/openstats/datasetsvc/internal/pkg/logger"
)

type IndicatorMetaRepo interface {
	Create(dbc dbctx.Context, indicators []*types.IndicatorMeta) ([]*types.IndicatorMeta, error)
	GetByVersion(dbc dbctx.Context, versionID uuid.UUID) ([]*types.IndicatorMeta, error)
	UpdatePublicIDs(dbc dbctx.Context, ids map[int64]string) error
	DeleteByVersion(dbc dbctx.Context, versionID uuid.UUID) error
}

type indicatorMetaRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewIndicatorMetaRepo(db *gorm.DB, baseLog *logger.Logger) IndicatorMetaRepo {
	return &indicatorMetaRepo{
		db:  db,
		log: baseLog.With("repo", "IndicatorMetaRepo"),
	}
}

func (r *indicatorMetaRepo) Create(dbc dbctx.Context, indicators []*types.IndicatorMeta) ([]*types.IndicatorMeta, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(indicators) == 0 {
		return []*types.IndicatorMeta{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&indicators).Error; err != nil {
		return nil, err
	}
	return indicators, nil
}

func (r *indicatorMetaRepo) GetByVersion(dbc dbctx.Context, versionID uuid.UUID) ([]*types.IndicatorMeta, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.IndicatorMeta
	err := transaction.WithContext(dbc.Ctx).
		Where("data_set_version_id = ?", versionID).
		Order("id ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *indicatorMetaRepo) UpdatePublicIDs(dbc dbctx.Context, ids map[int64]string) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	for id, publicID := range ids {
		if err := transaction.WithContext(dbc.Ctx).
			Model(&types.IndicatorMeta{}).
			Where("id = ?", id).
			Update("public_id", publicID).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *indicatorMetaRepo) DeleteByVersion(dbc dbctx.Context, versionID uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).
		Where("data_set_version_id = ?", versionID).
		Delete(&types.IndicatorMeta{}).Error
}
