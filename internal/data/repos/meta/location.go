package meta

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/openstats/datasetsvc/internal/domain"
	"github.com/openstats/datasetsvc/internal/pkg/dbctx"
	"github.com/openstats/datasetsvc/internal/pkg/logger"
)

type LocationMetaRepo interface {
	CreateLevels(dbc dbctx.Context, levels []*types.LocationMeta) ([]*types.LocationMeta, error)
	CreateOptions(dbc dbctx.Context, options []*types.LocationOptionMeta) ([]*types.LocationOptionMeta, error)
	GetLevelsByVersion(dbc dbctx.Context, versionID uuid.UUID) ([]*types.LocationMeta, error)
	GetOptionsByVersion(dbc dbctx.Context, versionID uuid.UUID) ([]*types.LocationOptionMeta, error)
	UpdateOptionPublicIDs(dbc dbctx.Context, ids map[int64]string) error
	// DeleteByVersion clears a Draft version's rows so a retried extract
	// stage can re-mint them.
	DeleteByVersion(dbc dbctx.Context, versionID uuid.UUID) error
}

type locationMetaRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLocationMetaRepo(db *gorm.DB, baseLog *logger.Logger) LocationMetaRepo {
	return &locationMetaRepo{
		db:  db,
		log: baseLog.With("repo", "LocationMetaRepo"),
	}
}

func (r *locationMetaRepo) CreateLevels(dbc dbctx.Context, levels []*types.LocationMeta) ([]*types.LocationMeta, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(levels) == 0 {
		return []*types.LocationMeta{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&levels).Error; err != nil {
		return nil, err
	}
	return levels, nil
}

func (r *locationMetaRepo) CreateOptions(dbc dbctx.Context, options []*types.LocationOptionMeta) ([]*types.LocationOptionMeta, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(options) == 0 {
		return []*types.LocationOptionMeta{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&options).Error; err != nil {
		return nil, err
	}
	return options, nil
}

func (r *locationMetaRepo) GetLevelsByVersion(dbc dbctx.Context, versionID uuid.UUID) ([]*types.LocationMeta, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.LocationMeta
	err := transaction.WithContext(dbc.Ctx).
		Where("data_set_version_id = ?", versionID).
		Order("id ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *locationMetaRepo) GetOptionsByVersion(dbc dbctx.Context, versionID uuid.UUID) ([]*types.LocationOptionMeta, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.LocationOptionMeta
	err := transaction.WithContext(dbc.Ctx).
		Where("data_set_version_id = ?", versionID).
		Order("id ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateOptionPublicIDs back-fills public ids after the insert has assigned
// the internal sequential ids they encode.
func (r *locationMetaRepo) UpdateOptionPublicIDs(dbc dbctx.Context, ids map[int64]string) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	for id, publicID := range ids {
		if err := transaction.WithContext(dbc.Ctx).
			Model(&types.LocationOptionMeta{}).
			Where("id = ?", id).
			Update("public_id", publicID).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *locationMetaRepo) DeleteByVersion(dbc dbctx.Context, versionID uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("data_set_version_id = ?", versionID).
		Delete(&types.LocationOptionMeta{}).Error; err != nil {
		return err
	}
	return transaction.WithContext(dbc.Ctx).
		Where("data_set_version_id = ?", versionID).
		Delete(&types.LocationMeta{}).Error
}
