package meta

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/openstats/datasetsvc/internal/domain"
	"github.com/openstats/datasetsvc/internal/pkg/dbctx"
	"github.com/openstats/datasetsvc/internal/pkg/logger"
)

type FilterMetaRepo interface {
	CreateFilters(dbc dbctx.Context, filters []*types.FilterMeta) ([]*types.FilterMeta, error)
	CreateOptions(dbc dbctx.Context, options []*types.FilterOptionMeta) ([]*types.FilterOptionMeta, error)
	CreateLinks(dbc dbctx.Context, links []*types.FilterOptionMetaLink) ([]*types.FilterOptionMetaLink, error)
	GetFiltersByVersion(dbc dbctx.Context, versionID uuid.UUID) ([]*types.FilterMeta, error)
	GetOptionsByVersion(dbc dbctx.Context, versionID uuid.UUID) ([]*types.FilterOptionMeta, error)
	GetLinksByVersion(dbc dbctx.Context, versionID uuid.UUID) ([]*types.FilterOptionMetaLink, error)
	UpdateFilterPublicIDs(dbc dbctx.Context, ids map[int64]string) error
	UpdateOptionPublicIDs(dbc dbctx.Context, ids map[int64]string) error
	DeleteByVersion(dbc dbctx.Context, versionID uuid.UUID) error
}

type filterMetaRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFilterMetaRepo(db *gorm.DB, baseLog *logger.Logger) FilterMetaRepo {
	return &filterMetaRepo{
		db:  db,
		log: baseLog.With("repo", "FilterMetaRepo"),
	}
}

func (r *filterMetaRepo) CreateFilters(dbc dbctx.Context, filters []*types.FilterMeta) ([]*types.FilterMeta, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(filters) == 0 {
		return []*types.FilterMeta{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&filters).Error; err != nil {
		return nil, err
	}
	return filters, nil
}

func (r *filterMetaRepo) CreateOptions(dbc dbctx.Context, options []*types.FilterOptionMeta) ([]*types.FilterOptionMeta, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(options) == 0 {
		return []*types.FilterOptionMeta{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&options).Error; err != nil {
		return nil, err
	}
	return options, nil
}

func (r *filterMetaRepo) CreateLinks(dbc dbctx.Context, links []*types.FilterOptionMetaLink) ([]*types.FilterOptionMetaLink, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(links) == 0 {
		return []*types.FilterOptionMetaLink{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&links).Error; err != nil {
		return nil, err
	}
	return links, nil
}

func (r *filterMetaRepo) GetFiltersByVersion(dbc dbctx.Context, versionID uuid.UUID) ([]*types.FilterMeta, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.FilterMeta
	err := transaction.WithContext(dbc.Ctx).
		Where("data_set_version_id = ?", versionID).
		Order("id ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *filterMetaRepo) GetOptionsByVersion(dbc dbctx.Context, versionID uuid.UUID) ([]*types.FilterOptionMeta, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.FilterOptionMeta
	err := transaction.WithContext(dbc.Ctx).
		Where("data_set_version_id = ?", versionID).
		Order("id ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *filterMetaRepo) GetLinksByVersion(dbc dbctx.Context, versionID uuid.UUID) ([]*types.FilterOptionMetaLink, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.FilterOptionMetaLink
	err := transaction.WithContext(dbc.Ctx).
		Where("data_set_version_id = ?", versionID).
		Order("id ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *filterMetaRepo) UpdateFilterPublicIDs(dbc dbctx.Context, ids map[int64]string) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	for id, publicID := range ids {
		if err := transaction.WithContext(dbc.Ctx).
			Model(&types.FilterMeta{}).
			Where("id = ?", id).
			Update("public_id", publicID).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *filterMetaRepo) UpdateOptionPublicIDs(dbc dbctx.Context, ids map[int64]string) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	for id, publicID := range ids {
		if err := transaction.WithContext(dbc.Ctx).
			Model(&types.FilterOptionMeta{}).
			Where("id = ?", id).
			Update("public_id", publicID).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *filterMetaRepo) DeleteByVersion(dbc dbctx.Context, versionID uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	for _, model := range []interface{}{
		&types.FilterOptionMetaLink{},
		&types.FilterOptionMeta{},
		&types.FilterMeta{},
	} {
		if err := transaction.WithContext(dbc.Ctx).
			Where("data_set_version_id = ?", versionID).
			Delete(model).Error; err != nil {
			return err
		}
	}
	return nil
}
