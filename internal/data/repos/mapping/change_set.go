package mapping

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/openstats/datasetsvc/internal/domain"
	"github.com/openstats/datasetsvc/internal/pkg/dbctx"
	"github.com/openstats/datasetsvc/internal/pkg/logger"
)

type ChangeSetRepo interface {
	CreateLocations(dbc dbctx.Context, rows []*types.ChangeSetLocation) error
	CreateFilters(dbc dbctx.Context, rows []*types.ChangeSetFilter) error
	CreateFilterOptions(dbc dbctx.Context, rows []*types.ChangeSetFilterOption) error
	CreateIndicators(dbc dbctx.Context, rows []*types.ChangeSetIndicator) error
	CreateTimePeriods(dbc dbctx.Context, rows []*types.ChangeSetTimePeriod) error
	GetLocationsByVersion(dbc dbctx.Context, versionID uuid.UUID) ([]*types.ChangeSetLocation, error)
	GetTimePeriodsByVersion(dbc dbctx.Context, versionID uuid.UUID) ([]*types.ChangeSetTimePeriod, error)
	DeleteByVersion(dbc dbctx.Context, versionID uuid.UUID) error
}

type changeSetRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChangeSetRepo(db *gorm.DB, baseLog *logger.Logger) ChangeSetRepo {
	return &changeSetRepo{
		db:  db,
		log: baseLog.With("repo", "ChangeSetRepo"),
	}
}

func (r *changeSetRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *changeSetRepo) CreateLocations(dbc dbctx.Context, rows []*types.ChangeSetLocation) error {
	if len(rows) == 0 {
		return nil
	}
	return r.tx(dbc).WithContext(dbc.Ctx).Create(&rows).Error
}

func (r *changeSetRepo) CreateFilters(dbc dbctx.Context, rows []*types.ChangeSetFilter) error {
	if len(rows) == 0 {
		return nil
	}
	return r.tx(dbc).WithContext(dbc.Ctx).Create(&rows).Error
}

func (r *changeSetRepo) CreateFilterOptions(dbc dbctx.Context, rows []*types.ChangeSetFilterOption) error {
	if len(rows) == 0 {
		return nil
	}
	return r.tx(dbc).WithContext(dbc.Ctx).Create(&rows).Error
}

func (r *changeSetRepo) CreateIndicators(dbc dbctx.Context, rows []*types.ChangeSetIndicator) error {
	if len(rows) == 0 {
		return nil
	}
	return r.tx(dbc).WithContext(dbc.Ctx).Create(&rows).Error
}

func (r *changeSetRepo) CreateTimePeriods(dbc dbctx.Context, rows []*types.ChangeSetTimePeriod) error {
	if len(rows) == 0 {
		return nil
	}
	return r.tx(dbc).WithContext(dbc.Ctx).Create(&rows).Error
}

func (r *changeSetRepo) GetLocationsByVersion(dbc dbctx.Context, versionID uuid.UUID) ([]*types.ChangeSetLocation, error) {
	var out []*types.ChangeSetLocation
	err := r.tx(dbc).WithContext(dbc.Ctx).
		Where("data_set_version_id = ?", versionID).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *changeSetRepo) GetTimePeriodsByVersion(dbc dbctx.Context, versionID uuid.UUID) ([]*types.ChangeSetTimePeriod, error) {
	var out []*types.ChangeSetTimePeriod
	err := r.tx(dbc).WithContext(dbc.Ctx).
		Where("data_set_version_id = ?", versionID).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteByVersion clears change sets ahead of a retried ComputeMapping stage.
func (r *changeSetRepo) DeleteByVersion(dbc dbctx.Context, versionID uuid.UUID) error {
	tx := r.tx(dbc).WithContext(dbc.Ctx)
	for _, model := range []interface{}{
		&types.ChangeSetLocation{},
		&types.ChangeSetFilter{},
		&types.ChangeSetFilterOption{},
		&types.ChangeSetIndicator{},
		&types.ChangeSetTimePeriod{},
	} {
		if err := tx.Where("data_set_version_id = ?", versionID).Delete(model).Error; err != nil {
			return err
		}
	}
	return nil
}
