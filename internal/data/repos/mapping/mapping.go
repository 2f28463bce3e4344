package mapping

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/openstats/datasetsvc/internal/domain"
	"github.com/openstats/datasetsvc/internal/pkg/dbctx"
	pkgerrors "github.com/openstats/datasetsvc/internal/pkg/errors"
	"github.com/openstats/datasetsvc/internal/pkg/logger"
)

type MappingRepo interface {
	Create(dbc dbctx.Context, m *types.DataSetVersionMapping) (*types.DataSetVersionMapping, error)
	GetByTargetVersion(dbc dbctx.Context, targetVersionID uuid.UUID) (*types.DataSetVersionMapping, error)
	DeleteByTargetVersion(dbc dbctx.Context, targetVersionID uuid.UUID) error
}

type mappingRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMappingRepo(db *gorm.DB, baseLog *logger.Logger) MappingRepo {
	return &mappingRepo{
		db:  db,
		log: baseLog.With("repo", "MappingRepo"),
	}
}

func (r *mappingRepo) Create(dbc dbctx.Context, m *types.DataSetVersionMapping) (*types.DataSetVersionMapping, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if m == nil {
		return nil, pkgerrors.ErrInvalidArgument
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if err := transaction.WithContext(dbc.Ctx).Create(m).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("mapping for target version %s already exists: %w",
				m.TargetVersionID, pkgerrors.ErrConflict)
		}
		return nil, err
	}
	return m, nil
}

func (r *mappingRepo) GetByTargetVersion(dbc dbctx.Context, targetVersionID uuid.UUID) (*types.DataSetVersionMapping, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out types.DataSetVersionMapping
	err := transaction.WithContext(dbc.Ctx).Where("target_version_id = ?", targetVersionID).First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteByTargetVersion clears a prior mapping so a retried ComputeMapping
// stage can rewrite it. Only Draft versions are ever retried, so this never
// touches a published mapping.
func (r *mappingRepo) DeleteByTargetVersion(dbc dbctx.Context, targetVersionID uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).
		Where("target_version_id = ?", targetVersionID).
		Delete(&types.DataSetVersionMapping{}).Error
}
