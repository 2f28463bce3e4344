package repos

import (
	"gorm.io/gorm"

	"github.com/openstats/datasetsvc/internal/data/repos/datasets"
	"github.com/openstats/datasetsvc/internal/data/repos/mapping"
	"github.com/openstats/datasetsvc/internal/data/repos/meta"
	"github.com/openstats/datasetsvc/internal/pkg/logger"
)

type DataSetRepo = datasets.DataSetRepo
type DataSetVersionRepo = datasets.DataSetVersionRepo
type DataSetVersionImportRepo = datasets.DataSetVersionImportRepo

type LocationMetaRepo = meta.LocationMetaRepo
type FilterMetaRepo = meta.FilterMetaRepo
type IndicatorMetaRepo = meta.IndicatorMetaRepo
type TimePeriodMetaRepo = meta.TimePeriodMetaRepo

type MappingRepo = mapping.MappingRepo
type ChangeSetRepo = mapping.ChangeSetRepo

func NewDataSetRepo(db *gorm.DB, baseLog *logger.Logger) DataSetRepo {
	return datasets.NewDataSetRepo(db, baseLog)
}
func NewDataSetVersionRepo(db *gorm.DB, baseLog *logger.Logger) DataSetVersionRepo {
	return datasets.NewDataSetVersionRepo(db, baseLog)
}
func NewDataSetVersionImportRepo(db *gorm.DB, baseLog *logger.Logger) DataSetVersionImportRepo {
	return datasets.NewDataSetVersionImportRepo(db, baseLog)
}

func NewLocationMetaRepo(db *gorm.DB, baseLog *logger.Logger) LocationMetaRepo {
	return meta.NewLocationMetaRepo(db, baseLog)
}
func NewFilterMetaRepo(db *gorm.DB, baseLog *logger.Logger) FilterMetaRepo {
	return meta.NewFilterMetaRepo(db, baseLog)
}
func NewIndicatorMetaRepo(db *gorm.DB, baseLog *logger.Logger) IndicatorMetaRepo {
	return meta.NewIndicatorMetaRepo(db, baseLog)
}
func NewTimePeriodMetaRepo(db *gorm.DB, baseLog *logger.Logger) TimePeriodMetaRepo {
	return meta.NewTimePeriodMetaRepo(db, baseLog)
}

func NewMappingRepo(db *gorm.DB, baseLog *logger.Logger) MappingRepo {
	return mapping.NewMappingRepo(db, baseLog)
}
func NewChangeSetRepo(db *gorm.DB, baseLog *logger.Logger) ChangeSetRepo {
	return mapping.NewChangeSetRepo(db, baseLog)
}
