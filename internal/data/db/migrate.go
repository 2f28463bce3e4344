package db

import (
	types "github.com/openstats/datasetsvc/internal/domain"
	"gorm.io/gorm"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(

		// =========================
		// Data sets + versioning
		// =========================
		&types.DataSet{},
		&types.DataSetVersion{},
		&types.DataSetVersionImport{},

		// =========================
		// Per-version dimension metadata
		// =========================
		&types.LocationMeta{},
		&types.LocationOptionMeta{},
		&types.FilterMeta{},
		&types.FilterOptionMeta{},
		&types.FilterOptionMetaLink{},
		&types.IndicatorMeta{},
		&types.TimePeriodMeta{},

		// =========================
		// Version mapping + change sets
		// =========================
		&types.DataSetVersionMapping{},
		&types.ChangeSetLocation{},
		&types.ChangeSetFilter{},
		&types.ChangeSetFilterOption{},
		&types.ChangeSetIndicator{},
		&types.ChangeSetTimePeriod{},
	)
}
