package db

import (
	"gorm.io/gorm"

	types "github.com/opendatarepo/odr-backend/internal/domain"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		// Structure metadata
		&types.Datatype{},
		&types.Datafield{},
		&types.FieldOption{},

		// Record data
		&types.Datarecord{},
		&types.TextValue{},
		&types.IntegerValue{},
		&types.DecimalValue{},
		&types.DatetimeValue{},
		&types.OptionSelection{},

		// Export pipeline coordination
		&types.ExportJob{},
		&types.WriteClaim{},
	)
}
