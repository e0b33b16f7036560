package database

import (
	"time"

	"giftflow/internal/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Models lists every table owned by the service, in dependency order.
func Models() []interface{} {
	return []interface{}{
		&model.User{},
		&model.GiftEvent{},
		&model.WishlistItem{},
		&model.AutoGiftRule{},
		&model.AutoGiftExecution{},
		&model.ApprovalToken{},
		&model.PaymentAuthorization{},
		&model.GiftOrder{},
		&model.FundingSchedule{},
		&model.FundingAlert{},
		&model.OperatorAlert{},
		&model.AuditLog{},
		&model.OnboardingProgress{},
	}
}

// Config returns the gorm settings shared by production and tests: UTC clock and
// translated driver errors so unique violations surface as gorm.ErrDuplicatedKey.
func Config() *gorm.Config {
	return &gorm.Config{
		TranslateError:                           true,
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   logger.Default.LogMode(logger.Error),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// NewConnection initializes a new connection pool using GORM
func NewConnection(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), Config())
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}

// Migrate creates or updates the schema.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
