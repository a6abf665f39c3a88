package repo

import (
	"fmt"

	"poker-service/internal/config"
	"poker-service/internal/model"
	"poker-service/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var DB *gorm.DB

// Models lists every table the service owns.
func Models() []interface{} {
	return []interface{}{
		&model.PokerTable{},
		&model.PokerHandHistory{},
		&model.ChipAccount{},
		&model.ChipTransfer{},
		&model.IdempotencyRecord{},
	}
}

func InitDB() {
	conf := config.GlobalConfig.Database
	db, err := Open(conf.Driver, conf.DSN)
	if err != nil {
		logger.Log.Fatal("Failed to connect to database",
			zap.String("driver", conf.Driver),
			zap.Error(err),
		)
	}
	if err := db.AutoMigrate(Models()...); err != nil {
		logger.Log.Fatal("Failed to migrate database", zap.Error(err))
	}
	DB = db
}

func Open(driver, dsn string) (*gorm.DB, error) {
	switch driver {
	case "", "postgres":
		return gorm.Open(postgres.Open(dsn), &gorm.Config{})
	case "sqlite":
		return gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}
