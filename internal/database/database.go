package database

import (
	"sync"
	"time"

	"github.com/ciddy0/co2ounter/configs"
	"github.com/ciddy0/co2ounter/internal/logger"
	"github.com/ciddy0/co2ounter/internal/models"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type DBManager struct {
	DB *gorm.DB
}

var (
	instance *DBManager
	once     sync.Once
)

func GetDBManager() *DBManager {
	once.Do(func() {
		instance = &DBManager{}
		instance.initialize()
	})
	return instance
}

func (m *DBManager) initialize() {
	db, err := gorm.Open(mysql.Open(configs.AppConfig.DatabaseURL), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		logger.Log.Fatal("Failed to connect to database: ", err)
	}
	m.DB = db

	if err := Migrate(m.DB); err != nil {
		logger.Log.Fatal("Failed to auto-migrate database: ", err)
	}

	sqlDB, err := m.DB.DB()
	if err == nil {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	logger.Log.Info("Database connection established successfully")
}

// Migrate creates or updates the counter tables. Exposed separately so
// tests can run it against an in-memory database.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.ModelTotal{},
		&models.DailyUsage{},
		&models.DailyModelUsage{},
		&models.ProcessedEvent{},
	)
}
