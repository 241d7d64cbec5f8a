package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/echosig/echosig/pkg/config"
	"github.com/echosig/echosig/pkg/echosig/echosigerr"
	"github.com/glebarez/sqlite"
	_ "github.com/lib/pq" // registers the "postgres" database/sql driver name
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to the database named by cfg and runs schema migration,
// selecting the GORM dialect from cfg.DatabaseType. Supported values are
// "sqlite" (default), "postgresql" and "mysql".
func Open(cfg config.Database) (*Store, error) {
	dialector, err := dialector(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", cfg.DatabaseType, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("unwrapping sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&songRow{}, &fingerprintRow{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("%w: migrating schema: %v", echosigerr.ErrIndexSchema, err)
	}

	return &Store{db: db, sqlDB: sqlDB}, nil
}

func dialector(cfg config.Database) (gorm.Dialector, error) {
	switch cfg.DatabaseType {
	case "", "sqlite":
		path := cfg.DB
		if path == "" {
			path = "echosig.sqlite3"
		}
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating sqlite directory: %w", err)
			}
		}
		return sqlite.Open(path + "?_foreign_keys=on"), nil

	case "postgresql", "postgres":
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			cfg.Host, cfg.Port, cfg.User, cfg.Passwd, cfg.DB)
		// DriverName "postgres" routes the connection through lib/pq instead
		// of gorm's default pgx stdlib driver.
		return postgres.New(postgres.Config{DriverName: "postgres", DSN: dsn}), nil

	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			cfg.User, cfg.Passwd, cfg.Host, cfg.Port, cfg.DB)
		return mysql.Open(dsn), nil

	default:
		return nil, fmt.Errorf("unsupported database_type %q", cfg.DatabaseType)
	}
}
