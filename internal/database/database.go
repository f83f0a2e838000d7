package database

import (
	"fmt"
	"log"

	"github.com/Asyl777/neuroflow-instagramapi/internal/config"
	"github.com/Asyl777/neuroflow-instagramapi/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Init opens the database and migrates the chatbot schema. Postgres is used
// when DB_HOST is configured, otherwise a local sqlite file.
func Init(cfg *config.Config) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)

	if cfg.DBHost != "" {
		dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBSSLMode)
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	} else {
		log.Printf("DB_HOST not set, using sqlite at %s", cfg.DBPath)
		db, err = gorm.Open(sqlite.Open(cfg.DBPath), &gorm.Config{})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate runs the schema migration for all chatbot tables.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.Trigger{},
		&models.Scenario{},
		&models.Step{},
		&models.ScenarioSession{},
		&models.Message{},
		&models.Template{},
		&models.Event{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}
