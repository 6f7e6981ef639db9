package db

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"

	"github.com/glebarez/sqlite"
	"github.com/pysugar/command-center/internal/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// KeySigningSecret is the configs row holding the HMAC secret for OAuth
// state tokens.
const KeySigningSecret = "signing_secret"

// InitDB opens the SQLite database at dbPath and runs migrations.
func InitDB(dbPath string) (*gorm.DB, error) {
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	if _, err := EnsureSecret(db); err != nil {
		return nil, err
	}
	return db, nil
}

// OpenMemory opens a private in-memory database, mainly for tests. name
// must be unique per database wanted.
func OpenMemory(name string) (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// one connection keeps the shared-cache database alive and serialises writers
	sqlDB.SetMaxOpenConns(1)
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates or updates every table.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Account{},
		&models.BlacklistedAccount{},
		&models.Session{},
		&models.SessionAccount{},
		&models.Document{},
		&models.Project{},
		&models.Contact{},
		&models.Config{},
	)
}

// EnsureSecret returns the signing secret, generating it on first run.
func EnsureSecret(db *gorm.DB) (string, error) {
	if v, err := GetConfig(db, KeySigningSecret); err == nil && v != "" {
		return v, nil
	} else if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", err
	}

	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	secret := hex.EncodeToString(b)
	if err := SetConfig(db, KeySigningSecret, secret); err != nil {
		return "", err
	}
	log.Printf("🔑 Generated new signing secret")
	return secret, nil
}

// GetConfig reads a configs row.
func GetConfig(db *gorm.DB, key string) (string, error) {
	var cfg models.Config
	if err := db.Where("key = ?", key).First(&cfg).Error; err != nil {
		return "", err
	}
	return cfg.Value, nil
}

// SetConfig upserts a configs row.
func SetConfig(db *gorm.DB, key, value string) error {
	return db.Save(&models.Config{Key: key, Value: value}).Error
}
