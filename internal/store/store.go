// Package store provides the relational persistence layer: the usage ledger
// and the conversation history, backed by sqlite3 or postgres through GORM.
package store

import (
	"fmt"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/postgres"
	_ "github.com/jinzhu/gorm/dialects/sqlite"

	"github.com/user/waclaw/internal/config"
	"github.com/user/waclaw/internal/types"
)

// Open connects to the configured database and migrates the schema.
func Open(cfg *config.Config) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)

	switch cfg.Database.Driver {
	case "postgres", "postgresql":
		// A full DSN/URL (e.g. from DATABASE_URL) is passed through verbatim;
		// otherwise one is assembled from the discrete fields.
		dsn := cfg.Database.DSN
		if dsn == "" {
			dsn = fmt.Sprintf("host=%s port=%s user=%s dbname=%s password=%s",
				cfg.Database.Host, cfg.Database.Port, cfg.Database.User,
				cfg.Database.Name, cfg.Database.Password)
		}
		db, err = gorm.Open("postgres", dsn)
	default:
		db, err = gorm.Open("sqlite3", cfg.Database.Path)
	}
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.AutoMigrate(&types.UserRecord{}, &types.ConversationTurn{}).Error; err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return db, nil
}
