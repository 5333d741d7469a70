package bootstrap

import (
	"context"
	"database/sql"
	"log"

	"github.com/ppongpan/Q-Collector-sub006/internal/application/services"
)

// InitializeSchema ensures every system table exists. CREATE TABLE IF NOT
// EXISTS makes this idempotent, so it runs unconditionally on every startup.
func InitializeSchema(db *sql.DB) error {
	log.Println("🔧 Initializing system schema...")

	tables := services.NewTableManager(db)
	for _, def := range GetSystemTableDefinitions() {
		if err := tables.CreateTable(context.Background(), def); err != nil {
			return err
		}
	}

	log.Println("✅ System schema ready")
	return nil
}
