package bootstrap

import (
	_ "embed"
	"encoding/json"
	"log"

	"github.com/ppongpan/Q-Collector-sub006/internal/domain/schema"
)

//go:embed system_tables.json
var systemTablesJSON []byte

// GetSystemTableDefinitions returns definitions for all engine-owned system
// tables. Loaded from embedded JSON so the registry layout can be reviewed
// and changed without touching code.
func GetSystemTableDefinitions() []schema.TableDefinition {
	var definitions []schema.TableDefinition
	if err := json.Unmarshal(systemTablesJSON, &definitions); err != nil {
		log.Fatalf("Failed to parse system_tables.json: %v", err)
	}
	return definitions
}
