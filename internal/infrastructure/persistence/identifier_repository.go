package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ppongpan/Q-Collector-sub006/internal/domain/models"
	"github.com/ppongpan/Q-Collector-sub006/pkg/constants"
)

// IdentifierRepository is the append-only ResolvedIdentifier cache, keyed
// by (native_text, usage). Entries are written once and never invalidated:
// the first name a label resolves to is the name consumers keep seeing.
type IdentifierRepository struct {
	db *sql.DB
}

// NewIdentifierRepository creates a new IdentifierRepository
func NewIdentifierRepository(db *sql.DB) *IdentifierRepository {
	return &IdentifierRepository{db: db}
}

// Lookup returns the cached resolution for (nativeText, usage), or nil
func (r *IdentifierRepository) Lookup(ctx context.Context, nativeText, usage string) (*models.ResolvedIdentifier, error) {
	query := fmt.Sprintf(`
		SELECT id, native_text, context_usage, identifier, confidence, created_date
		FROM %s WHERE native_text = ? AND context_usage = ?
	`, constants.TableIdentifier)

	var ri models.ResolvedIdentifier
	var confidence string
	err := r.db.QueryRowContext(ctx, query, nativeText, usage).Scan(
		&ri.ID, &ri.NativeText, &ri.Usage, &ri.Identifier, &confidence, &ri.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up identifier for %q: %w", nativeText, err)
	}
	ri.Confidence = constants.Confidence(confidence)
	return &ri, nil
}

// Append stores a resolution. INSERT IGNORE keeps the cache append-only:
// a concurrent writer winning the race is not an error.
func (r *IdentifierRepository) Append(entry *models.ResolvedIdentifier, exec Executor) error {
	if exec == nil {
		exec = r.db
	}
	query := fmt.Sprintf(`
		INSERT IGNORE INTO %s (id, native_text, context_usage, identifier, confidence, created_date)
		VALUES (?, ?, ?, ?, ?, ?)
	`, constants.TableIdentifier)
	_, err := exec.Exec(query, entry.ID, entry.NativeText, entry.Usage,
		entry.Identifier, string(entry.Confidence), entry.CreatedAt)
	return err
}
