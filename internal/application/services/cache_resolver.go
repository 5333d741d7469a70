package services

import (
	"context"

	"github.com/ppongpan/Q-Collector-sub006/internal/infrastructure/persistence"
	"github.com/ppongpan/Q-Collector-sub006/pkg/identifier"
)

// CacheResolver resolves native text from the _system_identifier table, so a
// label translated once keeps the same spelling forever, across restarts and
// dictionary updates.
type CacheResolver struct {
	idents *persistence.IdentifierRepository
}

func NewCacheResolver(idents *persistence.IdentifierRepository) *CacheResolver {
	return &CacheResolver{idents: idents}
}

func (c *CacheResolver) Resolve(ctx context.Context, nativeText string, usage identifier.Usage) (identifier.Resolution, error) {
	entry, err := c.idents.Lookup(ctx, nativeText, string(usage))
	if err != nil {
		return identifier.Resolution{}, err
	}
	if entry == nil {
		// Miss; the chain moves on to the next strategy.
		return identifier.Resolution{}, nil
	}
	return identifier.Resolution{
		Text:       entry.Identifier,
		Confidence: entry.Confidence,
	}, nil
}
