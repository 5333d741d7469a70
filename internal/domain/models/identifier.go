package models

import (
	"time"

	"github.com/ppongpan/Q-Collector-sub006/pkg/constants"
)

// ResolvedIdentifier is one append-only cache entry mapping native user
// text (plus usage context) to the SQL identifier it resolved to. Entries
// are never invalidated: a generated table keeps its name for life so BI
// consumers do not break.
type ResolvedIdentifier struct {
	ID         string               `json:"id"`
	NativeText string               `json:"nativeText"`
	Usage      string               `json:"usage"` // "table" | "column"
	Identifier string               `json:"identifier"`
	Confidence constants.Confidence `json:"confidence"`
	CreatedAt  time.Time            `json:"createdAt"`
}
