package identifier

import (
	"embed"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"

	"github.com/ppongpan/Q-Collector-sub006/pkg/constants"
	"github.com/ppongpan/Q-Collector-sub006/pkg/errors"
)

//go:embed reserved_words.json
var reservedWordsFS embed.FS

const suffixHexLen = 6

var (
	nonIdentRun  = regexp.MustCompile(`[^a-z0-9]+`)
	leadingJunk  = regexp.MustCompile(`^[0-9_]+`)
	underscoreRx = regexp.MustCompile(`_+`)
)

// Normalizer converts arbitrary resolved names into valid, collision-free
// SQL identifiers for one target database.
type Normalizer struct {
	maxLen   int
	reserved map[string]bool
}

// NewNormalizer creates a Normalizer with the given identifier length limit.
// Zero or negative maxLen falls back to the MySQL limit.
func NewNormalizer(maxLen int) *Normalizer {
	if maxLen <= 0 {
		maxLen = constants.DefaultIdentifierMaxLen
	}
	return &Normalizer{
		maxLen:   maxLen,
		reserved: loadReservedWords(),
	}
}

// WithReservedWords replaces the reserved keyword set, for targets other
// than MySQL. The list is supplied as configuration per target database.
func (n *Normalizer) WithReservedWords(words []string) *Normalizer {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[strings.ToLower(w)] = true
	}
	n.reserved = set
	return n
}

func loadReservedWords() map[string]bool {
	data, err := reservedWordsFS.ReadFile("reserved_words.json")
	if err != nil {
		return map[string]bool{}
	}
	var words []string
	if err := json.Unmarshal(data, &words); err != nil {
		return map[string]bool{}
	}
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

// Normalize converts a candidate name into a valid SQL identifier that does
// not collide with reserved keywords or any name in existing. Returns
// InvalidIdentifierError when the candidate is empty after normalization;
// the caller must then supply a fallback candidate such as field_<ordinal>.
func (n *Normalizer) Normalize(candidate string, existing map[string]bool) (string, error) {
	base := n.sanitize(candidate)
	if base == "" {
		return "", errors.NewInvalidIdentifierError(candidate)
	}

	base = n.truncate(base, "")

	if !n.reserved[base] && !existing[base] {
		return base, nil
	}

	// Collision with a keyword or an existing name: append a deterministic
	// suffix derived from the original candidate and retry until unique.
	for attempt := 0; attempt < 100; attempt++ {
		suffix := shortHash(candidate, attempt)
		name := n.truncate(base, suffix)
		if !n.reserved[name] && !existing[name] {
			return name, nil
		}
	}
	return "", errors.NewInternalError(
		fmt.Sprintf("could not disambiguate identifier for candidate '%s'", candidate), nil)
}

// sanitize lower-cases, collapses non-alphanumeric runs to single
// underscores, and strips leading digits and underscores.
func (n *Normalizer) sanitize(candidate string) string {
	s := strings.ToLower(strings.TrimSpace(candidate))
	s = nonIdentRun.ReplaceAllString(s, "_")
	s = underscoreRx.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	s = leadingJunk.ReplaceAllString(s, "")
	return strings.Trim(s, "_")
}

// truncate enforces the identifier length limit while preserving the
// disambiguation suffix: the base is shortened, never the suffix.
func (n *Normalizer) truncate(base, suffix string) string {
	if suffix == "" {
		if len(base) > n.maxLen {
			return strings.TrimRight(base[:n.maxLen], "_")
		}
		return base
	}
	limit := n.maxLen - len(suffix) - 1
	if len(base) > limit {
		base = strings.TrimRight(base[:limit], "_")
	}
	return base + "_" + suffix
}

// IsReserved reports whether a word is a reserved keyword for the target
func (n *Normalizer) IsReserved(word string) bool {
	return n.reserved[strings.ToLower(word)]
}

// MaxLen returns the configured identifier length limit
func (n *Normalizer) MaxLen() int {
	return n.maxLen
}

// shortHash derives a stable hex suffix from the original candidate text.
// The attempt counter is mixed in so retries stay deterministic.
func shortHash(candidate string, attempt int) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(candidate))
	if attempt > 0 {
		_, _ = fmt.Fprintf(h, "#%d", attempt)
	}
	sum := fmt.Sprintf("%08x", h.Sum32())
	return sum[:suffixHexLen]
}
