package identifier

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/ppongpan/Q-Collector-sub006/pkg/constants"
)

//go:embed dictionary.json
var dictionaryFS embed.FS

// Usage tells a resolver what kind of identifier is being named
type Usage string

const (
	UsageTable  Usage = "table"
	UsageColumn Usage = "column"
)

// Resolution is the outcome of resolving native user text into a name
// candidate, tagged with how trustworthy the source was.
type Resolution struct {
	Text       string
	Confidence constants.Confidence
}

// Resolver is one name-resolution strategy. Implementations must be safe
// for concurrent use. Returning an error means the strategy could not run
// at all; an unusable result is expressed as fallback confidence instead.
type Resolver interface {
	Resolve(ctx context.Context, nativeText string, usage Usage) (Resolution, error)
}

// Chain tries resolvers in order until one returns exact or approximate
// confidence. If none does, the first fallback result wins. The engine
// stays agnostic to which strategies exist.
type Chain struct {
	resolvers []Resolver
}

// NewChain creates a resolver chain
func NewChain(resolvers ...Resolver) *Chain {
	return &Chain{resolvers: resolvers}
}

// Resolve implements Resolver over the whole chain
func (c *Chain) Resolve(ctx context.Context, nativeText string, usage Usage) (Resolution, error) {
	var fallback *Resolution
	for _, r := range c.resolvers {
		res, err := r.Resolve(ctx, nativeText, usage)
		if err != nil {
			// A broken strategy never blocks the chain
			continue
		}
		if res.Text == "" {
			continue
		}
		if res.Confidence == constants.ConfidenceExact || res.Confidence == constants.ConfidenceApproximate {
			return res, nil
		}
		if fallback == nil {
			f := res
			fallback = &f
		}
	}
	if fallback != nil {
		return *fallback, nil
	}
	return Resolution{}, fmt.Errorf("no resolver produced a name for %q", nativeText)
}

// DictionaryResolver resolves Thai labels through an embedded dictionary.
// ASCII input passes through unchanged with exact confidence.
type DictionaryResolver struct {
	entries map[string]string
}

// NewDictionaryResolver loads the embedded Thai-English dictionary
func NewDictionaryResolver() *DictionaryResolver {
	entries := map[string]string{}
	if data, err := dictionaryFS.ReadFile("dictionary.json"); err == nil {
		_ = json.Unmarshal(data, &entries)
	}
	return &DictionaryResolver{entries: entries}
}

// Resolve implements Resolver
func (d *DictionaryResolver) Resolve(_ context.Context, nativeText string, _ Usage) (Resolution, error) {
	trimmed := strings.TrimSpace(nativeText)
	if trimmed == "" {
		return Resolution{}, nil
	}

	if isASCII(trimmed) {
		return Resolution{Text: trimmed, Confidence: constants.ConfidenceExact}, nil
	}

	if translated, ok := d.entries[trimmed]; ok {
		return Resolution{Text: translated, Confidence: constants.ConfidenceExact}, nil
	}

	// Compound labels: translate word by word when every word is known
	words := strings.Fields(trimmed)
	if len(words) > 1 {
		parts := make([]string, 0, len(words))
		for _, w := range words {
			t, ok := d.entries[w]
			if !ok {
				return Resolution{}, nil
			}
			parts = append(parts, t)
		}
		return Resolution{Text: strings.Join(parts, " "), Confidence: constants.ConfidenceApproximate}, nil
	}

	return Resolution{}, nil
}

// HashResolver is the terminal fallback: it always produces a short,
// hash-suffixed conservative name so schema generation can never fail on
// untranslatable input.
type HashResolver struct{}

// NewHashResolver creates a HashResolver
func NewHashResolver() *HashResolver {
	return &HashResolver{}
}

// Resolve implements Resolver
func (h *HashResolver) Resolve(_ context.Context, nativeText string, usage Usage) (Resolution, error) {
	prefix := "field"
	if usage == UsageTable {
		prefix = "form"
	}
	return Resolution{
		Text:       fmt.Sprintf("%s_%s", prefix, shortHash(nativeText, 0)),
		Confidence: constants.ConfidenceFallback,
	}, nil
}

func isASCII(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII {
			return false
		}
	}
	return true
}
