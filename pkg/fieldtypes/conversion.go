package fieldtypes

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ConversionNeedsScan reports whether changing a column from one logical type
// to another requires scanning existing values first. Conversions into a
// textual type are always safe (any value renders as text); everything else
// must be validated row by row before DDL.
func ConversionNeedsScan(fromType, toType string) bool {
	if fromType == toType {
		return false
	}
	reg := GetRegistry()
	if reg.IsTextual(toType) {
		// Widening into text never loses data, with one exception: multi_choice
		// expects a JSON array, which arbitrary text is not.
		def, ok := reg.Get(toType)
		if ok && def.IsMultiValued {
			return true
		}
		return false
	}
	return true
}

// IsDestructiveConversion reports whether a type change can permanently lose
// data if unreversed. Any conversion that needs a scan is treated as
// destructive and triggers a pre-change backup.
func IsDestructiveConversion(fromType, toType string) bool {
	return ConversionNeedsScan(fromType, toType)
}

// ParseValue checks that a raw stored value is representable in the given
// logical type. Empty strings and NULLs are accepted everywhere: generated
// columns are nullable by policy.
func ParseValue(logicalType, raw string) error {
	if raw == "" {
		return nil
	}

	switch logicalType {
	case "short_text":
		if len(raw) > 255 {
			return fmt.Errorf("value exceeds 255 characters")
		}
		return nil
	case "long_text", "single_choice", "attachment":
		return nil
	case "number":
		if _, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err != nil {
			return fmt.Errorf("not a number: %q", raw)
		}
		return nil
	case "rating":
		if _, err := strconv.Atoi(strings.TrimSpace(raw)); err != nil {
			return fmt.Errorf("not an integer rating: %q", raw)
		}
		return nil
	case "date", "datetime":
		return parseTemporal(logicalType, raw)
	case "multi_choice":
		var arr []string
		if err := json.Unmarshal([]byte(raw), &arr); err != nil {
			return fmt.Errorf("not a JSON string array: %q", raw)
		}
		return nil
	case "geo_point":
		pattern, msg := GetRegistry().GetValidationPattern("geo_point")
		if pattern == "" {
			return nil
		}
		if !regexp.MustCompile(pattern).MatchString(strings.TrimSpace(raw)) {
			return fmt.Errorf("%s: %q", msg, raw)
		}
		return nil
	}
	return fmt.Errorf("unknown logical type %q", logicalType)
}

func parseTemporal(logicalType, raw string) error {
	def, ok := GetRegistry().Get(logicalType)
	if !ok {
		return fmt.Errorf("unknown temporal type %q", logicalType)
	}
	layouts := def.ParseLayouts
	if logicalType == "date" {
		// DATE columns read back from DATETIME sources may carry a time part
		layouts = append(layouts, "2006-01-02 15:04:05", "2006-01-02T15:04:05Z07:00")
	}
	trimmed := strings.TrimSpace(raw)
	for _, layout := range layouts {
		if _, err := time.Parse(layout, trimmed); err == nil {
			return nil
		}
	}
	return fmt.Errorf("not a valid %s: %q", logicalType, raw)
}
