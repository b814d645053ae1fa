package instrumentation

import "strings"

// Cardinality management helpers for metrics.
// These functions reduce high-cardinality label values to prevent metrics explosion.
//
// # Warning
//
// High cardinality in metrics can cause:
// - Increased memory usage in Prometheus/metrics backends
// - Slower query performance
// - Higher storage costs
//
// Always use these helpers when recording metrics with caller-supplied values.

// maxEntityLabelLength caps the length of the entity label value.
const maxEntityLabelLength = 64

// SanitizeEntityLabel normalizes a caller-supplied entity name into a safe
// metric label value. Entity names come straight from tool arguments, so the
// value is lowercased, truncated and reduced to a plain identifier charset.
//
// Example:
//
//	SanitizeEntityLabel("CustomersV3")        // "customersv3"
//	SanitizeEntityLabel("/data/CustomersV3")  // "data_customersv3"
//	SanitizeEntityLabel("")                   // "unknown"
func SanitizeEntityLabel(entity string) string {
	entity = strings.TrimSpace(strings.ToLower(entity))
	if entity == "" {
		return "unknown"
	}
	if len(entity) > maxEntityLabelLength {
		entity = entity[:maxEntityLabelLength]
	}

	var b strings.Builder
	b.Grow(len(entity))
	lastUnderscore := false
	for _, r := range entity {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
			}
			lastUnderscore = true
		}
	}

	out := strings.TrimSuffix(b.String(), "_")
	if out == "" {
		return "unknown"
	}
	return out
}
