package classifier

import "strconv"

// Severity is a display tier for a confidence value.
type Severity string

// Severity tiers.
const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// Tier thresholds, inclusive.
const (
	HighConfidence   = 0.9
	MediumConfidence = 0.7
)

// SeverityOf maps a confidence to its display tier.
func SeverityOf(confidence float32) Severity {
	switch {
	case confidence >= HighConfidence:
		return SeverityHigh
	case confidence >= MediumConfidence:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Percent formats a confidence for display with two decimals, e.g. 0.875 as "87.50%".
func Percent(confidence float32) string {
	return strconv.FormatFloat(float64(confidence)*100, 'f', 2, 64) + "%"
}
