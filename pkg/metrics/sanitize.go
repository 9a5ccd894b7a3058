package metrics

import (
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// MaxLabelLength bounds a Prometheus label value to avoid cardinality
// explosions from unbounded inputs (pod names, queue names, free-form
// reasons).
const MaxLabelLength = 128

var labelSanitizeRegex = regexp.MustCompile(`[^a-zA-Z0-9_\-\.]`)

// SanitizeLabel replaces characters a Prometheus label value can't carry
// with underscores and truncates to MaxLabelLength. The second return
// value reports whether the input was altered.
func SanitizeLabel(value string) (string, bool) {
	if value == "" {
		return "unknown", true
	}

	changed := false
	if labelSanitizeRegex.MatchString(value) {
		value = labelSanitizeRegex.ReplaceAllString(value, "_")
		changed = true
	}
	if len(value) > MaxLabelLength {
		value = value[:MaxLabelLength]
		changed = true
	}
	if value == "" {
		return "unknown", true
	}
	return value, changed
}

// SanitizeLabelWithLog sanitizes value and logs a warning naming labelName
// when sanitization changed it.
func SanitizeLabelWithLog(value string, labelName string, logger *zap.Logger) string {
	sanitized, changed := SanitizeLabel(value)
	if changed {
		logger.Warn("sanitized metric label value",
			zap.String("label", labelName),
			zap.String("original", value),
			zap.String("sanitized", sanitized),
			zap.String("reason", getSanitizationReason(value, sanitized)),
		)
	}
	return sanitized
}

func getSanitizationReason(original, sanitized string) string {
	var reasons []string
	if len(original) > MaxLabelLength {
		reasons = append(reasons, "exceeded_max_length")
	}
	if labelSanitizeRegex.MatchString(original) {
		reasons = append(reasons, "invalid_characters")
	}
	if original == "" {
		reasons = append(reasons, "empty_value")
	}
	if len(reasons) == 0 {
		return "unknown"
	}
	return strings.Join(reasons, ",")
}
