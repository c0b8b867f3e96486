package common

import (
	"fmt"
	"slices"
	"strings"

	"cvtailor/internal/export"
)

// ValidateOutputFormat validates format against the supported formats. An empty list allows anything.
func ValidateOutputFormat(format string, supportedFormats []string) error {
	if len(supportedFormats) == 0 {
		return nil
	}

	if slices.Contains(supportedFormats, format) {
		return nil
	}

	return fmt.Errorf("unsupported output format '%s'. Supported formats: %v",
		format, supportedFormats)
}

// ValidateTextColor checks a hex colour for the additional text block. Empty is allowed.
func ValidateTextColor(color string) error {
	if strings.TrimSpace(color) == "" {
		return nil
	}
	if _, err := export.NormalizeColor(color); err != nil {
		return fmt.Errorf("invalid color %q: expected a hex value such as #1F4E79", color)
	}
	return nil
}

// NormalizeFeedback trims refinement instructions and drops the blank ones, keeping their order.
func NormalizeFeedback(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
