package providers

import (
	"strings"
	"time"
)

const isoDate = "2006-01-02"

var registryDateLayouts = []string{
	isoDate,
	"01/02/2006",
	"1/2/2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2006-01-02T15:04:05",
}

// NormalizeDate rewrites registry dates as YYYY-MM-DD so they compare
// lexically. Values in an unknown layout are returned trimmed but unchanged.
func NormalizeDate(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	for _, layout := range registryDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(isoDate)
		}
	}
	return s
}
