package providers

import "strings"

// Canonical credential statuses. Anything a jurisdiction cannot map is kept as
// its raw text upper-cased.
const (
	StatusActive   = "ACTIVE"
	StatusInactive = "INACTIVE"
	StatusArchived = "ARCHIVED"
)

// StatusPolicy maps one registry's status vocabulary onto canonical statuses.
// Each adapter owns its policy: a missing status field means different things
// in different jurisdictions.
type StatusPolicy struct {
	Name string
	// Map receives the trimmed raw status and whether the field was present at all.
	Map func(raw string, present bool) string
}

// Canonicalize applies the policy and upper-cases the outcome.
func (p StatusPolicy) Canonicalize(raw string, present bool) string {
	return strings.ToUpper(p.Map(strings.TrimSpace(raw), present))
}

// IsMapped reports whether status is one of the three enumerated values.
func IsMapped(status string) bool {
	switch status {
	case StatusActive, StatusInactive, StatusArchived:
		return true
	}
	return false
}

// IsCanonical reports whether status is an enumerated value or an upper-cased fallback.
func IsCanonical(status string) bool {
	return status != "" && status == strings.ToUpper(status) && status == strings.TrimSpace(status)
}
