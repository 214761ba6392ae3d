package providers

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Jurisdiction identifies a licensing registry by its state code.
type Jurisdiction string

const (
	JurisdictionVA Jurisdiction = "VA"
	JurisdictionNC Jurisdiction = "NC"
)

// ParseJurisdiction accepts state codes case-insensitively.
func ParseJurisdiction(s string) (Jurisdiction, bool) {
	switch j := Jurisdiction(strings.ToUpper(strings.TrimSpace(s))); j {
	case JurisdictionVA, JurisdictionNC:
		return j, true
	default:
		return "", false
	}
}

func (j Jurisdiction) String() string { return string(j) }

// RawSourceLimit caps the registry markup kept on a LookupResult.
const RawSourceLimit = 5000

// LookupResult is the canonical outcome of a registry lookup, whatever the
// jurisdiction. On failure only LicenseNumber, Error and Category are meaningful.
type LookupResult struct {
	Success        bool          `json:"success"`
	Jurisdiction   Jurisdiction  `json:"jurisdiction"`
	LicenseNumber  string        `json:"license_number"`
	HolderName     string        `json:"holder_name,omitempty"`
	LicenseClass   string        `json:"license_class,omitempty"`
	Status         string        `json:"status,omitempty"`
	ExpirationDate string        `json:"expiration_date,omitempty"`
	InitialDate    string        `json:"initial_date,omitempty"`
	FirmType       string        `json:"firm_type,omitempty"`
	Specialties    string        `json:"specialties,omitempty"`
	Address        string        `json:"address,omitempty"`
	Violations     string        `json:"violations,omitempty"`
	RawSource      string        `json:"-"`
	Error          string        `json:"error,omitempty"`
	Category       ErrorCategory `json:"category,omitempty"`
	CheckedAt      time.Time     `json:"checked_at"`
}

// SearchHit is one row of a registry name search.
type SearchHit struct {
	LicenseNumber string `json:"license_number"`
	Name          string `json:"name"`
	Address       string `json:"address,omitempty"`
	LicenseType   string `json:"license_type"`
	Board         string `json:"board"`
}

// Adapter speaks one registry's HTTP/HTML protocol.
//
// Lookup never returns a Go error: not-found, network and parse failures all
// come back as LookupResult{Success: false}. Search returns an empty slice on
// any failure. Implementations must be safe for concurrent use.
type Adapter interface {
	Jurisdiction() Jurisdiction
	Lookup(ctx context.Context, licenseNumber string) *LookupResult
	Search(ctx context.Context, query string, limit int) []SearchHit
}

// Registry maps jurisdictions to adapters. Build it once at startup and pass
// it to the services that need it; it is read-only after construction.
type Registry struct {
	adapters map[Jurisdiction]Adapter
}

// NewRegistry registers every adapter, failing on duplicate jurisdictions.
func NewRegistry(adapters ...Adapter) (*Registry, error) {
	r := &Registry{adapters: make(map[Jurisdiction]Adapter, len(adapters))}
	for _, a := range adapters {
		if err := r.register(a); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) register(a Adapter) error {
	j := a.Jurisdiction()
	if _, exists := r.adapters[j]; exists {
		return fmt.Errorf("adapter for %s already registered", j)
	}
	r.adapters[j] = a
	return nil
}

func (r *Registry) Get(j Jurisdiction) (Adapter, bool) {
	a, ok := r.adapters[j]
	return a, ok
}

// Jurisdictions lists the registered jurisdictions in sorted order.
func (r *Registry) Jurisdictions() []Jurisdiction {
	out := make([]Jurisdiction, 0, len(r.adapters))
	for j := range r.adapters {
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i] < out[k] })
	return out
}
