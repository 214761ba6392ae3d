// Package contract checks that an adapter honours the providers.Adapter
// contract whatever the registry returned.
package contract

import (
	"context"
	"testing"

	"bobinator/internal/verification/registry/providers"
)

// Case is one lookup against a prepared registry.
type Case struct {
	Name          string
	LicenseNumber string
	WantSuccess   bool
	// Validate runs extra adapter-specific checks on the result.
	Validate func(t *testing.T, res *providers.LookupResult)
}

// Suite is the set of contract cases for one adapter.
type Suite struct {
	Adapter providers.Adapter
	Cases   []Case
	// SearchQueries are run to check Search never returns nil.
	SearchQueries []string
}

func (s *Suite) Run(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	j := s.Adapter.Jurisdiction()

	for _, tc := range s.Cases {
		t.Run(tc.Name, func(t *testing.T) {
			res := s.Adapter.Lookup(ctx, tc.LicenseNumber)
			if res == nil {
				t.Fatal("lookup returned nil result")
			}
			if res.Jurisdiction != j {
				t.Errorf("expected jurisdiction %s, got %s", j, res.Jurisdiction)
			}
			if res.LicenseNumber == "" {
				t.Error("LicenseNumber not set")
			}
			if res.CheckedAt.IsZero() {
				t.Error("CheckedAt not set")
			}
			if res.Success != tc.WantSuccess {
				t.Fatalf("expected success=%v, got %v (error %q)", tc.WantSuccess, res.Success, res.Error)
			}

			if res.Success {
				if !providers.IsCanonical(res.Status) {
					t.Errorf("status %q is not canonical", res.Status)
				}
				if res.Error != "" {
					t.Errorf("successful lookup carries error %q", res.Error)
				}
				if len(res.RawSource) > providers.RawSourceLimit {
					t.Errorf("raw source is %d bytes, limit %d", len(res.RawSource), providers.RawSourceLimit)
				}
			} else {
				if res.Error == "" {
					t.Error("failed lookup has empty error")
				}
				if res.Category == "" {
					t.Error("failed lookup has no category")
				}
			}

			if tc.Validate != nil {
				tc.Validate(t, res)
			}
		})
	}

	for _, q := range s.SearchQueries {
		t.Run("search "+q, func(t *testing.T) {
			if hits := s.Adapter.Search(ctx, q, 20); hits == nil {
				t.Error("search returned nil")
			}
		})
	}
}
