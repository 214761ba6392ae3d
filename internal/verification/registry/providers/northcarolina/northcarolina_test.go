package northcarolina

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"golang.org/x/time/rate"

	"bobinator/internal/verification/registry/providers"
	"bobinator/internal/verification/registry/providers/client"
)

type hit struct {
	Method   string
	Path     string
	RawQuery string
	Form     url.Values
}

type NorthCarolinaSuite struct {
	suite.Suite
	mu      sync.Mutex
	hits    []hit
	pages   map[string]string
	failing map[string]int
	logs    *bytes.Buffer
	server  *httptest.Server
	adapter *Adapter
}

func TestNorthCarolinaSuite(t *testing.T) {
	suite.Run(t, new(NorthCarolinaSuite))
}

func (s *NorthCarolinaSuite) SetupSubTest() {
	s.hits = nil
	s.pages = map[string]string{}
	s.failing = map[string]int{}
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		s.mu.Lock()
		s.hits = append(s.hits, hit{Method: r.Method, Path: r.URL.Path, RawQuery: r.URL.RawQuery, Form: r.PostForm})
		s.mu.Unlock()
		if code, ok := s.failing[r.URL.Path]; ok {
			w.WriteHeader(code)
			return
		}
		_, _ = w.Write([]byte(s.pages[r.URL.Path]))
	}))
	s.logs = &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(s.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	c := client.New(client.Config{
		Jurisdiction: providers.JurisdictionNC,
		BaseURL:      s.server.URL,
		Timeout:      2 * time.Second,
		MaxRetries:   2,
	}, client.WithRateLimit(rate.NewLimiter(rate.Inf, 0)), client.WithBackoff(time.Millisecond, 2*time.Millisecond))
	s.adapter = New(c, WithLogger(logger))
}

func (s *NorthCarolinaSuite) TearDownSubTest() {
	s.server.Close()
}

func (s *NorthCarolinaSuite) fixture(name string) string {
	data, err := os.ReadFile(filepath.Join("testdata", name))
	s.Require().NoError(err)
	return string(data)
}

func (s *NorthCarolinaSuite) hitsFor(path string) []hit {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []hit
	for _, h := range s.hits {
		if h.Path == path {
			out = append(out, h)
		}
	}
	return out
}

func (s *NorthCarolinaSuite) TestLookup() {
	s.Run("three step lookup maps every field", func() {
		s.pages[searchPath] = s.fixture("search_match.html")
		s.pages[detailPath] = s.fixture("detail_active.html")
		s.pages[mattersPath] = "  <div class=\"matter\">2019-044: Consent order, civil penalty $500</div>\n"

		res := s.adapter.Lookup(context.Background(), "83060")

		s.Require().True(res.Success, res.Error)
		s.Equal(providers.JurisdictionNC, res.Jurisdiction)
		s.Equal("83060", res.LicenseNumber)
		s.Equal("TRIANGLE BUILDERS INC", res.HolderName)
		s.Equal("Unlimited", res.LicenseClass)
		s.Equal(providers.StatusActive, res.Status)
		s.Equal("2026-12-31", res.ExpirationDate)
		s.Equal("1998-01-09", res.InitialDate)
		s.Equal("Corporation", res.FirmType)
		s.Equal("Building, Residential, Building", res.Specialties, "every classification line is kept")
		s.Equal("4100 Wake Forest Rd Raleigh, NC 27609", res.Address)
		s.Equal(`<div class="matter">2019-044: Consent order, civil penalty $500</div>`, res.Violations)
		s.Contains(res.RawSource, "account-details")
		s.False(res.CheckedAt.IsZero())
	})

	s.Run("search form carries the stripped account number and blank fields", func() {
		s.pages[searchPath] = s.fixture("search_match.html")
		s.pages[detailPath] = s.fixture("detail_revoked.html")

		s.adapter.Lookup(context.Background(), "L.100177")

		searches := s.hitsFor(searchPath)
		s.Require().Len(searches, 1)
		form := searches[0].Form
		s.Equal(http.MethodPost, searches[0].Method)
		s.Equal("100177", form.Get("AccountNumber"))
		s.Equal("false", form.Get("useSoundex"))
		for _, field := range []string{
			"ClassificationDefinitionIdnt", "QualifierAccountNumber", "CompanyName", "FirstName",
			"LastName", "PhoneNumber", "streetAddress", "PostalCode", "City", "StateCode",
		} {
			s.True(form.Has(field), field)
			s.Empty(form.Get(field), field)
		}
	})

	s.Run("key is passed through without re-encoding", func() {
		s.pages[searchPath] = s.fixture("search_match.html")
		s.pages[detailPath] = s.fixture("detail_active.html")

		s.adapter.Lookup(context.Background(), "83060")

		details := s.hitsFor(detailPath)
		s.Require().Len(details, 1)
		s.Equal(http.MethodGet, details[0].Method)
		s.Equal("key=q9XvL%2Bk3/Ab==&Source=Search", details[0].RawQuery)
		matters := s.hitsFor(mattersPath)
		s.Require().Len(matters, 1)
		s.Equal("key=q9XvL%2Bk3/Ab==", matters[0].RawQuery)
	})

	s.Run("no account key stops after the search", func() {
		s.pages[searchPath] = `<p class="no-results">No records found.</p>`

		res := s.adapter.Lookup(context.Background(), "99999")

		s.False(res.Success)
		s.Equal("License not found", res.Error)
		s.Equal(providers.ErrorNotFound, res.Category)
		s.Len(s.hitsFor(searchPath), 1)
		s.Empty(s.hitsFor(detailPath))
		s.Empty(s.hitsFor(mattersPath))
	})

	s.Run("search transport failure is categorized", func() {
		s.failing[searchPath] = http.StatusServiceUnavailable

		res := s.adapter.Lookup(context.Background(), "83060")

		s.False(res.Success)
		s.NotEmpty(res.Error)
		s.Equal(providers.ErrorProviderOutage, res.Category)
		s.Empty(s.hitsFor(detailPath))
	})

	s.Run("detail failure fails the lookup", func() {
		s.pages[searchPath] = s.fixture("search_match.html")
		s.failing[detailPath] = http.StatusBadRequest

		res := s.adapter.Lookup(context.Background(), "83060")

		s.False(res.Success)
		s.Equal(providers.ErrorBadData, res.Category)
		s.Empty(s.hitsFor(mattersPath))
	})

	s.Run("matters failure is ignored", func() {
		s.pages[searchPath] = s.fixture("search_match.html")
		s.pages[detailPath] = s.fixture("detail_active.html")
		s.failing[mattersPath] = http.StatusInternalServerError

		res := s.adapter.Lookup(context.Background(), "83060")

		s.Require().True(res.Success)
		s.Empty(res.Violations)
		s.Len(s.hitsFor(mattersPath), 1, "matters is not retried")
		s.Contains(s.logs.String(), "nclbgc matters request failed")
		s.Contains(s.logs.String(), `"level":"DEBUG"`)
		s.Contains(s.logs.String(), `"license_number":"83060"`)
	})

	s.Run("detail page without account fields is bad data", func() {
		s.pages[searchPath] = `<a onclick="ShowAccountDetails('abc%3D', 'Search')">view</a>`
		s.pages[detailPath] = s.fixture("detail_maintenance.html")

		res := s.adapter.Lookup(context.Background(), "83060")

		s.False(res.Success)
		s.Equal(providers.ErrorBadData, res.Category)
		s.Equal("unexpected account detail page", res.Error)
		s.Empty(res.Status)
		s.Empty(res.HolderName)
		s.Len(s.hitsFor(detailPath), 1)
		s.Empty(s.hitsFor(mattersPath))
	})

	s.Run("archived status", func() {
		s.pages[searchPath] = s.fixture("search_match.html")
		s.pages[detailPath] = s.fixture("detail_archived.html")

		res := s.adapter.Lookup(context.Background(), "05812")

		s.Require().True(res.Success)
		s.Equal(providers.StatusArchived, res.Status)
		s.Equal("05812", res.LicenseNumber, "falls back to the input when the page has no License #")
		s.Empty(res.Specialties)
	})

	s.Run("license not valid is inactive", func() {
		s.pages[searchPath] = s.fixture("search_match.html")
		s.pages[detailPath] = s.fixture("detail_revoked.html")

		res := s.adapter.Lookup(context.Background(), "L.100177")

		s.Require().True(res.Success)
		s.Equal(providers.StatusInactive, res.Status)
		s.Equal("L.100177", res.LicenseNumber)
	})
}

func (s *NorthCarolinaSuite) TestSearch() {
	s.Run("reads rows with at least three cells", func() {
		s.pages[searchPath] = s.fixture("search_companies.html")

		hits := s.adapter.Search(context.Background(), "triangle", 20)

		s.Require().Len(hits, 2)
		s.Equal(providers.SearchHit{
			LicenseNumber: "83060",
			Name:          "TRIANGLE BUILDERS INC",
			LicenseType:   "Corporation",
			Board:         "NCLBGC",
		}, hits[0])
		s.Equal("L.100177", hits[1].LicenseNumber)
		s.Equal("JANE DOE", hits[1].Name)

		searches := s.hitsFor(searchPath)
		s.Require().Len(searches, 1)
		s.Equal("triangle", searches[0].Form.Get("CompanyName"))
		s.Empty(searches[0].Form.Get("AccountNumber"))
	})

	s.Run("limit caps the hits", func() {
		s.pages[searchPath] = s.fixture("search_companies.html")

		s.Len(s.adapter.Search(context.Background(), "triangle", 1), 1)
	})

	s.Run("failure yields empty result", func() {
		s.failing[searchPath] = http.StatusBadGateway

		hits := s.adapter.Search(context.Background(), "triangle", 20)

		s.NotNil(hits)
		s.Empty(hits)
	})
}

func TestStatusPolicy(t *testing.T) {
	cases := map[string]string{
		"":                            providers.StatusActive,
		"Active":                      providers.StatusActive,
		"Archived":                    providers.StatusArchived,
		"License Not Valid - Revoked": providers.StatusInactive,
		"License Not Valid - Expired": providers.StatusInactive,
		"Suspended":                   "SUSPENDED",
		"  Pending Renewal ":          "PENDING RENEWAL",
	}
	for raw, want := range cases {
		assert.Equal(t, want, StatusPolicy.Canonicalize(raw, raw != ""), raw)
	}
}
