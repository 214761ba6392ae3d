package virginia

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"golang.org/x/time/rate"

	"bobinator/internal/verification/metrics"
	"bobinator/internal/verification/registry/providers"
	"bobinator/internal/verification/registry/providers/client"
)

type recordedRequest struct {
	Method string
	Path   string
	Form   url.Values
}

type VirginiaSuite struct {
	suite.Suite
	mu       sync.Mutex
	requests []recordedRequest
	pages    map[string]string
	status   int
	server   *httptest.Server
	metrics  *metrics.Metrics
	adapter  *Adapter
}

func TestVirginiaSuite(t *testing.T) {
	suite.Run(t, new(VirginiaSuite))
}

func (s *VirginiaSuite) SetupSubTest() {
	s.requests = nil
	s.pages = map[string]string{}
	s.status = http.StatusOK
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		s.mu.Lock()
		s.requests = append(s.requests, recordedRequest{Method: r.Method, Path: r.URL.Path, Form: r.PostForm})
		status := s.status
		s.mu.Unlock()
		w.WriteHeader(status)
		_, _ = w.Write([]byte(s.pages[r.URL.Path]))
	}))
	s.metrics = metrics.NewWith(prometheus.NewRegistry())
	c := client.New(client.Config{
		Jurisdiction: providers.JurisdictionVA,
		BaseURL:      s.server.URL,
		Timeout:      2 * time.Second,
		MaxRetries:   1,
	}, client.WithRateLimit(rate.NewLimiter(rate.Inf, 0)), client.WithBackoff(time.Millisecond, time.Millisecond))
	fixed := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	s.adapter = New(c, WithMetrics(s.metrics), WithClock(func() time.Time { return fixed }))
}

func (s *VirginiaSuite) TearDownSubTest() {
	s.server.Close()
}

func (s *VirginiaSuite) fixture(name string) string {
	data, err := os.ReadFile(filepath.Join("testdata", name))
	s.Require().NoError(err)
	return string(data)
}

func (s *VirginiaSuite) TestLookup() {
	s.Run("active license without status field", func() {
		s.pages[detailPath] = s.fixture("detail_active.html")

		res := s.adapter.Lookup(context.Background(), "2705081693")

		s.Require().True(res.Success, res.Error)
		s.Equal(providers.JurisdictionVA, res.Jurisdiction)
		s.Equal("2705081693", res.LicenseNumber)
		s.Equal("K & A ROOFING INC", res.HolderName)
		s.Equal("Class A", res.LicenseClass)
		s.Equal(providers.StatusActive, res.Status)
		s.Equal("2027-03-31", res.ExpirationDate)
		s.Equal("2011-03-14", res.InitialDate)
		s.Equal("Corporation", res.FirmType)
		s.Equal("Roofing Contracting (ROC)", res.Specialties)
		s.Equal("1200 Parham Rd Henrico, VA 23229", res.Address)
		s.Empty(res.Violations)
		s.Contains(res.RawSource, "license-details-tab")
		s.Equal(time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC), res.CheckedAt)
		s.Equal(1.0, testutil.ToFloat64(s.metrics.RegistryRequestsTotal.WithLabelValues("VA", "success")))

		s.Require().Len(s.requests, 1)
		req := s.requests[0]
		s.Equal(http.MethodPost, req.Method)
		s.Equal("2705081693", req.Form.Get("license-number"))
		s.True(req.Form.Has("phone-number"))
		s.Empty(req.Form.Get("phone-number"))
	})

	s.Run("present status is upper-cased", func() {
		s.pages[detailPath] = s.fixture("detail_expired.html")

		res := s.adapter.Lookup(context.Background(), "2701013163")

		s.Require().True(res.Success)
		s.Equal("EXPIRED", res.Status)
		s.True(providers.IsCanonical(res.Status))
		s.Equal("2019-06-30", res.ExpirationDate)
		s.Empty(res.FirmType)
	})

	s.Run("alert text becomes the error", func() {
		s.pages[detailPath] = s.fixture("not_found_alert.html")

		res := s.adapter.Lookup(context.Background(), "2705999999")

		s.False(res.Success)
		s.Equal(providers.ErrorNotFound, res.Category)
		s.Equal("No results found for license number 2705999999.", res.Error)
		s.Equal("2705999999", res.LicenseNumber)
	})

	s.Run("unrecognized page is a generic not found", func() {
		s.pages[detailPath] = "<html><body><h1>Maintenance</h1></body></html>"

		res := s.adapter.Lookup(context.Background(), "2705999999")

		s.False(res.Success)
		s.Equal("License not found or invalid response", res.Error)
		s.Equal(providers.ErrorNotFound, res.Category)
	})

	s.Run("server errors are retried then reported", func() {
		s.status = http.StatusBadGateway

		res := s.adapter.Lookup(context.Background(), "2705081693")

		s.False(res.Success)
		s.NotEmpty(res.Error)
		s.Equal(providers.ErrorProviderOutage, res.Category)
		s.Len(s.requests, 2)
		s.Equal(1.0, testutil.ToFloat64(s.metrics.RegistryRequestsTotal.WithLabelValues("VA", "provider_outage")))
	})
}

func (s *VirginiaSuite) TestSearch() {
	s.Run("reads rows with at least five cells", func() {
		s.pages[searchPath] = s.fixture("search_results.html")

		hits := s.adapter.Search(context.Background(), "roofing", 20)

		s.Require().Len(hits, 3)
		s.Equal(providers.SearchHit{
			LicenseNumber: "2705081693",
			Name:          "K & A ROOFING INC",
			Address:       "HENRICO, VA",
			LicenseType:   "Contractor",
			Board:         "Board for Contractors",
		}, hits[0])
		s.Equal("2701013163", hits[1].LicenseNumber)
		s.Equal("MCNABB ROOFING CO", hits[2].Name)

		s.Require().Len(s.requests, 1)
		s.Equal(searchPath, s.requests[0].Path)
		s.Equal("roofing", s.requests[0].Form.Get("search-text"))
		s.True(s.requests[0].Form.Has("phone-number"))
	})

	s.Run("limit caps the hits", func() {
		s.pages[searchPath] = s.fixture("search_results.html")

		hits := s.adapter.Search(context.Background(), "roofing", 2)

		s.Len(hits, 2)
	})

	s.Run("missing table yields empty result", func() {
		s.pages[searchPath] = "<html><body><p>No matches</p></body></html>"

		hits := s.adapter.Search(context.Background(), "nobody", 20)

		s.NotNil(hits)
		s.Empty(hits)
	})

	s.Run("transport failure yields empty result", func() {
		s.status = http.StatusInternalServerError

		s.Empty(s.adapter.Search(context.Background(), "roofing", 20))
	})

	s.Run("blank query makes no request", func() {

		s.Empty(s.adapter.Search(context.Background(), "   ", 20))
		s.Empty(s.requests)
	})
}
