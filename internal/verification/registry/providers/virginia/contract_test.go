package virginia

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"bobinator/internal/verification/registry/providers"
	"bobinator/internal/verification/registry/providers/client"
	"bobinator/internal/verification/registry/providers/contract"
)

func TestAdapterContract(t *testing.T) {
	pages := map[string]string{}
	for number, name := range map[string]string{
		"2705081693": "detail_active.html",
		"2701013163": "detail_expired.html",
		"2705999999": "not_found_alert.html",
	} {
		data, err := os.ReadFile(filepath.Join("testdata", name))
		require.NoError(t, err)
		pages[number] = string(data)
	}
	big := "<html><body><div id=\"license-details-tab\"></div>" + strings.Repeat("<p>padding</p>", 1000) + "</body></html>"
	pages["2705000001"] = big

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == searchPath {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = r.ParseForm()
		page, ok := pages[r.PostForm.Get("license-number")]
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(page))
	}))
	defer server.Close()

	c := client.New(client.Config{
		Jurisdiction: providers.JurisdictionVA,
		BaseURL:      server.URL,
		Timeout:      time.Second,
	}, client.WithRateLimit(rate.NewLimiter(rate.Inf, 0)))

	suite := contract.Suite{
		Adapter: New(c),
		Cases: []contract.Case{
			{Name: "active", LicenseNumber: "2705081693", WantSuccess: true},
			{Name: "expired", LicenseNumber: "2701013163", WantSuccess: true},
			{Name: "not found", LicenseNumber: "2705999999", WantSuccess: false},
			{Name: "registry error", LicenseNumber: "0000000000", WantSuccess: false},
			{
				Name:          "raw source is truncated",
				LicenseNumber: "2705000001",
				WantSuccess:   true,
				Validate: func(t *testing.T, res *providers.LookupResult) {
					require.Len(t, res.RawSource, providers.RawSourceLimit)
					require.Equal(t, providers.StatusActive, res.Status)
				},
			},
		},
		SearchQueries: []string{"roofing"},
	}
	suite.Run(t)
}
