package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"bobinator/internal/app"
	"bobinator/internal/platform/config"
	"bobinator/internal/seeder"
	httptransport "bobinator/internal/transport/http"
	"bobinator/internal/verification/handler"
	"bobinator/internal/verification/models"
	"bobinator/pkg/platform/middleware/request"
)

// TestContext holds one scenario's running engine and the last HTTP exchange.
type TestContext struct {
	BaseURL          string
	HTTPClient       *http.Client
	LastResponse     *http.Response
	LastResponseBody []byte

	app      *app.App
	server   *httptest.Server
	registry *fakeRegistry
}

func NewTestContext() *TestContext {
	return &TestContext{
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Start runs the engine in-process on the memory store, wired to a fake
// Virginia registry.
func (tc *TestContext) Start(ctx context.Context) error {
	fake := newFakeRegistry()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()

	cfg := config.Config{
		Environment: "e2e",
		Server:      config.Server{RequestTimeout: 10 * time.Second},
		Registry: config.RegistryConfig{
			Timeout:       2 * time.Second,
			MaxRetries:    0,
			RatePerSecond: 100,
			RateBurst:     10,
			VABaseURL:     fake.URL(),
			NCBaseURL:     fake.URL(),
		},
		Reverify:    config.ReverifyConfig{Concurrency: 2},
		SearchCache: config.SearchCacheConfig{TTL: time.Minute},
	}
	a, err := app.Build(ctx, cfg, logger, app.WithRegisterer(reg))
	if err != nil {
		fake.Close()
		return err
	}

	router := httptransport.NewRouter(httptransport.Deps{
		Logger:         logger,
		RequestTimeout: cfg.Server.RequestTimeout,
		RequestMetrics: request.NewMetricsWith(reg),
		Gatherer:       reg,
		Health:         a.Health,
		Verification:   handler.New(a.Verification, a.Search, a.Batch, logger),
	})

	tc.app = a
	tc.registry = fake
	tc.server = httptest.NewServer(router)
	tc.BaseURL = tc.server.URL
	return nil
}

// Close stops both servers and releases the engine.
func (tc *TestContext) Close() error {
	if tc.app == nil {
		return nil
	}
	tc.server.Close()
	tc.registry.Close()
	return tc.app.Close()
}

// POST makes a POST request and stores the response
func (tc *TestContext) POST(path string, body interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, tc.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return tc.do(req)
}

// GET makes a GET request and stores the response
func (tc *TestContext) GET(path string) error {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, tc.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return tc.do(req)
}

func (tc *TestContext) do(req *http.Request) error {
	resp, err := tc.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}

	tc.LastResponse = resp
	tc.LastResponseBody, err = io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	return nil
}

// ResponseJSON decodes the last response body as a JSON object.
func (tc *TestContext) ResponseJSON() (map[string]interface{}, error) {
	var data map[string]interface{}
	if err := json.Unmarshal(tc.LastResponseBody, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w\nResponse: %s", err, tc.LastResponseBody)
	}
	return data, nil
}

// ResponseContains checks if the response body contains a field or text
func (tc *TestContext) ResponseContains(text string) bool {
	if strings.Contains(string(tc.LastResponseBody), text) {
		return true
	}
	data, err := tc.ResponseJSON()
	if err != nil {
		return false
	}
	_, ok := data[text]
	return ok
}

func (tc *TestContext) GetLastResponseStatus() int {
	if tc.LastResponse == nil {
		return 0
	}
	return tc.LastResponse.StatusCode
}

func (tc *TestContext) GetLastResponseBody() []byte {
	return tc.LastResponseBody
}

// SeedDemoProviders loads the demo contractors into the store.
func (tc *TestContext) SeedDemoProviders(ctx context.Context) error {
	_, err := seeder.New(tc.app.Store, nil).SeedAll(ctx)
	return err
}

// ProviderID resolves a seeded provider by email.
func (tc *TestContext) ProviderID(ctx context.Context, email string) (string, error) {
	p, err := tc.providerByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	return p.ID.String(), nil
}

// SetCredentialExpiry rewrites the expiration of a provider's insurance or bond.
func (tc *TestContext) SetCredentialExpiry(ctx context.Context, email, credential, expires string) error {
	p, err := tc.providerByEmail(ctx, email)
	if err != nil {
		return err
	}

	switch credential {
	case "insurance":
		rec, err := tc.app.Store.GetInsurance(ctx, p.ID)
		if err != nil {
			return err
		}
		rec.ExpirationDate = expires
		return tc.app.Store.SaveInsurance(ctx, rec)
	case "bond":
		rec, err := tc.app.Store.GetBond(ctx, p.ID)
		if err != nil {
			return err
		}
		rec.ExpirationDate = expires
		return tc.app.Store.SaveBond(ctx, rec)
	default:
		return fmt.Errorf("unknown credential %q", credential)
	}
}

func (tc *TestContext) providerByEmail(ctx context.Context, email string) (*models.Provider, error) {
	all, err := tc.app.Store.ListProviders(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].Email == email {
			return &all[i], nil
		}
	}
	return nil, fmt.Errorf("no provider with email %s", email)
}

func (tc *TestContext) SetRegistryLicense(number, name, status, expires string) {
	tc.registry.setLicense(number, name, status, expires)
}

func (tc *TestContext) SetRegistryDown(down bool) {
	tc.registry.setDown(down)
}

func (tc *TestContext) RegistryCalls() int {
	return tc.registry.callCount()
}
