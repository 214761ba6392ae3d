package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bobinator/internal/verification/batch"
	"bobinator/internal/verification/models"
	"bobinator/internal/verification/registry/providers"
	id "bobinator/pkg/domain"
	dErrors "bobinator/pkg/domain-errors"
	"bobinator/pkg/platform/httputil"
)

type stubVerification struct {
	calls     []string
	lastLimit int
	verifyErr error
	partial   bool
	checkFunc func(kind string) (*models.CheckResult, error)
}

func (s *stubVerification) VerifyProvider(_ context.Context, pid id.ProviderID) (*models.CombinedResult, error) {
	s.calls = append(s.calls, "provider")
	if s.verifyErr != nil && !s.partial {
		return nil, s.verifyErr
	}
	res := &models.CombinedResult{
		ProviderID: pid,
		License:    &models.CheckResult{Success: true},
		Insurance:  &models.CheckResult{Success: true, Result: models.ResultValid, ExpirationDate: "2027-01-15"},
		Bond:       models.Failure("No bond on file"),
	}
	if s.partial {
		res.Bond = nil
	}
	return res, s.verifyErr
}

func (s *stubVerification) check(kind string) (*models.CheckResult, error) {
	s.calls = append(s.calls, kind)
	if s.checkFunc != nil {
		return s.checkFunc(kind)
	}
	return &models.CheckResult{Success: true}, nil
}

func (s *stubVerification) VerifyLicense(context.Context, id.ProviderID) (*models.CheckResult, error) {
	return s.check("license")
}

func (s *stubVerification) CheckInsurance(context.Context, id.ProviderID) (*models.CheckResult, error) {
	return s.check("insurance")
}

func (s *stubVerification) CheckBond(context.Context, id.ProviderID) (*models.CheckResult, error) {
	return s.check("bond")
}

func (s *stubVerification) History(_ context.Context, pid id.ProviderID, limit int) ([]models.LogEntry, error) {
	s.lastLimit = limit
	return []models.LogEntry{{
		ID:             id.NewLogEntryID(),
		ProviderID:     pid,
		CredentialType: models.CredentialLicense,
		Result:         models.ResultVerified,
		Details:        "ACTIVE",
		CheckedAt:      time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC),
	}}, nil
}

type stubRegistry struct {
	lastQuery string
	lastLimit int
}

func (s *stubRegistry) Search(_ context.Context, _ providers.Jurisdiction, query string, limit int) ([]providers.SearchHit, error) {
	s.lastQuery, s.lastLimit = query, limit
	return []providers.SearchHit{{LicenseNumber: "2705081693", Name: "K & A ROOFING INC"}}, nil
}

func (s *stubRegistry) Lookup(_ context.Context, j providers.Jurisdiction, n string) (*providers.LookupResult, error) {
	return &providers.LookupResult{Success: true, Jurisdiction: j, LicenseNumber: n, Status: "ACTIVE"}, nil
}

type stubRunner struct {
	report []batch.ReportEntry
	err    error
}

func (s stubRunner) VerifyAll(context.Context) ([]batch.ReportEntry, error) {
	return s.report, s.err
}

type fixture struct {
	verification *stubVerification
	registry     *stubRegistry
	runner       stubRunner
	router       chi.Router
}

func newFixture(runner stubRunner) *fixture {
	f := &fixture{
		verification: &stubVerification{},
		registry:     &stubRegistry{},
		runner:       runner,
	}
	h := New(f.verification, f.registry, f.runner, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r := chi.NewRouter()
	h.Register(r)
	h.RegisterAdmin(r)
	f.router = r
	return f
}

func (f *fixture) do(method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func assertError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	assert.Equal(t, status, w.Code)
	body := decode[httputil.ErrorResponse](t, w)
	assert.Equal(t, code, body.Error)
}

func TestHandleVerifyProvider(t *testing.T) {
	pid := id.NewProviderID()

	t.Run("returns combined result", func(t *testing.T) {
		f := newFixture(stubRunner{})
		w := f.do(http.MethodPost, "/providers/"+pid.String()+"/verify")

		require.Equal(t, http.StatusOK, w.Code)
		body := decode[map[string]any](t, w)
		assert.Equal(t, pid.String(), body["provider_id"])
		bond := body["bond"].(map[string]any)
		assert.Equal(t, false, bond["success"])
		assert.Equal(t, "No bond on file", bond["error"])
		insurance := body["insurance"].(map[string]any)
		assert.Equal(t, "valid", insurance["result"])
	})

	t.Run("invalid id is a bad request", func(t *testing.T) {
		f := newFixture(stubRunner{})
		w := f.do(http.MethodPost, "/providers/not-a-uuid/verify")

		assertError(t, w, http.StatusBadRequest, "bad_request")
		assert.Empty(t, f.verification.calls)
	})

	t.Run("unknown provider is 404", func(t *testing.T) {
		f := newFixture(stubRunner{})
		f.verification.verifyErr = dErrors.New(dErrors.CodeNotFound, "provider not found")
		w := f.do(http.MethodPost, "/providers/"+pid.String()+"/verify")

		assertError(t, w, http.StatusNotFound, "not_found")
	})

	t.Run("storage failure is opaque 500", func(t *testing.T) {
		f := newFixture(stubRunner{})
		f.verification.verifyErr = dErrors.Wrap(errors.New("pq: connection refused"), dErrors.CodeInternal, "failed to load provider")
		w := f.do(http.MethodPost, "/providers/"+pid.String()+"/verify")

		assertError(t, w, http.StatusInternalServerError, "internal_error")
		assert.NotContains(t, w.Body.String(), "connection refused")
	})

	t.Run("completed checks are returned with the error", func(t *testing.T) {
		f := newFixture(stubRunner{})
		f.verification.verifyErr = dErrors.New(dErrors.CodeInternal, "failed to load bond")
		f.verification.partial = true
		w := f.do(http.MethodPost, "/providers/"+pid.String()+"/verify")

		require.Equal(t, http.StatusInternalServerError, w.Code)
		body := decode[map[string]any](t, w)
		assert.Equal(t, "internal_error", body["error"])
		partial, ok := body["partial"].(map[string]any)
		require.True(t, ok, "partial result missing")
		assert.Equal(t, pid.String(), partial["provider_id"])
		assert.Equal(t, "valid", partial["insurance"].(map[string]any)["result"])
		assert.Nil(t, partial["bond"])
	})
}

func TestHandleVerifyCredential(t *testing.T) {
	pid := id.NewProviderID()

	dispatch := []struct {
		path string
		want string
	}{
		{"license", "license"},
		{"insurance", "insurance"},
		{"bond", "bond"},
		{"LICENSE", "license"},
	}
	for _, tc := range dispatch {
		t.Run("dispatches "+tc.path, func(t *testing.T) {
			f := newFixture(stubRunner{})
			w := f.do(http.MethodPost, "/providers/"+pid.String()+"/verify/"+tc.path)

			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, []string{tc.want}, f.verification.calls)
		})
	}

	t.Run("unknown credential", func(t *testing.T) {
		f := newFixture(stubRunner{})
		w := f.do(http.MethodPost, "/providers/"+pid.String()+"/verify/permit")

		assertError(t, w, http.StatusBadRequest, "bad_request")
		assert.Empty(t, f.verification.calls)
	})

	t.Run("missing record is a 200 failure", func(t *testing.T) {
		f := newFixture(stubRunner{})
		f.verification.checkFunc = func(string) (*models.CheckResult, error) {
			return models.Failure("No insurance on file"), nil
		}
		w := f.do(http.MethodPost, "/providers/"+pid.String()+"/verify/insurance")

		require.Equal(t, http.StatusOK, w.Code)
		body := decode[models.CheckResult](t, w)
		assert.False(t, body.Success)
		assert.Equal(t, "No insurance on file", body.Error)
	})
}

func TestHandleHistory(t *testing.T) {
	pid := id.NewProviderID()

	t.Run("default limit", func(t *testing.T) {
		f := newFixture(stubRunner{})
		w := f.do(http.MethodGet, "/providers/"+pid.String()+"/verifications")

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, defaultHistoryLimit, f.verification.lastLimit)
		body := decode[HistoryResponse](t, w)
		assert.Equal(t, pid, body.ProviderID)
		require.Len(t, body.Entries, 1)
		assert.Equal(t, "ACTIVE", body.Entries[0].Details)
	})

	t.Run("explicit limit", func(t *testing.T) {
		f := newFixture(stubRunner{})
		w := f.do(http.MethodGet, "/providers/"+pid.String()+"/verifications?limit=5")

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 5, f.verification.lastLimit)
	})

	t.Run("rejects bad limits", func(t *testing.T) {
		f := newFixture(stubRunner{})
		assertError(t, f.do(http.MethodGet, "/providers/"+pid.String()+"/verifications?limit=abc"),
			http.StatusBadRequest, "bad_request")
		assertError(t, f.do(http.MethodGet, "/providers/"+pid.String()+"/verifications?limit=0"),
			http.StatusBadRequest, "validation_error")
		assertError(t, f.do(http.MethodGet, "/providers/"+pid.String()+"/verifications?limit=501"),
			http.StatusBadRequest, "validation_error")
	})
}

func TestHandleSearch(t *testing.T) {
	t.Run("trims query and passes limit", func(t *testing.T) {
		f := newFixture(stubRunner{})
		w := f.do(http.MethodGet, "/registry/va/search?q=+roofing+&limit=5")

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "roofing", f.registry.lastQuery)
		assert.Equal(t, 5, f.registry.lastLimit)
		body := decode[SearchResponse](t, w)
		assert.Equal(t, providers.JurisdictionVA, body.Jurisdiction)
		require.Len(t, body.Results, 1)
	})

	t.Run("default limit", func(t *testing.T) {
		f := newFixture(stubRunner{})
		w := f.do(http.MethodGet, "/registry/NC/search?q=acme")

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 20, f.registry.lastLimit)
	})

	t.Run("missing query", func(t *testing.T) {
		f := newFixture(stubRunner{})
		w := f.do(http.MethodGet, "/registry/VA/search?q=%20%20")

		assertError(t, w, http.StatusBadRequest, "validation_error")
		assert.Empty(t, f.registry.lastQuery)
	})

	t.Run("unsupported jurisdiction", func(t *testing.T) {
		f := newFixture(stubRunner{})
		w := f.do(http.MethodGet, "/registry/TX/search?q=roofing")

		assertError(t, w, http.StatusUnprocessableEntity, "unsupported_jurisdiction")
	})
}

func TestHandleLookup(t *testing.T) {
	f := newFixture(stubRunner{})
	w := f.do(http.MethodGet, "/registry/VA/licenses/2705081693")

	require.Equal(t, http.StatusOK, w.Code)
	body := decode[providers.LookupResult](t, w)
	assert.True(t, body.Success)
	assert.Equal(t, "2705081693", body.LicenseNumber)
	assert.Equal(t, "ACTIVE", body.Status)
}

func TestHandleVerifyAll(t *testing.T) {
	t.Run("returns report with summary", func(t *testing.T) {
		f := newFixture(stubRunner{report: []batch.ReportEntry{
			{ProviderID: id.NewProviderID(), Name: "John Smith", Results: &models.CombinedResult{}},
			{ProviderID: id.NewProviderID(), Name: "Bob Painter", Error: "license check panicked: boom"},
		}})
		w := f.do(http.MethodPost, "/admin/verify-all")

		require.Equal(t, http.StatusOK, w.Code)
		body := decode[VerifyAllResponse](t, w)
		assert.Equal(t, batch.Summary{Total: 2, OK: 1, Failed: 1}, body.Summary)
		require.Len(t, body.Entries, 2)
		assert.Equal(t, "Bob Painter", body.Entries[1].Name)
	})

	t.Run("empty population", func(t *testing.T) {
		f := newFixture(stubRunner{})
		w := f.do(http.MethodPost, "/admin/verify-all")

		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"summary":{"total":0,"ok":0,"failed":0,"fully_verified":0},"entries":[]}`, w.Body.String())
	})

	t.Run("interrupted run", func(t *testing.T) {
		f := newFixture(stubRunner{err: context.Canceled})
		w := f.do(http.MethodPost, "/admin/verify-all")

		assertError(t, w, http.StatusGatewayTimeout, "registry_timeout")
	})

	t.Run("interrupted run keeps the completed entries", func(t *testing.T) {
		f := newFixture(stubRunner{
			report: []batch.ReportEntry{{ProviderID: id.NewProviderID(), Name: "John Smith", Results: &models.CombinedResult{}}},
			err:    context.Canceled,
		})
		w := f.do(http.MethodPost, "/admin/verify-all")

		require.Equal(t, http.StatusGatewayTimeout, w.Code)
		var body struct {
			Error   string            `json:"error"`
			Partial VerifyAllResponse `json:"partial"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, "registry_timeout", body.Error)
		assert.Equal(t, 1, body.Partial.Summary.Total)
		require.Len(t, body.Partial.Entries, 1)
		assert.Equal(t, "John Smith", body.Partial.Entries[0].Name)
	})
}
