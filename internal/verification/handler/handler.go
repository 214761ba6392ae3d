package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"bobinator/internal/verification/batch"
	"bobinator/internal/verification/models"
	"bobinator/internal/verification/registry/providers"
	id "bobinator/pkg/domain"
	dErrors "bobinator/pkg/domain-errors"
	"bobinator/pkg/platform/httputil"
	"bobinator/pkg/platform/middleware/request"
	"bobinator/pkg/validation"
)

const defaultHistoryLimit = 50

// VerificationService runs and records credential checks.
type VerificationService interface {
	VerifyProvider(ctx context.Context, providerID id.ProviderID) (*models.CombinedResult, error)
	VerifyLicense(ctx context.Context, providerID id.ProviderID) (*models.CheckResult, error)
	CheckInsurance(ctx context.Context, providerID id.ProviderID) (*models.CheckResult, error)
	CheckBond(ctx context.Context, providerID id.ProviderID) (*models.CheckResult, error)
	History(ctx context.Context, providerID id.ProviderID, limit int) ([]models.LogEntry, error)
}

// RegistryService answers read-only registry queries.
type RegistryService interface {
	Search(ctx context.Context, j providers.Jurisdiction, query string, limit int) ([]providers.SearchHit, error)
	Lookup(ctx context.Context, j providers.Jurisdiction, licenseNumber string) (*providers.LookupResult, error)
}

type BatchRunner interface {
	VerifyAll(ctx context.Context) ([]batch.ReportEntry, error)
}

// Handler serves the verification HTTP API.
type Handler struct {
	verification VerificationService
	registry     RegistryService
	batch        BatchRunner
	logger       *slog.Logger
}

func New(verification VerificationService, registry RegistryService, runner BatchRunner, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		verification: verification,
		registry:     registry,
		batch:        runner,
		logger:       logger,
	}
}

// Register mounts the request-scoped routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/providers/{id}/verify", h.HandleVerifyProvider)
	r.Post("/providers/{id}/verify/{credential}", h.HandleVerifyCredential)
	r.Get("/providers/{id}/verifications", h.HandleHistory)
	r.Get("/registry/{jurisdiction}/search", h.HandleSearch)
	r.Get("/registry/{jurisdiction}/licenses/{number}", h.HandleLookup)
}

// RegisterAdmin mounts the batch route. It can run far longer than a normal
// request, so callers mount it outside the request timeout.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/admin/verify-all", h.HandleVerifyAll)
}

type HistoryResponse struct {
	ProviderID id.ProviderID     `json:"provider_id"`
	Entries    []models.LogEntry `json:"entries"`
}

type SearchResponse struct {
	Jurisdiction providers.Jurisdiction `json:"jurisdiction"`
	Query        string                 `json:"query"`
	Results      []providers.SearchHit  `json:"results"`
}

type VerifyAllResponse struct {
	Summary batch.Summary       `json:"summary"`
	Entries []batch.ReportEntry `json:"entries"`
}

// HandleVerifyProvider handles POST /providers/{id}/verify.
func (h *Handler) HandleVerifyProvider(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	providerID, err := parseProviderID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	res, err := h.verification.VerifyProvider(ctx, providerID)
	if err != nil {
		h.logger.ErrorContext(ctx, "verify provider failed",
			"request_id", request.ID(ctx),
			"provider_id", providerID.String(),
			"error", err,
		)
		if res != nil {
			httputil.WritePartialError(w, err, res)
			return
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

// HandleVerifyCredential handles POST /providers/{id}/verify/{credential}.
func (h *Handler) HandleVerifyCredential(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	providerID, err := parseProviderID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	kind, ok := models.ParseCredentialType(strings.ToLower(chi.URLParam(r, "credential")))
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "credential must be one of license, insurance, bond"))
		return
	}

	var res *models.CheckResult
	switch kind {
	case models.CredentialLicense:
		res, err = h.verification.VerifyLicense(ctx, providerID)
	case models.CredentialInsurance:
		res, err = h.verification.CheckInsurance(ctx, providerID)
	case models.CredentialBond:
		res, err = h.verification.CheckBond(ctx, providerID)
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "credential check failed",
			"request_id", request.ID(ctx),
			"provider_id", providerID.String(),
			"credential_type", kind,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

type historyRequest struct {
	Limit int `validate:"min=1,max=500"`
}

func (r *historyRequest) Validate() error { return validation.Validate(r) }

// HandleHistory handles GET /providers/{id}/verifications?limit=.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	providerID, err := parseProviderID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	limit, err := queryInt(r, "limit", defaultHistoryLimit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req := &historyRequest{Limit: limit}
	if err := httputil.PrepareRequest(req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	entries, err := h.verification.History(ctx, providerID, req.Limit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if entries == nil {
		entries = []models.LogEntry{}
	}
	httputil.WriteJSON(w, http.StatusOK, HistoryResponse{ProviderID: providerID, Entries: entries})
}

type searchRequest struct {
	Query string `validate:"required,max=200"`
	Limit int    `validate:"min=0,max=100"`
}

func (r *searchRequest) Normalize() { r.Query = strings.TrimSpace(r.Query) }

func (r *searchRequest) Validate() error { return validation.Validate(r) }

// HandleSearch handles GET /registry/{jurisdiction}/search?q=&limit=.
func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	j, err := parseJurisdiction(chi.URLParam(r, "jurisdiction"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	limit, err := queryInt(r, "limit", validation.DefaultSearchLimit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req := &searchRequest{Query: r.URL.Query().Get("q"), Limit: limit}
	if err := httputil.PrepareRequest(req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	hits, err := h.registry.Search(ctx, j, req.Query, req.Limit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, SearchResponse{Jurisdiction: j, Query: req.Query, Results: hits})
}

// HandleLookup handles GET /registry/{jurisdiction}/licenses/{number}. The
// result is returned as-is and never stored.
func (h *Handler) HandleLookup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	j, err := parseJurisdiction(chi.URLParam(r, "jurisdiction"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	res, err := h.registry.Lookup(ctx, j, chi.URLParam(r, "number"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

// HandleVerifyAll handles POST /admin/verify-all.
func (h *Handler) HandleVerifyAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	report, err := h.batch.VerifyAll(ctx)
	if err != nil {
		h.logger.WarnContext(ctx, "verify-all interrupted",
			"request_id", request.ID(ctx),
			"completed", len(report),
			"error", err,
		)
		if report == nil {
			report = []batch.ReportEntry{}
		}
		httputil.WritePartialError(w, dErrors.Wrap(err, dErrors.CodeTimeout, "re-verification interrupted"),
			VerifyAllResponse{Summary: batch.Summarize(report), Entries: report})
		return
	}
	if report == nil {
		report = []batch.ReportEntry{}
	}
	httputil.WriteJSON(w, http.StatusOK, VerifyAllResponse{Summary: batch.Summarize(report), Entries: report})
}

func parseProviderID(raw string) (id.ProviderID, error) {
	providerID, err := id.ParseProviderID(raw)
	if err != nil {
		return id.ProviderID{}, dErrors.New(dErrors.CodeBadRequest, "invalid provider id")
	}
	return providerID, nil
}

func parseJurisdiction(raw string) (providers.Jurisdiction, error) {
	j, ok := providers.ParseJurisdiction(raw)
	if !ok {
		return "", dErrors.New(dErrors.CodeUnsupported, "unsupported jurisdiction: "+raw)
	}
	return j, nil
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeBadRequest, key+" must be an integer")
	}
	return n, nil
}
