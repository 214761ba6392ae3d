// Package virginia looks up contractor licenses in the Virginia DPOR registry.
package virginia

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"bobinator/internal/verification/metrics"
	"bobinator/internal/verification/registry/providers"
	"bobinator/internal/verification/registry/providers/client"
	"bobinator/internal/verification/registry/providers/extract"
	strutil "bobinator/pkg/string"
)

const (
	searchPath = "/LicenseLookup/Search"
	detailPath = "/LicenseLookup/LicenseDetail"

	// honeypotField is a bot trap on every DPOR form; it is always posted blank.
	honeypotField = "phone-number"

	notFoundMessage = "License not found or invalid response"
)

// StatusPolicy treats a missing or blank Status field as ACTIVE.
var StatusPolicy = providers.StatusPolicy{
	Name: "va-dpor",
	Map: func(raw string, present bool) string {
		if !present || raw == "" {
			return providers.StatusActive
		}
		return raw
	},
}

// Adapter implements providers.Adapter for DPOR.
type Adapter struct {
	client  *client.Client
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

type Option func(*Adapter)

func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Adapter) {
		a.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(a *Adapter) {
		if now != nil {
			a.now = now
		}
	}
}

func New(c *client.Client, opts ...Option) *Adapter {
	a := &Adapter{
		client: c,
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

var _ providers.Adapter = (*Adapter)(nil)

func (a *Adapter) Jurisdiction() providers.Jurisdiction { return providers.JurisdictionVA }

// Lookup fetches the license detail page for licenseNumber.
func (a *Adapter) Lookup(ctx context.Context, licenseNumber string) *providers.LookupResult {
	start := time.Now()
	res := a.lookup(ctx, licenseNumber)
	res.CheckedAt = a.now()
	if a.metrics != nil {
		a.metrics.RecordRegistryRequest(string(providers.JurisdictionVA), providers.Outcome(res), time.Since(start).Seconds())
	}
	return res
}

func (a *Adapter) lookup(ctx context.Context, licenseNumber string) *providers.LookupResult {
	body, err := a.client.PostForm(ctx, detailPath, url.Values{
		"license-number": {licenseNumber},
		honeypotField:    {""},
	})
	if err != nil {
		a.logger.ErrorContext(ctx, "dpor detail request failed",
			"license_number", licenseNumber,
			"category", providers.GetCategory(err),
			"error", err,
		)
		return providers.FailedFromError(providers.JurisdictionVA, licenseNumber, err)
	}

	doc, err := extract.Parse(body)
	if err != nil {
		return providers.Failed(providers.JurisdictionVA, licenseNumber, providers.ErrorBadData, err.Error())
	}

	tab := doc.Find("div#license-details-tab").First()
	if tab.Length() == 0 {
		msg := notFoundMessage
		if alert := doc.Find("div.alert-danger").First(); alert.Length() > 0 {
			if text := extract.Text(alert); text != "" {
				msg = text
			}
		}
		return providers.Failed(providers.JurisdictionVA, licenseNumber, providers.ErrorNotFound, msg)
	}

	fields := extract.Pairs(tab, "strong", extract.ParentNextSibling("div", "div"))
	rawStatus, present := fields.Lookup("Status")

	return &providers.LookupResult{
		Success:        true,
		Jurisdiction:   providers.JurisdictionVA,
		LicenseNumber:  licenseNumber,
		HolderName:     fields.Get("Name"),
		LicenseClass:   fields.Get("Rank"),
		Status:         StatusPolicy.Canonicalize(rawStatus, present),
		ExpirationDate: providers.NormalizeDate(fields.Get("Expiration Date")),
		InitialDate:    providers.NormalizeDate(fields.Get("Initial Certification Date")),
		FirmType:       fields.Get("Firm Type"),
		Specialties:    fields.Get("Specialties"),
		Address:        fields.Get("Address"),
		RawSource:      strutil.Truncate(string(body), providers.RawSourceLimit),
	}
}

// Search runs a DPOR name or number search and returns at most limit hits.
func (a *Adapter) Search(ctx context.Context, query string, limit int) []providers.SearchHit {
	hits := []providers.SearchHit{}
	if limit <= 0 || strings.TrimSpace(query) == "" {
		return hits
	}

	body, err := a.client.PostForm(ctx, searchPath, url.Values{
		"search-text": {query},
		honeypotField: {""},
	})
	if err != nil {
		a.logger.ErrorContext(ctx, "dpor search failed", "error", err)
		return hits
	}
	doc, err := extract.Parse(body)
	if err != nil {
		return hits
	}

	table := doc.Find("table#search-results").First()
	if table.Length() == 0 {
		return hits
	}
	scope := table
	if tbody := table.ChildrenFiltered("tbody").First(); tbody.Length() > 0 {
		scope = tbody
	}

	for _, row := range extract.Rows(scope, "tr", 5) {
		if len(hits) == limit {
			break
		}
		number, ok := row.CellAttr(0, `input[name="license-number"]`, "value")
		if !ok {
			number = row.Cell(0)
		}
		hits = append(hits, providers.SearchHit{
			LicenseNumber: strings.TrimSpace(number),
			Name:          row.Cell(1),
			Address:       row.Cell(2),
			LicenseType:   row.Cell(3),
			Board:         row.Cell(4),
		})
	}
	return hits
}
