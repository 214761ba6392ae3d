// Package northcarolina looks up general contractor licenses in the NCLBGC
// portal. A lookup is three requests: a search that yields an opaque account
// key, the account detail fragment, and a best-effort public matters fragment.
package northcarolina

import (
	"context"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"bobinator/internal/verification/metrics"
	"bobinator/internal/verification/registry/providers"
	"bobinator/internal/verification/registry/providers/client"
	"bobinator/internal/verification/registry/providers/extract"
	strutil "bobinator/pkg/string"
)

const (
	Board = "NCLBGC"

	searchPath  = "/Public/_Search/"
	detailPath  = "/Public/_ShowAccountDetails/"
	mattersPath = "/Public/_ShowNCLBGCPublicMatters/"

	notFoundMessage      = "License not found"
	unexpectedDetailPage = "unexpected account detail page"
)

var accountKeyPattern = regexp.MustCompile(`ShowAccountDetails\(\s*'([^']+)'`)

var classifications = extract.Group{
	Container: "fieldset",
	Heading:   "legend",
	Contains:  "Classification",
	Value:     "div.display-field",
}

// StatusPolicy maps the portal's status text. An empty field means active.
var StatusPolicy = providers.StatusPolicy{
	Name: "nc-nclbgc",
	Map: func(raw string, _ bool) string {
		switch {
		case strings.Contains(raw, "License Not Valid"):
			return providers.StatusInactive
		case strings.Contains(raw, "Archived"):
			return providers.StatusArchived
		case raw == "" || strings.Contains(raw, "Active"):
			return providers.StatusActive
		default:
			return raw
		}
	},
}

// Adapter implements providers.Adapter for the NCLBGC portal.
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

func (a *Adapter) Jurisdiction() providers.Jurisdiction { return providers.JurisdictionNC }

func (a *Adapter) Lookup(ctx context.Context, licenseNumber string) *providers.LookupResult {
	start := time.Now()
	res := a.lookup(ctx, licenseNumber)
	res.CheckedAt = a.now()
	if a.metrics != nil {
		a.metrics.RecordRegistryRequest(string(providers.JurisdictionNC), providers.Outcome(res), time.Since(start).Seconds())
	}
	return res
}

func (a *Adapter) lookup(ctx context.Context, licenseNumber string) *providers.LookupResult {
	key, err := a.accountKey(ctx, licenseNumber)
	if err != nil {
		a.logger.ErrorContext(ctx, "nclbgc search request failed",
			"license_number", licenseNumber,
			"category", providers.GetCategory(err),
			"error", err,
		)
		return providers.FailedFromError(providers.JurisdictionNC, licenseNumber, err)
	}
	if key == "" {
		return providers.Failed(providers.JurisdictionNC, licenseNumber, providers.ErrorNotFound, notFoundMessage)
	}

	// The key arrives already URL-encoded from the page script.
	body, err := a.client.Get(ctx, detailPath+"?key="+key+"&Source=Search")
	if err != nil {
		a.logger.ErrorContext(ctx, "nclbgc detail request failed",
			"license_number", licenseNumber,
			"category", providers.GetCategory(err),
			"error", err,
		)
		return providers.FailedFromError(providers.JurisdictionNC, licenseNumber, err)
	}

	doc, err := extract.Parse(body)
	if err != nil {
		return providers.Failed(providers.JurisdictionNC, licenseNumber, providers.ErrorBadData, err.Error())
	}
	fields := extract.Pairs(doc.Selection, "div.display-label", extract.NextSibling("div.display-field"))
	if !accountDetail(fields) {
		a.logger.WarnContext(ctx, "nclbgc detail page has no account fields",
			"license_number", licenseNumber,
			"fields", len(fields),
		)
		return providers.Failed(providers.JurisdictionNC, licenseNumber, providers.ErrorBadData, unexpectedDetailPage)
	}
	rawStatus, present := fields.Lookup("Status")

	return &providers.LookupResult{
		Success:        true,
		Jurisdiction:   providers.JurisdictionNC,
		LicenseNumber:  fields.GetOr("License #", licenseNumber),
		HolderName:     fields.Get("Name"),
		LicenseClass:   fields.Get("License Limitation"),
		Status:         StatusPolicy.Canonicalize(rawStatus, present),
		ExpirationDate: providers.NormalizeDate(fields.Get("Expiration Date")),
		InitialDate:    providers.NormalizeDate(fields.Get("First Issued Date")),
		FirmType:       fields.Get("Account Type"),
		Specialties:    strings.Join(classifications.Entries(doc), ", "),
		Address:        fields.Get("Address"),
		Violations:     a.matters(ctx, licenseNumber, key),
		RawSource:      strutil.Truncate(string(body), providers.RawSourceLimit),
	}
}

// accountKey returns "" without error when the search has no matching account.
func (a *Adapter) accountKey(ctx context.Context, licenseNumber string) (string, error) {
	form := searchForm()
	form.Set("AccountNumber", strings.TrimLeft(licenseNumber, "Ll."))

	body, err := a.client.PostForm(ctx, searchPath, form)
	if err != nil {
		return "", err
	}
	key, _ := extract.FirstSubmatch(accountKeyPattern, body)
	return key, nil
}

// accountDetail reports whether the detail fragment carries an account. A
// page without the license number and the holder name is not one.
func accountDetail(fields extract.Fields) bool {
	_, hasNumber := fields.Lookup("License #")
	_, hasName := fields.Lookup("Name")
	return hasNumber || hasName
}

// matters is best effort: one attempt, and a failure only leaves Violations empty.
func (a *Adapter) matters(ctx context.Context, licenseNumber, key string) string {
	body, err := a.client.GetOnce(ctx, mattersPath+"?key="+key)
	if err != nil {
		a.logger.DebugContext(ctx, "nclbgc matters request failed",
			"license_number", licenseNumber,
			"category", providers.GetCategory(err),
			"error", err,
		)
		return ""
	}
	return strings.TrimSpace(string(body))
}

// Search runs a company-name search and returns at most limit hits.
func (a *Adapter) Search(ctx context.Context, query string, limit int) []providers.SearchHit {
	hits := []providers.SearchHit{}
	if limit <= 0 || strings.TrimSpace(query) == "" {
		return hits
	}

	form := searchForm()
	form.Set("CompanyName", query)
	body, err := a.client.PostForm(ctx, searchPath, form)
	if err != nil {
		a.logger.ErrorContext(ctx, "nclbgc search failed", "error", err)
		return hits
	}
	doc, err := extract.Parse(body)
	if err != nil {
		return hits
	}

	for _, row := range extract.Rows(doc.Selection, "tr", 3) {
		if len(hits) == limit {
			break
		}
		hits = append(hits, providers.SearchHit{
			LicenseNumber: row.CellLinkText(0),
			Name:          row.Cell(2),
			LicenseType:   row.Cell(1),
			Board:         Board,
		})
	}
	return hits
}

func searchForm() url.Values {
	form := url.Values{}
	for _, field := range []string{
		"AccountNumber",
		"ClassificationDefinitionIdnt",
		"QualifierAccountNumber",
		"CompanyName",
		"FirstName",
		"LastName",
		"PhoneNumber",
		"streetAddress",
		"PostalCode",
		"City",
		"StateCode",
	} {
		form.Set(field, "")
	}
	form.Set("useSoundex", "false")
	return form
}
