// Command state-registry serves canned DPOR (Virginia) and NCLBGC (North
// Carolina) pages so the verification engine can run without touching the
// real registries. Point VA_BASE_URL and NC_BASE_URL at it.
package main

import (
	"encoding/json"
	"fmt"
	"html"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultPort      = "8089"
	defaultLatencyMs = "150"
)

type license struct {
	Number      string
	Name        string
	Rank        string
	FirmType    string
	Status      string
	Issued      string
	Expires     string
	Specialties []string
	Address     []string
	Matters     string
}

// Magic license numbers drive failure modes for end-to-end runs.
const (
	outageNumber    = "2705000503"
	rateLimitNumber = "2705000429"
	slowNumber      = "2705000408"
)

var vaLicenses = map[string]license{
	"2705081693": {
		Number: "2705081693", Name: "K & A ROOFING INC", Rank: "Class A", FirmType: "Corporation",
		Issued: "03/14/2011", Expires: "03/31/2027",
		Specialties: []string{"Roofing Contracting (ROC)"},
		Address:     []string{"1200 Parham Rd", "Henrico, VA 23229"},
	},
	"2701013163": {
		Number: "2701013163", Name: "COLBERT ROOFING CORP", Rank: "Class A", FirmType: "Corporation",
		Issued: "06/02/1994", Expires: "06/30/2026",
		Specialties: []string{"Roofing Contracting (ROC)", "Home Improvement Contractor (HIC)"},
		Address:     []string{"12 Jefferson Ave", "Newport News, VA 23607"},
	},
	"2705014734": {
		Number: "2705014734", Name: "MCNABB ROOFING CO", Rank: "Class B", FirmType: "Corporation",
		Status: "Expired", Issued: "09/10/2008", Expires: "01/31/2024",
		Specialties: []string{"Roofing Contracting (ROC)"},
		Address:     []string{"6700 Washington St", "Haymarket, VA 20169"},
	},
}

var ncLicenses = map[string]license{
	"83060": {
		Number: "83060", Name: "TRIANGLE BUILDERS INC", Rank: "Unlimited", FirmType: "Corporation",
		Status: "Active", Issued: "1/9/1998", Expires: "12/31/2026",
		Specialties: []string{"Building", "Residential"},
		Address:     []string{"4100 Wake Forest Rd", "Raleigh, NC 27609"},
	},
	"71234": {
		Number: "71234", Name: "PIEDMONT RENOVATION LLC", Rank: "Limited", FirmType: "Limited Liability Company",
		Status: "Revoked", Issued: "4/2/2012", Expires: "12/31/2023",
		Specialties: []string{"Residential"},
		Address:     []string{"88 Main St", "Greensboro, NC 27401"},
		Matters:     "Case 2023-117: license revoked for abandonment of project.",
	},
}

var latency = time.Duration(getEnvInt("LATENCY_MS", defaultLatencyMs)) * time.Millisecond

func main() {
	port := getEnv("PORT", defaultPort)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handleHealth)
	mux.HandleFunc("POST /LicenseLookup/LicenseDetail", withLatency(handleVADetail))
	mux.HandleFunc("POST /LicenseLookup/Search", withLatency(handleVASearch))
	mux.HandleFunc("POST /Public/_Search/", withLatency(handleNCSearch))
	mux.HandleFunc("GET /Public/_ShowAccountDetails/", withLatency(handleNCDetail))
	mux.HandleFunc("GET /Public/_ShowNCLBGCPublicMatters/", withLatency(handleNCMatters))

	log.Printf("mock state registry starting on port %s (latency %s)", port, latency)
	if err := http.ListenAndServe(":"+port, mux); err != nil {
		log.Fatal(err)
	}
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "state-registry",
	})
}

func withLatency(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if latency > 0 {
			time.Sleep(latency)
		}
		next(w, r)
	}
}

func handleVADetail(w http.ResponseWriter, r *http.Request) {
	number := strings.TrimSpace(r.PostFormValue("license-number"))
	if r.PostFormValue("phone-number") != "" {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	switch number {
	case outageNumber:
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	case rateLimitNumber:
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	case slowNumber:
		time.Sleep(30 * time.Second)
	}

	lic, ok := vaLicenses[number]
	if !ok {
		log.Printf("VA detail: %s -> not found", number)
		writeHTML(w, `<div class="alert alert-danger">No license found for the number entered.</div>`)
		return
	}
	log.Printf("VA detail: %s -> %s", number, lic.Name)

	var b strings.Builder
	b.WriteString(`<div id="license-details-tab" class="tab-pane active">`)
	vaRow(&b, "Name:", html.EscapeString(lic.Name))
	vaRow(&b, "License Number:", lic.Number)
	vaRow(&b, "Rank", html.EscapeString(lic.Rank))
	vaRow(&b, "Firm Type", html.EscapeString(lic.FirmType))
	if lic.Status != "" {
		vaRow(&b, "Status", html.EscapeString(lic.Status))
	}
	vaRow(&b, "Initial Certification Date", lic.Issued)
	vaRow(&b, "Expiration Date", lic.Expires)
	vaRow(&b, "Specialties", html.EscapeString(strings.Join(lic.Specialties, ", ")))
	vaRow(&b, "Address", escapeLines(lic.Address))
	b.WriteString(`</div>`)
	writeHTML(w, b.String())
}

func vaRow(b *strings.Builder, label, value string) {
	fmt.Fprintf(b, `<div class="row"><div class="col-xs-6"><strong>%s</strong></div><div class="col-xs-6">%s</div></div>`, label, value)
}

func handleVASearch(w http.ResponseWriter, r *http.Request) {
	query := strings.ToLower(strings.TrimSpace(r.PostFormValue("search-text")))

	var b strings.Builder
	b.WriteString(`<table id="search-results" class="table"><thead><tr><th>License</th><th>Name</th><th>Address</th><th>Type</th><th>Board</th></tr></thead><tbody>`)
	matches := 0
	for _, lic := range vaLicenses {
		if query == "" || !(strings.Contains(strings.ToLower(lic.Name), query) || strings.HasPrefix(lic.Number, query)) {
			continue
		}
		matches++
		city := strings.ToUpper(lic.Address[len(lic.Address)-1])
		fmt.Fprintf(&b, `<tr><td><form><input type="hidden" name="license-number" value="%s" /><button>%s</button></form></td><td>%s</td><td>%s</td><td>Contractor</td><td>Board for Contractors</td></tr>`,
			lic.Number, lic.Number, html.EscapeString(lic.Name), html.EscapeString(city))
	}
	b.WriteString(`</tbody></table>`)
	log.Printf("VA search: %q -> %d results", query, matches)
	writeHTML(w, b.String())
}

func handleNCSearch(w http.ResponseWriter, r *http.Request) {
	account := strings.TrimSpace(r.PostFormValue("AccountNumber"))
	company := strings.ToLower(strings.TrimSpace(r.PostFormValue("CompanyName")))

	var b strings.Builder
	b.WriteString(`<table class="table table-striped"><thead><tr><th>License #</th><th>Type</th><th>Name</th><th></th></tr></thead><tbody>`)
	for _, lic := range ncLicenses {
		switch {
		case account != "" && lic.Number == account:
		case account == "" && company != "" && strings.Contains(strings.ToLower(lic.Name), company):
		default:
			continue
		}
		key := url.QueryEscape(ncKey(lic.Number))
		fmt.Fprintf(&b, `<tr><td><a href="#" onclick="ShowAccountDetails( '%s', 'Search'); return false;">%s</a></td><td>%s</td><td>%s</td><td><a href="#" onclick="ShowAccountDetails('%s', 'Search')">View</a></td></tr>`,
			key, lic.Number, html.EscapeString(lic.FirmType), html.EscapeString(lic.Name), key)
	}
	b.WriteString(`</tbody></table>`)
	writeHTML(w, b.String())
}

func handleNCDetail(w http.ResponseWriter, r *http.Request) {
	lic, ok := ncByKey(r.URL.Query().Get("key"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	log.Printf("NC detail: %s -> %s", lic.Number, lic.Name)

	var b strings.Builder
	b.WriteString(`<div class="account-details">`)
	ncField(&b, "License #", lic.Number)
	ncField(&b, "Name", html.EscapeString(lic.Name))
	ncField(&b, "Account Type", html.EscapeString(lic.FirmType))
	ncField(&b, "Status", html.EscapeString(lic.Status))
	ncField(&b, "License Limitation", html.EscapeString(lic.Rank))
	ncField(&b, "First Issued Date", lic.Issued)
	ncField(&b, "Expiration Date", lic.Expires)
	ncField(&b, "Address", escapeLines(lic.Address))
	fmt.Fprintf(&b, `<fieldset><legend>Active Classifications</legend><div class="display-field">%s</div></fieldset>`, escapeLines(lic.Specialties))
	b.WriteString(`</div>`)
	writeHTML(w, b.String())
}

func ncField(b *strings.Builder, label, value string) {
	fmt.Fprintf(b, `<div class="display-label">%s</div><div class="display-field">%s</div>`, label, value)
}

func handleNCMatters(w http.ResponseWriter, r *http.Request) {
	lic, ok := ncByKey(r.URL.Query().Get("key"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(lic.Matters))
}

func ncKey(number string) string { return "acct/" + number + "==" }

func ncByKey(key string) (license, bool) {
	number := strings.TrimSuffix(strings.TrimPrefix(key, "acct/"), "==")
	lic, ok := ncLicenses[number]
	return lic, ok
}

func escapeLines(lines []string) string {
	escaped := make([]string, len(lines))
	for i, l := range lines {
		escaped[i] = html.EscapeString(l)
	}
	return strings.Join(escaped, "<br/>")
}

func writeHTML(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = fmt.Fprintf(w, "<html><body>%s</body></html>", body)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key, defaultValue string) int {
	value := getEnv(key, defaultValue)
	intValue, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("invalid integer value for %s, using default: %s", key, defaultValue)
		intValue, _ = strconv.Atoi(defaultValue)
	}
	return intValue
}
