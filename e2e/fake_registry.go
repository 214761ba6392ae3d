package e2e

import (
	"fmt"
	"html"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

type vaRecord struct {
	name    string
	status  string
	expires string
}

// fakeRegistry stands in for DPOR. Scenarios add records or take it down.
type fakeRegistry struct {
	mu      sync.Mutex
	records map[string]vaRecord
	down    bool
	calls   int
	server  *httptest.Server
}

func newFakeRegistry() *fakeRegistry {
	f := &fakeRegistry{records: map[string]vaRecord{}}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /LicenseLookup/LicenseDetail", f.handleDetail)
	mux.HandleFunc("POST /LicenseLookup/Search", f.handleSearch)
	f.server = httptest.NewServer(mux)
	return f
}

func (f *fakeRegistry) URL() string { return f.server.URL }

func (f *fakeRegistry) Close() { f.server.Close() }

func (f *fakeRegistry) setLicense(number, name, status, expires string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[number] = vaRecord{name: name, status: status, expires: expires}
}

func (f *fakeRegistry) setDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = down
}

func (f *fakeRegistry) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeRegistry) handleDetail(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.calls++
	down := f.down
	rec, ok := f.records[r.PostFormValue("license-number")]
	f.mu.Unlock()

	if down {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/html")
	if !ok {
		fmt.Fprint(w, `<html><body><div class="alert alert-danger">No license found</div></body></html>`)
		return
	}
	fmt.Fprintf(w, `<html><body><div id="license-details-tab">`+
		`<div class="row"><div><strong>Name:</strong></div><div>%s</div></div>`+
		`<div class="row"><div><strong>Rank</strong></div><div>Class A</div></div>`+
		`<div class="row"><div><strong>Status</strong></div><div>%s</div></div>`+
		`<div class="row"><div><strong>Expiration Date</strong></div><div>%s</div></div>`+
		`</div></body></html>`,
		html.EscapeString(rec.name), html.EscapeString(rec.status), html.EscapeString(rec.expires))
}

func (f *fakeRegistry) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.ToLower(r.PostFormValue("search-text"))

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.down {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
		return
	}

	var b strings.Builder
	b.WriteString(`<html><body><table id="search-results"><tbody>`)
	for number, rec := range f.records {
		if !strings.Contains(strings.ToLower(rec.name), query) {
			continue
		}
		fmt.Fprintf(&b, `<tr><td>%s</td><td>%s</td><td>VA</td><td>Contractor</td><td>Board for Contractors</td></tr>`,
			number, html.EscapeString(rec.name))
	}
	b.WriteString(`</tbody></table></body></html>`)
	w.Header().Set("Content-Type", "text/html")
	fmt.Fprint(w, b.String())
}
