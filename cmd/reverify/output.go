package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"bobinator/internal/verification/batch"
	"bobinator/internal/verification/registry/providers"
)

// printReport writes one [OK] or [ERROR] line per provider and a total.
func printReport(w io.Writer, report []batch.ReportEntry) {
	for _, e := range report {
		status := "OK"
		if !e.OK() {
			status = "ERROR"
		}
		_, _ = fmt.Fprintf(w, "  [%s] Provider %s (%s)\n", status, e.ProviderID, e.Name)
		if e.Error != "" {
			_, _ = fmt.Fprintf(w, "    Error: %s\n", e.Error)
		}
	}
	_, _ = fmt.Fprintf(w, "\nVerified %d providers.\n", len(report))
}

func printLookup(w io.Writer, res *providers.LookupResult) {
	rows := [][2]string{
		{"Jurisdiction", string(res.Jurisdiction)},
		{"License", res.LicenseNumber},
	}
	if !res.Success {
		rows = append(rows, [2]string{"Error", res.Error}, [2]string{"Category", string(res.Category)})
		printKV(w, rows)
		return
	}
	rows = append(rows,
		[2]string{"Holder", orDash(res.HolderName)},
		[2]string{"Class", orDash(res.LicenseClass)},
		[2]string{"Status", orDash(res.Status)},
		[2]string{"Expires", orDash(res.ExpirationDate)},
		[2]string{"Issued", orDash(res.InitialDate)},
		[2]string{"Address", orDash(res.Address)},
	)
	if res.Violations != "" {
		rows = append(rows, [2]string{"Violations", res.Violations})
	}
	printKV(w, rows)
}

func printHits(w io.Writer, hits []providers.SearchHit) {
	rows := make([][]string, 0, len(hits))
	for _, h := range hits {
		rows = append(rows, []string{h.LicenseNumber, h.Name, orDash(h.LicenseType), orDash(h.Address)})
	}
	printTable(w, []string{"LICENSE", "NAME", "TYPE", "ADDRESS"}, rows)
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

func printKV(out io.Writer, rows [][2]string) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, row := range rows {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", row[0], row[1])
	}
	_ = w.Flush()
}

func printTable(out io.Writer, headers []string, rows [][]string) {
	if len(rows) == 0 {
		_, _ = fmt.Fprintln(out, "no results")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, strings.Join(headers, "\t"))
	for _, row := range rows {
		_, _ = fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	_ = w.Flush()
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
