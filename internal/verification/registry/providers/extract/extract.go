// Package extract holds the HTML parsing primitives shared by registry
// adapters: label/value pairs, repeated groups and pattern lookups. Label
// tables stay in the adapters.
package extract

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	strutil "bobinator/pkg/string"
)

// Fields is a flat label to value mapping scraped from a page. Later
// occurrences of a label overwrite earlier ones.
type Fields map[string]string

// Lookup returns the value for label and whether the label was on the page.
func (f Fields) Lookup(label string) (string, bool) {
	v, ok := f[label]
	return v, ok
}

// Get returns the value for label or "".
func (f Fields) Get(label string) string {
	return f[label]
}

// GetOr returns the value for label, or def when the label is absent or blank.
func (f Fields) GetOr(label, def string) string {
	if v := strings.TrimSpace(f[label]); v != "" {
		return v
	}
	return def
}

// Parse builds a goquery document from raw markup.
func Parse(body []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// StrippedStrings returns every non-blank text node under sel, trimmed, in document order.
func StrippedStrings(sel *goquery.Selection) []string {
	var out []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if s := strings.TrimSpace(n.Data); s != "" {
				out = append(out, s)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return out
}

// Text joins the stripped strings of sel with single spaces. Whitespace runs
// inside a text node, such as wrapped markup, fold to one space as well.
func Text(sel *goquery.Selection) string {
	return strutil.CollapseSpace(strings.Join(StrippedStrings(sel), " "))
}

// Label normalizes label text: stripped, space-joined, trailing colon removed.
func Label(sel *goquery.Selection) string {
	return strings.TrimSpace(strings.TrimSuffix(Text(sel), ":"))
}

// ValueFunc locates the value element belonging to a label element.
type ValueFunc func(label *goquery.Selection) *goquery.Selection

// Pairs scans scope for labelSelector matches and reads each value through valueOf.
// Labels without a value element are skipped.
func Pairs(scope *goquery.Selection, labelSelector string, valueOf ValueFunc) Fields {
	fields := Fields{}
	scope.Find(labelSelector).Each(func(_ int, label *goquery.Selection) {
		key := Label(label)
		if key == "" {
			return
		}
		value := valueOf(label)
		if value == nil || value.Length() == 0 {
			return
		}
		fields[key] = Text(value)
	})
	return fields
}

// NextSibling returns a ValueFunc selecting the first following sibling of the
// label that matches selector.
func NextSibling(selector string) ValueFunc {
	return func(label *goquery.Selection) *goquery.Selection {
		return label.NextAllFiltered(selector).First()
	}
}

// ParentNextSibling returns a ValueFunc that climbs to the label's closest
// ancestor matching parent, then takes that ancestor's first following sibling
// matching selector.
func ParentNextSibling(parent, selector string) ValueFunc {
	return func(label *goquery.Selection) *goquery.Selection {
		container := label.ParentsFiltered(parent).First()
		if container.Length() == 0 {
			return nil
		}
		return container.NextAllFiltered(selector).First()
	}
}

// Group describes a repeated section: containers whose heading contains a marker.
type Group struct {
	Container string // e.g. "fieldset"
	Heading   string // e.g. "legend"
	Contains  string // case-sensitive marker in the heading text
	Value     string // element inside the container holding the entries
}

// Entries returns one entry per text line of the first Value element of every
// container whose heading mentions the marker.
func (g Group) Entries(doc *goquery.Document) []string {
	var out []string
	doc.Find(g.Container).Each(func(_ int, c *goquery.Selection) {
		heading := c.Find(g.Heading).First()
		if heading.Length() == 0 || !strings.Contains(Text(heading), g.Contains) {
			return
		}
		value := c.Find(g.Value).First()
		if value.Length() == 0 {
			return
		}
		for _, line := range StrippedStrings(value) {
			out = append(out, strutil.CollapseSpace(line))
		}
	})
	return out
}

// FirstSubmatch returns the first capture group of re in body.
func FirstSubmatch(re *regexp.Regexp, body []byte) (string, bool) {
	m := re.FindSubmatch(body)
	if len(m) < 2 {
		return "", false
	}
	return string(m[1]), true
}

// Row is the cells of one table row.
type Row struct {
	Cells *goquery.Selection
}

func (r Row) Len() int { return r.Cells.Length() }

// Cell returns the stripped, space-joined text of cell i.
func (r Row) Cell(i int) string {
	return Text(r.Cells.Eq(i))
}

// CellAttr returns attr of the first element matching selector inside cell i.
func (r Row) CellAttr(i int, selector, attr string) (string, bool) {
	return r.Cells.Eq(i).Find(selector).First().Attr(attr)
}

// CellLinkText returns the text of the first anchor in cell i, or the cell
// text when there is none.
func (r Row) CellLinkText(i int) string {
	if a := r.Cells.Eq(i).Find("a").First(); a.Length() > 0 {
		return Text(a)
	}
	return r.Cell(i)
}

// Rows returns every row under scope matched by rowSelector having at least
// minCells td cells.
func Rows(scope *goquery.Selection, rowSelector string, minCells int) []Row {
	var rows []Row
	scope.Find(rowSelector).Each(func(_ int, tr *goquery.Selection) {
		cells := tr.ChildrenFiltered("td")
		if cells.Length() >= minCells {
			rows = append(rows, Row{Cells: cells})
		}
	})
	return rows
}
