// Package scrape implements the DOM searches the ingestion stages need from
// the regulator's site: locating a link by its visible text, and walking the
// tariff page's company headings into their locality/PDF tables.
package scrape

import (
	"bytes"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// TariffEntry is one locality row scraped from a company's tariff table.
type TariffEntry struct {
	Locality string `json:"locality"`
	PDFURL   string `json:"pdf_url"`
}

// Company is one water utility and the tariff PDFs it publishes.
type Company struct {
	Name    string        `json:"company"`
	Tariffs []TariffEntry `json:"tariffs"`
}

// LinkByText returns the absolute URL of the first anchor whose visible text
// contains want (case-insensitive). Empty string when no anchor matches.
func LinkByText(body []byte, baseURL, want string) (string, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}

	wantLower := strings.ToLower(want)
	var found string
	walk(doc, func(n *html.Node) bool {
		if n.Type != html.ElementNode || n.DataAtom != atom.A {
			return true
		}
		if !strings.Contains(strings.ToLower(nodeText(n)), wantLower) {
			return true
		}
		href := attr(n, "href")
		if href == "" {
			return true
		}
		found = resolveURL(base, href)
		return false
	})
	return found, nil
}

// Companies extracts every company block from the tariff page: a heading
// mentioning tariffs, whose name is the text before the first " - ", followed
// in document order by a table with Localidades and Tarifa vigente columns.
// Companies whose table yields no usable rows are dropped.
func Companies(body []byte, baseURL string) ([]Company, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}

	// Flatten the document once; "next table" is a document-order search.
	var nodes []*html.Node
	walk(doc, func(n *html.Node) bool {
		nodes = append(nodes, n)
		return true
	})

	var companies []Company
	for i, n := range nodes {
		if !isHeadingNode(n) {
			continue
		}
		text := nodeText(n)
		if !strings.Contains(strings.ToLower(text), "tarifa") {
			continue
		}
		name := companyName(text)
		if name == "" {
			continue
		}
		table := nextTable(nodes[i+1:])
		if table == nil {
			continue
		}
		entries := tariffRows(table, base)
		if len(entries) == 0 {
			continue
		}
		companies = append(companies, Company{Name: name, Tariffs: entries})
	}
	return companies, nil
}

// companyName extracts the utility name from heading text like
// "Aguas Andinas - Tarifas vigentes".
func companyName(text string) string {
	if idx := strings.Index(text, " - "); idx >= 0 {
		return strings.TrimSpace(text[:idx])
	}
	return strings.TrimSpace(text)
}

// tariffRows reads a Localidades / Tarifa vigente table. Rows missing either
// the locality text or the PDF link are skipped.
func tariffRows(table *html.Node, base *url.URL) []TariffEntry {
	rows := childElements(table, atom.Tr)

	if len(rows) == 0 {
		return nil
	}

	// Header row gives us the column indexes (case-insensitive).
	locIdx, tariffIdx := -1, -1
	for i, cell := range childElements(rows[0], atom.Td, atom.Th) {
		header := strings.ToLower(nodeText(cell))
		if strings.Contains(header, "localidad") {
			locIdx = i
		}
		if strings.Contains(header, "tarifa") && strings.Contains(header, "vigente") {
			tariffIdx = i
		}
	}
	if locIdx < 0 || tariffIdx < 0 {
		return nil
	}

	var entries []TariffEntry
	for _, row := range rows[1:] {
		cells := childElements(row, atom.Td, atom.Th)
		if len(cells) <= locIdx || len(cells) <= tariffIdx {
			continue
		}
		locality := strings.TrimSpace(nodeText(cells[locIdx]))
		if locality == "" {
			continue
		}
		var href string
		walk(cells[tariffIdx], func(n *html.Node) bool {
			if n.Type == html.ElementNode && n.DataAtom == atom.A {
				href = attr(n, "href")
				return href == ""
			}
			return true
		})
		if href == "" {
			continue
		}
		entries = append(entries, TariffEntry{
			Locality: locality,
			PDFURL:   resolveURL(base, href),
		})
	}
	return entries
}

// isHeadingNode reports whether a node can introduce a company block.
func isHeadingNode(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	switch n.DataAtom {
	case atom.H2, atom.H3, atom.H4, atom.Strong, atom.B:
		return true
	}
	return false
}

// nextTable returns the first table among nodes in document order.
func nextTable(nodes []*html.Node) *html.Node {
	for _, n := range nodes {
		if n.Type == html.ElementNode && n.DataAtom == atom.Table {
			return n
		}
	}
	return nil
}

// childElements collects descendant elements matching any of the atoms,
// without descending into a matched element.
func childElements(root *html.Node, atoms ...atom.Atom) []*html.Node {
	var out []*html.Node
	var f func(*html.Node)
	f = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode {
				matched := false
				for _, a := range atoms {
					if c.DataAtom == a {
						out = append(out, c)
						matched = true
						break
					}
				}
				if matched {
					continue
				}
			}
			f(c)
		}
	}
	f(root)
	return out
}

// walk visits nodes depth-first in document order; the visitor returns false
// to stop the traversal.
func walk(n *html.Node, visit func(*html.Node) bool) bool {
	if !visit(n) {
		return false
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !walk(c, visit) {
			return false
		}
	}
	return true
}

// nodeText extracts the visible text of a subtree, space-joined and trimmed.
func nodeText(n *html.Node) string {
	var sb strings.Builder
	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.TextNode {
			t := strings.TrimSpace(n.Data)
			if t != "" {
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(n)
	return sb.String()
}

// attr returns the value of the named attribute, or "".
func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

// resolveURL makes href absolute against the page URL.
func resolveURL(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
