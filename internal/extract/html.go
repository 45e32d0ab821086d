package extract

import (
	"bytes"
	"fmt"

	"github.com/PuerkitoBio/goquery"
)

// Option is one entry of a select element.
type Option struct {
	Text  string
	Value string
}

// Anchor is one link with its visible text.
type Anchor struct {
	Href string
	Text string
}

// Parse builds a goquery document from a raw body.
func Parse(body []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// Tables returns each table's own rows (nested tables are reported
// separately), with th and td texts as cells. Rows without cells are omitted.
func Tables(doc *goquery.Document) [][][]string {
	var tables [][][]string
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		var rows [][]string
		table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
			if !tr.Closest("table").IsSelection(table) {
				return
			}
			if cells := rowCells(tr); len(cells) > 0 {
				rows = append(rows, cells)
			}
		})
		if len(rows) > 0 {
			tables = append(tables, rows)
		}
	})
	return tables
}

// Rows flattens every table row of the document in document order.
func Rows(doc *goquery.Document) [][]string {
	var rows [][]string
	doc.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		if cells := rowCells(tr); len(cells) > 0 {
			rows = append(rows, cells)
		}
	})
	return rows
}

// SelectOptions lists the options of the select named name that carry a
// non-empty value.
func SelectOptions(doc *goquery.Document, name string) []Option {
	var opts []Option
	doc.Find(fmt.Sprintf("select[name=%q]", name)).First().Find("option").Each(func(_ int, s *goquery.Selection) {
		value, _ := s.Attr("value")
		value = Clean(value)
		if value == "" {
			return
		}
		opts = append(opts, Option{Text: Clean(s.Text()), Value: value})
	})
	return opts
}

// Anchors lists every link with an href attribute.
func Anchors(doc *goquery.Document) []Anchor {
	var anchors []Anchor
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		anchors = append(anchors, Anchor{Href: href, Text: Clean(s.Text())})
	})
	return anchors
}

// ExtractHTML decomposes body into rows and runs the state machine over them.
// Unparseable input yields an empty Record.
func (e *Extractor) ExtractHTML(body []byte) Record {
	doc, err := Parse(body)
	if err != nil {
		return Record{}
	}
	return e.Extract(Rows(doc))
}

// ExtractFirstTable runs the state machine over the rows of the first table
// in body only. A body without a table yields an empty Record.
func (e *Extractor) ExtractFirstTable(body []byte) Record {
	doc, err := Parse(body)
	if err != nil {
		return Record{}
	}
	tables := Tables(doc)
	if len(tables) == 0 {
		return Record{}
	}
	return e.Extract(tables[0])
}

func rowCells(tr *goquery.Selection) []string {
	var cells []string
	tr.ChildrenFiltered("th, td").Each(func(_ int, cell *goquery.Selection) {
		cells = append(cells, Clean(cell.Text()))
	})
	return cells
}
