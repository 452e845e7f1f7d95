// Package presenter shapes registry rows for API responses: internal columns
// are dropped, known columns get Russian display titles, and the column order
// of the first row becomes the response column metadata.
package presenter

import "github.com/prodreg/reestr/internal/domain/registry"

// fieldTitles maps raw registry column names to display titles.
var fieldTitles = map[string]string{
	"productname":    "Наименование",
	"tnved":          "ТН ВЭД",
	"okpd2":          "ОКПД2",
	"regnumber":      "Регномер",
	"docvalidtill":   "Срок действия",
	"registernumber": "Регномер старый",
	"docdate":        "Дата документа",
	"nameoforg":      "Производитель",
	"inn":            "ИНН",
	"distance":       "Семантическая дистанция",
	"token_matches":  "Совпавшие токены",
}

// hiddenColumns are internal columns never exposed to clients.
var hiddenColumns = map[string]struct{}{
	"id":          {},
	"source_file": {},
}

// preferredOrder is the column order used when present; unknown columns
// follow in row order.
var preferredOrder = []string{
	"productname",
	"distance",
	"token_matches",
	"tnved",
	"okpd2",
	"regnumber",
	"docvalidtill",
	"registernumber",
	"docdate",
	"nameoforg",
	"inn",
}

// Column is one response column descriptor.
type Column struct {
	Name  string `json:"name"`
	Title string `json:"title"`
}

// Present strips hidden columns from every row in place and returns the
// column metadata derived from the first row. A nil or empty input yields
// empty metadata.
func Present(rows []*registry.Row) []Column {
	for _, row := range rows {
		for name := range hiddenColumns {
			row.Delete(name)
		}
	}
	if len(rows) == 0 {
		return []Column{}
	}
	return Columns(rows[0])
}

// Columns builds column descriptors for one row: preferred columns first,
// then the rest in the row's own order.
func Columns(row *registry.Row) []Column {
	present := make(map[string]struct{}, row.Len())
	for _, name := range row.Columns() {
		present[name] = struct{}{}
	}

	cols := make([]Column, 0, row.Len())
	seen := make(map[string]struct{}, row.Len())
	for _, name := range preferredOrder {
		if _, ok := present[name]; !ok {
			continue
		}
		cols = append(cols, describe(name))
		seen[name] = struct{}{}
	}
	for _, name := range row.Columns() {
		if _, ok := seen[name]; ok {
			continue
		}
		cols = append(cols, describe(name))
	}
	return cols
}

func describe(name string) Column {
	title, ok := fieldTitles[name]
	if !ok {
		title = name
	}
	return Column{Name: name, Title: title}
}
