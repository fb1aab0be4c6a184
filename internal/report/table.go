// Package report turns a reconciliation into tabular exports. The same
// column descriptors drive the CSV, XLSX and Google Sheets outputs.
package report

import (
	"github.com/shopspring/decimal"

	"caisse/internal/core"
	"caisse/internal/reconcile"
)

// DisplayLayout is the date format shown in exported tables.
const DisplayLayout = "02/01/2006"

// Column describes one exported column. Amount is set for monetary columns
// and Text for the others. Total fills the footer; nil leaves it empty.
type Column struct {
	Header string
	Amount func(reconcile.Row) decimal.Decimal
	Text   func(reconcile.Row) string
	Total  func(reconcile.Totals) decimal.Decimal
}

// IsAmount reports whether the column holds money.
func (c Column) IsAmount() bool { return c.Amount != nil }

func amountColumn(header string, row func(reconcile.Row) decimal.Decimal, total func(reconcile.Totals) decimal.Decimal) Column {
	return Column{Header: header, Amount: row, Total: total}
}

// DefaultColumns lists the columns every export carries, in display order.
func DefaultColumns() []Column {
	return []Column{
		{Header: "Date", Text: func(r reconcile.Row) string { return DisplayDate(r.Date) }},
		amountColumn("CA TTC",
			func(r reconcile.Row) decimal.Decimal { return r.TTC },
			func(t reconcile.Totals) decimal.Decimal { return t.TTC }),
		amountColumn("CA HT",
			func(r reconcile.Row) decimal.Decimal { return r.HT },
			func(t reconcile.Totals) decimal.Decimal { return t.HT }),
		amountColumn("TVA",
			func(r reconcile.Row) decimal.Decimal { return r.TVA },
			func(t reconcile.Totals) decimal.Decimal { return t.TVA }),
		amountColumn("Prestations B2B",
			func(r reconcile.Row) decimal.Decimal { return r.TotalPrestaB2B },
			func(t reconcile.Totals) decimal.Decimal { return t.PrestaB2B }),
		amountColumn("Dépenses",
			func(r reconcile.Row) decimal.Decimal { return r.TotalDepenses },
			func(t reconcile.Totals) decimal.Decimal { return t.Depenses }),
		amountColumn("Espèces",
			func(r reconcile.Row) decimal.Decimal { return r.Entry.Especes },
			func(t reconcile.Totals) decimal.Decimal { return t.Especes }),
		amountColumn("CB classique",
			func(r reconcile.Row) decimal.Decimal { return r.Entry.CBClassique },
			func(t reconcile.Totals) decimal.Decimal { return t.CBClassique }),
		amountColumn("CB sans contact",
			func(r reconcile.Row) decimal.Decimal { return r.Entry.CBSansContact },
			func(t reconcile.Totals) decimal.Decimal { return t.CBSansContact }),
		amountColumn("Virement",
			func(r reconcile.Row) decimal.Decimal { return r.Entry.Virement },
			func(t reconcile.Totals) decimal.Decimal { return t.Virement }),
		amountColumn("Total saisi",
			func(r reconcile.Row) decimal.Decimal { return r.TotalSaisie },
			func(t reconcile.Totals) decimal.Decimal { return t.Saisie }),
		amountColumn("Écart",
			func(r reconcile.Row) decimal.Decimal { return r.Difference },
			func(t reconcile.Totals) decimal.Decimal { return t.Difference }),
		{Header: "Statut", Text: func(r reconcile.Row) string { return StatusLabel(r.Status) }},
	}
}

// Columns returns the default columns followed by one HT and one TVA column
// per tax rate found in the totals.
func Columns(t reconcile.Totals) []Column {
	cols := DefaultColumns()
	for _, rate := range t.Rates() {
		cols = append(cols,
			amountColumn("HT "+rate+" %",
				func(r reconcile.Row) decimal.Decimal { return r.HTByRate.Amount(rate) },
				func(t reconcile.Totals) decimal.Decimal { return t.HTByRate[rate] }),
			amountColumn("TVA "+rate+" %",
				func(r reconcile.Row) decimal.Decimal { return r.TVAByRate.Amount(rate) },
				func(t reconcile.Totals) decimal.Decimal { return t.TVAByRate[rate] }),
		)
	}
	return cols
}

// StatusLabel is the French label of a row status.
func StatusLabel(s reconcile.Status) string {
	switch s {
	case reconcile.StatusBalanced:
		return "Équilibré"
	case reconcile.StatusUnbalanced:
		return "Écart"
	default:
		return "En attente"
	}
}

// DisplayDate renders a raw record date as DD/MM/YYYY, or returns it
// unchanged when it cannot be parsed.
func DisplayDate(raw string) string {
	if d, ok := core.ParseDay(raw); ok {
		return d.Format(DisplayLayout)
	}
	return raw
}

// Table is a reconciliation ready to be rendered.
type Table struct {
	Columns []Column
	Rows    []reconcile.Row
	Totals  reconcile.Totals
}

// NewTable builds a table over rows with the columns matching their totals.
func NewTable(rows []reconcile.Row, totals reconcile.Totals) Table {
	return Table{Columns: Columns(totals), Rows: rows, Totals: totals}
}

// Header returns the column headers.
func (t Table) Header() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Header
	}
	return out
}

// Records returns the header, one line per row and the totals footer.
// Monetary cells go through amount; text cells are strings.
func (t Table) Records(amount func(decimal.Decimal) any) [][]any {
	out := make([][]any, 0, len(t.Rows)+2)

	header := make([]any, len(t.Columns))
	for i, h := range t.Header() {
		header[i] = h
	}
	out = append(out, header)

	for _, r := range t.Rows {
		line := make([]any, len(t.Columns))
		for i, c := range t.Columns {
			if c.IsAmount() {
				line[i] = amount(c.Amount(r))
			} else {
				line[i] = c.Text(r)
			}
		}
		out = append(out, line)
	}

	footer := make([]any, len(t.Columns))
	for i, c := range t.Columns {
		switch {
		case i == 0:
			footer[i] = "Total"
		case c.Total != nil:
			footer[i] = amount(c.Total(t.Totals))
		default:
			footer[i] = ""
		}
	}
	return append(out, footer)
}

// Float renders an amount as a float rounded to cents, for spreadsheet cells.
func Float(d decimal.Decimal) any {
	return d.Round(2).InexactFloat64()
}

// Plain renders an amount as text with a comma decimal mark.
func Plain(d decimal.Decimal) any {
	return core.FormatPlain(d)
}
