package reconcile

import (
	"github.com/shopspring/decimal"

	"caisse/internal/core"
)

// Totals aggregates a list of rows.
type Totals struct {
	Days       int
	Balanced   int
	Unbalanced int
	Pending    int

	TTC           decimal.Decimal
	HT            decimal.Decimal
	TVA           decimal.Decimal
	PrestaB2B     decimal.Decimal
	Depenses      decimal.Decimal
	Virement      decimal.Decimal
	CBClassique   decimal.Decimal
	CBSansContact decimal.Decimal
	Especes       decimal.Decimal
	Saisie        decimal.Decimal
	// Difference is the sum of the per-row differences. Positive is a
	// surplus, negative a deficit.
	Difference decimal.Decimal

	// Per-rate sub-totals, only from records that carry a rate mapping.
	HTByRate  map[string]decimal.Decimal
	TVAByRate map[string]decimal.Decimal
}

// Aggregate sums every row. It is recomputed from scratch on each call.
func Aggregate(rows []Row) Totals {
	t := Totals{
		HTByRate:  map[string]decimal.Decimal{},
		TVAByRate: map[string]decimal.Decimal{},
	}
	for _, r := range rows {
		t.Days++
		switch r.Status {
		case StatusBalanced:
			t.Balanced++
		case StatusUnbalanced:
			t.Unbalanced++
		default:
			t.Pending++
		}

		t.TTC = t.TTC.Add(r.TTC)
		t.HT = t.HT.Add(r.HT)
		t.TVA = t.TVA.Add(r.TVA)
		t.PrestaB2B = t.PrestaB2B.Add(r.TotalPrestaB2B)
		t.Depenses = t.Depenses.Add(r.TotalDepenses)
		t.Virement = t.Virement.Add(r.Entry.Virement)
		t.CBClassique = t.CBClassique.Add(r.Entry.CBClassique)
		t.CBSansContact = t.CBSansContact.Add(r.Entry.CBSansContact)
		t.Especes = t.Especes.Add(r.Entry.Especes)
		t.Saisie = t.Saisie.Add(r.TotalSaisie)
		t.Difference = t.Difference.Add(r.Difference)

		addRates(t.HTByRate, r.HTByRate)
		addRates(t.TVAByRate, r.TVAByRate)
	}
	return t
}

func addRates(dst map[string]decimal.Decimal, b core.TaxBreakdown) {
	for _, rate := range b.Rates() {
		dst[rate] = dst[rate].Add(b.Amount(rate))
	}
}

// Rates returns every rate label present in the per-rate sub-totals,
// highest rate first.
func (t Totals) Rates() []string {
	seen := map[string]bool{}
	var rates []string
	for _, m := range []map[string]decimal.Decimal{t.HTByRate, t.TVAByRate} {
		for k := range m {
			if !seen[k] {
				seen[k] = true
				rates = append(rates, k)
			}
		}
	}
	core.SortRates(rates)
	return rates
}
