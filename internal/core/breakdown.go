package core

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/shopspring/decimal"
)

// BreakdownKind tells which variant a TaxBreakdown holds.
type BreakdownKind int

const (
	BreakdownNone BreakdownKind = iota
	BreakdownSimple
	BreakdownByRate
)

// TaxBreakdown is either a single amount or a mapping from tax-rate label
// ("20", "10", "5.5") to a sub-amount. The zero value holds nothing.
type TaxBreakdown struct {
	kind   BreakdownKind
	simple decimal.Decimal
	byRate map[string]decimal.Decimal
}

// SimpleBreakdown wraps a single amount.
func SimpleBreakdown(d decimal.Decimal) TaxBreakdown {
	return TaxBreakdown{kind: BreakdownSimple, simple: d}
}

// RateBreakdown wraps a rate -> amount mapping. The map is copied.
func RateBreakdown(m map[string]decimal.Decimal) TaxBreakdown {
	cp := make(map[string]decimal.Decimal, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return TaxBreakdown{kind: BreakdownByRate, byRate: cp}
}

func (b TaxBreakdown) Kind() BreakdownKind { return b.kind }

// Total is the single amount, or the sum of all rate sub-amounts.
func (b TaxBreakdown) Total() decimal.Decimal {
	switch b.kind {
	case BreakdownSimple:
		return b.simple
	case BreakdownByRate:
		total := decimal.Zero
		for _, v := range b.byRate {
			total = total.Add(v)
		}
		return total
	default:
		return decimal.Zero
	}
}

// Rates returns the rate labels ordered by numeric rate, highest first.
// A simple breakdown has no rates.
func (b TaxBreakdown) Rates() []string {
	if b.kind != BreakdownByRate {
		return nil
	}
	rates := make([]string, 0, len(b.byRate))
	for k := range b.byRate {
		rates = append(rates, k)
	}
	sortRates(rates)
	return rates
}

// Amount returns the sub-amount for a rate label (zero when absent).
func (b TaxBreakdown) Amount(rate string) decimal.Decimal {
	if b.kind != BreakdownByRate {
		return decimal.Zero
	}
	return b.byRate[rate]
}

func sortRates(rates []string) {
	sort.SliceStable(rates, func(i, j int) bool {
		ri, rj := Coerce(rates[i]), Coerce(rates[j])
		if !ri.Equal(rj) {
			return ri.GreaterThan(rj)
		}
		return rates[i] < rates[j]
	})
}

// SortRates orders rate labels the same way TaxBreakdown.Rates does.
func SortRates(rates []string) { sortRates(rates) }

// UnmarshalJSON accepts null, a number or numeric string, or an object.
func (b *TaxBreakdown) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*b = TaxBreakdown{}
		return nil
	}
	if data[0] == '{' {
		var raw map[string]any
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		m := make(map[string]decimal.Decimal, len(raw))
		for k, v := range raw {
			m[k] = Coerce(v)
		}
		*b = TaxBreakdown{kind: BreakdownByRate, byRate: m}
		return nil
	}
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*b = SimpleBreakdown(Coerce(raw))
	return nil
}

func (b TaxBreakdown) MarshalJSON() ([]byte, error) {
	switch b.kind {
	case BreakdownSimple:
		return json.Marshal(jsonNumber(b.simple))
	case BreakdownByRate:
		out := make(map[string]json.Number, len(b.byRate))
		for k, v := range b.byRate {
			out[k] = jsonNumber(v)
		}
		return json.Marshal(out)
	default:
		return []byte("null"), nil
	}
}
