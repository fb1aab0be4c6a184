package core

import (
	"encoding/json"
	"fmt"
	"strings"
)

// The persistence API is loosely typed: amounts may arrive as numbers,
// numeric strings, "" or null. Decoding coerces them; encoding always
// produces bare JSON numbers.

type lineItemJSON struct {
	Label string `json:"label"`
	Value any    `json:"value"`
}

func (li LineItem) MarshalJSON() ([]byte, error) {
	return json.Marshal(lineItemJSON{Label: li.Label, Value: jsonNumber(li.Value)})
}

func (li *LineItem) UnmarshalJSON(data []byte) error {
	var raw lineItemJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*li = LineItem{Label: strings.TrimSpace(raw.Label), Value: Coerce(raw.Value)}
	return nil
}

type revenueRecordJSON struct {
	Date      any          `json:"date"`
	TTC       any          `json:"ttc"`
	HT        any          `json:"ht"`
	TVA       any          `json:"tva"`
	HTByRate  TaxBreakdown `json:"ca-ht"`
	TVAByRate TaxBreakdown `json:"ca-tva"`
}

func (r RevenueRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(revenueRecordJSON{
		Date:      r.Date,
		TTC:       jsonNumber(r.TTC),
		HT:        jsonNumber(r.HT),
		TVA:       jsonNumber(r.TVA),
		HTByRate:  r.HTByRate,
		TVAByRate: r.TVAByRate,
	})
}

func (r *RevenueRecord) UnmarshalJSON(data []byte) error {
	var raw revenueRecordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = RevenueRecord{
		Date:      looseString(raw.Date),
		TTC:       Coerce(raw.TTC),
		HT:        Coerce(raw.HT),
		TVA:       Coerce(raw.TVA),
		HTByRate:  raw.HTByRate,
		TVAByRate: raw.TVAByRate,
	}
	return nil
}

type cashEntryJSON struct {
	ID            string     `json:"_id,omitempty"`
	AltID         string     `json:"id,omitempty"`
	Date          any        `json:"date"`
	PrestaB2B     []LineItem `json:"prestaB2B"`
	Depenses      []LineItem `json:"depenses"`
	Virement      any        `json:"virement"`
	CBClassique   any        `json:"cbClassique"`
	CBSansContact any        `json:"cbSansContact"`
	Especes       any        `json:"especes"`
}

func (e CashEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal(cashEntryJSON{
		ID:            e.ID,
		Date:          e.Date,
		PrestaB2B:     nonNilItems(e.PrestaB2B),
		Depenses:      nonNilItems(e.Depenses),
		Virement:      jsonNumber(e.Virement),
		CBClassique:   jsonNumber(e.CBClassique),
		CBSansContact: jsonNumber(e.CBSansContact),
		Especes:       jsonNumber(e.Especes),
	})
}

func (e *CashEntry) UnmarshalJSON(data []byte) error {
	var raw cashEntryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	id := raw.ID
	if id == "" {
		id = raw.AltID
	}
	*e = CashEntry{
		ID:            strings.TrimSpace(id),
		Date:          looseString(raw.Date),
		PrestaB2B:     raw.PrestaB2B,
		Depenses:      raw.Depenses,
		Virement:      Coerce(raw.Virement),
		CBClassique:   Coerce(raw.CBClassique),
		CBSansContact: Coerce(raw.CBSansContact),
		Especes:       Coerce(raw.Especes),
	}
	return nil
}

func looseString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}

func nonNilItems(items []LineItem) []LineItem {
	if items == nil {
		return []LineItem{}
	}
	return items
}
