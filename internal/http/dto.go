package http

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"caisse/internal/core"
	"caisse/internal/reconcile"
	"caisse/internal/services"
)

func amount(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(2))
}

func amounts(m map[string]decimal.Decimal) map[string]json.Number {
	out := make(map[string]json.Number, len(m))
	for k, v := range m {
		out[k] = amount(v)
	}
	return out
}

type rowResponse struct {
	Date       string            `json:"date"`
	Key        string            `json:"key"`
	ID         string            `json:"id,omitempty"`
	HasEntry   bool              `json:"hasEntry"`
	Status     reconcile.Status  `json:"status"`
	TTC        json.Number       `json:"ttc"`
	HT         json.Number       `json:"ht"`
	TVA        json.Number       `json:"tva"`
	HTByRate   core.TaxBreakdown `json:"ca-ht"`
	TVAByRate  core.TaxBreakdown `json:"ca-tva"`
	PrestaB2B  json.Number       `json:"totalPrestaB2B"`
	Depenses   json.Number       `json:"totalDepenses"`
	Saisie     json.Number       `json:"totalSaisie"`
	Difference json.Number       `json:"difference"`
	Entry      *core.CashEntry   `json:"entry,omitempty"`
}

type totalsResponse struct {
	Days          int                    `json:"days"`
	Balanced      int                    `json:"balanced"`
	Unbalanced    int                    `json:"unbalanced"`
	Pending       int                    `json:"pending"`
	TTC           json.Number            `json:"ttc"`
	HT            json.Number            `json:"ht"`
	TVA           json.Number            `json:"tva"`
	PrestaB2B     json.Number            `json:"prestaB2B"`
	Depenses      json.Number            `json:"depenses"`
	Virement      json.Number            `json:"virement"`
	CBClassique   json.Number            `json:"cbClassique"`
	CBSansContact json.Number            `json:"cbSansContact"`
	Especes       json.Number            `json:"especes"`
	Saisie        json.Number            `json:"saisie"`
	Difference    json.Number            `json:"difference"`
	HTByRate      map[string]json.Number `json:"htByRate"`
	TVAByRate     map[string]json.Number `json:"tvaByRate"`
}

type viewResponse struct {
	From                 string         `json:"from"`
	To                   string         `json:"to"`
	Generation           uint64         `json:"generation"`
	LoadedAt             time.Time      `json:"loadedAt"`
	Rows                 []rowResponse  `json:"rows"`
	Totals               totalsResponse `json:"totals"`
	DuplicateEntryDays   []string       `json:"duplicateEntryDays,omitempty"`
	DuplicateRevenueDays []string       `json:"duplicateRevenueDays,omitempty"`
}

type submitResponse struct {
	Entry core.CashEntry `json:"entry"`
	View  *viewResponse  `json:"view,omitempty"`
}

type offsetCandidateResponse struct {
	Entry      core.CashEntry `json:"entry"`
	EntryKey   string         `json:"entryDay"`
	RevenueKey string         `json:"revenueDay"`
}

func newRowResponse(r reconcile.Row) rowResponse {
	out := rowResponse{
		Date:       r.Date,
		Key:        r.Key,
		ID:         r.ID(),
		HasEntry:   r.HasEntry,
		Status:     r.Status,
		TTC:        amount(r.TTC),
		HT:         amount(r.HT),
		TVA:        amount(r.TVA),
		HTByRate:   r.HTByRate,
		TVAByRate:  r.TVAByRate,
		PrestaB2B:  amount(r.TotalPrestaB2B),
		Depenses:   amount(r.TotalDepenses),
		Saisie:     amount(r.TotalSaisie),
		Difference: amount(r.Difference),
	}
	if r.HasEntry {
		e := r.Entry.Clone()
		out.Entry = &e
	}
	return out
}

func newTotalsResponse(t reconcile.Totals) totalsResponse {
	return totalsResponse{
		Days:          t.Days,
		Balanced:      t.Balanced,
		Unbalanced:    t.Unbalanced,
		Pending:       t.Pending,
		TTC:           amount(t.TTC),
		HT:            amount(t.HT),
		TVA:           amount(t.TVA),
		PrestaB2B:     amount(t.PrestaB2B),
		Depenses:      amount(t.Depenses),
		Virement:      amount(t.Virement),
		CBClassique:   amount(t.CBClassique),
		CBSansContact: amount(t.CBSansContact),
		Especes:       amount(t.Especes),
		Saisie:        amount(t.Saisie),
		Difference:    amount(t.Difference),
		HTByRate:      amounts(t.HTByRate),
		TVAByRate:     amounts(t.TVAByRate),
	}
}

func newViewResponse(v services.View) *viewResponse {
	rows := make([]rowResponse, 0, len(v.Rows))
	for _, r := range v.Rows {
		rows = append(rows, newRowResponse(r))
	}
	return &viewResponse{
		From:                 v.Period.From.ISO(),
		To:                   v.Period.To.ISO(),
		Generation:           v.Generation,
		LoadedAt:             v.LoadedAt,
		Rows:                 rows,
		Totals:               newTotalsResponse(v.Totals),
		DuplicateEntryDays:   v.DuplicateEntryKeys,
		DuplicateRevenueDays: v.DuplicateRevenueKeys,
	}
}
