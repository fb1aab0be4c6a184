package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"caisse/internal/reconcile"
)

func TestParsePeriod(t *testing.T) {
	now := time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		query    url.Values
		wantFrom string
		wantTo   string
		wantErr  bool
	}{
		{name: "defaults to current month", query: url.Values{}, wantFrom: "2024-03-01", wantTo: "2024-03-31"},
		{name: "year and month", query: url.Values{"year": {"2024"}, "month": {"2"}}, wantFrom: "2024-02-01", wantTo: "2024-02-29"},
		{name: "month only uses current year", query: url.Values{"month": {"12"}}, wantFrom: "2024-12-01", wantTo: "2024-12-31"},
		{name: "whole year", query: url.Values{"year": {"2023"}}, wantFrom: "2023-01-01", wantTo: "2023-12-31"},
		{name: "explicit range", query: url.Values{"from": {"2024-01-10"}, "to": {"2024-01-20"}}, wantFrom: "2024-01-10", wantTo: "2024-01-20"},
		{name: "month out of range", query: url.Values{"month": {"13"}}, wantErr: true},
		{name: "month not a number", query: url.Values{"month": {"abc"}}, wantErr: true},
		{name: "year not a number", query: url.Values{"year": {"twenty"}}, wantErr: true},
		{name: "range missing end", query: url.Values{"from": {"2024-01-10"}}, wantErr: true},
		{name: "range reversed", query: url.Values{"from": {"2024-01-20"}, "to": {"2024-01-10"}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParsePeriod(tt.query, now)
			if tt.wantErr {
				if !errors.Is(err, reconcile.ErrInvalidPeriod) {
					t.Fatalf("err = %v, want ErrInvalidPeriod", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.From.ISO() != tt.wantFrom || p.To.ISO() != tt.wantTo {
				t.Errorf("period = %s..%s, want %s..%s", p.From.ISO(), p.To.ISO(), tt.wantFrom, tt.wantTo)
			}
		})
	}
}

func TestHasPeriod(t *testing.T) {
	if hasPeriod(url.Values{"id": {"x"}}) {
		t.Error("id alone is not a period")
	}
	if !hasPeriod(url.Values{"year": {"2024"}}) {
		t.Error("year names a period")
	}
}

func TestDecodeCashEntry(t *testing.T) {
	body := `{"date":"2024-01-15","especes":"12,50","depenses":[{"label":"  pain\u0001 ","value":3}],"cbClassique":null}`
	req := httptest.NewRequest(http.MethodPost, "/api/cash-entries", strings.NewReader(body))
	w := httptest.NewRecorder()

	e, err := DecodeCashEntry(w, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.Date != "2024-01-15" {
		t.Errorf("Date = %q", e.Date)
	}
	if e.Especes.StringFixed(2) != "12.50" {
		t.Errorf("Especes = %s, want 12.50", e.Especes)
	}
	if !e.CBClassique.IsZero() {
		t.Errorf("CBClassique = %s, want 0", e.CBClassique)
	}
	if len(e.Depenses) != 1 || e.Depenses[0].Label != "pain" {
		t.Errorf("Depenses = %+v", e.Depenses)
	}
}

func TestDecodeCashEntry_Invalid(t *testing.T) {
	for _, body := range []string{"", "not json", `{"date":`} {
		req := httptest.NewRequest(http.MethodPost, "/api/cash-entries", strings.NewReader(body))
		if _, err := DecodeCashEntry(httptest.NewRecorder(), req); !errors.Is(err, errBadBody) {
			t.Errorf("body %q: err = %v, want errBadBody", body, err)
		}
	}
}

func TestDecodeCashEntry_TooLarge(t *testing.T) {
	body := `{"date":"2024-01-15","depenses":[{"label":"` + strings.Repeat("x", maxBodyBytes) + `","value":1}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/cash-entries", strings.NewReader(body))
	if _, err := DecodeCashEntry(httptest.NewRecorder(), req); !errors.Is(err, errBadBody) {
		t.Fatalf("err = %v, want errBadBody", err)
	}
}

func TestSanitizeInput(t *testing.T) {
	tests := map[string]string{
		"  hello  ":      "hello",
		"a\x00b":         "ab",
		"line\nbreak":    "line\nbreak",
		"tab\tseparated": "tab\tseparated",
	}
	for in, want := range tests {
		if got := sanitizeInput(in); got != want {
			t.Errorf("sanitizeInput(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseSort(t *testing.T) {
	o, err := ParseSort(url.Values{"sort": {"date_desc"}})
	if err != nil || o != reconcile.SortDateDesc {
		t.Errorf("ParseSort(date_desc) = %q, %v", o, err)
	}
	if o, err := ParseSort(url.Values{}); err != nil || o != reconcile.SortNone {
		t.Errorf("ParseSort() = %q, %v", o, err)
	}
	if _, err := ParseSort(url.Values{"sort": {"montant"}}); !errors.Is(err, reconcile.ErrInvalidSort) {
		t.Errorf("ParseSort(montant) err = %v", err)
	}
}
