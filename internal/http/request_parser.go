// This file implements utilities for parsing and validating HTTP request data.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"caisse/internal/core"
	"caisse/internal/reconcile"
)

// maxBodyBytes bounds a submitted cash entry.
const maxBodyBytes = 64 << 10

// ParsePeriod reads the period of a request. Accepted forms:
// from=YYYY-MM-DD&to=YYYY-MM-DD, year=YYYY&month=M, year=YYYY alone for a
// whole year. Without parameters the current month is used.
func ParsePeriod(query url.Values, now time.Time) (reconcile.Period, error) {
	from := strings.TrimSpace(query.Get("from"))
	to := strings.TrimSpace(query.Get("to"))
	if from != "" || to != "" {
		f, okFrom := core.ParseDay(from)
		t, okTo := core.ParseDay(to)
		if !okFrom || !okTo {
			return reconcile.Period{}, fmt.Errorf("%w: from and to must both be dates", reconcile.ErrInvalidPeriod)
		}
		p := reconcile.Range(f, t)
		return p, p.Validate()
	}

	year, month := now.Year(), int(now.Month())
	yearSet := false
	if v := strings.TrimSpace(query.Get("year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil || y < 1900 || y > 9999 {
			return reconcile.Period{}, fmt.Errorf("%w: year %q", reconcile.ErrInvalidPeriod, v)
		}
		year, yearSet = y, true
	}
	v := strings.TrimSpace(query.Get("month"))
	if v == "" {
		if yearSet {
			return reconcile.Year(year), nil
		}
		return reconcile.Month(year, month), nil
	}
	m, err := strconv.Atoi(v)
	if err != nil || m < 1 || m > 12 {
		return reconcile.Period{}, fmt.Errorf("%w: month %q", reconcile.ErrInvalidPeriod, v)
	}
	return reconcile.Month(year, m), nil
}

// hasPeriod reports whether the query names a period explicitly.
func hasPeriod(query url.Values) bool {
	for _, k := range []string{"from", "to", "year", "month"} {
		if query.Get(k) != "" {
			return true
		}
	}
	return false
}

// errBadBody is returned for a body that is not a JSON cash entry.
var errBadBody = errors.New("request body is not a valid cash entry")

// DecodeCashEntry reads a JSON cash entry from the request body.
func DecodeCashEntry(w http.ResponseWriter, r *http.Request) (core.CashEntry, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return core.CashEntry{}, fmt.Errorf("%w: %v", errBadBody, err)
	}
	var e core.CashEntry
	if err := json.Unmarshal(body, &e); err != nil {
		return core.CashEntry{}, fmt.Errorf("%w: %v", errBadBody, err)
	}
	e.PrestaB2B = sanitizeItems(e.PrestaB2B)
	e.Depenses = sanitizeItems(e.Depenses)
	return e, nil
}

func sanitizeItems(items []core.LineItem) []core.LineItem {
	for i := range items {
		items[i].Label = sanitizeInput(items[i].Label)
	}
	return items
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// ParseSort reads the optional sort query parameter.
func ParseSort(q url.Values) (reconcile.SortOrder, error) {
	return reconcile.ParseSortOrder(strings.TrimSpace(q.Get("sort")))
}
