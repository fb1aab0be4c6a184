// Package core provides money parsing and handling utilities.
//
// This file contains functions for turning form-entered or API-returned
// values into decimal amounts and for formatting them in euros.
package core

import (
	"encoding/json"
	"errors"
	"math"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidAmount is returned by ParseDecimal for input that is not a number.
var ErrInvalidAmount = errors.New("invalid amount")

// ParseDecimal converts a user-entered amount to a decimal.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators, ignores
// spaces used as thousands separators and a trailing euro sign. When both
// separators are present the last one is the decimal mark ("1.234,56").
//
// Examples:
//
//	ParseDecimal("12.34")     -> 12.34, nil
//	ParseDecimal("12,34")     -> 12.34, nil
//	ParseDecimal("1 234,5 €") -> 1234.5, nil
//	ParseDecimal("abc")       -> 0, ErrInvalidAmount
func ParseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "€")
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\u00a0', '\u202f', '\'':
			return -1
		}
		return r
	}, s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}

	dot := strings.LastIndex(s, ".")
	comma := strings.LastIndex(s, ",")
	switch {
	case dot >= 0 && comma >= 0 && comma > dot:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case dot >= 0 && comma >= 0:
		s = strings.ReplaceAll(s, ",", "")
	case comma >= 0:
		if strings.Count(s, ",") > 1 {
			return decimal.Zero, ErrInvalidAmount
		}
		s = strings.Replace(s, ",", ".", 1)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// Coerce converts a loosely typed value into a finite amount.
//
// Empty strings, nil, booleans, non-numeric strings, NaN and infinities all
// yield zero. Coerce never panics; it is applied before any arithmetic on
// values that come from forms or from the persistence API.
func Coerce(v any) decimal.Decimal {
	switch x := v.(type) {
	case nil:
		return decimal.Zero
	case decimal.Decimal:
		return x
	case *decimal.Decimal:
		if x == nil {
			return decimal.Zero
		}
		return *x
	case float64:
		return fromFloat(x)
	case float32:
		return fromFloat(float64(x))
	case int:
		return decimal.NewFromInt(int64(x))
	case int8:
		return decimal.NewFromInt(int64(x))
	case int16:
		return decimal.NewFromInt(int64(x))
	case int32:
		return decimal.NewFromInt(int64(x))
	case int64:
		return decimal.NewFromInt(x)
	case uint:
		return fromUint(uint64(x))
	case uint8:
		return decimal.NewFromInt(int64(x))
	case uint16:
		return decimal.NewFromInt(int64(x))
	case uint32:
		return decimal.NewFromInt(int64(x))
	case uint64:
		return fromUint(x)
	case json.Number:
		return coerceString(string(x))
	case string:
		return coerceString(x)
	case *string:
		if x == nil {
			return decimal.Zero
		}
		return coerceString(*x)
	default:
		return decimal.Zero
	}
}

func fromFloat(f float64) decimal.Decimal {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(f)
}

// fromUint converts without wrapping values above math.MaxInt64.
func fromUint(u uint64) decimal.Decimal {
	if u <= math.MaxInt64 {
		return decimal.NewFromInt(int64(u))
	}
	return decimal.NewFromBigInt(new(big.Int).SetUint64(u), 0)
}

func coerceString(s string) decimal.Decimal {
	d, err := ParseDecimal(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// FormatEuros formats an amount as a euro string rounded to cents (e.g. "€12,34").
func FormatEuros(d decimal.Decimal) string {
	d = d.Round(2)
	neg := d.IsNegative()
	if neg {
		d = d.Neg()
	}
	s := strings.Replace(d.StringFixed(2), ".", ",", 1)
	if neg {
		return "-€" + s
	}
	return "€" + s
}

// FormatPlain formats an amount with two decimals and a comma decimal mark,
// without currency symbol. Used by spreadsheet-oriented exports.
func FormatPlain(d decimal.Decimal) string {
	return strings.Replace(d.Round(2).StringFixed(2), ".", ",", 1)
}

// jsonNumber renders an amount as a bare JSON number.
func jsonNumber(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}
