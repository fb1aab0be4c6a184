package core

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// ErrMissingIdentifier is returned when a delete is requested without an id.
var ErrMissingIdentifier = errors.New("missing identifier")

// ValidationError describes one rejected form field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// ValidationErrors collects every rejected field of a form.
type ValidationErrors []*ValidationError

func (ve ValidationErrors) Error() string {
	parts := make([]string, len(ve))
	for i, e := range ve {
		parts[i] = e.Error()
	}
	return strings.Join(parts, "; ")
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func formValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New()
		// Amounts are compared as numbers by the gte/lte tags.
		v.RegisterCustomTypeFunc(func(field reflect.Value) any {
			if d, ok := field.Interface().(decimal.Decimal); ok {
				return d.InexactFloat64()
			}
			return nil
		}, decimal.Decimal{})
		_ = v.RegisterValidation("datekey", func(fl validator.FieldLevel) bool {
			return DateKey(fl.Field().String()) != ""
		})
		validate = v
	})
	return validate
}

// ValidateCashEntry checks a submitted cash entry before it is sent to the
// persistence API. When strict is set, an entry with no payment channel
// populated is rejected as well.
func ValidateCashEntry(e CashEntry, strict bool) error {
	var out ValidationErrors

	if err := formValidator().Struct(e); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("validate cash entry: %w", err)
		}
		for _, fe := range verrs {
			out = append(out, &ValidationError{
				Field:   fieldName(fe),
				Message: tagMessage(fe.Tag()),
			})
		}
	}

	if strict && !e.HasPayment() {
		out = append(out, &ValidationError{
			Field:   "paiements",
			Message: "au moins un moyen de paiement doit être renseigné",
		})
	}

	if len(out) > 0 {
		return out
	}
	return nil
}

// fieldName maps a struct namespace ("CashEntry.Depenses[0].Label") to the
// wire name the front-end knows ("depenses[0].label").
func fieldName(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		ns = ns[i+1:]
	}
	replacer := strings.NewReplacer(
		"PrestaB2B", "prestaB2B",
		"Depenses", "depenses",
		"Virement", "virement",
		"CBClassique", "cbClassique",
		"CBSansContact", "cbSansContact",
		"Especes", "especes",
		"Date", "date",
		"Label", "label",
		"Value", "value",
	)
	return replacer.Replace(ns)
}

func tagMessage(tag string) string {
	switch tag {
	case "required":
		return "champ obligatoire"
	case "datekey":
		return "date invalide"
	case "gte":
		return "le montant doit être positif ou nul"
	case "max":
		return "libellé trop long"
	default:
		return "valeur invalide"
	}
}
