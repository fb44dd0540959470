package extraction

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/mmynk/splitit/internal/calculator"
	"github.com/mmynk/splitit/internal/models"
)

var validate = validator.New()

// RawReceipt is the structured payload the parsing capability returns.
// items and total are required; subtotal and tax are optional.
type RawReceipt struct {
	Items    []RawLine           `json:"items" validate:"required,dive"`
	Subtotal decimal.NullDecimal `json:"subtotal"`
	Tax      decimal.NullDecimal `json:"tax"`
	Total    decimal.NullDecimal `json:"total"`
}

// RawLine is one extracted line item.
type RawLine struct {
	Name  string              `json:"name" validate:"max=256"`
	Price decimal.NullDecimal `json:"price"`
}

// ParseReceipt decodes a JSON payload and normalises it.
func ParseReceipt(data []byte) (*models.Receipt, error) {
	var raw RawReceipt
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &Error{Kind: KindMalformed, Err: err}
	}
	return Normalize(&raw)
}

// Normalize validates a raw receipt and converts it to the bill's item shape.
//
// Rules:
//   - items and total must be present; every item must have a price
//   - negative prices, tax or total are rejected
//   - amounts are rounded to whole cents
//   - blank item names become "Item N"
//   - a missing or zero subtotal is reconstructed as the sum of item prices
//   - a missing tax defaults to zero
//
// Inconsistencies that do not make the receipt unusable (zero total with
// priced items, subtotal or total not adding up) are reported in Warnings.
func Normalize(raw *RawReceipt) (*models.Receipt, error) {
	if err := validate.Struct(raw); err != nil {
		return nil, &Error{Kind: validationKind(err), Err: formatValidationError(err)}
	}
	if !raw.Total.Valid {
		return nil, newError(KindMissingField, "total is required")
	}

	lines := make([]models.ReceiptLine, len(raw.Items))
	sum := decimal.Zero
	for i, l := range raw.Items {
		if !l.Price.Valid {
			return nil, newError(KindMissingField, "items[%d].price is required", i)
		}
		if l.Price.Decimal.IsNegative() {
			return nil, newError(KindInvalidValue, "items[%d].price %s is negative", i, l.Price.Decimal)
		}
		name := strings.TrimSpace(l.Name)
		if name == "" {
			name = fmt.Sprintf("Item %d", i+1)
		}
		price := calculator.RoundToMinor(l.Price.Decimal)
		lines[i] = models.ReceiptLine{Name: name, Price: price}
		sum = sum.Add(price)
	}

	r := &models.Receipt{
		Lines:    lines,
		Subtotal: sum,
		Tax:      decimal.Zero,
		Total:    calculator.RoundToMinor(raw.Total.Decimal),
	}
	if r.Total.IsNegative() {
		return nil, newError(KindInvalidValue, "total %s is negative", r.Total)
	}
	if raw.Tax.Valid {
		if raw.Tax.Decimal.IsNegative() {
			return nil, newError(KindInvalidValue, "tax %s is negative", raw.Tax.Decimal)
		}
		r.Tax = calculator.RoundToMinor(raw.Tax.Decimal)
	}
	if raw.Subtotal.Valid && !raw.Subtotal.Decimal.IsZero() {
		if raw.Subtotal.Decimal.IsNegative() {
			return nil, newError(KindInvalidValue, "subtotal %s is negative", raw.Subtotal.Decimal)
		}
		r.Subtotal = calculator.RoundToMinor(raw.Subtotal.Decimal)
	}

	if r.Total.IsZero() && sum.IsPositive() {
		r.Warnings = append(r.Warnings, "receipt total is zero but items are priced")
	}
	if !r.Subtotal.Equal(sum) {
		r.Warnings = append(r.Warnings, fmt.Sprintf("subtotal %s differs from item sum %s",
			r.Subtotal.StringFixed(calculator.MinorUnitExponent), sum.StringFixed(calculator.MinorUnitExponent)))
	}
	if !r.Total.IsZero() && !r.Total.Equal(r.Subtotal.Add(r.Tax)) {
		r.Warnings = append(r.Warnings, fmt.Sprintf("total %s differs from subtotal plus tax %s",
			r.Total.StringFixed(calculator.MinorUnitExponent), r.Subtotal.Add(r.Tax).StringFixed(calculator.MinorUnitExponent)))
	}

	return r, nil
}

// validationKind reports a missing field only when a required rule failed;
// any other rule failure is an invalid value.
func validationKind(err error) Kind {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return KindInvalidValue
	}
	for _, e := range validationErrors {
		if e.Tag() == "required" {
			return KindMissingField
		}
	}
	return KindInvalidValue
}

// formatValidationError formats validation errors into readable messages
func formatValidationError(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}
	msgs := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		field := strings.ToLower(e.Field())
		switch e.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", field))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s characters", field, e.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid", field))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}
