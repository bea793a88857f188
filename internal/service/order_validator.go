package service

import (
	"math"
	"strconv"
	"strings"

	"badger/bakery-api/internal/model"
)

type RawKind int

const (
	// RawOther covers booleans, null, arrays, objects and repeated form values.
	RawOther RawKind = iota
	RawString
	RawNumber
)

// RawValue is a quantity exactly as the client submitted it.
type RawValue struct {
	Kind RawKind
	Text string
}

func StringValue(s string) RawValue { return RawValue{Kind: RawString, Text: s} }
func NumberValue(s string) RawValue { return RawValue{Kind: RawNumber, Text: s} }
func OtherValue(s string) RawValue  { return RawValue{Kind: RawOther, Text: s} }

// OrderRequest maps item names to submitted quantities.
type OrderRequest map[string]RawValue

// quantityCeiling caps parsed values so huge inputs fit an int on every
// platform; any value this large is already over every bound.
const quantityCeiling = math.MaxInt32

// ParseQuantity converts a raw value to a non-negative integer. The text must
// be a plain decimal number starting with a base-10 digit (after an optional
// sign) and must have no fractional part.
func ParseQuantity(v RawValue) (int, error) {
	if v.Kind != RawString && v.Kind != RawNumber {
		return 0, ErrMalformedQuantity
	}

	text := strings.TrimSpace(v.Text)
	if text == "" || strings.Trim(text, decimalChars) != "" {
		return 0, ErrMalformedQuantity
	}
	digits := strings.TrimLeft(text, "+-")
	if len(text)-len(digits) > 1 || digits == "" || digits[0] < '0' || digits[0] > '9' {
		return 0, ErrMalformedQuantity
	}

	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || f < 0 {
		return 0, ErrMalformedQuantity
	}
	if f >= quantityCeiling {
		return quantityCeiling, nil
	}
	return int(f), nil
}

const decimalChars = "0123456789+-.eE"

// OrderValidator applies the admission checks in a fixed precedence:
// unknown item, malformed quantity, quantity over bound, empty order.
type OrderValidator struct {
	catalog *Catalog
}

func NewOrderValidator(catalog *Catalog) *OrderValidator {
	return &OrderValidator{catalog: catalog}
}

func (v *OrderValidator) Validate(identity model.Identity, raw OrderRequest) (model.ValidatedOrder, error) {
	for name := range raw {
		if !v.catalog.IsValidName(name) {
			return model.ValidatedOrder{}, ErrUnknownItem
		}
	}

	parsed := make(map[string]int, len(raw))
	for name, value := range raw {
		n, err := ParseQuantity(value)
		if err != nil {
			return model.ValidatedOrder{}, err
		}
		parsed[name] = n
	}

	for name, n := range parsed {
		item, _ := v.catalog.Lookup(name)
		if n > item.UpperBound {
			return model.ValidatedOrder{}, ErrQuantityTooHigh
		}
	}

	var quantities model.Quantities
	for name, n := range parsed {
		quantities[v.catalog.position(name)] = n
	}
	if quantities.Sum() == 0 {
		return model.ValidatedOrder{}, ErrEmptyOrder
	}

	return model.ValidatedOrder{
		Username:   identity.Username(),
		Quantities: quantities,
	}, nil
}
