package catalog

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// vld performs the primitive syntax checks (digit-only, length bounds). A
// single instance caches compiled tag expressions and is safe for concurrent
// use.
var vld = validator.New()

// Validate checks a value against the field's validation rule. It returns
// (true, "") when the value is acceptable and (false, message) with a
// user-facing explanation otherwise. Validate never mutates any state.
func Validate(f Field, value string) (bool, string) {
	v := strings.TrimSpace(value)
	if v == "" {
		if f.Required {
			return false, fmt.Sprintf("%s is required.", f.Label)
		}
		return true, ""
	}

	switch f.Validator.Kind {
	case ValidatorText:
		// Non-empty was already established.
		return true, ""

	case ValidatorDateDE:
		return validateDateDE(v)

	case ValidatorPostalCodeDE:
		// The number tag admits digits only; numeric would also accept
		// signs and decimal points.
		if err := vld.Var(v, "number,min=4,max=5"); err != nil {
			return false, "Postal code must be 4 or 5 digits."
		}
		return true, ""

	case ValidatorIntegerChoice:
		return validateIntegerChoice(v, f.Validator.Min, f.Validator.Max)

	default:
		// Unknown validator kinds pass through as valid.
		return true, ""
	}
}

// validateDateDE checks the eight-digit DDMMYYYY format and that the digits
// denote a real calendar date (e.g., 31021990 is rejected).
func validateDateDE(v string) (bool, string) {
	if err := vld.Var(v, "number,len=8"); err != nil {
		return false, "Invalid format. Use DDMMYYYY (e.g., 15011990 for January 15, 1990)."
	}
	if _, err := time.Parse("02012006", v); err != nil {
		return false, "Invalid date. Check day (1-31), month (1-12), year."
	}
	return true, ""
}

func validateIntegerChoice(v string, minVal, maxVal int) (bool, string) {
	n, err := strconv.Atoi(v)
	if err != nil {
		return false, "Must be a whole number (0, 1, 2, etc.)."
	}
	if err := vld.Var(n, fmt.Sprintf("min=%d", minVal)); err != nil {
		return false, fmt.Sprintf("Value %d is too small (minimum %d).", n, minVal)
	}
	if err := vld.Var(n, fmt.Sprintf("max=%d", maxVal)); err != nil {
		return false, fmt.Sprintf("Value %d is too large (maximum %d).", n, maxVal)
	}
	return true, ""
}

// EnumDisplay converts an integer choice value (as a string) to its
// human-readable label using the field's EnumValues mapping. Returns the
// original value when the field has no mapping or the value is not a known
// choice.
func EnumDisplay(f Field, value string) string {
	if f.EnumValues == nil {
		return value
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return value
	}
	if label, ok := f.EnumValues[n]; ok {
		return label
	}
	return value
}
