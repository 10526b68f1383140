// Package catalog defines the Anmeldung (Munich residence registration) form
// fields and their value validation rules.
//
// The catalog is the single source of truth for the form flow: field order,
// labels, descriptions, validator configuration, and the mapping to PDF form
// field names are all derived from the definitions in this package. The
// catalog is read-only at runtime.
package catalog

// ValidatorKind selects the validation rule applied to a field value.
type ValidatorKind string

const (
	// ValidatorText accepts any non-empty text.
	ValidatorText ValidatorKind = "text"

	// ValidatorDateDE accepts a German date as 8 digits (DDMMYYYY) and
	// checks that it denotes a real calendar date.
	ValidatorDateDE ValidatorKind = "date_de"

	// ValidatorPostalCodeDE accepts a German postal code of 4 or 5 digits.
	ValidatorPostalCodeDE ValidatorKind = "postal_code_de"

	// ValidatorIntegerChoice accepts an integer within [Min, Max], used for
	// radio-button and dropdown fields.
	ValidatorIntegerChoice ValidatorKind = "integer_choice"
)

// Validator holds the validation rule and its configuration for one field.
type Validator struct {
	// Kind selects the rule.
	Kind ValidatorKind

	// Min and Max bound the value for ValidatorIntegerChoice. Both are
	// inclusive and ignored by the other kinds.
	Min int
	Max int
}

// Field is the definition of a single form field in the Anmeldung process.
// Fields are immutable; the progress engine references them by ID.
type Field struct {
	// ID is the unique voice-friendly identifier (e.g., "family_name_p1").
	ID string

	// PDFFieldID is the corresponding field name in the official PDF form
	// (e.g., "fam1"). Used when exporting completed answers.
	PDFFieldID string

	// Label is a short human-readable label (e.g., "Family name").
	Label string

	// Description explains to the caller what to enter, including the
	// expected format and the choice labels for enum fields.
	Description string

	// Validator configures how values for this field are checked.
	Validator Validator

	// Examples lists valid example inputs, spoken to the user on request.
	Examples []string

	// Required marks the field as mandatory. Empty values on optional
	// fields pass validation.
	Required bool

	// EnumValues maps integer choices to human-readable labels for
	// ValidatorIntegerChoice fields. Nil for free-form fields.
	EnumValues map[int]string
}
