package form

import "errors"

// Protocol errors returned by the progress engine. The tool router reports
// them inside result payloads so the conversation can continue; they are
// never session-fatal.
var (
	// ErrFieldMismatch is returned when an operation targets a field other
	// than the current one.
	ErrFieldMismatch = errors.New("form: field is not the current field")

	// ErrUnvalidatedSave is returned when Save is called without an
	// immediately preceding successful Validate for the same field and value.
	ErrUnvalidatedSave = errors.New("form: save without preceding successful validation")

	// ErrOutOfRange is returned by Validate and Save once the form is
	// complete.
	ErrOutOfRange = errors.New("form: form is already complete")
)
