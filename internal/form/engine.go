// Package form implements the linear form-filling state machine and the tool
// router that mediates between the conversational model and that state
// machine.
//
// The Engine is the sole owner of form progress: which field is current,
// which answers are recorded, and whether the most recent validation allows
// a save. It is pure and synchronous — no I/O, no goroutines — which makes
// the get-next → validate → save protocol trivially testable.
package form

import (
	"fmt"
	"sync"

	"github.com/formvox/formvox/internal/catalog"
)

// lastValidation records the outcome of the most recent Validate call. Save
// consults it to enforce the validate-before-save protocol.
type lastValidation struct {
	fieldID string
	value   string
	valid   bool
}

// Engine walks the field catalog strictly in order. The current index is
// monotonically non-decreasing and bounded by the catalog length; it only
// advances through a successful Save.
//
// Engine is safe for concurrent use, though the dispatcher drives it from a
// single goroutine in normal operation.
type Engine struct {
	mu      sync.Mutex
	fields  []catalog.Field
	index   int
	answers map[string]string
	lastVal *lastValidation
}

// NewEngine creates an Engine over the given ordered fields.
func NewEngine(fields []catalog.Field) *Engine {
	return &Engine{
		fields:  fields,
		answers: make(map[string]string, len(fields)),
	}
}

// Next returns the current field to fill. When every field has been
// answered, done is true and the zero Field is returned; calling Next again
// after completion keeps returning done idempotently.
func (e *Engine) Next() (field catalog.Field, done bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.index >= len(e.fields) {
		return catalog.Field{}, true
	}
	return e.fields[e.index], false
}

// Validate checks value against the current field's rule and records the
// outcome for a subsequent Save. It never mutates answers or the index.
//
// Returns ErrOutOfRange after completion and ErrFieldMismatch when fieldID
// is not the current field. Otherwise valid and message report the rule
// outcome.
func (e *Engine) Validate(fieldID, value string) (valid bool, message string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.index >= len(e.fields) {
		return false, "", fmt.Errorf("validate %q: %w", fieldID, ErrOutOfRange)
	}
	current := e.fields[e.index]
	if fieldID != current.ID {
		return false, "", fmt.Errorf("validate %q (current %q): %w", fieldID, current.ID, ErrFieldMismatch)
	}

	valid, message = catalog.Validate(current, value)
	e.lastVal = &lastValidation{fieldID: fieldID, value: value, valid: valid}
	return valid, message, nil
}

// Save records the answer for the current field and advances to the next
// one. The immediately preceding Validate must have succeeded for the same
// fieldID and value, otherwise ErrUnvalidatedSave is returned. A successful
// Save overwrites any prior answer for the field, clears the validation
// record, and returns the new progress percentage.
func (e *Engine) Save(fieldID, value string) (progressPercent int, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.index >= len(e.fields) {
		return e.progressLocked(), fmt.Errorf("save %q: %w", fieldID, ErrOutOfRange)
	}
	current := e.fields[e.index]
	if fieldID != current.ID {
		return e.progressLocked(), fmt.Errorf("save %q (current %q): %w", fieldID, current.ID, ErrFieldMismatch)
	}
	lv := e.lastVal
	if lv == nil || !lv.valid || lv.fieldID != fieldID || lv.value != value {
		return e.progressLocked(), fmt.Errorf("save %q: %w", fieldID, ErrUnvalidatedSave)
	}

	e.answers[fieldID] = value
	e.index++
	e.lastVal = nil
	return e.progressLocked(), nil
}

// Progress returns the completion percentage, rounded down.
func (e *Engine) Progress() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.progressLocked()
}

func (e *Engine) progressLocked() int {
	if len(e.fields) == 0 {
		return 100
	}
	return e.index * 100 / len(e.fields)
}

// Complete reports whether every field has been answered.
func (e *Engine) Complete() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.index >= len(e.fields)
}

// Answers returns a defensive copy of the recorded answers, keyed by field
// ID. This is the read-only snapshot handed to the PDF renderer once the
// form completes.
func (e *Engine) Answers() map[string]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]string, len(e.answers))
	for k, v := range e.answers {
		out[k] = v
	}
	return out
}
