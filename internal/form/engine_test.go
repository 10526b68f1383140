package form_test

import (
	"errors"
	"testing"

	"github.com/formvox/formvox/internal/catalog"
	"github.com/formvox/formvox/internal/form"
)

// twoFields is a minimal catalog: one free-text field followed by one date
// field.
func twoFields() []catalog.Field {
	return []catalog.Field{
		{
			ID: "field_a", PDFFieldID: "a", Label: "Field A",
			Validator: catalog.Validator{Kind: catalog.ValidatorText},
			Required:  true,
		},
		{
			ID: "field_b", PDFFieldID: "b", Label: "Field B",
			Validator: catalog.Validator{Kind: catalog.ValidatorDateDE},
			Required:  true,
		},
	}
}

func TestEngine_FullWalkthrough(t *testing.T) {
	t.Parallel()
	e := form.NewEngine(twoFields())

	// ─── Field A ───
	field, done := e.Next()
	if done || field.ID != "field_a" {
		t.Fatalf("Next() = %q done=%v, want field_a", field.ID, done)
	}

	valid, msg, err := e.Validate("field_a", "hello")
	if err != nil || !valid {
		t.Fatalf("Validate(field_a) = %v %q %v, want valid", valid, msg, err)
	}
	progress, err := e.Save("field_a", "hello")
	if err != nil {
		t.Fatalf("Save(field_a): %v", err)
	}
	if progress != 50 {
		t.Errorf("progress after first save = %d, want 50", progress)
	}

	// ─── Field B ───
	field, done = e.Next()
	if done || field.ID != "field_b" {
		t.Fatalf("Next() = %q done=%v, want field_b", field.ID, done)
	}

	// Invalid value first, then a valid one.
	valid, msg, err = e.Validate("field_b", "not-a-date")
	if err != nil {
		t.Fatalf("Validate(field_b, invalid): %v", err)
	}
	if valid || msg == "" {
		t.Errorf("invalid date accepted (valid=%v msg=%q)", valid, msg)
	}
	if valid, _, err = e.Validate("field_b", "15011990"); err != nil || !valid {
		t.Fatalf("Validate(field_b, valid) = %v %v", valid, err)
	}
	if progress, err = e.Save("field_b", "15011990"); err != nil {
		t.Fatalf("Save(field_b): %v", err)
	}
	if progress != 100 {
		t.Errorf("progress after last save = %d, want 100", progress)
	}

	// ─── Completion ───
	if _, done = e.Next(); !done {
		t.Error("Next() after last save must report done")
	}
	if !e.Complete() {
		t.Error("Complete() = false after all fields saved")
	}
	answers := e.Answers()
	if answers["field_a"] != "hello" || answers["field_b"] != "15011990" {
		t.Errorf("answers = %v", answers)
	}
}

func TestEngine_SaveWithoutValidateFails(t *testing.T) {
	t.Parallel()
	e := form.NewEngine(twoFields())

	if _, err := e.Save("field_a", "hello"); !errors.Is(err, form.ErrUnvalidatedSave) {
		t.Errorf("Save without Validate: err = %v, want ErrUnvalidatedSave", err)
	}
}

func TestEngine_SaveAfterFailedValidateFails(t *testing.T) {
	t.Parallel()
	e := form.NewEngine(twoFields())

	if valid, _, err := e.Validate("field_a", "  "); err != nil || valid {
		t.Fatalf("Validate(blank) = %v %v, want invalid", valid, err)
	}
	if _, err := e.Save("field_a", "  "); !errors.Is(err, form.ErrUnvalidatedSave) {
		t.Errorf("Save after failed Validate: err = %v, want ErrUnvalidatedSave", err)
	}
}

func TestEngine_SaveDifferentValueThanValidatedFails(t *testing.T) {
	t.Parallel()
	e := form.NewEngine(twoFields())

	if _, _, err := e.Validate("field_a", "hello"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Save("field_a", "other"); !errors.Is(err, form.ErrUnvalidatedSave) {
		t.Errorf("Save with changed value: err = %v, want ErrUnvalidatedSave", err)
	}
}

func TestEngine_FieldMismatch(t *testing.T) {
	t.Parallel()
	e := form.NewEngine(twoFields())

	if _, _, err := e.Validate("field_b", "15011990"); !errors.Is(err, form.ErrFieldMismatch) {
		t.Errorf("Validate on non-current field: err = %v, want ErrFieldMismatch", err)
	}
	if _, err := e.Save("field_b", "15011990"); !errors.Is(err, form.ErrFieldMismatch) {
		t.Errorf("Save on non-current field: err = %v, want ErrFieldMismatch", err)
	}
}

func TestEngine_OperationsAfterCompletion(t *testing.T) {
	t.Parallel()
	e := form.NewEngine(twoFields()[:1])

	if _, _, err := e.Validate("field_a", "hello"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Save("field_a", "hello"); err != nil {
		t.Fatal(err)
	}

	// Next stays done, repeatedly.
	for i := 0; i < 3; i++ {
		if _, done := e.Next(); !done {
			t.Fatalf("Next() call %d after completion not done", i)
		}
	}
	if _, _, err := e.Validate("field_a", "x"); !errors.Is(err, form.ErrOutOfRange) {
		t.Errorf("Validate after completion: err = %v, want ErrOutOfRange", err)
	}
	if _, err := e.Save("field_a", "x"); !errors.Is(err, form.ErrOutOfRange) {
		t.Errorf("Save after completion: err = %v, want ErrOutOfRange", err)
	}
}

func TestEngine_SaveOverwritesPriorAnswer(t *testing.T) {
	t.Parallel()
	// Same field listed twice: the second pass overwrites the first answer.
	f := twoFields()[0]
	e := form.NewEngine([]catalog.Field{f, f})

	if _, _, err := e.Validate("field_a", "first"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Save("field_a", "first"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := e.Validate("field_a", "second"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Save("field_a", "second"); err != nil {
		t.Fatal(err)
	}

	if got := e.Answers()["field_a"]; got != "second" {
		t.Errorf("answer = %q, want second (overwritten)", got)
	}
}

func TestEngine_AnswersReturnsCopy(t *testing.T) {
	t.Parallel()
	e := form.NewEngine(twoFields())
	if _, _, err := e.Validate("field_a", "hello"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Save("field_a", "hello"); err != nil {
		t.Fatal(err)
	}

	snapshot := e.Answers()
	snapshot["field_a"] = "tampered"
	if got := e.Answers()["field_a"]; got != "hello" {
		t.Errorf("internal answer mutated through snapshot: %q", got)
	}
}

func TestEngine_ProgressMonotonic(t *testing.T) {
	t.Parallel()
	e := form.NewEngine(catalog.Fields())
	if e.Progress() != 0 {
		t.Errorf("initial progress = %d, want 0", e.Progress())
	}

	prev := 0
	for {
		field, done := e.Next()
		if done {
			break
		}
		value := field.Examples[0]
		if valid, msg, err := e.Validate(field.ID, value); err != nil || !valid {
			t.Fatalf("Validate(%s, %q) = %v %q %v", field.ID, value, valid, msg, err)
		}
		progress, err := e.Save(field.ID, value)
		if err != nil {
			t.Fatalf("Save(%s): %v", field.ID, err)
		}
		if progress <= prev {
			t.Errorf("progress %d not greater than previous %d", progress, prev)
		}
		prev = progress
	}
	if prev != 100 {
		t.Errorf("final progress = %d, want 100", prev)
	}
}
