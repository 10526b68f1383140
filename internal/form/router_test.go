package form_test

import (
	"encoding/json"
	"testing"

	"github.com/formvox/formvox/internal/catalog"
	"github.com/formvox/formvox/internal/events"
	"github.com/formvox/formvox/internal/form"
	"github.com/formvox/formvox/pkg/provider/s2s"
)

func newRouter(t *testing.T) (*form.Router, *form.Engine, <-chan events.Event) {
	t.Helper()
	engine := form.NewEngine(catalog.Fields())
	feed := events.NewFeed(64)
	ch, cancel := feed.Subscribe()
	t.Cleanup(cancel)
	return form.NewRouter(engine, feed), engine, ch
}

func decode(t *testing.T, result s2s.ToolResult) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal([]byte(result.Output), &payload); err != nil {
		t.Fatalf("result output is not JSON: %q: %v", result.Output, err)
	}
	return payload
}

func TestHandle_GetNextReturnsFirstField(t *testing.T) {
	t.Parallel()
	router, _, ch := newRouter(t)

	result := router.Handle(s2s.ToolCall{CallID: "c1", Name: form.ToolGetNextFormField, Arguments: "{}"})
	if result.CallID != "c1" || result.Name != form.ToolGetNextFormField {
		t.Errorf("result identity = %q/%q", result.CallID, result.Name)
	}

	payload := decode(t, result)
	if payload["done"] != false {
		t.Fatalf("done = %v, want false", payload["done"])
	}
	field, ok := payload["field"].(map[string]any)
	if !ok {
		t.Fatalf("field payload missing: %v", payload)
	}
	if field["field_id"] != "family_name_p1" {
		t.Errorf("field_id = %v, want family_name_p1", field["field_id"])
	}
	if field["field_type"] != "text" {
		t.Errorf("field_type = %v, want text", field["field_type"])
	}

	evt := <-ch
	if evt.Kind != events.KindFieldChanged {
		t.Errorf("event kind = %q, want field_changed", evt.Kind)
	}
}

func TestHandle_ValidateThenSave(t *testing.T) {
	t.Parallel()
	router, engine, ch := newRouter(t)

	result := router.Handle(s2s.ToolCall{
		CallID:    "c1",
		Name:      form.ToolValidateFormField,
		Arguments: `{"field_id":"family_name_p1","value":"Mueller"}`,
	})
	payload := decode(t, result)
	if payload["is_valid"] != true {
		t.Fatalf("is_valid = %v (%v)", payload["is_valid"], payload["message"])
	}

	result = router.Handle(s2s.ToolCall{
		CallID:    "c2",
		Name:      form.ToolSaveFormField,
		Arguments: `{"field_id":"family_name_p1","value":"Mueller"}`,
	})
	payload = decode(t, result)
	if payload["ok"] != true {
		t.Fatalf("ok = %v (%v)", payload["ok"], payload["message"])
	}
	if payload["progress_percent"].(float64) <= 0 {
		t.Errorf("progress_percent = %v, want > 0", payload["progress_percent"])
	}

	if engine.Answers()["family_name_p1"] != "Mueller" {
		t.Error("answer not recorded")
	}

	kinds := []events.Kind{(<-ch).Kind, (<-ch).Kind}
	if kinds[0] != events.KindValidationResult || kinds[1] != events.KindFieldSaved {
		t.Errorf("event kinds = %v", kinds)
	}
}

func TestHandle_SaveWithoutValidateReportsInPayload(t *testing.T) {
	t.Parallel()
	router, _, _ := newRouter(t)

	result := router.Handle(s2s.ToolCall{
		CallID:    "c1",
		Name:      form.ToolSaveFormField,
		Arguments: `{"field_id":"family_name_p1","value":"Mueller"}`,
	})
	payload := decode(t, result)
	if payload["ok"] != false {
		t.Fatalf("ok = %v, want false", payload["ok"])
	}
	if payload["message"] == "" {
		t.Error("error payload must carry a message")
	}
}

func TestHandle_MalformedArgumentsDoNotCrash(t *testing.T) {
	t.Parallel()
	router, _, _ := newRouter(t)

	for _, name := range []string{form.ToolValidateFormField, form.ToolSaveFormField} {
		result := router.Handle(s2s.ToolCall{CallID: "c1", Name: name, Arguments: `{not json`})
		payload := decode(t, result)
		ok := payload["is_valid"] == true || payload["ok"] == true
		if ok {
			t.Errorf("%s accepted malformed arguments: %v", name, payload)
		}
	}
}

func TestHandle_UnknownFieldID(t *testing.T) {
	t.Parallel()
	router, _, _ := newRouter(t)

	result := router.Handle(s2s.ToolCall{
		CallID:    "c1",
		Name:      form.ToolValidateFormField,
		Arguments: `{"field_id":"no_such_field","value":"x"}`,
	})
	payload := decode(t, result)
	if payload["is_valid"] != false || payload["message"] != "Unknown field." {
		t.Errorf("payload = %v", payload)
	}
}

func TestHandle_UnknownToolName(t *testing.T) {
	t.Parallel()
	router, _, _ := newRouter(t)

	result := router.Handle(s2s.ToolCall{CallID: "c1", Name: "reboot_system", Arguments: "{}"})
	payload := decode(t, result)
	if payload["error"] == nil {
		t.Errorf("unknown tool must yield error payload, got %v", payload)
	}
}

func TestHandle_CompletionEmitsFormComplete(t *testing.T) {
	t.Parallel()
	engine := form.NewEngine(catalog.Fields()[:1])
	feed := events.NewFeed(64)
	ch, cancel := feed.Subscribe()
	t.Cleanup(cancel)
	router := form.NewRouter(engine, feed)

	router.Handle(s2s.ToolCall{
		CallID: "c1", Name: form.ToolValidateFormField,
		Arguments: `{"field_id":"family_name_p1","value":"Mueller"}`,
	})
	router.Handle(s2s.ToolCall{
		CallID: "c2", Name: form.ToolSaveFormField,
		Arguments: `{"field_id":"family_name_p1","value":"Mueller"}`,
	})

	result := router.Handle(s2s.ToolCall{CallID: "c3", Name: form.ToolGetNextFormField, Arguments: "{}"})
	if payload := decode(t, result); payload["done"] != true {
		t.Errorf("done = %v after completing all fields", payload["done"])
	}

	var sawComplete bool
	for i := 0; i < 3; i++ {
		if (<-ch).Kind == events.KindFormComplete {
			sawComplete = true
		}
	}
	if !sawComplete {
		t.Error("form_complete event not published")
	}
}
