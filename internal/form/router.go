package form

import (
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"

	"github.com/formvox/formvox/internal/catalog"
	"github.com/formvox/formvox/internal/events"
	"github.com/formvox/formvox/pkg/provider/s2s"
)

// Tool names exposed to the model. The set is closed: the router handles
// exactly these and answers anything else with an error payload.
const (
	ToolGetNextFormField  = "get_next_form_field"
	ToolValidateFormField = "validate_form_field"
	ToolSaveFormField     = "save_form_field"
)

// Router translates model tool calls into Engine operations and Engine
// outcomes into wire payloads. Every ToolCall produces exactly one
// ToolResult; protocol violations (wrong field, unvalidated save, malformed
// arguments) are reported inside the payload so the conversation continues.
type Router struct {
	engine *Engine
	feed   *events.Feed
	log    *slog.Logger
}

// NewRouter creates a Router over the given engine, publishing progress
// events to feed.
func NewRouter(engine *Engine, feed *events.Feed) *Router {
	return &Router{
		engine: engine,
		feed:   feed,
		log:    slog.Default().With("component", "form_router"),
	}
}

// ToolDefinitions returns the declarations for the three form tools, for
// inclusion in the session configuration at connect time.
func ToolDefinitions() []s2s.ToolDefinition {
	fieldArgs := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"field_id": map[string]any{"type": "string", "description": "ID of the field"},
			"value":    map[string]any{"type": "string", "description": "User-provided value"},
		},
		"required": []string{"field_id", "value"},
	}
	return []s2s.ToolDefinition{
		{
			Name:        ToolGetNextFormField,
			Description: "Return metadata for the next form field to fill. Returns done=true when finished.",
			Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
		},
		{
			Name:        ToolValidateFormField,
			Description: "Validate a value for a specific field and return a message if invalid.",
			Parameters:  fieldArgs,
		},
		{
			Name:        ToolSaveFormField,
			Description: "Persist a validated value for the given field and advance progress.",
			Parameters:  fieldArgs,
		},
	}
}

// ── Wire payloads ──────────────────────────────────────────────────────────────

type fieldArguments struct {
	FieldID string `json:"field_id"`
	Value   string `json:"value"`
}

type fieldPayload struct {
	FieldID     string         `json:"field_id"`
	Label       string         `json:"label"`
	Description string         `json:"description"`
	FieldType   string         `json:"field_type"`
	Required    bool           `json:"required"`
	Examples    []string       `json:"examples"`
	Constraints map[string]any `json:"constraints"`
}

type nextFieldResponse struct {
	Done  bool          `json:"done"`
	Field *fieldPayload `json:"field,omitempty"`
}

type validateResponse struct {
	IsValid bool   `json:"is_valid"`
	Message string `json:"message"`
}

type saveResponse struct {
	OK              bool   `json:"ok"`
	ProgressPercent int    `json:"progress_percent,omitempty"`
	Message         string `json:"message,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func toFieldPayload(f catalog.Field) *fieldPayload {
	constraints := map[string]any{}
	if f.Validator.Kind == catalog.ValidatorIntegerChoice {
		constraints["min"] = f.Validator.Min
		constraints["max"] = f.Validator.Max
	}
	if len(f.EnumValues) > 0 {
		enum := make(map[string]string, len(f.EnumValues))
		for k, v := range f.EnumValues {
			enum[strconv.Itoa(k)] = v
		}
		constraints["enum_values"] = enum
	}
	examples := f.Examples
	if examples == nil {
		examples = []string{}
	}
	return &fieldPayload{
		FieldID:     f.ID,
		Label:       f.Label,
		Description: f.Description,
		FieldType:   string(f.Validator.Kind),
		Required:    f.Required,
		Examples:    examples,
		Constraints: constraints,
	}
}

// ── Dispatch ───────────────────────────────────────────────────────────────────

// Handle processes one tool call and returns its result. It never returns a
// session-fatal condition; malformed input yields a structured error payload.
func (r *Router) Handle(call s2s.ToolCall) s2s.ToolResult {
	r.log.Info("tool call", "tool", call.Name, "call_id", call.CallID)

	var payload any
	switch call.Name {
	case ToolGetNextFormField:
		payload = r.handleGetNext()
	case ToolValidateFormField:
		payload = r.handleValidate(call.Arguments)
	case ToolSaveFormField:
		payload = r.handleSave(call.Arguments)
	default:
		r.log.Warn("unhandled tool", "tool", call.Name)
		payload = errorResponse{Error: "Unhandled tool " + call.Name}
	}

	out, err := json.Marshal(payload)
	if err != nil {
		out = []byte(`{"error":"internal encoding failure"}`)
	}
	return s2s.ToolResult{CallID: call.CallID, Name: call.Name, Output: string(out)}
}

func (r *Router) handleGetNext() nextFieldResponse {
	field, done := r.engine.Next()
	if done {
		return nextFieldResponse{Done: true}
	}
	r.feed.Publish(events.Event{
		Kind:    events.KindFieldChanged,
		Payload: map[string]string{"field_id": field.ID, "label": field.Label},
	})
	return nextFieldResponse{Done: false, Field: toFieldPayload(field)}
}

func (r *Router) handleValidate(rawArgs string) validateResponse {
	var args fieldArguments
	if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
		return validateResponse{IsValid: false, Message: "Invalid tool arguments."}
	}
	if _, known := catalog.ByID(args.FieldID); !known {
		return validateResponse{IsValid: false, Message: "Unknown field."}
	}

	valid, message, err := r.engine.Validate(args.FieldID, args.Value)
	if err != nil {
		return validateResponse{IsValid: false, Message: protocolMessage(err)}
	}

	r.feed.Publish(events.Event{
		Kind: events.KindValidationResult,
		Payload: map[string]any{
			"field_id": args.FieldID,
			"is_valid": valid,
			"message":  message,
		},
	})
	return validateResponse{IsValid: valid, Message: message}
}

func (r *Router) handleSave(rawArgs string) saveResponse {
	var args fieldArguments
	if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
		return saveResponse{OK: false, Message: "Invalid tool arguments."}
	}
	field, known := catalog.ByID(args.FieldID)
	if !known {
		return saveResponse{OK: false, Message: "Unknown field."}
	}

	progress, err := r.engine.Save(args.FieldID, args.Value)
	if err != nil {
		return saveResponse{OK: false, Message: protocolMessage(err)}
	}

	r.log.Info("field saved",
		"field_id", args.FieldID,
		"display", catalog.EnumDisplay(field, args.Value),
		"progress_percent", progress,
	)
	r.feed.Publish(events.Event{
		Kind: events.KindFieldSaved,
		Payload: map[string]any{
			"field_id":         args.FieldID,
			"progress_percent": progress,
		},
	})
	if r.engine.Complete() {
		r.feed.Publish(events.Event{
			Kind:    events.KindFormComplete,
			Payload: map[string]any{"answers": r.engine.Answers()},
		})
	}
	return saveResponse{OK: true, ProgressPercent: progress}
}

// protocolMessage maps engine protocol errors to the user-facing messages
// spoken back through the model.
func protocolMessage(err error) string {
	switch {
	case errors.Is(err, ErrFieldMismatch):
		return "That field is not the one currently being filled."
	case errors.Is(err, ErrUnvalidatedSave):
		return "The value must be validated before it can be saved."
	case errors.Is(err, ErrOutOfRange):
		return "The form is already complete."
	default:
		return err.Error()
	}
}
