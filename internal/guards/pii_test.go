package guards

import (
	"context"
	"testing"

	"github.com/triage-ai/palisade/internal/detect"
	"github.com/triage-ai/palisade/internal/guard"
)

func TestPIIAllowsCleanPayload(t *testing.T) {
	g, err := NewPII("pii1", PIIConfig{Detect: []detect.EntityType{detect.EntityEmail}})
	if err != nil {
		t.Fatalf("NewPII: %v", err)
	}
	resp := guard.JSONPayload{Value: map[string]any{"message": "hello there, nothing sensitive here"}}
	dec, err := g.OnResponse(context.Background(), guard.GuardContext{}, resp)
	if err != nil {
		t.Fatalf("OnResponse: %v", err)
	}
	if dec.Kind != guard.Allow {
		t.Fatalf("expected Allow, got %v", dec.Kind)
	}
}

func TestPIIMasksEmailInResponse(t *testing.T) {
	g, err := NewPII("pii1", PIIConfig{Detect: []detect.EntityType{detect.EntityEmail}, Action: PIIActionMask})
	if err != nil {
		t.Fatalf("NewPII: %v", err)
	}
	resp := guard.JSONPayload{Value: map[string]any{"contact": "reach me at jane.doe@example.com anytime"}}
	dec, err := g.OnResponse(context.Background(), guard.GuardContext{}, resp)
	if err != nil {
		t.Fatalf("OnResponse: %v", err)
	}
	if dec.Kind != guard.Modify {
		t.Fatalf("expected Modify, got %v", dec.Kind)
	}
	if dec.Modify.Kind != guard.RedactFields {
		t.Fatalf("expected RedactFields, got %v", dec.Modify.Kind)
	}
	redacted, ok := dec.Modify.Values["contact"]
	if !ok {
		t.Fatalf("expected a redacted value for path contact, got %+v", dec.Modify.Values)
	}
	want := "reach me at [REDACTED_EMAIL] anytime"
	if redacted != want {
		t.Fatalf("redacted = %q, want %q", redacted, want)
	}
}

func TestPIIMasksDistinctEntityTypesBySpan(t *testing.T) {
	g, err := NewPII("pii1", PIIConfig{Detect: []detect.EntityType{detect.EntityEmail, detect.EntitySSN}, Action: PIIActionMask})
	if err != nil {
		t.Fatalf("NewPII: %v", err)
	}
	resp := guard.JSONPayload{Value: map[string]any{
		"email": "jane.doe@example.com",
		"ssn":   "123-45-6789",
	}}
	dec, err := g.OnResponse(context.Background(), guard.GuardContext{}, resp)
	if err != nil {
		t.Fatalf("OnResponse: %v", err)
	}
	if dec.Modify.Values["email"] != "[REDACTED_EMAIL]" {
		t.Fatalf("email redaction = %q", dec.Modify.Values["email"])
	}
	if dec.Modify.Values["ssn"] != "[REDACTED_SSN]" {
		t.Fatalf("ssn redaction = %q", dec.Modify.Values["ssn"])
	}
}

func TestPIIRejectsSSN(t *testing.T) {
	g, err := NewPII("pii1", PIIConfig{Detect: []detect.EntityType{detect.EntitySSN}, Action: PIIActionReject})
	if err != nil {
		t.Fatalf("NewPII: %v", err)
	}
	req := guard.RequestPayload{Body: map[string]any{"note": "SSN on file: 123-45-6789"}}
	dec, err := g.OnRequest(context.Background(), guard.GuardContext{}, req)
	if err != nil {
		t.Fatalf("OnRequest: %v", err)
	}
	if dec.Kind != guard.Deny {
		t.Fatalf("expected Deny, got %v", dec.Kind)
	}
	if dec.Deny.Code != "pii_detected" {
		t.Fatalf("unexpected code %q", dec.Deny.Code)
	}
}

func TestPIIScanFieldsRestrictsScope(t *testing.T) {
	g, err := NewPII("pii1", PIIConfig{Detect: []detect.EntityType{detect.EntityEmail}, Action: PIIActionReject, ScanFields: []string{"internal"}})
	if err != nil {
		t.Fatalf("NewPII: %v", err)
	}
	req := guard.RequestPayload{Body: map[string]any{
		"public":   "user email is jane@example.com",
		"internal": "nothing here",
	}}
	dec, err := g.OnRequest(context.Background(), guard.GuardContext{}, req)
	if err != nil {
		t.Fatalf("OnRequest: %v", err)
	}
	if dec.Kind != guard.Allow {
		t.Fatalf("expected Allow since email is outside scan_fields, got %v", dec.Kind)
	}
}

func TestPIIWarnsOnToolInvokeArgumentsWhenMasking(t *testing.T) {
	g, err := NewPII("pii1", PIIConfig{Detect: []detect.EntityType{detect.EntityEmail}, Action: PIIActionMask})
	if err != nil {
		t.Fatalf("NewPII: %v", err)
	}
	call := guard.ToolInvokePayload{ArgumentsJSON: `{"email":"jane.doe@example.com"}`}
	dec, err := g.OnToolInvoke(context.Background(), guard.GuardContext{}, call)
	if err != nil {
		t.Fatalf("OnToolInvoke: %v", err)
	}
	if dec.Kind != guard.Modify || dec.Modify.Kind != guard.AddWarning {
		t.Fatalf("expected AddWarning Modify since tool_invoke arguments cannot be rewritten, got %+v", dec)
	}
	if dec.Modify.Warning == "" {
		t.Fatalf("expected a non-empty warning describing the PII match")
	}
}

func TestPIIRejectsToolInvokeArguments(t *testing.T) {
	g, err := NewPII("pii1", PIIConfig{Detect: []detect.EntityType{detect.EntityEmail}, Action: PIIActionReject})
	if err != nil {
		t.Fatalf("NewPII: %v", err)
	}
	call := guard.ToolInvokePayload{ArgumentsJSON: `{"email":"jane.doe@example.com"}`}
	dec, err := g.OnToolInvoke(context.Background(), guard.GuardContext{}, call)
	if err != nil {
		t.Fatalf("OnToolInvoke: %v", err)
	}
	if dec.Kind != guard.Deny || dec.Deny.Code != "pii_detected" {
		t.Fatalf("expected pii_detected deny, got %+v", dec)
	}
}

func TestNewPIIRejectsUnknownAction(t *testing.T) {
	_, err := NewPII("pii1", PIIConfig{Detect: []detect.EntityType{detect.EntityEmail}, Action: "delete"})
	if err == nil {
		t.Fatal("expected config error for unknown action")
	}
}

func TestNewPIIRejectsEmptyDetect(t *testing.T) {
	_, err := NewPII("pii1", PIIConfig{Detect: []detect.EntityType{}})
	if err == nil {
		t.Fatal("expected config error for empty detect list")
	}
}

func TestNewPIIOmittedDetectUsesDefaultEntities(t *testing.T) {
	g, err := NewPII("pii1", PIIConfig{})
	if err != nil {
		t.Fatalf("NewPII: %v", err)
	}
	if !g.wanted[detect.EntityEmail] || !g.wanted[detect.EntitySSN] {
		t.Fatalf("expected default entity set to include email and ssn, got %+v", g.wanted)
	}
	if g.wanted[detect.EntityURL] {
		t.Fatalf("expected default entity set to exclude url, got %+v", g.wanted)
	}
}
