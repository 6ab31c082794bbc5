package models

import (
	"encoding/json"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// Enum validation
// ---------------------------------------------------------------------------

func TestPolicyType_Valid(t *testing.T) {
	for _, pt := range []PolicyType{
		PolicyTypeInformationSecurity, PolicyTypeAcceptableUse, PolicyTypeCrypto,
		PolicyTypeDataProtection, PolicyTypeIncidentResponse, PolicyTypeCustom,
	} {
		if !pt.Valid() {
			t.Errorf("%s.Valid() = false, want true", pt)
		}
	}
	if PolicyType("HR").Valid() {
		t.Error("PolicyType(HR).Valid() = true, want false")
	}
}

func TestTemplateSource_Valid(t *testing.T) {
	if !TemplateSourceSprinto.Valid() || !TemplateSourceCustom.Valid() {
		t.Error("known template sources should be valid")
	}
	if TemplateSource("VANTA").Valid() {
		t.Error("TemplateSource(VANTA).Valid() = true, want false")
	}
}

func TestTriggerType_Valid(t *testing.T) {
	for _, tt := range []TriggerType{TriggerOnboard, TriggerPeriodic, TriggerManual} {
		if !tt.Valid() {
			t.Errorf("%s.Valid() = false, want true", tt)
		}
	}
	if TriggerType("").Valid() {
		t.Error("empty trigger should be invalid")
	}
}

// ---------------------------------------------------------------------------
// APIKey.IsExpired / Employee.FullName
// ---------------------------------------------------------------------------

func TestAPIKey_IsExpired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	if (&APIKey{}).IsExpired(now) {
		t.Error("key without expiry should not be expired")
	}
	if !(&APIKey{ExpiresAt: &past}).IsExpired(now) {
		t.Error("key with past expiry should be expired")
	}
	if (&APIKey{ExpiresAt: &future}).IsExpired(now) {
		t.Error("key with future expiry should not be expired")
	}
}

func TestEmployee_FullName(t *testing.T) {
	e := Employee{FirstName: "Ada", LastName: "Lovelace"}
	if got := e.FullName(); got != "Ada Lovelace" {
		t.Errorf("FullName() = %q, want %q", got, "Ada Lovelace")
	}
	e.LastName = ""
	if got := e.FullName(); got != "Ada" {
		t.Errorf("FullName() = %q, want %q", got, "Ada")
	}
}

// ---------------------------------------------------------------------------
// JSONB
// ---------------------------------------------------------------------------

func TestJSONB_Scan(t *testing.T) {
	var j JSONB
	if err := j.Scan([]byte(`{"a":1}`)); err != nil {
		t.Fatalf("Scan([]byte) error: %v", err)
	}
	if string(j) != `{"a":1}` {
		t.Errorf("Scan([]byte) = %s", j)
	}
	if err := j.Scan(`{"b":2}`); err != nil {
		t.Fatalf("Scan(string) error: %v", err)
	}
	if string(j) != `{"b":2}` {
		t.Errorf("Scan(string) = %s", j)
	}
	if err := j.Scan(nil); err != nil || j != nil {
		t.Errorf("Scan(nil) = %v, %v; want nil, nil", j, err)
	}
	if err := j.Scan(42); err == nil {
		t.Error("Scan(int) expected error")
	}
}

func TestJSONB_Value(t *testing.T) {
	v, err := JSONB(nil).Value()
	if err != nil || v != nil {
		t.Errorf("Value() of empty = %v, %v; want nil, nil", v, err)
	}
	v, _ = JSONB(`{"x":true}`).Value()
	if b, ok := v.([]byte); !ok || string(b) != `{"x":true}` {
		t.Errorf("Value() = %v, want raw bytes", v)
	}
}

func TestPolicyVersion_ConfigDataJSON(t *testing.T) {
	pv := PolicyVersion{ID: 1, ConfigData: JSONB(`{"retentionDays":90}`)}
	b, err := json.Marshal(pv)
	if err != nil {
		t.Fatal(err)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatal(err)
	}
	cfg, ok := out["configData"].(map[string]interface{})
	if !ok || cfg["retentionDays"] != float64(90) {
		t.Errorf("configData = %v, want embedded object", out["configData"])
	}

	pv.ConfigData = nil
	b, _ = json.Marshal(pv)
	out = nil
	json.Unmarshal(b, &out)
	if out["configData"] != nil {
		t.Errorf("configData = %v, want null", out["configData"])
	}
}

func TestAcknowledgementRequestWithDetails_FlattensRequest(t *testing.T) {
	d := AcknowledgementRequestWithDetails{
		AcknowledgementRequest: AcknowledgementRequest{ID: 7, TriggerType: TriggerManual},
		Employee:               Employee{ID: 3, Email: "a@example.com"},
		Status:                 "OVERDUE",
	}
	b, err := json.Marshal(d)
	if err != nil {
		t.Fatal(err)
	}
	var out map[string]interface{}
	json.Unmarshal(b, &out)
	if out["id"] != float64(7) {
		t.Errorf("id = %v, want 7", out["id"])
	}
	if out["triggerType"] != "MANUAL" {
		t.Errorf("triggerType = %v, want MANUAL", out["triggerType"])
	}
	if emp, ok := out["employee"].(map[string]interface{}); !ok || emp["email"] != "a@example.com" {
		t.Errorf("employee = %v", out["employee"])
	}
	if _, ok := out["reminderSentAt"]; ok {
		t.Error("reminderSentAt should be omitted when unset")
	}
}
