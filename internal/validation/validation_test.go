package validation_test

import (
	"strings"
	"testing"

	"joddb/internal/validation"
)

func TestRequireField(t *testing.T) {
	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "title", "Batch 1")
	validation.RequireField(ve, "order_code", "   ")
	if len(ve.Errors) != 1 {
		t.Fatalf("Expected 1 error, got %d", len(ve.Errors))
	}
	if ve.Errors[0].Field != "order_code" {
		t.Errorf("Expected error on order_code, got %s", ve.Errors[0].Field)
	}
}

func TestValidateEnum(t *testing.T) {
	ve := &validation.ValidationErrors{}
	validation.ValidateEnum(ve, "role", "quality", validation.ValidRoles)
	validation.ValidateEnum(ve, "role", "", validation.ValidRoles)
	if ve.HasErrors() {
		t.Errorf("Valid and empty values should pass: %v", ve.Error())
	}

	validation.ValidateEnum(ve, "role", "wizard", validation.ValidRoles)
	if !ve.HasErrors() {
		t.Fatal("Expected error for unknown role")
	}
	if !strings.Contains(ve.Error(), "must be one of") {
		t.Errorf("Unexpected message: %s", ve.Error())
	}
}

func TestValidateDate(t *testing.T) {
	cases := []struct {
		value string
		ok    bool
	}{
		{"2026-12-31", true},
		{"", true},
		{"31/12/2026", false},
		{"2026-13-01", false},
		{"tomorrow", false},
	}
	for _, tc := range cases {
		ve := &validation.ValidationErrors{}
		validation.ValidateDate(ve, "due_date", tc.value)
		if ve.HasErrors() == tc.ok {
			t.Errorf("ValidateDate(%q): expected ok=%v, got errors=%v", tc.value, tc.ok, ve.Error())
		}
	}
}

func TestValidateIntRange(t *testing.T) {
	ve := &validation.ValidationErrors{}
	validation.ValidateIntRange(ve, "total_devices", 1, 1, validation.MaxDevicesPerOrder)
	validation.ValidateIntRange(ve, "total_devices", validation.MaxDevicesPerOrder, 1, validation.MaxDevicesPerOrder)
	if ve.HasErrors() {
		t.Errorf("Boundary values should pass: %v", ve.Error())
	}

	validation.ValidateIntRange(ve, "total_devices", 0, 1, validation.MaxDevicesPerOrder)
	validation.ValidateIntRange(ve, "total_devices", validation.MaxDevicesPerOrder+1, 1, validation.MaxDevicesPerOrder)
	if len(ve.Errors) != 2 {
		t.Errorf("Expected 2 out-of-range errors, got %d", len(ve.Errors))
	}
}

func TestValidationErrorsJoinsMessages(t *testing.T) {
	ve := &validation.ValidationErrors{}
	ve.Add("order_code", "is required")
	ve.Add("due_date", "must be a valid date (YYYY-MM-DD)")
	want := "order_code: is required; due_date: must be a valid date (YYYY-MM-DD)"
	if ve.Error() != want {
		t.Errorf("Expected %q, got %q", want, ve.Error())
	}
}
