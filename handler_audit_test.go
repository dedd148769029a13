package main

import (
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"

	"joddb/internal/audit"
)

func TestHandleAuditLog(t *testing.T) {
	setupHandlerTest(t)
	audit.LogAudit(db, nil, "planner1", audit.ActionCreate, "job_order", "JO-1", "Created order JO-1")
	audit.LogAudit(db, nil, "tech1", audit.ActionStart, "task", "1", "Started task 1")
	audit.LogAudit(db, nil, "planner1", audit.ActionDelete, "job_order", "JO-1", "Deleted order JO-1")

	req := httptest.NewRequest("GET", "/api/v1/audit", nil)
	w := httptest.NewRecorder()

	handleAuditLog(w, req)

	if w.Code != 200 {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var resp struct {
		Data []auditEntry `json:"data"`
	}
	json.NewDecoder(w.Body).Decode(&resp)
	if len(resp.Data) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(resp.Data))
	}
	// Newest first
	if resp.Data[0].Action != "deleted" {
		t.Errorf("Expected newest entry first, got %s", resp.Data[0].Action)
	}
}

func TestHandleAuditLog_ModuleFilter(t *testing.T) {
	setupHandlerTest(t)
	audit.LogAudit(db, nil, "planner1", audit.ActionCreate, "job_order", "JO-1", "")
	audit.LogAudit(db, nil, "tech1", audit.ActionStart, "task", "1", "")

	req := httptest.NewRequest("GET", "/api/v1/audit?module=task", nil)
	w := httptest.NewRecorder()

	handleAuditLog(w, req)

	var resp struct {
		Data []auditEntry `json:"data"`
	}
	json.NewDecoder(w.Body).Decode(&resp)
	if len(resp.Data) != 1 || resp.Data[0].Module != "task" {
		t.Errorf("Expected only task entries, got %+v", resp.Data)
	}
}

func TestHandleAuditLog_LimitClamped(t *testing.T) {
	setupHandlerTest(t)
	for i := 0; i < 5; i++ {
		audit.LogAudit(db, nil, "tech1", audit.ActionStart, "task", fmt.Sprint(i), "")
	}

	req := httptest.NewRequest("GET", "/api/v1/audit?limit=2", nil)
	w := httptest.NewRecorder()

	handleAuditLog(w, req)

	var resp struct {
		Data []auditEntry `json:"data"`
	}
	json.NewDecoder(w.Body).Decode(&resp)
	if len(resp.Data) != 2 {
		t.Errorf("Expected limit of 2 entries, got %d", len(resp.Data))
	}

	// Out-of-range limits fall back to the default
	req = httptest.NewRequest("GET", "/api/v1/audit?limit=99999", nil)
	w = httptest.NewRecorder()
	handleAuditLog(w, req)
	json.NewDecoder(w.Body).Decode(&resp)
	if len(resp.Data) != 5 {
		t.Errorf("Expected all 5 entries under default limit, got %d", len(resp.Data))
	}
}
