package audit_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"joddb/internal/audit"
	"joddb/internal/testutil"
)

func TestLogAudit(t *testing.T) {
	db := testutil.SetupTestDB(t)

	audit.LogAudit(db, nil, "planner1", audit.ActionCreate, "job_order", "JO-100", "Created order JO-100")

	var username, action, module, recordID string
	err := db.QueryRow("SELECT username, action, module, record_id FROM audit_log").
		Scan(&username, &action, &module, &recordID)
	if err != nil {
		t.Fatalf("Audit entry not written: %v", err)
	}
	if username != "planner1" || action != "created" || module != "job_order" || recordID != "JO-100" {
		t.Errorf("Unexpected audit row: %s %s %s %s", username, action, module, recordID)
	}
}

func TestGetUsername(t *testing.T) {
	db := testutil.SetupTestDB(t)
	user := testutil.CreateUser(t, db, "qi1", "quality")

	token := "test-token-123"
	expires := time.Now().UTC().Add(time.Hour).Format("2006-01-02 15:04:05")
	if _, err := db.Exec("INSERT INTO sessions (token, user_id, expires_at) VALUES (?, ?, ?)", token, user.ID, expires); err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	req := httptest.NewRequest("GET", "/api/v1/tasks", nil)
	req.AddCookie(&http.Cookie{Name: "joddb_session", Value: token})
	if got := audit.GetUsername(db, req); got != "qi1" {
		t.Errorf("Expected qi1, got %s", got)
	}
}

func TestGetUsernameFallsBackToSystem(t *testing.T) {
	db := testutil.SetupTestDB(t)

	req := httptest.NewRequest("GET", "/api/v1/tasks", nil)
	if got := audit.GetUsername(db, req); got != "system" {
		t.Errorf("Expected system without a cookie, got %s", got)
	}

	req.AddCookie(&http.Cookie{Name: "joddb_session", Value: "unknown-token"})
	if got := audit.GetUsername(db, req); got != "system" {
		t.Errorf("Expected system for unknown token, got %s", got)
	}
}
