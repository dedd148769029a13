package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"joddb/internal/testutil"
)

func finishTaskOn(t *testing.T, orderID, deviceID, techID, standard, actual int, endTime string) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO tasks (device_id, job_order_id, technician_id, operation_name,
			standard_time_seconds, task_type, start_time, end_time, actual_time_seconds, status)
		VALUES (?, ?, ?, 'Op', ?, 'technician', ?, ?, ?, 'supervisor_approved')`,
		deviceID, orderID, techID, standard, endTime, endTime, actual)
	if err != nil {
		t.Fatalf("Failed to insert finished task: %v", err)
	}
}

func TestHandleTechnicianMetrics_Self(t *testing.T) {
	db := setupHandlerTest(t)
	crew := testutil.SeedCrew(t, db)
	orderID := testutil.CreateJobOrder(t, db, "JO-800", 2, "2026-12-31")
	deviceID := testutil.CreateDevice(t, db, orderID, "JO-800-0001")
	finishTaskOn(t, orderID, deviceID, crew.Technician.ID, 3600, 3600, "2026-03-10 10:00:00")

	url := fmt.Sprintf("/api/v1/metrics/technician/%d?date=2026-03-10", crew.Technician.ID)
	req := httptest.NewRequest("GET", url, nil)
	req = withUserID(req, crew.Technician.ID)
	w := httptest.NewRecorder()

	handleTechnicianMetrics(w, req, fmt.Sprint(crew.Technician.ID))

	if w.Code != 200 {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Data struct {
			Productivity   float64 `json:"productivity"`
			TasksCompleted int     `json:"tasks_completed"`
		} `json:"data"`
	}
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Data.Productivity != 12.5 {
		t.Errorf("Expected productivity 12.5, got %v", resp.Data.Productivity)
	}
	if resp.Data.TasksCompleted != 1 {
		t.Errorf("Expected 1 task completed, got %d", resp.Data.TasksCompleted)
	}
}

func TestHandleTechnicianMetrics_PeerDenied(t *testing.T) {
	db := setupHandlerTest(t)
	crew := testutil.SeedCrew(t, db)

	req := httptest.NewRequest("GET", fmt.Sprintf("/api/v1/metrics/technician/%d", crew.Technician.ID), nil)
	req = withUserID(req, crew.Technician2.ID)
	w := httptest.NewRecorder()

	handleTechnicianMetrics(w, req, fmt.Sprint(crew.Technician.ID))

	if w.Code != 403 {
		t.Errorf("Expected status 403 for another technician, got %d", w.Code)
	}
}

func TestHandleTechnicianMetrics_SupervisorAllowed(t *testing.T) {
	db := setupHandlerTest(t)
	crew := testutil.SeedCrew(t, db)

	req := httptest.NewRequest("GET", fmt.Sprintf("/api/v1/metrics/technician/%d", crew.Technician.ID), nil)
	req = withUserID(req, crew.Supervisor.ID)
	w := httptest.NewRecorder()

	handleTechnicianMetrics(w, req, fmt.Sprint(crew.Technician.ID))

	if w.Code != 200 {
		t.Errorf("Expected status 200 for supervisor, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandleTechnicianMetrics_BadDate(t *testing.T) {
	db := setupHandlerTest(t)
	crew := testutil.SeedCrew(t, db)

	req := httptest.NewRequest("GET", fmt.Sprintf("/api/v1/metrics/technician/%d?date=10-03-2026", crew.Technician.ID), nil)
	req = withUserID(req, crew.Technician.ID)
	w := httptest.NewRecorder()

	handleTechnicianMetrics(w, req, fmt.Sprint(crew.Technician.ID))

	if w.Code != 400 {
		t.Errorf("Expected status 400 for bad date, got %d", w.Code)
	}
}

func TestHandleSnapshotTechnicianMetrics(t *testing.T) {
	db := setupHandlerTest(t)
	crew := testutil.SeedCrew(t, db)
	orderID := testutil.CreateJobOrder(t, db, "JO-801", 2, "2026-12-31")
	deviceID := testutil.CreateDevice(t, db, orderID, "JO-801-0001")
	finishTaskOn(t, orderID, deviceID, crew.Technician.ID, 3600, 1800, "2026-03-10 10:00:00")

	body := fmt.Sprintf(`{"date":"2026-03-10","job_order_id":%d}`, orderID)
	req := httptest.NewRequest("POST", fmt.Sprintf("/api/v1/metrics/technician/%d/snapshot", crew.Technician.ID),
		bytes.NewBufferString(body))
	req = withUserID(req, crew.Planner.ID)
	w := httptest.NewRecorder()

	handleSnapshotTechnicianMetrics(w, req, fmt.Sprint(crew.Technician.ID))

	if w.Code != 200 {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var count int
	db.QueryRow("SELECT COUNT(*) FROM performance_metrics WHERE technician_id = ? AND date = '2026-03-10'",
		crew.Technician.ID).Scan(&count)
	if count != 1 {
		t.Errorf("Expected 1 snapshot row, got %d", count)
	}
}

func TestHandleSnapshotTechnicianMetrics_RoleDenied(t *testing.T) {
	db := setupHandlerTest(t)
	crew := testutil.SeedCrew(t, db)

	req := httptest.NewRequest("POST", fmt.Sprintf("/api/v1/metrics/technician/%d/snapshot", crew.Technician.ID),
		bytes.NewBufferString(`{"date":"2026-03-10"}`))
	req = withUserID(req, crew.Technician.ID)
	w := httptest.NewRecorder()

	handleSnapshotTechnicianMetrics(w, req, fmt.Sprint(crew.Technician.ID))

	if w.Code != 403 {
		t.Errorf("Expected status 403, got %d", w.Code)
	}
}

func TestHandleJobOrderMetrics(t *testing.T) {
	db := setupHandlerTest(t)
	// Due tomorrow with nothing complete: due_date_risk fires
	due := time.Now().AddDate(0, 0, 1).Format("2006-01-02")
	orderID := testutil.CreateJobOrder(t, db, "JO-802", 2, due)
	testutil.CreateDevice(t, db, orderID, "JO-802-0001")

	req := httptest.NewRequest("GET", fmt.Sprintf("/api/v1/metrics/job-order/%d", orderID), nil)
	w := httptest.NewRecorder()

	handleJobOrderMetrics(w, req, fmt.Sprint(orderID))

	if w.Code != 200 {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Data struct {
			Progress struct {
				TotalDevices int `json:"total_devices"`
			} `json:"progress"`
			Alerts []struct {
				Type string `json:"type"`
			} `json:"alerts"`
		} `json:"data"`
	}
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Data.Progress.TotalDevices != 1 {
		t.Errorf("Expected 1 device in progress, got %d", resp.Data.Progress.TotalDevices)
	}
	if len(resp.Data.Alerts) != 1 || resp.Data.Alerts[0].Type != "due_date_risk" {
		t.Errorf("Expected a due_date_risk alert, got %+v", resp.Data.Alerts)
	}
}

func TestHandleJobOrderMetrics_NotFound(t *testing.T) {
	setupHandlerTest(t)

	req := httptest.NewRequest("GET", "/api/v1/metrics/job-order/999", nil)
	w := httptest.NewRecorder()

	handleJobOrderMetrics(w, req, "999")

	if w.Code != 404 {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestHandlePlannerStatistics_RoleGate(t *testing.T) {
	db := setupHandlerTest(t)
	crew := testutil.SeedCrew(t, db)

	cases := []struct {
		userID int
		want   int
	}{
		{crew.Planner.ID, 200},
		{crew.Admin.ID, 200},
		{crew.Supervisor.ID, 200},
		{crew.Technician.ID, 403},
	}
	for _, tc := range cases {
		req := httptest.NewRequest("GET", "/api/v1/metrics/planner/statistics", nil)
		req = withUserID(req, tc.userID)
		w := httptest.NewRecorder()

		handlePlannerStatistics(w, req)

		if w.Code != tc.want {
			t.Errorf("User %d: expected %d, got %d", tc.userID, tc.want, w.Code)
		}
	}
}
