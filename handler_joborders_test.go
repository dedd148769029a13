package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"

	"joddb/internal/testutil"
)

func createJobWithProcesses(t *testing.T) int {
	t.Helper()
	res, err := db.Exec("INSERT INTO jobs (name, description) VALUES ('PCB Assembly', 'Two-step build')")
	if err != nil {
		t.Fatalf("Failed to create job: %v", err)
	}
	jobID64, _ := res.LastInsertId()
	jobID := int(jobID64)
	steps := []struct {
		name     string
		std      int
		taskType string
		order    int
	}{
		{"Solder components", 1800, "technician", 1},
		{"Functional test", 600, "tester", 2},
	}
	for _, s := range steps {
		_, err := db.Exec(`INSERT INTO processes (job_id, operation_name, standard_time_seconds, task_type, step_order)
			VALUES (?, ?, ?, ?, ?)`, jobID, s.name, s.std, s.taskType, s.order)
		if err != nil {
			t.Fatalf("Failed to create process: %v", err)
		}
	}
	return jobID
}

func TestHandleCreateJobOrder_GeneratesDevicesAndTasks(t *testing.T) {
	db := setupHandlerTest(t)
	planner := testutil.CreateUser(t, db, "planner1", "planning")
	jobID := createJobWithProcesses(t)

	body := fmt.Sprintf(`{"job_id":%d,"order_code":"JO-500","title":"Batch 500","total_devices":3,"due_date":"2026-12-31"}`, jobID)
	req := httptest.NewRequest("POST", "/api/v1/job-orders", bytes.NewBufferString(body))
	req = withUserID(req, planner.ID)
	w := httptest.NewRecorder()

	handleCreateJobOrder(w, req)

	if w.Code != 200 {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]interface{}
	json.NewDecoder(w.Body).Decode(&resp)
	data, _ := resp["data"].(map[string]interface{})
	generated, _ := data["generated"].(map[string]interface{})
	if generated["devices"] != float64(3) || generated["tasks"] != float64(6) {
		t.Errorf("Expected 3 devices and 6 tasks generated, got %v", generated)
	}

	var devices, tasks int
	db.QueryRow("SELECT COUNT(*) FROM devices").Scan(&devices)
	db.QueryRow("SELECT COUNT(*) FROM tasks").Scan(&tasks)
	if devices != 3 || tasks != 6 {
		t.Errorf("Expected 3 devices / 6 tasks in DB, got %d / %d", devices, tasks)
	}

	var serial string
	db.QueryRow("SELECT serial_number FROM devices ORDER BY serial_number LIMIT 1").Scan(&serial)
	if serial != "JO-500-0001" {
		t.Errorf("Expected first serial JO-500-0001, got %s", serial)
	}

	var createdBy int
	db.QueryRow("SELECT created_by FROM job_orders WHERE order_code = 'JO-500'").Scan(&createdBy)
	if createdBy != planner.ID {
		t.Errorf("Expected created_by %d, got %d", planner.ID, createdBy)
	}
}

func TestHandleCreateJobOrder_DuplicateCode(t *testing.T) {
	db := setupHandlerTest(t)
	testutil.CreateJobOrder(t, db, "JO-501", 2, "2026-12-31")

	body := `{"order_code":"JO-501","title":"Duplicate","total_devices":2,"due_date":"2026-12-31"}`
	req := httptest.NewRequest("POST", "/api/v1/job-orders", bytes.NewBufferString(body))
	w := httptest.NewRecorder()

	handleCreateJobOrder(w, req)

	if w.Code != 409 {
		t.Errorf("Expected status 409, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandleCreateJobOrder_ValidationErrors(t *testing.T) {
	setupHandlerTest(t)

	cases := []struct {
		name string
		body string
	}{
		{"missing code", `{"title":"T","total_devices":2,"due_date":"2026-12-31"}`},
		{"zero devices", `{"order_code":"JO-502","title":"T","total_devices":0,"due_date":"2026-12-31"}`},
		{"bad date", `{"order_code":"JO-502","title":"T","total_devices":2,"due_date":"31/12/2026"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/v1/job-orders", bytes.NewBufferString(tc.body))
			w := httptest.NewRecorder()
			handleCreateJobOrder(w, req)
			if w.Code != 400 {
				t.Errorf("Expected status 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestHandleCreateJobOrder_JobWithoutProcesses(t *testing.T) {
	db := setupHandlerTest(t)
	res, _ := db.Exec("INSERT INTO jobs (name) VALUES ('Empty job')")
	jobID, _ := res.LastInsertId()

	body := fmt.Sprintf(`{"job_id":%d,"order_code":"JO-503","title":"T","total_devices":2,"due_date":"2026-12-31"}`, jobID)
	req := httptest.NewRequest("POST", "/api/v1/job-orders", bytes.NewBufferString(body))
	w := httptest.NewRecorder()

	handleCreateJobOrder(w, req)

	if w.Code != 400 {
		t.Errorf("Expected status 400 for job without processes, got %d", w.Code)
	}
}

func TestHandleGetJobOrder_IncludesProgress(t *testing.T) {
	db := setupHandlerTest(t)
	orderID := testutil.CreateJobOrder(t, db, "JO-504", 2, "2026-12-31")
	d1 := testutil.CreateDevice(t, db, orderID, "JO-504-0001")
	testutil.CreateDevice(t, db, orderID, "JO-504-0002")
	db.Exec("UPDATE devices SET current_status = 'completed' WHERE id = ?", d1)

	req := httptest.NewRequest("GET", fmt.Sprintf("/api/v1/job-orders/%d", orderID), nil)
	w := httptest.NewRecorder()

	handleGetJobOrder(w, req, fmt.Sprint(orderID))

	if w.Code != 200 {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]interface{}
	json.NewDecoder(w.Body).Decode(&resp)
	data, _ := resp["data"].(map[string]interface{})
	progress, _ := data["progress"].(map[string]interface{})
	if progress["progress_percent"] != float64(50) {
		t.Errorf("Expected 50%% progress, got %v", progress["progress_percent"])
	}
}

func TestHandleGetJobOrder_NotFound(t *testing.T) {
	setupHandlerTest(t)

	req := httptest.NewRequest("GET", "/api/v1/job-orders/999", nil)
	w := httptest.NewRecorder()

	handleGetJobOrder(w, req, "999")

	if w.Code != 404 {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestHandleDeleteJobOrder_BlockedOnceStarted(t *testing.T) {
	db := setupHandlerTest(t)
	crew := testutil.SeedCrew(t, db)
	orderID := testutil.CreateJobOrder(t, db, "JO-505", 1, "2026-12-31")
	deviceID := testutil.CreateDevice(t, db, orderID, "JO-505-0001")
	taskID := testutil.CreateTask(t, db, orderID, deviceID, "Assemble", 600)

	if _, err := engine.Start(taskID, crew.Technician); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	req := httptest.NewRequest("DELETE", fmt.Sprintf("/api/v1/job-orders/%d", orderID), nil)
	w := httptest.NewRecorder()

	handleDeleteJobOrder(w, req, fmt.Sprint(orderID))

	if w.Code != 409 {
		t.Errorf("Expected status 409 for started order, got %d: %s", w.Code, w.Body.String())
	}

	var count int
	db.QueryRow("SELECT COUNT(*) FROM job_orders WHERE id = ?", orderID).Scan(&count)
	if count != 1 {
		t.Error("Order should not have been deleted")
	}
}

func TestHandleDeleteJobOrder_CascadesWhenUnstarted(t *testing.T) {
	db := setupHandlerTest(t)
	orderID := testutil.CreateJobOrder(t, db, "JO-506", 1, "2026-12-31")
	deviceID := testutil.CreateDevice(t, db, orderID, "JO-506-0001")
	testutil.CreateTask(t, db, orderID, deviceID, "Assemble", 600)

	req := httptest.NewRequest("DELETE", fmt.Sprintf("/api/v1/job-orders/%d", orderID), nil)
	w := httptest.NewRecorder()

	handleDeleteJobOrder(w, req, fmt.Sprint(orderID))

	if w.Code != 200 {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var devices, tasks int
	db.QueryRow("SELECT COUNT(*) FROM devices").Scan(&devices)
	db.QueryRow("SELECT COUNT(*) FROM tasks").Scan(&tasks)
	if devices != 0 || tasks != 0 {
		t.Errorf("Expected cascade delete, got %d devices / %d tasks", devices, tasks)
	}
}

func TestHandleListOrderDevices(t *testing.T) {
	db := setupHandlerTest(t)
	orderID := testutil.CreateJobOrder(t, db, "JO-507", 2, "2026-12-31")
	testutil.CreateDevice(t, db, orderID, "JO-507-0002")
	testutil.CreateDevice(t, db, orderID, "JO-507-0001")

	req := httptest.NewRequest("GET", fmt.Sprintf("/api/v1/job-orders/%d/devices", orderID), nil)
	w := httptest.NewRecorder()

	handleListOrderDevices(w, req, fmt.Sprint(orderID))

	if w.Code != 200 {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var resp struct {
		Data []struct {
			SerialNumber string `json:"serial_number"`
		} `json:"data"`
	}
	json.NewDecoder(w.Body).Decode(&resp)
	if len(resp.Data) != 2 {
		t.Fatalf("Expected 2 devices, got %d", len(resp.Data))
	}
	if resp.Data[0].SerialNumber != "JO-507-0001" {
		t.Errorf("Expected serial-ordered listing, got %s first", resp.Data[0].SerialNumber)
	}
}
