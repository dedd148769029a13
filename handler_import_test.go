package main

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http/httptest"
	"strings"
	"testing"

	"joddb/internal/testutil"
)

func multipartUpload(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("Failed to create form file: %v", err)
	}
	fw.Write([]byte(content))
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestHandleImportJobOrders_CSV(t *testing.T) {
	setupHandlerTest(t)
	createJobWithProcesses(t)

	csvData := "order_code,title,description,total_devices,due_date,job_name\n" +
		"JO-900,Batch 900,First batch,2,2026-12-31,PCB Assembly\n" +
		"JO-901,Batch 901,,1,2026-12-31,\n"
	body, contentType := multipartUpload(t, "orders.csv", csvData)

	req := httptest.NewRequest("POST", "/api/v1/import/job-orders", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()

	handleImportJobOrders(w, req)

	if w.Code != 200 {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Data struct {
			Imported int      `json:"imported"`
			Skipped  int      `json:"skipped"`
			Errors   []string `json:"errors"`
		} `json:"data"`
	}
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Data.Imported != 2 || resp.Data.Skipped != 0 {
		t.Fatalf("Expected 2 imported / 0 skipped, got %d / %d (%v)",
			resp.Data.Imported, resp.Data.Skipped, resp.Data.Errors)
	}

	// JO-900 carries the job's processes: 2 devices x 2 steps. JO-901 has
	// no job, so fan-out has no templates and creates nothing.
	var tasks900, devices901, tasks901 int
	db.QueryRow(`SELECT COUNT(*) FROM tasks t JOIN job_orders jo ON jo.id = t.job_order_id
		WHERE jo.order_code = 'JO-900'`).Scan(&tasks900)
	db.QueryRow(`SELECT COUNT(*) FROM devices d JOIN job_orders jo ON jo.id = d.job_order_id
		WHERE jo.order_code = 'JO-901'`).Scan(&devices901)
	db.QueryRow(`SELECT COUNT(*) FROM tasks t JOIN job_orders jo ON jo.id = t.job_order_id
		WHERE jo.order_code = 'JO-901'`).Scan(&tasks901)
	if tasks900 != 4 {
		t.Errorf("Expected 4 tasks for JO-900, got %d", tasks900)
	}
	if devices901 != 0 || tasks901 != 0 {
		t.Errorf("Expected 0 devices / 0 tasks for JO-901 (no job), got %d / %d", devices901, tasks901)
	}
}

func TestHandleImportJobOrders_SkipsBadRows(t *testing.T) {
	db := setupHandlerTest(t)
	testutil.CreateJobOrder(t, db, "JO-902", 1, "2026-12-31")

	csvData := "order_code,title,total_devices,due_date\n" +
		"JO-902,Duplicate,1,2026-12-31\n" +
		"JO-903,Bad count,zero,2026-12-31\n" +
		"JO-904,Good row,1,2026-12-31\n"
	body, contentType := multipartUpload(t, "orders.csv", csvData)

	req := httptest.NewRequest("POST", "/api/v1/import/job-orders", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()

	handleImportJobOrders(w, req)

	if w.Code != 200 {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Data struct {
			Imported int      `json:"imported"`
			Skipped  int      `json:"skipped"`
			Errors   []string `json:"errors"`
		} `json:"data"`
	}
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Data.Imported != 1 || resp.Data.Skipped != 2 {
		t.Fatalf("Expected 1 imported / 2 skipped, got %d / %d (%v)",
			resp.Data.Imported, resp.Data.Skipped, resp.Data.Errors)
	}
	if !strings.Contains(resp.Data.Errors[0], "JO-902") || !strings.Contains(resp.Data.Errors[0], "already exists") {
		t.Errorf("Expected duplicate error for JO-902, got %v", resp.Data.Errors)
	}
}

func TestHandleImportJobOrders_MissingColumn(t *testing.T) {
	setupHandlerTest(t)

	csvData := "order_code,title,due_date\nJO-905,No count,2026-12-31\n"
	body, contentType := multipartUpload(t, "orders.csv", csvData)

	req := httptest.NewRequest("POST", "/api/v1/import/job-orders", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()

	handleImportJobOrders(w, req)

	if w.Code != 400 {
		t.Errorf("Expected status 400 for missing column, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandleImportJobOrders_NoFile(t *testing.T) {
	setupHandlerTest(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("note", "no file here")
	mw.Close()

	req := httptest.NewRequest("POST", "/api/v1/import/job-orders", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()

	handleImportJobOrders(w, req)

	if w.Code != 400 {
		t.Errorf("Expected status 400 without file, got %d", w.Code)
	}
}
