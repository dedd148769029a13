package main

import (
	"bytes"
	"encoding/csv"
	"net/http/httptest"
	"testing"

	"joddb/internal/testutil"

	"github.com/xuri/excelize/v2"
)

func seedExportData(t *testing.T) {
	t.Helper()
	crew := testutil.SeedCrew(t, db)
	orderID := testutil.CreateJobOrder(t, db, "JO-950", 1, "2026-12-31")
	deviceID := testutil.CreateDevice(t, db, orderID, "JO-950-0001")
	_, err := db.Exec(`INSERT INTO tasks (device_id, job_order_id, technician_id, operation_name,
			standard_time_seconds, task_type, start_time, end_time, actual_time_seconds, status)
		VALUES (?, ?, ?, 'Assemble housing', 600, 'technician',
			'2026-03-10 08:00:00', '2026-03-10 08:08:20', 500, 'pending_qa')`,
		deviceID, orderID, crew.Technician.ID)
	if err != nil {
		t.Fatalf("Failed to insert finished task: %v", err)
	}
}

func TestHandleExportDailyReport_CSV(t *testing.T) {
	setupHandlerTest(t)
	seedExportData(t)

	req := httptest.NewRequest("GET", "/api/v1/export/daily-report?date=2026-03-10&format=csv", nil)
	w := httptest.NewRecorder()

	handleExportDailyReport(w, req)

	if w.Code != 200 {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("Expected text/csv, got %s", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); cd != "attachment; filename=daily-report-2026-03-10.csv" {
		t.Errorf("Unexpected Content-Disposition: %s", cd)
	}

	records, err := csv.NewReader(w.Body).ReadAll()
	if err != nil {
		t.Fatalf("Failed to parse CSV: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected header + 1 row, got %d records", len(records))
	}
	if records[0][0] != "order_code" || records[0][6] != "efficiency" {
		t.Errorf("Unexpected header row: %v", records[0])
	}
	row := records[1]
	if row[0] != "JO-950" || row[1] != "JO-950-0001" || row[3] != "tech1" {
		t.Errorf("Unexpected data row: %v", row)
	}
	// 600 standard over 500 actual
	if row[6] != "120.00" {
		t.Errorf("Expected efficiency 120.00, got %s", row[6])
	}
}

func TestHandleExportDailyReport_EmptyDay(t *testing.T) {
	setupHandlerTest(t)
	seedExportData(t)

	req := httptest.NewRequest("GET", "/api/v1/export/daily-report?date=2026-03-11", nil)
	w := httptest.NewRecorder()

	handleExportDailyReport(w, req)

	if w.Code != 200 {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	records, err := csv.NewReader(w.Body).ReadAll()
	if err != nil {
		t.Fatalf("Failed to parse CSV: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("Expected header only for empty day, got %d records", len(records))
	}
}

func TestHandleExportDailyReport_Excel(t *testing.T) {
	setupHandlerTest(t)
	seedExportData(t)

	req := httptest.NewRequest("GET", "/api/v1/export/daily-report?date=2026-03-10&format=xlsx", nil)
	w := httptest.NewRecorder()

	handleExportDailyReport(w, req)

	if w.Code != 200 {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	if err != nil {
		t.Fatalf("Failed to open workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Daily Report")
	if err != nil {
		t.Fatalf("Failed to read sheet: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Expected header + 1 row, got %d", len(rows))
	}
	if rows[1][0] != "JO-950" {
		t.Errorf("Unexpected first data row: %v", rows[1])
	}
}

func TestHandleExportDailyReport_BadFormat(t *testing.T) {
	setupHandlerTest(t)

	req := httptest.NewRequest("GET", "/api/v1/export/daily-report?format=pdf", nil)
	w := httptest.NewRecorder()

	handleExportDailyReport(w, req)

	if w.Code != 400 {
		t.Errorf("Expected status 400 for unsupported format, got %d", w.Code)
	}
}

func TestHandleExportDailyReport_BadDate(t *testing.T) {
	setupHandlerTest(t)

	req := httptest.NewRequest("GET", "/api/v1/export/daily-report?date=yesterday", nil)
	w := httptest.NewRecorder()

	handleExportDailyReport(w, req)

	if w.Code != 400 {
		t.Errorf("Expected status 400 for bad date, got %d", w.Code)
	}
}
