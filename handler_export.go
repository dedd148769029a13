package main

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"joddb/internal/audit"
	"joddb/internal/response"
	"joddb/internal/workflow"

	"github.com/xuri/excelize/v2"
)

// handleExportDailyReport exports every task finished on the given date
// (default today) as CSV or Excel.
func handleExportDailyReport(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = time.Now().Format("2006-01-02")
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		response.Err(w, "date must be YYYY-MM-DD", 400)
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "csv"
	}
	if format != "csv" && format != "xlsx" {
		response.Err(w, "format must be csv or xlsx", 400)
		return
	}

	rows, err := db.Query(`SELECT jo.order_code, d.serial_number, t.operation_name, COALESCE(u.username, ''),
			t.standard_time_seconds, t.actual_time_seconds, t.status, COALESCE(t.end_time, '')
		FROM tasks t
		JOIN devices d ON t.device_id = d.id
		JOIN job_orders jo ON t.job_order_id = jo.id
		LEFT JOIN users u ON t.technician_id = u.id
		WHERE t.end_time IS NOT NULL AND date(t.end_time) = ?
		ORDER BY jo.order_code, d.serial_number`, date)
	if err != nil {
		response.Err(w, "Failed to query report", 500)
		return
	}
	defer rows.Close()

	headers := []string{"order_code", "serial_number", "operation", "technician", "standard_seconds", "actual_seconds", "efficiency", "status", "end_time"}
	var data [][]string
	for rows.Next() {
		var orderCode, serial, operation, technician, status, endTime string
		var standard int
		var actual *int
		if err := rows.Scan(&orderCode, &serial, &operation, &technician, &standard, &actual, &status, &endTime); err != nil {
			response.Err(w, "Failed to scan report row", 500)
			return
		}
		actualStr, effStr := "", ""
		if actual != nil {
			actualStr = strconv.Itoa(*actual)
		}
		if eff := workflow.Efficiency(standard, actual); eff != nil {
			effStr = fmt.Sprintf("%.2f", *eff)
		}
		data = append(data, []string{orderCode, serial, operation, technician,
			strconv.Itoa(standard), actualStr, effStr, status, endTime})
	}

	filename := fmt.Sprintf("daily-report-%s.%s", date, format)
	if format == "xlsx" {
		exportExcel(w, "Daily Report", filename, headers, data)
	} else {
		exportCSV(w, filename, headers, data)
	}

	audit.LogAudit(db, hub, audit.GetUsername(db, r), audit.ActionExport, "report", date,
		fmt.Sprintf("Exported daily report for %s (%d rows)", date, len(data)))
}

func exportCSV(w http.ResponseWriter, filename string, headers []string, data [][]string) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))

	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write(headers); err != nil {
		http.Error(w, "Failed to write CSV headers", 500)
		return
	}
	for _, row := range data {
		if err := writer.Write(row); err != nil {
			http.Error(w, "Failed to write CSV row", 500)
			return
		}
	}
}

func exportExcel(w http.ResponseWriter, sheetName, filename string, headers []string, data [][]string) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		http.Error(w, "Failed to create Excel sheet", 500)
		return
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#D3D3D3"}, Pattern: 1},
	})
	if err != nil {
		http.Error(w, "Failed to create header style", 500)
		return
	}

	for i, header := range headers {
		cell := fmt.Sprintf("%s1", string(rune('A'+i)))
		f.SetCellValue(sheetName, cell, header)
		f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}
	for rowIdx, row := range data {
		for colIdx, value := range row {
			cell := fmt.Sprintf("%s%d", string(rune('A'+colIdx)), rowIdx+2)
			f.SetCellValue(sheetName, cell, value)
		}
	}
	for i := range headers {
		col := string(rune('A' + i))
		f.SetColWidth(sheetName, col, col, 18)
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	if err := f.Write(w); err != nil {
		http.Error(w, "Failed to write Excel file", 500)
	}
}
