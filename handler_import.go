package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"joddb/internal/audit"
	"joddb/internal/fanout"
	"joddb/internal/models"
	"joddb/internal/response"
	"joddb/internal/validation"

	"github.com/xuri/excelize/v2"
)

type importRow struct {
	line         int
	orderCode    string
	title        string
	description  string
	totalDevices string
	dueDate      string
	jobName      string
}

// handleImportJobOrders bulk-creates job orders from an uploaded CSV or XLSX
// file. Expected columns: order_code, title, description, total_devices,
// due_date, job_name (optional). Each valid row runs create + fan-out in its
// own transaction; bad rows are reported and skipped.
func handleImportJobOrders(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 20<<20)
	if err := r.ParseMultipartForm(20 << 20); err != nil {
		response.Err(w, "Failed to parse upload", 400)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		response.Err(w, "file is required", 400)
		return
	}
	defer file.Close()

	var records [][]string
	if strings.HasSuffix(strings.ToLower(header.Filename), ".xlsx") {
		records, err = readExcelRows(file)
	} else {
		records, err = csv.NewReader(file).ReadAll()
	}
	if err != nil {
		response.Err(w, "Failed to read file: "+err.Error(), 400)
		return
	}
	if len(records) < 2 {
		response.Err(w, "File has no data rows", 400)
		return
	}

	cols := map[string]int{}
	for i, name := range records[0] {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"order_code", "title", "total_devices", "due_date"} {
		if _, ok := cols[required]; !ok {
			response.Err(w, "Missing required column: "+required, 400)
			return
		}
	}
	cell := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	user, _ := getCurrentUser(r)
	imported := 0
	var rowErrors []string
	fail := func(row importRow, msg string) {
		rowErrors = append(rowErrors, fmt.Sprintf("row %d (%s): %s", row.line, row.orderCode, msg))
	}

	for i, rec := range records[1:] {
		row := importRow{
			line:         i + 2,
			orderCode:    cell(rec, "order_code"),
			title:        cell(rec, "title"),
			description:  cell(rec, "description"),
			totalDevices: cell(rec, "total_devices"),
			dueDate:      cell(rec, "due_date"),
			jobName:      cell(rec, "job_name"),
		}

		total, convErr := strconv.Atoi(row.totalDevices)
		ve := &validation.ValidationErrors{}
		validation.RequireField(ve, "order_code", row.orderCode)
		validation.RequireField(ve, "title", row.title)
		if convErr != nil {
			ve.Add("total_devices", "must be an integer")
		} else {
			validation.ValidateIntRange(ve, "total_devices", total, 1, validation.MaxDevicesPerOrder)
		}
		validation.ValidateDate(ve, "due_date", row.dueDate)
		if ve.HasErrors() {
			fail(row, ve.Error())
			continue
		}

		var dup int
		db.QueryRow("SELECT COUNT(*) FROM job_orders WHERE order_code = ?", row.orderCode).Scan(&dup)
		if dup > 0 {
			fail(row, "order_code already exists")
			continue
		}

		var jobID *int
		var processes []models.Process
		if row.jobName != "" {
			var id int
			if err := db.QueryRow("SELECT id FROM jobs WHERE name = ?", row.jobName).Scan(&id); err != nil {
				fail(row, "unknown job: "+row.jobName)
				continue
			}
			jobID = &id
			processes, err = fanout.ProcessesForJob(db, id)
			if err != nil {
				fail(row, "failed to load processes")
				continue
			}
		}

		if err := importOneOrder(row, jobID, total, processes, user); err != nil {
			log.Printf("import order %s: %v", row.orderCode, err)
			fail(row, err.Error())
			continue
		}
		imported++
	}

	audit.LogAudit(db, hub, user.Username, audit.ActionImport, "job_order", header.Filename,
		fmt.Sprintf("Imported %d order(s) from %s", imported, header.Filename))
	response.JSON(w, map[string]any{
		"imported": imported,
		"skipped":  len(rowErrors),
		"errors":   rowErrors,
	})
}

func importOneOrder(row importRow, jobID *int, total int, processes []models.Process, user models.User) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var createdBy any
	if user.ID != 0 {
		createdBy = user.ID
	}
	res, err := tx.Exec(`INSERT INTO job_orders (job_id, order_code, title, description, total_devices, due_date, created_by)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		nullableInt(jobID), row.orderCode, row.title, row.description, total, row.dueDate, createdBy)
	if err != nil {
		return err
	}
	orderID, _ := res.LastInsertId()

	order := models.JobOrder{ID: int(orderID), OrderCode: row.orderCode, TotalDevices: total}
	if _, err := fanout.Generate(tx, order, processes); err != nil {
		return err
	}
	return tx.Commit()
}

func nullableInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

// readExcelRows returns the rows of the first sheet.
func readExcelRows(file io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	return f.GetRows(sheets[0])
}
