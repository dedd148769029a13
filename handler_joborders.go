package main

import (
	"database/sql"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"joddb/internal/audit"
	"joddb/internal/database"
	"joddb/internal/fanout"
	"joddb/internal/metrics"
	"joddb/internal/models"
	"joddb/internal/response"
	"joddb/internal/validation"
)

func handleListJobOrders(w http.ResponseWriter, r *http.Request) {
	query := `SELECT id, job_id, order_code, title, description, total_devices, due_date, created_by, status, created_at, updated_at
		FROM job_orders`
	args := []any{}
	if status := r.URL.Query().Get("status"); status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY due_date, order_code"

	rows, err := db.Query(query, args...)
	if err != nil {
		response.Err(w, "Failed to list job orders", 500)
		return
	}
	defer rows.Close()

	orders := []models.JobOrder{}
	for rows.Next() {
		o, err := scanJobOrder(rows.Scan)
		if err != nil {
			response.Err(w, "Failed to scan job order", 500)
			return
		}
		orders = append(orders, o)
	}
	response.JSON(w, orders)
}

func scanJobOrder(scan func(dest ...any) error) (models.JobOrder, error) {
	var o models.JobOrder
	var jobID, createdBy sql.NullInt64
	err := scan(&o.ID, &jobID, &o.OrderCode, &o.Title, &o.Description, &o.TotalDevices,
		&o.DueDate, &createdBy, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return o, err
	}
	o.JobID = database.IP(jobID)
	o.CreatedBy = database.IP(createdBy)
	return o, nil
}

type jobOrderRequest struct {
	JobID        *int   `json:"job_id"`
	OrderCode    string `json:"order_code"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	TotalDevices int    `json:"total_devices"`
	DueDate      string `json:"due_date"`
}

// handleCreateJobOrder inserts the order and fans out its devices and tasks
// in one transaction. Either everything exists afterwards or nothing does.
func handleCreateJobOrder(w http.ResponseWriter, r *http.Request) {
	var req jobOrderRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "Invalid request body", 400)
		return
	}

	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "order_code", req.OrderCode)
	validation.RequireField(ve, "title", req.Title)
	validation.ValidateIntRange(ve, "total_devices", req.TotalDevices, 1, validation.MaxDevicesPerOrder)
	validation.ValidateDate(ve, "due_date", req.DueDate)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	var processes []models.Process
	if req.JobID != nil {
		var err error
		processes, err = fanout.ProcessesForJob(db, *req.JobID)
		if err != nil {
			response.Err(w, "Failed to load processes", 500)
			return
		}
		if len(processes) == 0 {
			response.Err(w, "Job has no processes; nothing to generate", 400)
			return
		}
	}

	user, _ := getCurrentUser(r)
	var createdBy *int
	if user.ID != 0 {
		createdBy = &user.ID
	}

	tx, err := db.Begin()
	if err != nil {
		response.Err(w, "Failed to start transaction", 500)
		return
	}
	defer tx.Rollback()

	res, err := tx.Exec(`INSERT INTO job_orders (job_id, order_code, title, description, total_devices, due_date, created_by)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		database.NI(req.JobID), req.OrderCode, req.Title, req.Description, req.TotalDevices, req.DueDate, database.NI(createdBy))
	if err != nil {
		response.Err(w, "Order code already exists", 409)
		return
	}
	orderID64, _ := res.LastInsertId()
	orderID := int(orderID64)

	order := models.JobOrder{
		ID: orderID, JobID: req.JobID, OrderCode: req.OrderCode, Title: req.Title,
		Description: req.Description, TotalDevices: req.TotalDevices, DueDate: req.DueDate,
		CreatedBy: createdBy, Status: "available",
	}
	fres, err := fanout.Generate(tx, order, processes)
	if err != nil {
		if errors.Is(err, fanout.ErrAlreadyGenerated) {
			response.Err(w, "Job order already generated", 409)
			return
		}
		log.Printf("fanout for order %s: %v", req.OrderCode, err)
		response.Err(w, "Failed to generate devices and tasks", 500)
		return
	}

	if err := tx.Commit(); err != nil {
		response.Err(w, "Failed to commit", 500)
		return
	}

	audit.LogAudit(db, hub, user.Username, audit.ActionCreate, "job_order", req.OrderCode,
		"Created order "+req.OrderCode)
	response.JSON(w, map[string]any{"job_order": order, "generated": fres})
}

func handleGetJobOrder(w http.ResponseWriter, r *http.Request, idStr string) {
	id, err := strconv.Atoi(idStr)
	if err != nil {
		response.Err(w, "Invalid job order ID", 400)
		return
	}

	row := db.QueryRow(`SELECT id, job_id, order_code, title, description, total_devices, due_date, created_by, status, created_at, updated_at
		FROM job_orders WHERE id = ?`, id)
	o, err := scanJobOrder(row.Scan)
	if err != nil {
		response.Err(w, "Job order not found", 404)
		return
	}

	progress, err := metrics.CalculateJobOrderProgress(db, id)
	if err != nil {
		response.Err(w, "Failed to compute progress", 500)
		return
	}
	response.JSON(w, map[string]any{"job_order": o, "progress": progress})
}

func handleUpdateJobOrder(w http.ResponseWriter, r *http.Request, idStr string) {
	id, err := strconv.Atoi(idStr)
	if err != nil {
		response.Err(w, "Invalid job order ID", 400)
		return
	}

	var req struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		DueDate     string `json:"due_date"`
		Status      string `json:"status"`
	}
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "Invalid request body", 400)
		return
	}

	ve := &validation.ValidationErrors{}
	if req.DueDate != "" {
		validation.ValidateDate(ve, "due_date", req.DueDate)
	}
	if req.Status != "" {
		validation.ValidateEnum(ve, "status", req.Status, validation.ValidJobOrderStatuses)
	}
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	var orderCode string
	if err := db.QueryRow("SELECT order_code FROM job_orders WHERE id = ?", id).Scan(&orderCode); err != nil {
		response.Err(w, "Job order not found", 404)
		return
	}

	now := time.Now().Format("2006-01-02 15:04:05")
	if req.Title != "" {
		db.Exec("UPDATE job_orders SET title = ?, updated_at = ? WHERE id = ?", req.Title, now, id)
	}
	if req.Description != "" {
		db.Exec("UPDATE job_orders SET description = ?, updated_at = ? WHERE id = ?", req.Description, now, id)
	}
	if req.DueDate != "" {
		db.Exec("UPDATE job_orders SET due_date = ?, updated_at = ? WHERE id = ?", req.DueDate, now, id)
	}
	if req.Status != "" {
		db.Exec("UPDATE job_orders SET status = ?, updated_at = ? WHERE id = ?", req.Status, now, id)
	}

	audit.LogAudit(db, hub, audit.GetUsername(db, r), audit.ActionUpdate, "job_order", orderCode, "Updated order "+orderCode)
	response.JSON(w, map[string]string{"status": "ok"})
}

// handleDeleteJobOrder removes an order only while no work has started.
// Devices and tasks cascade; history on started orders is never destroyed.
func handleDeleteJobOrder(w http.ResponseWriter, r *http.Request, idStr string) {
	id, err := strconv.Atoi(idStr)
	if err != nil {
		response.Err(w, "Invalid job order ID", 400)
		return
	}

	var orderCode string
	if err := db.QueryRow("SELECT order_code FROM job_orders WHERE id = ?", id).Scan(&orderCode); err != nil {
		response.Err(w, "Job order not found", 404)
		return
	}

	var started int
	db.QueryRow("SELECT COUNT(*) FROM tasks WHERE job_order_id = ? AND status != 'available'", id).Scan(&started)
	if started > 0 {
		response.Err(w, "Job order has started tasks", 409)
		return
	}

	if _, err := db.Exec("DELETE FROM job_orders WHERE id = ?", id); err != nil {
		response.Err(w, "Failed to delete job order", 500)
		return
	}

	audit.LogAudit(db, hub, audit.GetUsername(db, r), audit.ActionDelete, "job_order", orderCode, "Deleted order "+orderCode)
	response.JSON(w, map[string]string{"status": "ok"})
}

func handleListOrderDevices(w http.ResponseWriter, r *http.Request, idStr string) {
	id, err := strconv.Atoi(idStr)
	if err != nil {
		response.Err(w, "Invalid job order ID", 400)
		return
	}

	rows, err := db.Query(`SELECT id, job_order_id, serial_number, current_status, created_at, last_updated
		FROM devices WHERE job_order_id = ? ORDER BY serial_number`, id)
	if err != nil {
		response.Err(w, "Failed to list devices", 500)
		return
	}
	defer rows.Close()

	devices := []models.Device{}
	for rows.Next() {
		var d models.Device
		if err := rows.Scan(&d.ID, &d.JobOrderID, &d.SerialNumber, &d.CurrentStatus, &d.CreatedAt, &d.LastUpdated); err != nil {
			response.Err(w, "Failed to scan device", 500)
			return
		}
		devices = append(devices, d)
	}
	response.JSON(w, devices)
}
