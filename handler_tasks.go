package main

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"joddb/internal/audit"
	"joddb/internal/response"
	"joddb/internal/validation"
	"joddb/internal/workflow"
)

// writeEngineError maps workflow error types onto HTTP statuses. Conflicts
// carry the task's current status so clients can resync.
func writeEngineError(w http.ResponseWriter, err error) {
	var conflict *workflow.ConflictError
	var valErr *workflow.ValidationError
	var notFound *workflow.NotFoundError
	var authz *workflow.AuthorizationError
	switch {
	case errors.As(err, &conflict):
		response.ErrStatus(w, conflict.Error(), string(conflict.Current), 409)
	case errors.As(err, &valErr):
		response.Err(w, valErr.Error(), 400)
	case errors.As(err, &notFound):
		response.Err(w, notFound.Error(), 404)
	case errors.As(err, &authz):
		response.Err(w, authz.Error(), 403)
	default:
		log.Printf("workflow error: %v", err)
		response.Err(w, "Internal error", 500)
	}
}

func handleListTasks(w http.ResponseWriter, r *http.Request) {
	user, ok := getCurrentUser(r)
	if !ok {
		response.Err(w, "Unauthorized", 401)
		return
	}
	tasks, err := workflow.ListTasksForRole(db, user)
	if err != nil {
		response.Err(w, "Failed to list tasks", 500)
		return
	}
	response.JSON(w, tasks)
}

func handleGetTask(w http.ResponseWriter, r *http.Request, idStr string) {
	id, err := strconv.Atoi(idStr)
	if err != nil {
		response.Err(w, "Invalid task ID", 400)
		return
	}
	task, err := engine.GetTask(id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	response.JSON(w, task)
}

type createTasksRequest struct {
	DeviceSerials       []string `json:"device_serials"`
	OperationName       string   `json:"operation_name"`
	StandardTimeSeconds int      `json:"standard_time_seconds"`
	TaskType            string   `json:"task_type"`
	Notes               string   `json:"notes"`
}

// handleCreateTasks issues fresh available tasks against existing devices.
// This is the planner's path for re-working rejected units: rejected tasks
// stay rejected and a new task is issued instead.
func handleCreateTasks(w http.ResponseWriter, r *http.Request) {
	user, _ := getCurrentUser(r)
	if user.Role != "planning" && user.Role != "admin" {
		response.Err(w, "Planner access required", 403)
		return
	}

	var req createTasksRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "Invalid request body", 400)
		return
	}
	if req.TaskType == "" {
		req.TaskType = "technician"
	}

	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "operation_name", req.OperationName)
	validation.ValidateIntRange(ve, "standard_time_seconds", req.StandardTimeSeconds, 1, validation.MaxStandardSeconds)
	validation.ValidateEnum(ve, "task_type", req.TaskType, validation.ValidTaskTypes)
	if len(req.DeviceSerials) == 0 {
		ve.Add("device_serials", "at least one device serial is required")
	}
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	// Resolve serials up front; refuse the whole batch when any are unknown
	type deviceRef struct{ id, jobOrderID int }
	found := map[string]deviceRef{}
	var missing []string
	for _, serial := range req.DeviceSerials {
		var d deviceRef
		err := db.QueryRow("SELECT id, job_order_id FROM devices WHERE serial_number = ?", serial).Scan(&d.id, &d.jobOrderID)
		if err != nil {
			missing = append(missing, serial)
			continue
		}
		found[serial] = d
	}
	if len(missing) > 0 {
		response.Err(w, fmt.Sprintf("devices do not exist: %s", strings.Join(missing, ", ")), 400)
		return
	}

	tx, err := db.Begin()
	if err != nil {
		response.Err(w, "Failed to start transaction", 500)
		return
	}
	defer tx.Rollback()

	created := 0
	for _, serial := range req.DeviceSerials {
		d := found[serial]
		_, err := tx.Exec(`INSERT INTO tasks (device_id, job_order_id, operation_name, standard_time_seconds, task_type, status, notes)
			VALUES (?, ?, ?, ?, ?, 'available', ?)`,
			d.id, d.jobOrderID, req.OperationName, req.StandardTimeSeconds, req.TaskType, req.Notes)
		if err != nil {
			response.Err(w, "Failed to create tasks", 500)
			return
		}
		created++
	}
	if err := tx.Commit(); err != nil {
		response.Err(w, "Failed to commit", 500)
		return
	}

	audit.LogAudit(db, hub, user.Username, audit.ActionCreate, "task", req.OperationName,
		fmt.Sprintf("Issued %d task(s) for %s", created, req.OperationName))
	response.JSON(w, map[string]int{"created": created})
}

func handleStartTask(w http.ResponseWriter, r *http.Request, idStr string) {
	id, err := strconv.Atoi(idStr)
	if err != nil {
		response.Err(w, "Invalid task ID", 400)
		return
	}
	user, ok := getCurrentUser(r)
	if !ok {
		response.Err(w, "Unauthorized", 401)
		return
	}

	task, err := engine.Start(id, user)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	audit.LogAudit(db, hub, user.Username, audit.ActionStart, "task", idStr, "Started task "+idStr)
	response.JSON(w, task)
}

func handleEndTask(w http.ResponseWriter, r *http.Request, idStr string) {
	id, err := strconv.Atoi(idStr)
	if err != nil {
		response.Err(w, "Invalid task ID", 400)
		return
	}
	user, ok := getCurrentUser(r)
	if !ok {
		response.Err(w, "Unauthorized", 401)
		return
	}

	task, err := engine.End(id, user)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	audit.LogAudit(db, hub, user.Username, audit.ActionEnd, "task", idStr, "Ended task "+idStr)
	response.JSON(w, task)
}

func handleTaskStatusSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := workflow.StatusSummary(db)
	if err != nil {
		response.Err(w, "Failed to compute summary", 500)
		return
	}
	response.JSON(w, summary)
}
