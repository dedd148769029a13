package main

import (
	"net/http"
	"strconv"
	"time"

	"joddb/internal/audit"
	"joddb/internal/fanout"
	"joddb/internal/models"
	"joddb/internal/response"
	"joddb/internal/validation"
)

func handleListJobs(w http.ResponseWriter, r *http.Request) {
	rows, err := db.Query("SELECT id, name, description, created_at, updated_at FROM jobs ORDER BY name")
	if err != nil {
		response.Err(w, "Failed to list jobs", 500)
		return
	}
	defer rows.Close()

	jobs := []models.Job{}
	for rows.Next() {
		var j models.Job
		if err := rows.Scan(&j.ID, &j.Name, &j.Description, &j.CreatedAt, &j.UpdatedAt); err != nil {
			response.Err(w, "Failed to scan job", 500)
			return
		}
		jobs = append(jobs, j)
	}
	response.JSON(w, jobs)
}

type jobRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req jobRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "Invalid request body", 400)
		return
	}

	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "name", req.Name)
	validation.ValidateMaxLength(ve, "name", req.Name, validation.MaxStringLength)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	res, err := db.Exec("INSERT INTO jobs (name, description) VALUES (?, ?)", req.Name, req.Description)
	if err != nil {
		response.Err(w, "Job name already exists", 409)
		return
	}
	id, _ := res.LastInsertId()

	audit.LogAudit(db, hub, audit.GetUsername(db, r), audit.ActionCreate, "job", req.Name, "Created job "+req.Name)
	response.JSON(w, models.Job{ID: int(id), Name: req.Name, Description: req.Description})
}

func handleGetJob(w http.ResponseWriter, r *http.Request, idStr string) {
	id, err := strconv.Atoi(idStr)
	if err != nil {
		response.Err(w, "Invalid job ID", 400)
		return
	}

	var j models.Job
	err = db.QueryRow("SELECT id, name, description, created_at, updated_at FROM jobs WHERE id = ?", id).
		Scan(&j.ID, &j.Name, &j.Description, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		response.Err(w, "Job not found", 404)
		return
	}

	procs, err := fanout.ProcessesForJob(db, id)
	if err != nil {
		response.Err(w, "Failed to load processes", 500)
		return
	}
	j.Processes = procs
	response.JSON(w, j)
}

func handleUpdateJob(w http.ResponseWriter, r *http.Request, idStr string) {
	id, err := strconv.Atoi(idStr)
	if err != nil {
		response.Err(w, "Invalid job ID", 400)
		return
	}

	var req jobRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "Invalid request body", 400)
		return
	}

	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "name", req.Name)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	now := time.Now().Format("2006-01-02 15:04:05")
	res, err := db.Exec("UPDATE jobs SET name = ?, description = ?, updated_at = ? WHERE id = ?",
		req.Name, req.Description, now, id)
	if err != nil {
		response.Err(w, "Job name already exists", 409)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		response.Err(w, "Job not found", 404)
		return
	}

	audit.LogAudit(db, hub, audit.GetUsername(db, r), audit.ActionUpdate, "job", idStr, "Updated job "+req.Name)
	response.JSON(w, map[string]string{"status": "ok"})
}

func handleDeleteJob(w http.ResponseWriter, r *http.Request, idStr string) {
	id, err := strconv.Atoi(idStr)
	if err != nil {
		response.Err(w, "Invalid job ID", 400)
		return
	}

	// Orders reference jobs with ON DELETE RESTRICT; check first for a clean error
	var refs int
	db.QueryRow("SELECT COUNT(*) FROM job_orders WHERE job_id = ?", id).Scan(&refs)
	if refs > 0 {
		response.Err(w, "Job is referenced by job orders", 409)
		return
	}

	res, err := db.Exec("DELETE FROM jobs WHERE id = ?", id)
	if err != nil {
		response.Err(w, "Failed to delete job", 500)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		response.Err(w, "Job not found", 404)
		return
	}

	audit.LogAudit(db, hub, audit.GetUsername(db, r), audit.ActionDelete, "job", idStr, "Deleted job "+idStr)
	response.JSON(w, map[string]string{"status": "ok"})
}

func handleListProcesses(w http.ResponseWriter, r *http.Request, jobIDStr string) {
	jobID, err := strconv.Atoi(jobIDStr)
	if err != nil {
		response.Err(w, "Invalid job ID", 400)
		return
	}
	procs, err := fanout.ProcessesForJob(db, jobID)
	if err != nil {
		response.Err(w, "Failed to list processes", 500)
		return
	}
	response.JSON(w, procs)
}

type processRequest struct {
	OperationName       string `json:"operation_name"`
	StandardTimeSeconds int    `json:"standard_time_seconds"`
	TaskType            string `json:"task_type"`
	StepOrder           int    `json:"step_order"`
}

func validateProcess(req processRequest) *validation.ValidationErrors {
	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "operation_name", req.OperationName)
	validation.ValidateIntRange(ve, "standard_time_seconds", req.StandardTimeSeconds, 1, validation.MaxStandardSeconds)
	validation.ValidatePositiveInt(ve, "step_order", req.StepOrder)
	if req.TaskType != "" {
		validation.ValidateEnum(ve, "task_type", req.TaskType, validation.ValidTaskTypes)
	}
	return ve
}

func handleCreateProcess(w http.ResponseWriter, r *http.Request, jobIDStr string) {
	jobID, err := strconv.Atoi(jobIDStr)
	if err != nil {
		response.Err(w, "Invalid job ID", 400)
		return
	}

	var req processRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "Invalid request body", 400)
		return
	}
	if req.TaskType == "" {
		req.TaskType = "technician"
	}
	if ve := validateProcess(req); ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	var exists int
	db.QueryRow("SELECT COUNT(*) FROM jobs WHERE id = ?", jobID).Scan(&exists)
	if exists == 0 {
		response.Err(w, "Job not found", 404)
		return
	}

	res, err := db.Exec(`INSERT INTO processes (job_id, operation_name, standard_time_seconds, task_type, step_order)
		VALUES (?, ?, ?, ?, ?)`, jobID, req.OperationName, req.StandardTimeSeconds, req.TaskType, req.StepOrder)
	if err != nil {
		response.Err(w, "step_order already used for this job", 409)
		return
	}
	id, _ := res.LastInsertId()

	audit.LogAudit(db, hub, audit.GetUsername(db, r), audit.ActionCreate, "process", strconv.FormatInt(id, 10),
		"Added process "+req.OperationName)
	response.JSON(w, models.Process{
		ID: int(id), JobID: jobID, OperationName: req.OperationName,
		StandardTimeSeconds: req.StandardTimeSeconds, TaskType: req.TaskType, StepOrder: req.StepOrder,
	})
}

func handleUpdateProcess(w http.ResponseWriter, r *http.Request, idStr string) {
	id, err := strconv.Atoi(idStr)
	if err != nil {
		response.Err(w, "Invalid process ID", 400)
		return
	}

	var req processRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "Invalid request body", 400)
		return
	}
	if req.TaskType == "" {
		req.TaskType = "technician"
	}
	if ve := validateProcess(req); ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	res, err := db.Exec(`UPDATE processes SET operation_name = ?, standard_time_seconds = ?, task_type = ?, step_order = ?
		WHERE id = ?`, req.OperationName, req.StandardTimeSeconds, req.TaskType, req.StepOrder, id)
	if err != nil {
		response.Err(w, "step_order already used for this job", 409)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		response.Err(w, "Process not found", 404)
		return
	}

	audit.LogAudit(db, hub, audit.GetUsername(db, r), audit.ActionUpdate, "process", idStr, "Updated process "+req.OperationName)
	response.JSON(w, map[string]string{"status": "ok"})
}

func handleDeleteProcess(w http.ResponseWriter, r *http.Request, idStr string) {
	id, err := strconv.Atoi(idStr)
	if err != nil {
		response.Err(w, "Invalid process ID", 400)
		return
	}

	// Generated tasks keep history; their process FK is RESTRICT
	var refs int
	db.QueryRow("SELECT COUNT(*) FROM tasks WHERE process_id = ?", id).Scan(&refs)
	if refs > 0 {
		response.Err(w, "Process is referenced by generated tasks", 409)
		return
	}

	res, err := db.Exec("DELETE FROM processes WHERE id = ?", id)
	if err != nil {
		response.Err(w, "Failed to delete process", 500)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		response.Err(w, "Process not found", 404)
		return
	}

	audit.LogAudit(db, hub, audit.GetUsername(db, r), audit.ActionDelete, "process", idStr, "Deleted process "+idStr)
	response.JSON(w, map[string]string{"status": "ok"})
}
