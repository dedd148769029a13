package main

import (
	"database/sql"
	"net/http"
	"strconv"

	"joddb/internal/audit"
	"joddb/internal/database"
	"joddb/internal/models"
	"joddb/internal/response"
	"joddb/internal/workflow"
)

type decisionRequest struct {
	Decision string `json:"decision"`
	Comments string `json:"comments"`
}

func decisionAction(d string) string {
	if d == "accepted" {
		return audit.ActionApprove
	}
	return audit.ActionReject
}

func handleQADecision(w http.ResponseWriter, r *http.Request, idStr string) {
	taskID, err := strconv.Atoi(idStr)
	if err != nil {
		response.Err(w, "Invalid task ID", 400)
		return
	}
	user, ok := getCurrentUser(r)
	if !ok {
		response.Err(w, "Unauthorized", 401)
		return
	}
	var req decisionRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "Invalid request body", 400)
		return
	}

	task, err := engine.QADecision(taskID, user, workflow.Decision(req.Decision), req.Comments)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	audit.LogAudit(db, hub, user.Username, decisionAction(req.Decision), "inspection", idStr,
		"QA "+req.Decision+" task "+idStr)
	response.JSON(w, task)
}

func handleTesterDecision(w http.ResponseWriter, r *http.Request, idStr string) {
	taskID, err := strconv.Atoi(idStr)
	if err != nil {
		response.Err(w, "Invalid task ID", 400)
		return
	}
	user, ok := getCurrentUser(r)
	if !ok {
		response.Err(w, "Unauthorized", 401)
		return
	}
	var req decisionRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "Invalid request body", 400)
		return
	}

	task, err := engine.TesterDecision(taskID, user, workflow.Decision(req.Decision), req.Comments)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	audit.LogAudit(db, hub, user.Username, decisionAction(req.Decision), "tester_review", idStr,
		"Tester "+req.Decision+" task "+idStr)
	response.JSON(w, task)
}

func handleSupervisorDecision(w http.ResponseWriter, r *http.Request, idStr string) {
	inspectionID, err := strconv.Atoi(idStr)
	if err != nil {
		response.Err(w, "Invalid inspection ID", 400)
		return
	}
	user, ok := getCurrentUser(r)
	if !ok {
		response.Err(w, "Unauthorized", 401)
		return
	}
	var req decisionRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "Invalid request body", 400)
		return
	}

	task, err := engine.SupervisorDecision(inspectionID, user, workflow.Decision(req.Decision), req.Comments)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	audit.LogAudit(db, hub, user.Username, decisionAction(req.Decision), "supervisor_review", idStr,
		"Supervisor "+req.Decision+" inspection "+idStr)
	response.JSON(w, task)
}

func handleListInspections(w http.ResponseWriter, r *http.Request) {
	query := `SELECT id, task_id, device_id, inspector_id, decision, comments, created_at FROM inspections`
	args := []any{}
	if decision := r.URL.Query().Get("decision"); decision != "" {
		query += " WHERE decision = ?"
		args = append(args, decision)
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := db.Query(query, args...)
	if err != nil {
		response.Err(w, "Failed to list inspections", 500)
		return
	}
	defer rows.Close()

	inspections := []models.Inspection{}
	for rows.Next() {
		var i models.Inspection
		var inspector sql.NullInt64
		if err := rows.Scan(&i.ID, &i.TaskID, &i.DeviceID, &inspector, &i.Decision, &i.Comments, &i.CreatedAt); err != nil {
			response.Err(w, "Failed to scan inspection", 500)
			return
		}
		i.InspectorID = database.IP(inspector)
		inspections = append(inspections, i)
	}
	response.JSON(w, inspections)
}

func handleGetInspection(w http.ResponseWriter, r *http.Request, idStr string) {
	id, err := strconv.Atoi(idStr)
	if err != nil {
		response.Err(w, "Invalid inspection ID", 400)
		return
	}

	var i models.Inspection
	var inspector sql.NullInt64
	err = db.QueryRow(`SELECT id, task_id, device_id, inspector_id, decision, comments, created_at
		FROM inspections WHERE id = ?`, id).
		Scan(&i.ID, &i.TaskID, &i.DeviceID, &inspector, &i.Decision, &i.Comments, &i.CreatedAt)
	if err != nil {
		response.Err(w, "Inspection not found", 404)
		return
	}
	i.InspectorID = database.IP(inspector)
	response.JSON(w, i)
}

func handleListTesterReviews(w http.ResponseWriter, r *http.Request) {
	rows, err := db.Query(`SELECT id, task_id, tester_id, decision, comments, created_at
		FROM tester_reviews ORDER BY created_at DESC, id DESC`)
	if err != nil {
		response.Err(w, "Failed to list tester reviews", 500)
		return
	}
	defer rows.Close()

	reviews := []models.TesterReview{}
	for rows.Next() {
		var rv models.TesterReview
		var tester sql.NullInt64
		if err := rows.Scan(&rv.ID, &rv.TaskID, &tester, &rv.Decision, &rv.Comments, &rv.CreatedAt); err != nil {
			response.Err(w, "Failed to scan tester review", 500)
			return
		}
		rv.TesterID = database.IP(tester)
		reviews = append(reviews, rv)
	}
	response.JSON(w, reviews)
}

func handleListSupervisorReviews(w http.ResponseWriter, r *http.Request) {
	rows, err := db.Query(`SELECT id, inspection_id, supervisor_id, decision, comments, created_at
		FROM supervisor_reviews ORDER BY created_at DESC, id DESC`)
	if err != nil {
		response.Err(w, "Failed to list supervisor reviews", 500)
		return
	}
	defer rows.Close()

	reviews := []models.SupervisorReview{}
	for rows.Next() {
		var rv models.SupervisorReview
		var supervisor sql.NullInt64
		if err := rows.Scan(&rv.ID, &rv.InspectionID, &supervisor, &rv.Decision, &rv.Comments, &rv.CreatedAt); err != nil {
			response.Err(w, "Failed to scan supervisor review", 500)
			return
		}
		rv.SupervisorID = database.IP(supervisor)
		reviews = append(reviews, rv)
	}
	response.JSON(w, reviews)
}
