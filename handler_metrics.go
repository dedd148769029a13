package main

import (
	"net/http"
	"strconv"
	"time"

	"joddb/internal/metrics"
	"joddb/internal/response"
)

// canViewTechnician limits technician metrics to the technician themselves
// and the roles that oversee them.
func canViewTechnician(role string, viewerID, technicianID int) bool {
	switch role {
	case "admin", "planning", "supervisor":
		return true
	}
	return viewerID == technicianID
}

func handleTechnicianMetrics(w http.ResponseWriter, r *http.Request, idStr string) {
	technicianID, err := strconv.Atoi(idStr)
	if err != nil {
		response.Err(w, "Invalid technician ID", 400)
		return
	}
	user, ok := getCurrentUser(r)
	if !ok {
		response.Err(w, "Unauthorized", 401)
		return
	}
	if !canViewTechnician(user.Role, user.ID, technicianID) {
		response.Err(w, "Forbidden", 403)
		return
	}

	date := r.URL.Query().Get("date")
	if date == "" {
		date = time.Now().Format("2006-01-02")
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		response.Err(w, "date must be YYYY-MM-DD", 400)
		return
	}

	daily, err := metrics.CalculateTechnicianDaily(db, technicianID, date, thresholds)
	if err != nil {
		response.Err(w, "Failed to compute metrics", 500)
		return
	}
	response.JSON(w, daily)
}

func handleSnapshotTechnicianMetrics(w http.ResponseWriter, r *http.Request, idStr string) {
	technicianID, err := strconv.Atoi(idStr)
	if err != nil {
		response.Err(w, "Invalid technician ID", 400)
		return
	}
	user, ok := getCurrentUser(r)
	if !ok {
		response.Err(w, "Unauthorized", 401)
		return
	}
	if user.Role != "planning" && user.Role != "admin" && user.Role != "supervisor" {
		response.Err(w, "Forbidden", 403)
		return
	}

	var req struct {
		Date       string `json:"date"`
		JobOrderID *int   `json:"job_order_id"`
	}
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "Invalid request body", 400)
		return
	}
	if req.Date == "" {
		req.Date = time.Now().Format("2006-01-02")
	}
	if _, err := time.Parse("2006-01-02", req.Date); err != nil {
		response.Err(w, "date must be YYYY-MM-DD", 400)
		return
	}

	daily, err := metrics.CalculateTechnicianDaily(db, technicianID, req.Date, thresholds)
	if err != nil {
		response.Err(w, "Failed to compute metrics", 500)
		return
	}
	if err := metrics.SnapshotTechnicianDaily(db, technicianID, req.JobOrderID, req.Date, daily); err != nil {
		response.Err(w, "Failed to store snapshot", 500)
		return
	}
	response.JSON(w, daily)
}

func handleJobOrderMetrics(w http.ResponseWriter, r *http.Request, idStr string) {
	jobOrderID, err := strconv.Atoi(idStr)
	if err != nil {
		response.Err(w, "Invalid job order ID", 400)
		return
	}

	var exists int
	db.QueryRow("SELECT COUNT(*) FROM job_orders WHERE id = ?", jobOrderID).Scan(&exists)
	if exists == 0 {
		response.Err(w, "Job order not found", 404)
		return
	}

	progress, err := metrics.CalculateJobOrderProgress(db, jobOrderID)
	if err != nil {
		response.Err(w, "Failed to compute progress", 500)
		return
	}
	alerts, err := metrics.CheckAlerts(db, jobOrderID, nil, time.Now(), thresholds)
	if err != nil {
		response.Err(w, "Failed to compute alerts", 500)
		return
	}
	response.JSON(w, map[string]any{"progress": progress, "alerts": alerts})
}

func handlePlannerStatistics(w http.ResponseWriter, r *http.Request) {
	user, ok := getCurrentUser(r)
	if !ok {
		response.Err(w, "Unauthorized", 401)
		return
	}
	if user.Role != "planning" && user.Role != "admin" && user.Role != "supervisor" {
		response.Err(w, "Forbidden", 403)
		return
	}

	stats, err := metrics.CalculatePlannerStatistics(db, time.Now())
	if err != nil {
		response.Err(w, "Failed to compute statistics", 500)
		return
	}
	response.JSON(w, stats)
}
