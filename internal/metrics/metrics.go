// Package metrics computes read-only projections over task and device
// state: technician daily performance, job order progress, and alerts.
// Nothing here mutates workflow state.
package metrics

import (
	"database/sql"
	"fmt"
	"math"
	"time"
)

// Thresholds carries the tunables the aggregator needs. Zero values are
// replaced by defaults matching an 8-hour shift.
type Thresholds struct {
	ShiftCapacitySeconds int     `yaml:"shift_capacity_seconds"`
	EfficiencyThreshold  float64 `yaml:"efficiency_threshold"`
	DueDateWindowDays    int     `yaml:"due_date_window_days"`
	ProgressThreshold    float64 `yaml:"progress_threshold"`
}

// DefaultThresholds returns the standard tunables: 8h shift, 70% efficiency
// floor, 3-day due window, 80% progress floor.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ShiftCapacitySeconds: 28800,
		EfficiencyThreshold:  70.0,
		DueDateWindowDays:    3,
		ProgressThreshold:    80.0,
	}
}

func (t Thresholds) withDefaults() Thresholds {
	d := DefaultThresholds()
	if t.ShiftCapacitySeconds <= 0 {
		t.ShiftCapacitySeconds = d.ShiftCapacitySeconds
	}
	if t.EfficiencyThreshold <= 0 {
		t.EfficiencyThreshold = d.EfficiencyThreshold
	}
	if t.DueDateWindowDays <= 0 {
		t.DueDateWindowDays = d.DueDateWindowDays
	}
	if t.ProgressThreshold <= 0 {
		t.ProgressThreshold = d.ProgressThreshold
	}
	return t
}

// TechnicianDaily is one technician's performance for one date.
type TechnicianDaily struct {
	Productivity      float64 `json:"productivity"`
	AverageEfficiency float64 `json:"average_efficiency"`
	Utilization       float64 `json:"utilization"`
	TasksCompleted    int     `json:"tasks_completed"`
	Date              string  `json:"date"`
}

// CalculateTechnicianDaily computes productivity (earned standard time over
// shift capacity), utilization (worked time over shift capacity), and
// efficiency (per-task standard/actual averaged across tasks, not a pooled
// ratio, so outliers weigh per-task) for tasks the technician finished on
// the given date.
func CalculateTechnicianDaily(db *sql.DB, technicianID int, date string, th Thresholds) (TechnicianDaily, error) {
	th = th.withDefaults()
	out := TechnicianDaily{Date: date}

	rows, err := db.Query(`SELECT standard_time_seconds, actual_time_seconds
		FROM tasks
		WHERE technician_id = ? AND end_time IS NOT NULL AND date(end_time) = ?
		  AND actual_time_seconds IS NOT NULL`, technicianID, date)
	if err != nil {
		return out, err
	}
	defer rows.Close()

	var totalStandard, totalActual int
	var efficiencies []float64
	for rows.Next() {
		var std, act int
		if err := rows.Scan(&std, &act); err != nil {
			return out, err
		}
		totalStandard += std
		totalActual += act
		if act > 0 {
			efficiencies = append(efficiencies, float64(std)/float64(act)*100.0)
		}
	}
	if err := rows.Err(); err != nil {
		return out, err
	}
	if len(efficiencies) == 0 {
		return out, nil
	}

	capacity := float64(th.ShiftCapacitySeconds)
	out.Productivity = round2(float64(totalStandard) / capacity * 100.0)
	out.Utilization = round2(float64(totalActual) / capacity * 100.0)
	var sum float64
	for _, e := range efficiencies {
		sum += e
	}
	out.AverageEfficiency = round2(sum / float64(len(efficiencies)))
	out.TasksCompleted = len(efficiencies)
	return out, nil
}

// JobOrderProgress is the device-level completion state of a job order.
type JobOrderProgress struct {
	ProgressPercent float64 `json:"progress_percent"`
	TotalCompleted  int     `json:"total_completed"`
	TotalRejected   int     `json:"total_rejected"`
	TotalDevices    int     `json:"total_devices"`
}

// CalculateJobOrderProgress derives progress from device statuses:
// completed devices over all devices, with rejected counted separately.
func CalculateJobOrderProgress(db *sql.DB, jobOrderID int) (JobOrderProgress, error) {
	var p JobOrderProgress
	err := db.QueryRow(`SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN current_status = 'completed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN current_status = 'rejected' THEN 1 ELSE 0 END), 0)
		FROM devices WHERE job_order_id = ?`, jobOrderID).
		Scan(&p.TotalDevices, &p.TotalCompleted, &p.TotalRejected)
	if err != nil {
		return p, err
	}
	if p.TotalDevices > 0 {
		p.ProgressPercent = round2(float64(p.TotalCompleted) / float64(p.TotalDevices) * 100.0)
	}
	return p, nil
}

// Alert is an active warning surfaced by the aggregator.
type Alert struct {
	Type         string  `json:"type"`
	Message      string  `json:"message"`
	TaskID       int     `json:"task_id,omitempty"`
	TechnicianID int     `json:"technician_id,omitempty"`
	JobOrderID   int     `json:"job_order_id,omitempty"`
	DueDate      string  `json:"due_date,omitempty"`
	Progress     float64 `json:"progress,omitempty"`
}

// CheckAlerts returns active alerts for a job order. A low_efficiency alert
// fires for the first finished task below the threshold (at most one per
// query). A due_date_risk alert fires when the order is due within the
// window and progress is below the floor; it is skipped when the check is
// scoped to a single technician. now anchors the due-date window.
func CheckAlerts(db *sql.DB, jobOrderID int, technicianID *int, now time.Time, th Thresholds) ([]Alert, error) {
	th = th.withDefaults()
	alerts := []Alert{}

	query := `SELECT t.id, t.standard_time_seconds, t.actual_time_seconds,
			COALESCE(t.technician_id, 0), COALESCE(u.username, '')
		FROM tasks t
		LEFT JOIN users u ON u.id = t.technician_id
		WHERE t.job_order_id = ? AND t.actual_time_seconds IS NOT NULL AND t.actual_time_seconds > 0`
	args := []any{jobOrderID}
	if technicianID != nil {
		query += " AND t.technician_id = ?"
		args = append(args, *technicianID)
	}
	query += " ORDER BY t.id"

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id, std, act, techID int
		var username string
		if err := rows.Scan(&id, &std, &act, &techID, &username); err != nil {
			return nil, err
		}
		efficiency := float64(std) / float64(act) * 100.0
		if efficiency < th.EfficiencyThreshold {
			alerts = append(alerts, Alert{
				Type:         "low_efficiency",
				Message:      fmt.Sprintf("Task %d (Technician: %s) has low efficiency: %.1f%%.", id, username, efficiency),
				TaskID:       id,
				TechnicianID: techID,
			})
			// One low-efficiency alert per query is enough.
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Release the connection before the due-date queries; a held rows
	// handle pins it and stalls a single-connection pool.
	rows.Close()

	if technicianID == nil {
		var dueDate, status string
		err := db.QueryRow("SELECT due_date, status FROM job_orders WHERE id = ?", jobOrderID).Scan(&dueDate, &status)
		if err != nil && err != sql.ErrNoRows {
			return nil, err
		}
		if err == nil && dueDate != "" && status != "done" {
			due, perr := time.Parse("2006-01-02", dueDate)
			deadline := now.AddDate(0, 0, th.DueDateWindowDays)
			if perr == nil && !due.After(deadline) {
				progress, err := CalculateJobOrderProgress(db, jobOrderID)
				if err != nil {
					return nil, err
				}
				if progress.ProgressPercent < th.ProgressThreshold {
					alerts = append(alerts, Alert{
						Type: "due_date_risk",
						Message: fmt.Sprintf("Job Order %d is due on %s but is only %.1f%% complete.",
							jobOrderID, dueDate, progress.ProgressPercent),
						JobOrderID: jobOrderID,
						DueDate:    dueDate,
						Progress:   progress.ProgressPercent,
					})
				}
			}
		}
	}
	return alerts, nil
}

// PlannerStatistics is the planner dashboard snapshot.
type PlannerStatistics struct {
	ActiveJobOrders       int     `json:"active_job_orders"`
	DueThisWeek           int     `json:"due_this_week"`
	AvgProductivity       float64 `json:"avg_productivity"`
	ActiveTechnicians     int     `json:"active_technicians"`
	TotalTechnicians      int     `json:"total_technicians"`
	TechnicianUtilization float64 `json:"technician_utilization"`
	OverdueTasks          int     `json:"overdue_tasks"`
	PendingReviews        int     `json:"pending_reviews"`
}

// CalculatePlannerStatistics aggregates the planner dashboard counters for
// the date carried by now.
func CalculatePlannerStatistics(db *sql.DB, now time.Time) (PlannerStatistics, error) {
	var s PlannerStatistics
	today := now.Format("2006-01-02")
	weekFromNow := now.AddDate(0, 0, 7).Format("2006-01-02")

	err := db.QueryRow("SELECT COUNT(*) FROM job_orders WHERE status IN ('available', 'in_progress')").
		Scan(&s.ActiveJobOrders)
	if err != nil {
		return s, err
	}
	err = db.QueryRow(`SELECT COUNT(*) FROM job_orders
		WHERE due_date >= ? AND due_date <= ? AND status IN ('available', 'in_progress')`,
		today, weekFromNow).Scan(&s.DueThisWeek)
	if err != nil {
		return s, err
	}

	var totalStandard, totalActual sql.NullInt64
	err = db.QueryRow(`SELECT SUM(standard_time_seconds), SUM(actual_time_seconds)
		FROM tasks
		WHERE end_time IS NOT NULL AND date(end_time) = ?
		  AND actual_time_seconds IS NOT NULL AND standard_time_seconds > 0`, today).
		Scan(&totalStandard, &totalActual)
	if err != nil {
		return s, err
	}
	if totalActual.Valid && totalActual.Int64 > 0 {
		s.AvgProductivity = round2(float64(totalStandard.Int64) / float64(totalActual.Int64) * 100.0)
	}

	err = db.QueryRow(`SELECT COUNT(DISTINCT technician_id) FROM tasks
		WHERE technician_id IS NOT NULL AND start_time IS NOT NULL AND date(start_time) = ?`, today).
		Scan(&s.ActiveTechnicians)
	if err != nil {
		return s, err
	}
	err = db.QueryRow(`SELECT COUNT(*) FROM users
		WHERE role IN ('technician', 'quality', 'tester') AND active = 1`).Scan(&s.TotalTechnicians)
	if err != nil {
		return s, err
	}
	if s.TotalTechnicians > 0 {
		s.TechnicianUtilization = round2(float64(s.ActiveTechnicians) / float64(s.TotalTechnicians) * 100.0)
	}

	err = db.QueryRow(`SELECT COUNT(*) FROM tasks t
		JOIN job_orders jo ON jo.id = t.job_order_id
		WHERE t.status IN ('available', 'in_progress') AND jo.due_date < ?`, today).
		Scan(&s.OverdueTasks)
	if err != nil {
		return s, err
	}
	err = db.QueryRow("SELECT COUNT(*) FROM tasks WHERE status = 'pending_supervisor'").Scan(&s.PendingReviews)
	if err != nil {
		return s, err
	}
	return s, nil
}

// SnapshotTechnicianDaily caches a technician's daily metrics into
// performance_metrics, unique per (technician, job order, date). The cache
// is derivable and never authoritative.
func SnapshotTechnicianDaily(db *sql.DB, technicianID int, jobOrderID *int, date string, m TechnicianDaily) error {
	_, err := db.Exec(`INSERT INTO performance_metrics (job_order_id, technician_id, date, productivity, efficiency, utilization)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_order_id, technician_id, date)
		DO UPDATE SET productivity = excluded.productivity,
			efficiency = excluded.efficiency,
			utilization = excluded.utilization`,
		jobOrderID, technicianID, date, m.Productivity, m.AverageEfficiency, m.Utilization)
	return err
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
