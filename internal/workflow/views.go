package workflow

import (
	"database/sql"

	"joddb/internal/database"
	"joddb/internal/models"
)

const taskSelect = `SELECT t.id, t.process_id, t.device_id, d.serial_number, t.job_order_id, jo.order_code,
	t.technician_id, t.operation_name, t.standard_time_seconds, t.task_type,
	t.start_time, t.end_time, t.actual_time_seconds, t.status, COALESCE(t.notes,''),
	t.created_at, t.updated_at
FROM tasks t
JOIN devices d ON d.id = t.device_id
JOIN job_orders jo ON jo.id = t.job_order_id`

func scanTask(scan func(dest ...any) error) (*models.Task, error) {
	var t models.Task
	var processID, technicianID, actual sql.NullInt64
	var start, end sql.NullTime
	err := scan(&t.ID, &processID, &t.DeviceID, &t.DeviceSerial, &t.JobOrderID, &t.OrderCode,
		&technicianID, &t.OperationName, &t.StandardTimeSeconds, &t.TaskType,
		&start, &end, &actual, &t.Status, &t.Notes,
		&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.ProcessID = database.IP(processID)
	t.TechnicianID = database.IP(technicianID)
	t.ActualTimeSeconds = database.IP(actual)
	t.StartTime = database.TP(start)
	t.EndTime = database.TP(end)
	t.Efficiency = Efficiency(t.StandardTimeSeconds, t.ActualTimeSeconds)
	return &t, nil
}

// GetTask loads one task with its derived efficiency.
func (e *Engine) GetTask(id int) (*models.Task, error) {
	row := e.DB.QueryRow(taskSelect+" WHERE t.id = ?", id)
	t, err := scanTask(row.Scan)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Entity: "task", ID: id}
	}
	return t, err
}

// ListTasksForRole returns the task subset visible to the user, a pure
// read-side policy:
//
//	technician: available technician-typed tasks plus their own
//	            in_progress/rejected work
//	quality:    pending_qa
//	tester:     pending_tester
//	supervisor: pending_supervisor and tester_approved (the latter is not
//	            produced by any transition; kept for parity with the
//	            original system's supervisor view)
//	planning,
//	admin:      everything
func ListTasksForRole(db *sql.DB, user models.User) ([]models.Task, error) {
	var where string
	var args []any
	switch Role(user.Role) {
	case RoleTechnician:
		where = " WHERE (t.status = ? AND t.task_type = ?) OR (t.technician_id = ? AND t.status IN (?, ?))"
		args = []any{string(StatusAvailable), string(RoleTechnician), user.ID,
			string(StatusInProgress), string(StatusRejected)}
	case RoleQuality:
		where = " WHERE t.status = ?"
		args = []any{string(StatusPendingQA)}
	case RoleTester:
		where = " WHERE t.status = ?"
		args = []any{string(StatusPendingTester)}
	case RoleSupervisor:
		where = " WHERE t.status IN (?, ?)"
		args = []any{string(StatusTesterApproved), string(StatusPendingSupervisor)}
	case RolePlanning, RoleAdmin:
		where = ""
	default:
		return []models.Task{}, nil
	}

	rows, err := db.Query(taskSelect+where+" ORDER BY t.created_at DESC, t.id DESC", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := []models.Task{}
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// StatusSummary returns task counts per status, with zeroes for statuses
// that have no tasks.
func StatusSummary(db *sql.DB) (map[string]int, error) {
	summary := make(map[string]int, len(allStatuses))
	for _, s := range allStatuses {
		summary[string(s)] = 0
	}
	rows, err := db.Query("SELECT status, COUNT(*) FROM tasks GROUP BY status")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		summary[status] = count
	}
	return summary, rows.Err()
}
