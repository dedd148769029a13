// Package fanout materializes the devices and tasks of a newly created job
// order from its job's ordered process templates. It runs exactly once, as
// an explicit step inside the job-order creation transaction.
package fanout

import (
	"database/sql"
	"errors"
	"fmt"

	"joddb/internal/models"
	"joddb/internal/workflow"
)

// ErrAlreadyGenerated is returned when the job order already has devices;
// fan-out never runs twice for the same order.
var ErrAlreadyGenerated = errors.New("fanout: job order already has devices")

// Result reports what a fan-out created.
type Result struct {
	Devices int `json:"devices"`
	Tasks   int `json:"tasks"`
}

// Generate creates one device per unit (serial "{order_code}-{i:04d}",
// status pending) and one available task per (device, process) pair,
// copying operation name, standard time, and task type from the template.
// A job with no processes is a no-op.
func Generate(tx *sql.Tx, order models.JobOrder, processes []models.Process) (Result, error) {
	var res Result
	if len(processes) == 0 {
		return res, nil
	}

	var existing int
	if err := tx.QueryRow("SELECT COUNT(*) FROM devices WHERE job_order_id = ?", order.ID).Scan(&existing); err != nil {
		return res, err
	}
	if existing > 0 {
		return res, ErrAlreadyGenerated
	}

	insDevice, err := tx.Prepare("INSERT INTO devices (job_order_id, serial_number, current_status) VALUES (?, ?, ?)")
	if err != nil {
		return res, err
	}
	defer insDevice.Close()

	insTask, err := tx.Prepare(`INSERT INTO tasks
		(process_id, device_id, job_order_id, operation_name, standard_time_seconds, task_type, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return res, err
	}
	defer insTask.Close()

	for i := 1; i <= order.TotalDevices; i++ {
		serial := fmt.Sprintf("%s-%04d", order.OrderCode, i)
		dres, err := insDevice.Exec(order.ID, serial, string(workflow.DevicePending))
		if err != nil {
			return res, fmt.Errorf("fanout: device %s: %w", serial, err)
		}
		deviceID, _ := dres.LastInsertId()
		res.Devices++

		for _, p := range processes {
			_, err := insTask.Exec(p.ID, deviceID, order.ID,
				p.OperationName, p.StandardTimeSeconds, p.TaskType, string(workflow.StatusAvailable))
			if err != nil {
				return res, fmt.Errorf("fanout: task for %s step %d: %w", serial, p.StepOrder, err)
			}
			res.Tasks++
		}
	}
	return res, nil
}

// ProcessesForJob loads a job's process templates in workflow order.
func ProcessesForJob(q interface {
	Query(query string, args ...any) (*sql.Rows, error)
}, jobID int) ([]models.Process, error) {
	rows, err := q.Query(`SELECT id, job_id, operation_name, standard_time_seconds, task_type, step_order
		FROM processes WHERE job_id = ? ORDER BY step_order`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var procs []models.Process
	for rows.Next() {
		var p models.Process
		if err := rows.Scan(&p.ID, &p.JobID, &p.OperationName, &p.StandardTimeSeconds, &p.TaskType, &p.StepOrder); err != nil {
			return nil, err
		}
		procs = append(procs, p)
	}
	return procs, rows.Err()
}
