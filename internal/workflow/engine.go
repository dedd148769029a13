package workflow

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"joddb/internal/models"
	"joddb/internal/notify"
)

const timeFormat = "2006-01-02 15:04:05"

// Engine applies workflow transitions. Each operation validates the actor's
// role and the task's current state, mutates task/device/review rows in a
// single transaction, and hands the collected notifications to the Notifier
// after commit.
type Engine struct {
	DB       *sql.DB
	Notifier *notify.Service

	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// now returns the engine clock in UTC. Times are stored as UTC
// "2006-01-02 15:04:05" strings so they compare cleanly against
// CURRENT_TIMESTAMP and date() in SQL.
func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

// taskRow is the engine's working view of a task joined with its device and
// job order.
type taskRow struct {
	ID                  int
	ProcessID           sql.NullInt64
	DeviceID            int
	DeviceSerial        string
	DeviceStatus        string
	JobOrderID          int
	OrderCode           string
	TechnicianID        sql.NullInt64
	OperationName       string
	StandardTimeSeconds int
	TaskType            string
	// DATETIME columns come back from the driver as time.Time, so they
	// scan through NullTime rather than NullString.
	StartTime           sql.NullTime
	EndTime             sql.NullTime
	ActualTimeSeconds   sql.NullInt64
	Status              Status
	Notes               string
}

func loadTask(tx *sql.Tx, id int) (*taskRow, error) {
	var t taskRow
	var status string
	err := tx.QueryRow(`SELECT t.id, t.process_id, t.device_id, d.serial_number, d.current_status,
			t.job_order_id, jo.order_code, t.technician_id, t.operation_name, t.standard_time_seconds,
			t.task_type, t.start_time, t.end_time, t.actual_time_seconds, t.status, COALESCE(t.notes,'')
		FROM tasks t
		JOIN devices d ON d.id = t.device_id
		JOIN job_orders jo ON jo.id = t.job_order_id
		WHERE t.id = ?`, id).
		Scan(&t.ID, &t.ProcessID, &t.DeviceID, &t.DeviceSerial, &t.DeviceStatus,
			&t.JobOrderID, &t.OrderCode, &t.TechnicianID, &t.OperationName, &t.StandardTimeSeconds,
			&t.TaskType, &t.StartTime, &t.EndTime, &t.ActualTimeSeconds, &status, &t.Notes)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Entity: "task", ID: id}
	}
	if err != nil {
		return nil, err
	}
	t.Status = Status(status)
	return &t, nil
}

func setTaskStatus(tx *sql.Tx, id int, status Status, now string) error {
	_, err := tx.Exec("UPDATE tasks SET status = ?, updated_at = ? WHERE id = ?", string(status), now, id)
	return err
}

func setDeviceStatus(tx *sql.Tx, id int, status DeviceStatus, now string) error {
	_, err := tx.Exec("UPDATE devices SET current_status = ?, last_updated = ? WHERE id = ?", string(status), now, id)
	return err
}

// Start assigns the task to the acting technician and begins timing.
func (e *Engine) Start(taskID int, actor models.User) (*models.Task, error) {
	if !Allowed(TransitionStart, Role(actor.Role)) {
		return nil, &AuthorizationError{Role: Role(actor.Role), Transition: TransitionStart}
	}

	tx, err := e.DB.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	t, err := loadTask(tx, taskID)
	if err != nil {
		return nil, err
	}
	if t.Status != StatusAvailable {
		return nil, &ConflictError{Current: t.Status, Reason: "task cannot be started"}
	}
	if t.TechnicianID.Valid {
		return nil, &ConflictError{Current: t.Status, Reason: "task already has an assigned technician"}
	}

	now := e.now().Format(timeFormat)
	_, err = tx.Exec("UPDATE tasks SET technician_id = ?, start_time = ?, status = ?, updated_at = ? WHERE id = ?",
		actor.ID, now, string(StatusInProgress), now, taskID)
	if err != nil {
		return nil, err
	}
	if err := setDeviceStatus(tx, t.DeviceID, DeviceInProgress, now); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return e.GetTask(taskID)
}

// End stops timing, derives actual time, moves the task to pending_qa,
// creates the pending Inspection, and notifies quality, tester, and
// supervisor users.
func (e *Engine) End(taskID int, actor models.User) (*models.Task, error) {
	if !Allowed(TransitionEnd, Role(actor.Role)) {
		return nil, &AuthorizationError{Role: Role(actor.Role), Transition: TransitionEnd}
	}

	tx, err := e.DB.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	t, err := loadTask(tx, taskID)
	if err != nil {
		return nil, err
	}
	if t.Status != StatusInProgress {
		return nil, &ConflictError{Current: t.Status, Reason: "task cannot be ended"}
	}
	if !t.TechnicianID.Valid || int(t.TechnicianID.Int64) != actor.ID {
		return nil, &ConflictError{Current: t.Status, Reason: "you are not the assigned technician for this task"}
	}
	if !t.StartTime.Valid {
		return nil, &ValidationError{Field: "start_time", Reason: "missing; cannot calculate duration"}
	}

	endAt := e.now()
	actual := int(endAt.Sub(t.StartTime.Time).Seconds())
	now := endAt.Format(timeFormat)

	_, err = tx.Exec("UPDATE tasks SET end_time = ?, actual_time_seconds = ?, status = ?, updated_at = ? WHERE id = ?",
		now, actual, string(StatusPendingQA), now, taskID)
	if err != nil {
		return nil, err
	}
	if err := setDeviceStatus(tx, t.DeviceID, DeviceCompleted, now); err != nil {
		return nil, err
	}

	res, err := tx.Exec("INSERT INTO inspections (task_id, device_id, inspector_id, decision, comments) VALUES (?, ?, NULL, ?, ?)",
		taskID, t.DeviceID, string(DecisionPending), "Awaiting quality inspection")
	if err != nil {
		return nil, err
	}
	inspID, _ := res.LastInsertId()

	msgs, err := e.endNotifications(tx, t, actor, int(inspID))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	e.dispatch(msgs)
	return e.GetTask(taskID)
}

func (e *Engine) endNotifications(tx *sql.Tx, t *taskRow, actor models.User, inspectionID int) ([]notify.Message, error) {
	payload := map[string]any{
		"task_id":        t.ID,
		"job_order_code": t.OrderCode,
		"device_serial":  t.DeviceSerial,
		"inspection_id":  inspectionID,
	}
	var msgs []notify.Message

	quality, err := notify.ActiveUserIDs(tx, string(RoleQuality))
	if err != nil {
		return nil, err
	}
	for _, id := range quality {
		msgs = append(msgs, notify.Message{
			UserID:  id,
			Type:    notify.TypeTaskReadyForInspection,
			Message: fmt.Sprintf("Task #%d on device %s is ready for quality inspection.", t.ID, t.DeviceSerial),
			Payload: payload,
		})
	}

	testers, err := notify.ActiveUserIDs(tx, string(RoleTester))
	if err != nil {
		return nil, err
	}
	for _, id := range testers {
		msgs = append(msgs, notify.Message{
			UserID:  id,
			Type:    notify.TypeTaskReadyForTesting,
			Message: fmt.Sprintf("Task #%d on device %s is ready for testing verification.", t.ID, t.DeviceSerial),
			Payload: payload,
		})
	}

	supervisors, err := notify.ActiveUserIDs(tx, string(RoleSupervisor))
	if err != nil {
		return nil, err
	}
	for _, id := range supervisors {
		msgs = append(msgs, notify.Message{
			UserID: id,
			Type:   notify.TypeTaskCompleted,
			Message: fmt.Sprintf("Task #%d completed by %s. Device: %s",
				t.ID, actor.FullName, t.DeviceSerial),
			Payload: payload,
		})
	}
	return msgs, nil
}

// QADecision records the quality inspector's verdict on the task's live
// pending inspection: the row is updated in place, never duplicated.
func (e *Engine) QADecision(taskID int, actor models.User, decision Decision, comments string) (*models.Task, error) {
	if !Allowed(TransitionQADecision, Role(actor.Role)) {
		return nil, &AuthorizationError{Role: Role(actor.Role), Transition: TransitionQADecision}
	}
	if err := validateDecision(decision, comments); err != nil {
		return nil, err
	}

	tx, err := e.DB.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	t, err := loadTask(tx, taskID)
	if err != nil {
		return nil, err
	}
	if t.Status != StatusPendingQA {
		return nil, &ConflictError{Current: t.Status, Reason: "task is not awaiting quality inspection"}
	}

	var inspID int
	err = tx.QueryRow("SELECT id FROM inspections WHERE task_id = ? AND decision = ? ORDER BY created_at DESC, id DESC LIMIT 1",
		taskID, string(DecisionPending)).Scan(&inspID)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Entity: "pending inspection for task", ID: taskID}
	}
	if err != nil {
		return nil, err
	}

	now := e.now().Format(timeFormat)
	_, err = tx.Exec("UPDATE inspections SET inspector_id = ?, decision = ?, comments = ?, created_at = ? WHERE id = ?",
		actor.ID, string(decision), comments, now, inspID)
	if err != nil {
		return nil, err
	}

	var msgs []notify.Message
	payload := map[string]any{
		"task_id":        t.ID,
		"job_order_code": t.OrderCode,
		"device_serial":  t.DeviceSerial,
	}
	switch decision {
	case DecisionAccepted:
		if err := setTaskStatus(tx, taskID, StatusPendingTester, now); err != nil {
			return nil, err
		}
		testers, err := notify.ActiveUserIDs(tx, string(RoleTester))
		if err != nil {
			return nil, err
		}
		for _, id := range testers {
			msgs = append(msgs, notify.Message{
				UserID:  id,
				Type:    notify.TypeTaskReadyForTesting,
				Message: fmt.Sprintf("Task #%d passed QA inspection and is ready for final testing.", t.ID),
				Payload: payload,
			})
		}
	case DecisionRejected:
		if err := setTaskStatus(tx, taskID, StatusRejected, now); err != nil {
			return nil, err
		}
		if err := setDeviceStatus(tx, t.DeviceID, DeviceRejected, now); err != nil {
			return nil, err
		}
		if t.TechnicianID.Valid {
			msgs = append(msgs, notify.Message{
				UserID:  int(t.TechnicianID.Int64),
				Type:    notify.TypeTaskRejected,
				Message: fmt.Sprintf("Task #%d was rejected by QA Inspector: %s", t.ID, truncate(comments, 50)),
				Payload: map[string]any{"task_id": t.ID, "job_order_code": t.OrderCode, "inspection_id": inspID},
			})
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	e.dispatch(msgs)
	return e.GetTask(taskID)
}

// TesterDecision records the tester's verdict as a new TesterReview row.
func (e *Engine) TesterDecision(taskID int, actor models.User, decision Decision, comments string) (*models.Task, error) {
	if !Allowed(TransitionTesterDecision, Role(actor.Role)) {
		return nil, &AuthorizationError{Role: Role(actor.Role), Transition: TransitionTesterDecision}
	}
	if err := validateDecision(decision, comments); err != nil {
		return nil, err
	}

	tx, err := e.DB.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	t, err := loadTask(tx, taskID)
	if err != nil {
		return nil, err
	}
	if t.Status != StatusPendingTester {
		return nil, &ConflictError{Current: t.Status, Reason: "task is not awaiting tester verification"}
	}

	now := e.now().Format(timeFormat)
	_, err = tx.Exec("INSERT INTO tester_reviews (task_id, tester_id, decision, comments) VALUES (?, ?, ?, ?)",
		taskID, actor.ID, string(decision), comments)
	if err != nil {
		return nil, err
	}

	var msgs []notify.Message
	payload := map[string]any{
		"task_id":        t.ID,
		"job_order_code": t.OrderCode,
		"device_serial":  t.DeviceSerial,
	}
	switch decision {
	case DecisionAccepted:
		if err := setTaskStatus(tx, taskID, StatusPendingSupervisor, now); err != nil {
			return nil, err
		}
		supervisors, err := notify.ActiveUserIDs(tx, string(RoleSupervisor))
		if err != nil {
			return nil, err
		}
		for _, id := range supervisors {
			msgs = append(msgs, notify.Message{
				UserID:  id,
				Type:    notify.TypeTaskReadyForSupervisor,
				Message: fmt.Sprintf("Task #%d passed tester inspection and is ready for your final review.", t.ID),
				Payload: payload,
			})
		}
	case DecisionRejected:
		if err := setTaskStatus(tx, taskID, StatusRejected, now); err != nil {
			return nil, err
		}
		if err := setDeviceStatus(tx, t.DeviceID, DeviceRejected, now); err != nil {
			return nil, err
		}
		if t.TechnicianID.Valid {
			msgs = append(msgs, notify.Message{
				UserID:  int(t.TechnicianID.Int64),
				Type:    notify.TypeTaskRejected,
				Message: fmt.Sprintf("Task #%d was rejected during tester inspection: %s", t.ID, truncate(comments, 50)),
				Payload: map[string]any{"task_id": t.ID, "job_order_code": t.OrderCode},
			})
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	e.dispatch(msgs)
	return e.GetTask(taskID)
}

// SupervisorDecision records the final verdict against an inspection's task.
// Accepted closes the task as supervisor_approved; rejected sinks it.
func (e *Engine) SupervisorDecision(inspectionID int, actor models.User, decision Decision, comments string) (*models.Task, error) {
	if !Allowed(TransitionSupervisorDecision, Role(actor.Role)) {
		return nil, &AuthorizationError{Role: Role(actor.Role), Transition: TransitionSupervisorDecision}
	}
	if decision != DecisionAccepted && decision != DecisionRejected {
		return nil, &ValidationError{Field: "decision", Reason: "must be accepted or rejected"}
	}

	tx, err := e.DB.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var taskID int
	err = tx.QueryRow("SELECT task_id FROM inspections WHERE id = ?", inspectionID).Scan(&taskID)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Entity: "inspection", ID: inspectionID}
	}
	if err != nil {
		return nil, err
	}
	t, err := loadTask(tx, taskID)
	if err != nil {
		return nil, err
	}

	now := e.now().Format(timeFormat)
	_, err = tx.Exec("INSERT INTO supervisor_reviews (inspection_id, supervisor_id, decision, comments) VALUES (?, ?, ?, ?)",
		inspectionID, actor.ID, string(decision), comments)
	if err != nil {
		return nil, err
	}

	var msgs []notify.Message
	payload := map[string]any{"task_id": t.ID, "job_order_code": t.OrderCode}
	switch decision {
	case DecisionAccepted:
		if err := setTaskStatus(tx, taskID, StatusSupervisorApproved, now); err != nil {
			return nil, err
		}
		if err := setDeviceStatus(tx, t.DeviceID, DeviceCompleted, now); err != nil {
			return nil, err
		}
		if t.TechnicianID.Valid {
			msgs = append(msgs, notify.Message{
				UserID:  int(t.TechnicianID.Int64),
				Type:    notify.TypeTaskCompleted,
				Message: fmt.Sprintf("Task #%d completed successfully after supervisor review.", t.ID),
				Payload: payload,
			})
		}
		testers, err := notify.ActiveUserIDs(tx, string(RoleTester))
		if err != nil {
			return nil, err
		}
		for _, id := range testers {
			msgs = append(msgs, notify.Message{
				UserID:  id,
				Type:    notify.TypeTaskCompleted,
				Message: fmt.Sprintf("Task #%d completed after supervisor review.", t.ID),
				Payload: map[string]any{"task_id": t.ID, "job_order_code": t.OrderCode, "device_serial": t.DeviceSerial},
			})
		}
	case DecisionRejected:
		if err := setTaskStatus(tx, taskID, StatusRejected, now); err != nil {
			return nil, err
		}
		if err := setDeviceStatus(tx, t.DeviceID, DeviceRejected, now); err != nil {
			return nil, err
		}
		if t.TechnicianID.Valid {
			msgs = append(msgs, notify.Message{
				UserID:  int(t.TechnicianID.Int64),
				Type:    notify.TypeTaskRejected,
				Message: fmt.Sprintf("Task #%d was rejected during supervisor review: %s", t.ID, truncate(comments, 50)),
				Payload: payload,
			})
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	e.dispatch(msgs)
	return e.GetTask(taskID)
}

func (e *Engine) dispatch(msgs []notify.Message) {
	if e.Notifier == nil || len(msgs) == 0 {
		return
	}
	e.Notifier.Dispatch(msgs)
}

func validateDecision(decision Decision, comments string) error {
	switch decision {
	case DecisionAccepted:
		return nil
	case DecisionRejected:
		if strings.TrimSpace(comments) == "" {
			return &ValidationError{Field: "comments", Reason: "required when rejecting"}
		}
		return nil
	default:
		return &ValidationError{Field: "decision", Reason: "must be accepted or rejected"}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
