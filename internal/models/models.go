package models

// APIResponse is the standard envelope for successful responses.
type APIResponse struct {
	Data interface{} `json:"data"`
	Meta *Meta       `json:"meta,omitempty"`
}

// Meta carries pagination metadata.
type Meta struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

// User is an account with a workshop role.
type User struct {
	ID        int    `json:"id"`
	Username  string `json:"username"`
	FullName  string `json:"full_name"`
	Role      string `json:"role"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"created_at"`
}

// Job is a reusable template defining an ordered list of process steps.
type Job struct {
	ID          int       `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Processes   []Process `json:"processes,omitempty"`
	CreatedAt   string    `json:"created_at"`
	UpdatedAt   string    `json:"updated_at"`
}

// Process is one step template within a Job.
type Process struct {
	ID                  int    `json:"id"`
	JobID               int    `json:"job_id"`
	OperationName       string `json:"operation_name"`
	StandardTimeSeconds int    `json:"standard_time_seconds"`
	TaskType            string `json:"task_type"`
	StepOrder           int    `json:"step_order"`
}

// JobOrder is a production batch instance of a Job.
type JobOrder struct {
	ID           int    `json:"id"`
	JobID        *int   `json:"job_id"`
	OrderCode    string `json:"order_code"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	TotalDevices int    `json:"total_devices"`
	DueDate      string `json:"due_date"`
	CreatedBy    *int   `json:"created_by"`
	Status       string `json:"status"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

// Device is one physical unit being processed within a JobOrder.
type Device struct {
	ID            int    `json:"id"`
	JobOrderID    int    `json:"job_order_id"`
	SerialNumber  string `json:"serial_number"`
	CurrentStatus string `json:"current_status"`
	CreatedAt     string `json:"created_at"`
	LastUpdated   string `json:"last_updated"`
}

// Task is one (Device x Process) unit of work tracked through the approval workflow.
type Task struct {
	ID                  int      `json:"id"`
	ProcessID           *int     `json:"process_id"`
	DeviceID            int      `json:"device_id"`
	DeviceSerial        string   `json:"device_serial,omitempty"`
	JobOrderID          int      `json:"job_order_id"`
	OrderCode           string   `json:"order_code,omitempty"`
	TechnicianID        *int     `json:"technician_id"`
	OperationName       string   `json:"operation_name"`
	StandardTimeSeconds int      `json:"standard_time_seconds"`
	TaskType            string   `json:"task_type"`
	StartTime           *string  `json:"start_time"`
	EndTime             *string  `json:"end_time"`
	ActualTimeSeconds   *int     `json:"actual_time_seconds"`
	Status              string   `json:"status"`
	Notes               string   `json:"notes"`
	Efficiency          *float64 `json:"efficiency"`
	CreatedAt           string   `json:"created_at"`
	UpdatedAt           string   `json:"updated_at"`
}

// Inspection is the quality-stage review record for a Task.
type Inspection struct {
	ID          int    `json:"id"`
	TaskID      int    `json:"task_id"`
	DeviceID    int    `json:"device_id"`
	InspectorID *int   `json:"inspector_id"`
	Decision    string `json:"decision"`
	Comments    string `json:"comments"`
	CreatedAt   string `json:"created_at"`
}

// TesterReview is the tester-stage decision record for a Task.
type TesterReview struct {
	ID        int    `json:"id"`
	TaskID    int    `json:"task_id"`
	TesterID  *int   `json:"tester_id"`
	Decision  string `json:"decision"`
	Comments  string `json:"comments"`
	CreatedAt string `json:"created_at"`
}

// SupervisorReview is the final decision record, tied to an Inspection.
type SupervisorReview struct {
	ID           int    `json:"id"`
	InspectionID int    `json:"inspection_id"`
	SupervisorID *int   `json:"supervisor_id"`
	Decision     string `json:"decision"`
	Comments     string `json:"comments"`
	CreatedAt    string `json:"created_at"`
}

// Notification is a fire-and-forget message to one user.
type Notification struct {
	ID        int    `json:"id"`
	UserID    int    `json:"user_id"`
	Type      string `json:"type"`
	Message   string `json:"message"`
	Payload   string `json:"payload"`
	Read      bool   `json:"read"`
	CreatedAt string `json:"created_at"`
}

// PerformanceMetric is a cached daily snapshot per (technician, job order, date).
// Never authoritative; always recomputable from task history.
type PerformanceMetric struct {
	ID           int      `json:"id"`
	JobOrderID   *int     `json:"job_order_id"`
	TechnicianID int      `json:"technician_id"`
	Date         string   `json:"date"`
	Productivity *float64 `json:"productivity"`
	Efficiency   *float64 `json:"efficiency"`
	Utilization  *float64 `json:"utilization"`
	CreatedAt    string   `json:"created_at"`
}
