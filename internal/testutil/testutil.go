// Package testutil provides the in-memory database scaffolding shared by
// package tests: full production schema, role-seeded users, and small
// fixture helpers.
package testutil

import (
	"database/sql"
	"testing"

	"joddb/internal/models"

	_ "modernc.org/sqlite"
)

// Schema is the production DDL, mirrored here so tests exercise the same
// constraints (checks, uniques, FK actions) the server runs with.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		full_name TEXT DEFAULT '',
		role TEXT NOT NULL DEFAULT 'technician' CHECK(role IN ('technician','quality','tester','supervisor','planning','admin')),
		active INTEGER DEFAULT 1,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		token TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		expires_at DATETIME NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS jobs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT UNIQUE NOT NULL,
		description TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS processes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id INTEGER NOT NULL,
		operation_name TEXT NOT NULL,
		standard_time_seconds INTEGER NOT NULL CHECK(standard_time_seconds > 0),
		task_type TEXT NOT NULL DEFAULT 'technician' CHECK(task_type IN ('technician','quality','tester')),
		step_order INTEGER NOT NULL,
		UNIQUE(job_id, step_order),
		FOREIGN KEY (job_id) REFERENCES jobs(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS job_orders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id INTEGER,
		order_code TEXT UNIQUE NOT NULL,
		title TEXT NOT NULL,
		description TEXT DEFAULT '',
		total_devices INTEGER NOT NULL CHECK(total_devices > 0),
		due_date TEXT NOT NULL,
		created_by INTEGER,
		status TEXT DEFAULT 'available' CHECK(status IN ('available','in_progress','done','rejected','archived')),
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (job_id) REFERENCES jobs(id) ON DELETE RESTRICT,
		FOREIGN KEY (created_by) REFERENCES users(id) ON DELETE SET NULL
	)`,
	`CREATE TABLE IF NOT EXISTS devices (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		job_order_id INTEGER NOT NULL,
		serial_number TEXT UNIQUE NOT NULL,
		current_status TEXT DEFAULT 'pending' CHECK(current_status IN ('pending','in_progress','completed','rejected')),
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		last_updated DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (job_order_id) REFERENCES job_orders(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS tasks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		process_id INTEGER,
		device_id INTEGER NOT NULL,
		job_order_id INTEGER NOT NULL,
		technician_id INTEGER,
		operation_name TEXT NOT NULL,
		standard_time_seconds INTEGER NOT NULL CHECK(standard_time_seconds > 0),
		task_type TEXT NOT NULL DEFAULT 'technician' CHECK(task_type IN ('technician','quality','tester')),
		start_time DATETIME,
		end_time DATETIME,
		actual_time_seconds INTEGER,
		status TEXT NOT NULL DEFAULT 'available' CHECK(status IN ('available','in_progress','done','pending_qa','qa_approved','pending_tester','tester_approved','pending_supervisor','supervisor_approved','rejected','completed')),
		notes TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (process_id) REFERENCES processes(id) ON DELETE RESTRICT,
		FOREIGN KEY (device_id) REFERENCES devices(id) ON DELETE CASCADE,
		FOREIGN KEY (job_order_id) REFERENCES job_orders(id) ON DELETE CASCADE,
		FOREIGN KEY (technician_id) REFERENCES users(id) ON DELETE SET NULL
	)`,
	`CREATE TABLE IF NOT EXISTS inspections (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id INTEGER NOT NULL,
		device_id INTEGER NOT NULL,
		inspector_id INTEGER,
		decision TEXT NOT NULL DEFAULT 'pending' CHECK(decision IN ('pending','accepted','rejected')),
		comments TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (task_id) REFERENCES tasks(id) ON DELETE CASCADE,
		FOREIGN KEY (device_id) REFERENCES devices(id) ON DELETE CASCADE,
		FOREIGN KEY (inspector_id) REFERENCES users(id) ON DELETE SET NULL
	)`,
	`CREATE TABLE IF NOT EXISTS tester_reviews (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id INTEGER NOT NULL,
		tester_id INTEGER,
		decision TEXT NOT NULL DEFAULT 'pending' CHECK(decision IN ('pending','accepted','rejected')),
		comments TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (task_id) REFERENCES tasks(id) ON DELETE CASCADE,
		FOREIGN KEY (tester_id) REFERENCES users(id) ON DELETE SET NULL
	)`,
	`CREATE TABLE IF NOT EXISTS supervisor_reviews (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		inspection_id INTEGER NOT NULL,
		supervisor_id INTEGER,
		decision TEXT NOT NULL CHECK(decision IN ('accepted','rejected')),
		comments TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (inspection_id) REFERENCES inspections(id) ON DELETE CASCADE,
		FOREIGN KEY (supervisor_id) REFERENCES users(id) ON DELETE SET NULL
	)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		type TEXT NOT NULL,
		message TEXT DEFAULT '',
		payload TEXT DEFAULT '{}',
		read INTEGER DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS performance_metrics (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		job_order_id INTEGER,
		technician_id INTEGER NOT NULL,
		date TEXT NOT NULL,
		productivity REAL,
		efficiency REAL,
		utilization REAL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(job_order_id, technician_id, date),
		FOREIGN KEY (job_order_id) REFERENCES job_orders(id) ON DELETE CASCADE,
		FOREIGN KEY (technician_id) REFERENCES users(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS audit_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT DEFAULT 'system',
		action TEXT NOT NULL,
		module TEXT NOT NULL,
		record_id TEXT NOT NULL,
		summary TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
}

// SetupTestDB creates an in-memory SQLite database with foreign keys
// enabled and the full schema applied.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test DB: %v", err)
	}
	// A second pool connection would be a separate empty in-memory
	// database, and PRAGMAs only apply per connection.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("Failed to enable foreign keys: %v", err)
	}
	for _, ddl := range Schema {
		if _, err := db.Exec(ddl); err != nil {
			t.Fatalf("Failed to apply schema: %v", err)
		}
	}
	return db
}

// CreateUser inserts an active user with a dummy password hash.
func CreateUser(t *testing.T, db *sql.DB, username, role string) models.User {
	t.Helper()
	res, err := db.Exec("INSERT INTO users (username, password_hash, full_name, role) VALUES (?, 'x', ?, ?)",
		username, username+" name", role)
	if err != nil {
		t.Fatalf("Failed to create user %s: %v", username, err)
	}
	id, _ := res.LastInsertId()
	return models.User{ID: int(id), Username: username, FullName: username + " name", Role: role, Active: true}
}

// Crew is one user per workshop role, the usual fixture for workflow tests.
type Crew struct {
	Technician  models.User
	Technician2 models.User
	Quality     models.User
	Tester      models.User
	Supervisor  models.User
	Planner     models.User
	Admin       models.User
}

// SeedCrew creates one active user per role.
func SeedCrew(t *testing.T, db *sql.DB) Crew {
	t.Helper()
	return Crew{
		Technician:  CreateUser(t, db, "tech1", "technician"),
		Technician2: CreateUser(t, db, "tech2", "technician"),
		Quality:     CreateUser(t, db, "qi1", "quality"),
		Tester:      CreateUser(t, db, "tester1", "tester"),
		Supervisor:  CreateUser(t, db, "super1", "supervisor"),
		Planner:     CreateUser(t, db, "planner1", "planning"),
		Admin:       CreateUser(t, db, "admin", "admin"),
	}
}

// CreateJobOrder inserts a job order row without running fan-out.
func CreateJobOrder(t *testing.T, db *sql.DB, orderCode string, totalDevices int, dueDate string) int {
	t.Helper()
	res, err := db.Exec("INSERT INTO job_orders (order_code, title, total_devices, due_date) VALUES (?, ?, ?, ?)",
		orderCode, "Order "+orderCode, totalDevices, dueDate)
	if err != nil {
		t.Fatalf("Failed to create job order %s: %v", orderCode, err)
	}
	id, _ := res.LastInsertId()
	return int(id)
}

// CreateDevice inserts a device row.
func CreateDevice(t *testing.T, db *sql.DB, jobOrderID int, serial string) int {
	t.Helper()
	res, err := db.Exec("INSERT INTO devices (job_order_id, serial_number) VALUES (?, ?)", jobOrderID, serial)
	if err != nil {
		t.Fatalf("Failed to create device %s: %v", serial, err)
	}
	id, _ := res.LastInsertId()
	return int(id)
}

// CreateTask inserts an available task row.
func CreateTask(t *testing.T, db *sql.DB, jobOrderID, deviceID int, operation string, standardSeconds int) int {
	t.Helper()
	res, err := db.Exec(`INSERT INTO tasks (device_id, job_order_id, operation_name, standard_time_seconds, task_type, status)
		VALUES (?, ?, ?, ?, 'technician', 'available')`, deviceID, jobOrderID, operation, standardSeconds)
	if err != nil {
		t.Fatalf("Failed to create task %s: %v", operation, err)
	}
	id, _ := res.LastInsertId()
	return int(id)
}
