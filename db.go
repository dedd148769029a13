package main

import (
	"database/sql"
	"fmt"
	"log"
	"strings"

	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"
)

var db *sql.DB

func initDB(path string) error {
	// Close previous connection if any (prevents goroutine leaks in tests)
	if db != nil {
		db.Close()
	}
	var err error
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	db, err = sql.Open("sqlite", path+sep+"_journal_mode=WAL&_busy_timeout=10000&_foreign_keys=1")
	if err != nil {
		return err
	}

	// SQLite with WAL handles 1 writer + multiple readers
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(0)

	// Set pragmas explicitly; some drivers don't parse connection string params
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=30000"); err != nil {
		return fmt.Errorf("set busy_timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("enable foreign keys: %w", err)
	}

	return runMigrations()
}

func runMigrations() error {
	tables := []string{
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
	for _, t := range tables {
		if _, err := db.Exec(t); err != nil {
			return fmt.Errorf("migration: %w", err)
		}
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_processes_job ON processes(job_id)`,
		`CREATE INDEX IF NOT EXISTS idx_devices_order ON devices(job_order_id)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_order ON tasks(job_order_id)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_device ON tasks(device_id)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_technician ON tasks(technician_id)`,
		`CREATE INDEX IF NOT EXISTS idx_inspections_task ON inspections(task_id)`,
		`CREATE INDEX IF NOT EXISTS idx_tester_reviews_task ON tester_reviews(task_id)`,
		`CREATE INDEX IF NOT EXISTS idx_supervisor_reviews_inspection ON supervisor_reviews(inspection_id)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, read)`,
		`CREATE INDEX IF NOT EXISTS idx_metrics_tech_date ON performance_metrics(technician_id, date)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_created ON audit_log(created_at)`,
	}
	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			return fmt.Errorf("index migration: %w", err)
		}
	}

	return nil
}

// seedDB creates the default accounts on an empty database. Idempotent.
func seedDB() {
	var count int
	db.QueryRow("SELECT COUNT(*) FROM users").Scan(&count)
	if count > 0 {
		return
	}

	seed := []struct {
		username, password, fullName, role string
	}{
		{"admin", "admin", "Administrator", "admin"},
		{"planner", "planner", "Production Planner", "planning"},
		{"tech1", "tech1", "Line Technician", "technician"},
		{"qi1", "qi1", "Quality Inspector", "quality"},
		{"tester1", "tester1", "Device Tester", "tester"},
		{"super1", "super1", "Shift Supervisor", "supervisor"},
	}
	for _, u := range seed {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Printf("seed: hash password for %s: %v", u.username, err)
			continue
		}
		if _, err := db.Exec("INSERT INTO users (username, password_hash, full_name, role) VALUES (?, ?, ?, ?)",
			u.username, string(hash), u.fullName, u.role); err != nil {
			log.Printf("seed: insert user %s: %v", u.username, err)
		}
	}
	log.Println("Seeded default users (change the passwords)")
}
