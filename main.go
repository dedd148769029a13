package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"joddb/internal/metrics"
	"joddb/internal/notify"
	"joddb/internal/response"
	"joddb/internal/websocket"
	"joddb/internal/workflow"
)

var (
	hub        *websocket.Hub
	notifier   *notify.Service
	engine     *workflow.Engine
	thresholds metrics.Thresholds
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	port := flag.Int("port", 0, "HTTP port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatal("Config load failed:", err)
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	thresholds = cfg.Metrics

	if err := initDB(cfg.DBPath); err != nil {
		log.Fatal("DB init failed:", err)
	}
	seedDB()

	hub = websocket.NewHub()
	notifier = &notify.Service{DB: db, Hub: hub}
	engine = &workflow.Engine{DB: db, Notifier: notifier, Now: time.Now}

	mux := http.NewServeMux()

	// Auth routes
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "POST" {
			handleLogin(w, r)
		} else {
			http.Error(w, "Method not allowed", 405)
		}
	})
	mux.HandleFunc("/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "POST" {
			handleLogout(w, r)
		} else {
			http.Error(w, "Method not allowed", 405)
		}
	})
	mux.HandleFunc("/auth/me", func(w http.ResponseWriter, r *http.Request) {
		handleMe(w, r)
	})

	// Live event stream
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		userID, _ := r.Context().Value(ctxUserID).(int)
		websocket.HandleWebSocket(hub, userID, w, r)
	})

	// API routes - using a simple router
	mux.HandleFunc("/api/v1/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		path := strings.TrimPrefix(r.URL.Path, "/api/v1/")
		path = strings.TrimSuffix(path, "/")
		parts := strings.Split(path, "/")

		switch {
		// Audit
		case path == "audit" && r.Method == "GET":
			handleAuditLog(w, r)

		// Users
		case parts[0] == "users" && len(parts) == 1 && r.Method == "GET":
			handleListUsers(w, r)
		case parts[0] == "users" && len(parts) == 1 && r.Method == "POST":
			handleCreateUser(w, r)
		case parts[0] == "users" && len(parts) == 2 && r.Method == "PUT":
			handleUpdateUser(w, r, parts[1])
		case parts[0] == "users" && len(parts) == 3 && parts[2] == "password" && r.Method == "PUT":
			handleResetPassword(w, r, parts[1])

		// Jobs and processes
		case parts[0] == "jobs" && len(parts) == 1 && r.Method == "GET":
			handleListJobs(w, r)
		case parts[0] == "jobs" && len(parts) == 1 && r.Method == "POST":
			handleCreateJob(w, r)
		case parts[0] == "jobs" && len(parts) == 2 && r.Method == "GET":
			handleGetJob(w, r, parts[1])
		case parts[0] == "jobs" && len(parts) == 2 && r.Method == "PUT":
			handleUpdateJob(w, r, parts[1])
		case parts[0] == "jobs" && len(parts) == 2 && r.Method == "DELETE":
			handleDeleteJob(w, r, parts[1])
		case parts[0] == "jobs" && len(parts) == 3 && parts[2] == "processes" && r.Method == "GET":
			handleListProcesses(w, r, parts[1])
		case parts[0] == "jobs" && len(parts) == 3 && parts[2] == "processes" && r.Method == "POST":
			handleCreateProcess(w, r, parts[1])
		case parts[0] == "processes" && len(parts) == 2 && r.Method == "PUT":
			handleUpdateProcess(w, r, parts[1])
		case parts[0] == "processes" && len(parts) == 2 && r.Method == "DELETE":
			handleDeleteProcess(w, r, parts[1])

		// Job orders
		case parts[0] == "job-orders" && len(parts) == 1 && r.Method == "GET":
			handleListJobOrders(w, r)
		case parts[0] == "job-orders" && len(parts) == 1 && r.Method == "POST":
			handleCreateJobOrder(w, r)
		case parts[0] == "job-orders" && len(parts) == 2 && r.Method == "GET":
			handleGetJobOrder(w, r, parts[1])
		case parts[0] == "job-orders" && len(parts) == 2 && r.Method == "PUT":
			handleUpdateJobOrder(w, r, parts[1])
		case parts[0] == "job-orders" && len(parts) == 2 && r.Method == "DELETE":
			handleDeleteJobOrder(w, r, parts[1])
		case parts[0] == "job-orders" && len(parts) == 3 && parts[2] == "devices" && r.Method == "GET":
			handleListOrderDevices(w, r, parts[1])

		// Tasks and transitions
		case path == "tasks/status-summary" && r.Method == "GET":
			handleTaskStatusSummary(w, r)
		case parts[0] == "tasks" && len(parts) == 1 && r.Method == "GET":
			handleListTasks(w, r)
		case parts[0] == "tasks" && len(parts) == 1 && r.Method == "POST":
			handleCreateTasks(w, r)
		case parts[0] == "tasks" && len(parts) == 2 && r.Method == "GET":
			handleGetTask(w, r, parts[1])
		case parts[0] == "tasks" && len(parts) == 3 && parts[2] == "start" && r.Method == "PATCH":
			handleStartTask(w, r, parts[1])
		case parts[0] == "tasks" && len(parts) == 3 && parts[2] == "end" && r.Method == "PATCH":
			handleEndTask(w, r, parts[1])
		case parts[0] == "tasks" && len(parts) == 3 && parts[2] == "qa-decision" && r.Method == "POST":
			handleQADecision(w, r, parts[1])
		case parts[0] == "tasks" && len(parts) == 3 && parts[2] == "tester-decision" && r.Method == "POST":
			handleTesterDecision(w, r, parts[1])

		// Inspections and reviews
		case parts[0] == "inspections" && len(parts) == 1 && r.Method == "GET":
			handleListInspections(w, r)
		case parts[0] == "inspections" && len(parts) == 2 && r.Method == "GET":
			handleGetInspection(w, r, parts[1])
		case parts[0] == "inspections" && len(parts) == 3 && parts[2] == "supervisor-decision" && r.Method == "POST":
			handleSupervisorDecision(w, r, parts[1])
		case parts[0] == "tester-reviews" && len(parts) == 1 && r.Method == "GET":
			handleListTesterReviews(w, r)
		case parts[0] == "supervisor-reviews" && len(parts) == 1 && r.Method == "GET":
			handleListSupervisorReviews(w, r)

		// Notifications
		case path == "notifications/unread-count" && r.Method == "GET":
			handleUnreadCount(w, r)
		case parts[0] == "notifications" && len(parts) == 1 && r.Method == "GET":
			handleListNotifications(w, r)
		case parts[0] == "notifications" && len(parts) == 3 && parts[2] == "read" && r.Method == "POST":
			handleMarkNotificationRead(w, r, parts[1])

		// Metrics
		case parts[0] == "metrics" && len(parts) == 3 && parts[1] == "technician" && r.Method == "GET":
			handleTechnicianMetrics(w, r, parts[2])
		case parts[0] == "metrics" && len(parts) == 4 && parts[1] == "technician" && parts[3] == "snapshot" && r.Method == "POST":
			handleSnapshotTechnicianMetrics(w, r, parts[2])
		case parts[0] == "metrics" && len(parts) == 3 && parts[1] == "job-order" && r.Method == "GET":
			handleJobOrderMetrics(w, r, parts[2])
		case path == "metrics/planner/statistics" && r.Method == "GET":
			handlePlannerStatistics(w, r)

		// Import / export
		case path == "import/job-orders" && r.Method == "POST":
			handleImportJobOrders(w, r)
		case path == "export/daily-report" && r.Method == "GET":
			handleExportDailyReport(w, r)

		default:
			response.Err(w, "not found", 404)
		}
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	log.Printf("joddb server starting on http://localhost%s", addr)
	log.Fatal(http.ListenAndServe(addr, logging(requireAuth(requireRBAC(mux)))))
}
