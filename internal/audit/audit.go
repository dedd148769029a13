package audit

import (
	"database/sql"
	"log"
	"net/http"

	"joddb/internal/websocket"
)

// Action constants.
const (
	ActionCreate  = "created"
	ActionUpdate  = "updated"
	ActionDelete  = "deleted"
	ActionStart   = "started"
	ActionEnd     = "ended"
	ActionApprove = "approved"
	ActionReject  = "rejected"
	ActionImport  = "imported"
	ActionExport  = "exported"
	ActionLogin   = "login"
	ActionLogout  = "logout"
)

// LogAudit appends an audit entry and pushes a change event to dashboards.
// Audit failures are logged only; they never fail the caller's operation.
func LogAudit(db *sql.DB, hub *websocket.Hub, username, action, module, recordID, summary string) {
	_, err := db.Exec("INSERT INTO audit_log (username, action, module, record_id, summary) VALUES (?, ?, ?, ?, ?)",
		username, action, module, recordID, summary)
	if err != nil {
		log.Printf("audit log error: %v", err)
	}
	if hub != nil {
		hub.Broadcast(websocket.Event{
			Type:   module + "_" + action,
			ID:     recordID,
			Action: action,
		})
	}
}

// GetUsername extracts the username from a session cookie.
func GetUsername(db *sql.DB, r *http.Request) string {
	cookie, err := r.Cookie("joddb_session")
	if err != nil {
		return "system"
	}
	var username string
	err = db.QueryRow("SELECT u.username FROM users u JOIN sessions s ON u.id = s.user_id WHERE s.token = ?", cookie.Value).Scan(&username)
	if err != nil {
		return "system"
	}
	return username
}
