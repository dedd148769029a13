// Package notify persists user notifications and pushes them to connected
// clients. Delivery is best-effort: a failed write is logged and never
// propagates back into the workflow transition that produced it.
package notify

import (
	"database/sql"
	"encoding/json"
	"log"

	"joddb/internal/websocket"
)

// Notification type tags.
const (
	TypeTaskRejected           = "task_rejected"
	TypeTaskCompleted          = "task_completed"
	TypeTaskReadyForInspection = "task_ready_for_inspection"
	TypeTaskReadyForTesting    = "task_ready_for_testing"
	TypeTaskReadyForSupervisor = "task_ready_for_supervisor_review"
)

// Message addresses one notification to one user.
type Message struct {
	UserID  int
	Type    string
	Message string
	Payload map[string]any
}

// Service writes notification rows and pushes websocket events.
type Service struct {
	DB  *sql.DB
	Hub *websocket.Hub
}

// Send persists a single notification and pushes it to the user's
// connections. Returns false when the write failed.
func (s *Service) Send(m Message) bool {
	payload := "{}"
	if m.Payload != nil {
		if b, err := json.Marshal(m.Payload); err == nil {
			payload = string(b)
		}
	}
	res, err := s.DB.Exec("INSERT INTO notifications (user_id, type, message, payload) VALUES (?, ?, ?, ?)",
		m.UserID, m.Type, m.Message, payload)
	if err != nil {
		log.Printf("notify: create for user %d failed: %v", m.UserID, err)
		return false
	}
	if s.Hub != nil {
		id, _ := res.LastInsertId()
		s.Hub.SendToUser(m.UserID, websocket.Event{
			Type:    m.Type,
			ID:      id,
			Action:  "notification",
			UserID:  m.UserID,
			Message: m.Message,
		})
	}
	return true
}

// Dispatch sends every message, ignoring individual failures.
func (s *Service) Dispatch(msgs []Message) {
	for _, m := range msgs {
		s.Send(m)
	}
}

// Querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
type Querier interface {
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
	Exec(query string, args ...any) (sql.Result, error)
}

// ActiveUserIDs returns the ids of active users holding the given role.
// Recipients are resolved at transition time; there is no subscription list.
func ActiveUserIDs(q Querier, role string) ([]int, error) {
	rows, err := q.Query("SELECT id FROM users WHERE role = ? AND active = 1 ORDER BY id", role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			log.Printf("notify: scan %s recipient: %v", role, err)
			continue
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
