package main

import (
	"net/http"
	"strconv"

	"joddb/internal/models"
	"joddb/internal/response"
)

func handleListNotifications(w http.ResponseWriter, r *http.Request) {
	user, ok := getCurrentUser(r)
	if !ok {
		response.Err(w, "Unauthorized", 401)
		return
	}

	query := `SELECT id, user_id, type, message, payload, read, created_at
		FROM notifications WHERE user_id = ?`
	args := []any{user.ID}
	if r.URL.Query().Get("unread") == "1" {
		query += " AND read = 0"
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT 200"

	rows, err := db.Query(query, args...)
	if err != nil {
		response.Err(w, "Failed to list notifications", 500)
		return
	}
	defer rows.Close()

	notifications := []models.Notification{}
	for rows.Next() {
		var n models.Notification
		var read int
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Message, &n.Payload, &read, &n.CreatedAt); err != nil {
			response.Err(w, "Failed to scan notification", 500)
			return
		}
		n.Read = read == 1
		notifications = append(notifications, n)
	}
	response.JSON(w, notifications)
}

func handleMarkNotificationRead(w http.ResponseWriter, r *http.Request, idStr string) {
	id, err := strconv.Atoi(idStr)
	if err != nil {
		response.Err(w, "Invalid notification ID", 400)
		return
	}
	user, ok := getCurrentUser(r)
	if !ok {
		response.Err(w, "Unauthorized", 401)
		return
	}

	res, err := db.Exec("UPDATE notifications SET read = 1 WHERE id = ? AND user_id = ?", id, user.ID)
	if err != nil {
		response.Err(w, "Failed to mark notification", 500)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		response.Err(w, "Notification not found", 404)
		return
	}
	response.JSON(w, map[string]string{"status": "ok"})
}

func handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	user, ok := getCurrentUser(r)
	if !ok {
		response.Err(w, "Unauthorized", 401)
		return
	}

	var count int
	db.QueryRow("SELECT COUNT(*) FROM notifications WHERE user_id = ? AND read = 0", user.ID).Scan(&count)
	response.JSON(w, map[string]int{"unread": count})
}
