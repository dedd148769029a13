package main

import (
	"net/http"
	"strconv"

	"joddb/internal/audit"
	"joddb/internal/models"
	"joddb/internal/response"
	"joddb/internal/validation"

	"golang.org/x/crypto/bcrypt"
)

func handleListUsers(w http.ResponseWriter, r *http.Request) {
	rows, err := db.Query("SELECT id, username, full_name, role, active, created_at FROM users ORDER BY username")
	if err != nil {
		response.Err(w, "Failed to list users", 500)
		return
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		var u models.User
		var active int
		if err := rows.Scan(&u.ID, &u.Username, &u.FullName, &u.Role, &active, &u.CreatedAt); err != nil {
			response.Err(w, "Failed to scan user", 500)
			return
		}
		u.Active = active == 1
		users = append(users, u)
	}
	response.JSON(w, users)
}

type userRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
	Active   *bool  `json:"active"`
}

func handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "Invalid request body", 400)
		return
	}

	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "username", req.Username)
	validation.RequireField(ve, "password", req.Password)
	if req.Role == "" {
		req.Role = "technician"
	}
	validation.ValidateEnum(ve, "role", req.Role, validation.ValidRoles)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		response.Err(w, "Failed to hash password", 500)
		return
	}

	res, err := db.Exec("INSERT INTO users (username, password_hash, full_name, role) VALUES (?, ?, ?, ?)",
		req.Username, string(hash), req.FullName, req.Role)
	if err != nil {
		response.Err(w, "Username already exists", 409)
		return
	}
	id, _ := res.LastInsertId()

	audit.LogAudit(db, hub, audit.GetUsername(db, r), audit.ActionCreate, "user", req.Username, "Created user "+req.Username)
	response.JSON(w, models.User{ID: int(id), Username: req.Username, FullName: req.FullName, Role: req.Role, Active: true})
}

func handleUpdateUser(w http.ResponseWriter, r *http.Request, idStr string) {
	id, err := strconv.Atoi(idStr)
	if err != nil {
		response.Err(w, "Invalid user ID", 400)
		return
	}

	var req userRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "Invalid request body", 400)
		return
	}

	var username string
	if err := db.QueryRow("SELECT username FROM users WHERE id = ?", id).Scan(&username); err != nil {
		response.Err(w, "User not found", 404)
		return
	}

	if req.Role != "" {
		ve := &validation.ValidationErrors{}
		validation.ValidateEnum(ve, "role", req.Role, validation.ValidRoles)
		if ve.HasErrors() {
			response.Err(w, ve.Error(), 400)
			return
		}
		db.Exec("UPDATE users SET role = ? WHERE id = ?", req.Role, id)
	}
	if req.FullName != "" {
		db.Exec("UPDATE users SET full_name = ? WHERE id = ?", req.FullName, id)
	}
	if req.Active != nil {
		active := 0
		if *req.Active {
			active = 1
		}
		db.Exec("UPDATE users SET active = ? WHERE id = ?", active, id)
		if active == 0 {
			// Deactivation kills live sessions
			db.Exec("DELETE FROM sessions WHERE user_id = ?", id)
		}
	}

	audit.LogAudit(db, hub, audit.GetUsername(db, r), audit.ActionUpdate, "user", username, "Updated user "+username)
	response.JSON(w, map[string]string{"status": "ok"})
}

func handleResetPassword(w http.ResponseWriter, r *http.Request, idStr string) {
	id, err := strconv.Atoi(idStr)
	if err != nil {
		response.Err(w, "Invalid user ID", 400)
		return
	}

	var req struct {
		Password string `json:"password"`
	}
	if err := response.DecodeBody(r, &req); err != nil || req.Password == "" {
		response.Err(w, "password is required", 400)
		return
	}

	var username string
	if err := db.QueryRow("SELECT username FROM users WHERE id = ?", id).Scan(&username); err != nil {
		response.Err(w, "User not found", 404)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		response.Err(w, "Failed to hash password", 500)
		return
	}
	db.Exec("UPDATE users SET password_hash = ? WHERE id = ?", string(hash), id)
	db.Exec("DELETE FROM sessions WHERE user_id = ?", id)

	audit.LogAudit(db, hub, audit.GetUsername(db, r), audit.ActionUpdate, "user", username, "Reset password for "+username)
	response.JSON(w, map[string]string{"status": "ok"})
}
