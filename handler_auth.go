package main

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"time"

	"joddb/internal/audit"
	"joddb/internal/models"
	"joddb/internal/response"

	"golang.org/x/crypto/bcrypt"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "Invalid request body", 400)
		return
	}

	var id int
	var passwordHash, fullName, role string
	var active int
	err := db.QueryRow("SELECT id, password_hash, full_name, role, active FROM users WHERE username = ?", req.Username).
		Scan(&id, &passwordHash, &fullName, &role, &active)
	if err != nil {
		response.Err(w, "Invalid username or password", 401)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(req.Password)); err != nil {
		response.Err(w, "Invalid username or password", 401)
		return
	}

	if active == 0 {
		response.Err(w, "Account deactivated", 403)
		return
	}

	// Clean expired sessions
	db.Exec("DELETE FROM sessions WHERE expires_at < CURRENT_TIMESTAMP")

	// Create session with retry on token collision
	var token string
	expires := time.Now().Add(24 * time.Hour)
	for i := 0; i < 3; i++ {
		token = generateToken()
		_, err = db.Exec("INSERT INTO sessions (token, user_id, expires_at) VALUES (?, ?, ?)",
			token, id, expires.UTC().Format("2006-01-02 15:04:05"))
		if err == nil {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	if err != nil {
		response.Err(w, "Failed to create session", 500)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  expires,
	})

	audit.LogAudit(db, hub, req.Username, audit.ActionLogin, "auth", req.Username, "User "+req.Username+" logged in")
	response.JSON(w, models.User{ID: id, Username: req.Username, FullName: fullName, Role: role, Active: true})
}

func handleLogout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookie)
	if err == nil {
		db.Exec("DELETE FROM sessions WHERE token = ?", cookie.Value)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})

	response.JSON(w, map[string]string{"status": "ok"})
}

func handleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := getCurrentUser(r)
	if !ok {
		response.Err(w, "Unauthorized", 401)
		return
	}
	response.JSON(w, user)
}

func generateToken() string {
	b := make([]byte, 32)
	rand.Read(b)
	return hex.EncodeToString(b)
}
