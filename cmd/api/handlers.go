package main

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"rollcall/internal/attendance"
	"rollcall/internal/auth"
	"rollcall/internal/config"
	"rollcall/internal/metrics"
	"rollcall/internal/qr"
	"rollcall/internal/queue"
	"rollcall/internal/roster"
	"rollcall/internal/store"
)

type api struct {
	cfg   config.App
	users *roster.Service
	att   *attendance.Service
	rdb   *store.Redis
	q     queue.Queue
}

// writeErr maps domain error kinds onto HTTP statuses. Store failures are
// never surfaced verbatim to clients.
func (a *api) writeErr(c *gin.Context, err error) {
	var status int
	switch {
	case errors.Is(err, attendance.ErrInvalidInput), errors.Is(err, roster.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, roster.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	case errors.Is(err, roster.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, attendance.ErrSessionNotFound), errors.Is(err, roster.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, attendance.ErrSessionExists),
		errors.Is(err, attendance.ErrDuplicateAttendance),
		errors.Is(err, roster.ErrEmailTaken):
		status = http.StatusConflict
	case errors.Is(err, attendance.ErrSessionInactive):
		status = http.StatusUnprocessableEntity
	default:
		log.Printf("internal error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (a *api) tokensFor(u roster.User) (auth.TokenPair, error) {
	return auth.Issue(u.ID, u.Role, a.cfg.JWTIssuer, a.cfg.JWTSigningKey, a.cfg.AccessTTL, a.cfg.RefreshTTL)
}

func (a *api) handleSignup(c *gin.Context) {
	var req struct {
		Email       string `json:"email" binding:"required,email"`
		Password    string `json:"password" binding:"required,min=6"`
		DisplayName string `json:"display_name"`
		Role        string `json:"role" binding:"required,oneof=admin teacher student"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := a.users.Signup(c.Request.Context(), req.Email, req.Password, req.DisplayName, req.Role)
	if err != nil {
		a.writeErr(c, err)
		return
	}

	tokens, err := a.tokensFor(user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"user":          user,
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
		"expires_at":    tokens.AccessExp.Unix(),
	})
}

func (a *api) handleLogin(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := a.users.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		a.writeErr(c, err)
		return
	}

	tokens, err := a.tokensFor(user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":          user,
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
		"expires_at":    tokens.AccessExp.Unix(),
	})
}

func (a *api) handleCreateSession(c *gin.Context) {
	var req struct {
		CourseName  string `json:"course_name" binding:"required"`
		SessionID   string `json:"session_id"`
		QRCodeValue string `json:"qr_code_value"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	claims, _ := auth.ClaimsFrom(c)

	// Re-verify against the store so a stale token's role cannot open
	// sessions after a demotion.
	claim, err := a.users.Authorize(c.Request.Context(), claims.Subject)
	if err != nil {
		a.writeErr(c, err)
		return
	}
	if !claim.CanRunSessions() {
		c.JSON(http.StatusForbidden, gin.H{"error": "only teachers may open sessions"})
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = attendance.NewSessionID()
	}
	qrValue := req.QRCodeValue
	if qrValue == "" {
		var err error
		qrValue, err = qr.MarkURL(a.cfg.PublicBaseURL, sessionID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "qr url build failed"})
			return
		}
	}

	sess, err := a.att.CreateSession(c.Request.Context(), req.CourseName, claim.UserID, sessionID, qrValue)
	if err != nil {
		a.writeErr(c, err)
		return
	}

	metrics.SessionsCreated.Inc()
	c.JSON(http.StatusCreated, sess)
}

func (a *api) handleGetSession(c *gin.Context) {
	sess, err := a.att.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.writeErr(c, err)
		return
	}

	resp := gin.H{"session": sess}
	if n, err := a.rdb.SessionTally(c.Request.Context(), sess.ID); err == nil {
		resp["live_attendees"] = n
	}
	c.JSON(http.StatusOK, resp)
}

func (a *api) handleSessionQR(c *gin.Context) {
	sess, err := a.att.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.writeErr(c, err)
		return
	}

	size := qr.DefaultSize
	if v := c.Query("size"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			size = parsed
		}
	}

	png, err := qr.PNG(sess.QRCodeValue, size)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "qr render failed"})
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

// ownsSession loads the session and checks write access: admins always,
// teachers only for their own sessions.
func (a *api) ownsSession(c *gin.Context, sessionID string) (attendance.Session, bool) {
	sess, err := a.att.GetSession(c.Request.Context(), sessionID)
	if err != nil {
		a.writeErr(c, err)
		return attendance.Session{}, false
	}
	claims, _ := auth.ClaimsFrom(c)
	if claims.Role != roster.RoleAdmin && sess.TeacherID != claims.Subject {
		c.JSON(http.StatusForbidden, gin.H{"error": "not the session owner"})
		return attendance.Session{}, false
	}
	return sess, true
}

func (a *api) handleSetSessionActive(c *gin.Context) {
	var req struct {
		Active *bool `json:"active" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess, ok := a.ownsSession(c, c.Param("id"))
	if !ok {
		return
	}

	if err := a.att.SetSessionActive(c.Request.Context(), sess.ID, *req.Active); err != nil {
		a.writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": sess.ID, "active": *req.Active})
}

func (a *api) handleListSessionRecords(c *gin.Context) {
	sess, ok := a.ownsSession(c, c.Param("id"))
	if !ok {
		return
	}

	records, err := a.att.ListRecordsBySession(c.Request.Context(), sess.ID)
	if err != nil {
		a.writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

func (a *api) handleMarkAttendance(c *gin.Context) {
	claims, _ := auth.ClaimsFrom(c)

	// The student identity comes from the token, never the request body.
	student, err := a.users.GetUser(c.Request.Context(), claims.Subject)
	if err != nil {
		a.writeErr(c, err)
		return
	}

	rec, err := a.att.MarkAttendance(c.Request.Context(), c.Param("id"), student.ID, student.DisplayName)
	if err != nil {
		switch {
		case errors.Is(err, attendance.ErrDuplicateAttendance):
			metrics.MarksRejected.WithLabelValues("duplicate").Inc()
		case errors.Is(err, attendance.ErrSessionInactive):
			metrics.MarksRejected.WithLabelValues("inactive").Inc()
		case errors.Is(err, attendance.ErrSessionNotFound):
			metrics.MarksRejected.WithLabelValues("not_found").Inc()
		}
		a.writeErr(c, err)
		return
	}

	metrics.MarksAccepted.Inc()

	evt, _ := json.Marshal(attendance.MarkedEvent{RecordID: rec.ID, SessionID: rec.SessionID})
	if err := a.q.Publish(c.Request.Context(), queue.Message{Type: "mark", Body: evt}); err != nil {
		log.Printf("queue publish failed: %v", err)
	}

	c.JSON(http.StatusCreated, gin.H{
		"record_id": rec.ID,
		"status":    rec.Status,
		"marked_at": rec.MarkedAt,
	})
}

func (a *api) handleListTeacherSessions(c *gin.Context) {
	teacherID := c.Param("id")
	claims, _ := auth.ClaimsFrom(c)
	if claims.Role != roster.RoleAdmin && claims.Subject != teacherID {
		c.JSON(http.StatusForbidden, gin.H{"error": "cannot view another teacher's sessions"})
		return
	}

	sessions, err := a.att.ListSessionsByTeacher(c.Request.Context(), teacherID)
	if err != nil {
		a.writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (a *api) handleListStudentRecords(c *gin.Context) {
	studentID := c.Param("id")
	claims, _ := auth.ClaimsFrom(c)
	if claims.Role != roster.RoleAdmin && claims.Subject != studentID {
		c.JSON(http.StatusForbidden, gin.H{"error": "cannot view another student's records"})
		return
	}

	records, err := a.att.ListRecordsByStudent(c.Request.Context(), studentID)
	if err != nil {
		a.writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

func (a *api) handleListUsers(c *gin.Context) {
	claims, _ := auth.ClaimsFrom(c)
	users, err := a.users.ListUsers(c.Request.Context(), claims.Subject)
	if err != nil {
		a.writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

func (a *api) handleAdminCreateUser(c *gin.Context) {
	var req struct {
		Email       string `json:"email" binding:"required,email"`
		Password    string `json:"password" binding:"required,min=6"`
		DisplayName string `json:"display_name" binding:"required,min=2"`
		Role        string `json:"role" binding:"required,oneof=teacher student"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	claims, _ := auth.ClaimsFrom(c)
	user, err := a.users.AdminCreateUser(c.Request.Context(), claims.Subject, req.Email, req.Password, req.DisplayName, req.Role)
	if err != nil {
		a.writeErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (a *api) handleUpdateUserRole(c *gin.Context) {
	var req struct {
		Role string `json:"role" binding:"required,oneof=admin teacher student"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	claims, _ := auth.ClaimsFrom(c)
	if err := a.users.UpdateUserRole(c.Request.Context(), claims.Subject, c.Param("id"), req.Role); err != nil {
		a.writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "role": req.Role})
}

func (a *api) handleUserStats(c *gin.Context) {
	claims, _ := auth.ClaimsFrom(c)
	stats, err := a.users.GetUserStats(c.Request.Context(), claims.Subject)
	if err != nil {
		a.writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
