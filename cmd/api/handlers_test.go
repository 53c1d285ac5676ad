package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"rollcall/internal/attendance"
	"rollcall/internal/auth"
	"rollcall/internal/config"
	"rollcall/internal/roster"
)

type fakeUsers struct {
	users map[string]roster.User
}

func (f *fakeUsers) InsertUser(_ context.Context, u roster.User, _ string) (roster.User, error) {
	f.users[u.ID] = u
	return u, nil
}

func (f *fakeUsers) GetUser(_ context.Context, id string) (roster.User, error) {
	u, ok := f.users[id]
	if !ok {
		return roster.User{}, roster.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) GetUserByEmail(context.Context, string) (roster.User, string, error) {
	return roster.User{}, "", roster.ErrNotFound
}

func (f *fakeUsers) ListUsers(context.Context) ([]roster.User, error) { return nil, nil }

func (f *fakeUsers) UpdateUserRole(context.Context, string, string) error { return nil }

func (f *fakeUsers) CountByRole(context.Context) (map[string]int, error) { return nil, nil }

type fakeSessions struct {
	sessions map[string]attendance.Session
}

func (f *fakeSessions) InsertSession(_ context.Context, s attendance.Session) (attendance.Session, error) {
	if _, ok := f.sessions[s.ID]; ok {
		return attendance.Session{}, attendance.ErrSessionExists
	}
	s.CreatedAt = time.Now().UTC()
	f.sessions[s.ID] = s
	return s, nil
}

func (f *fakeSessions) GetSession(_ context.Context, id string) (attendance.Session, error) {
	s, ok := f.sessions[id]
	if !ok {
		return attendance.Session{}, attendance.ErrSessionNotFound
	}
	return s, nil
}

func (f *fakeSessions) SetSessionActive(context.Context, string, bool) error { return nil }

func (f *fakeSessions) InsertRecord(_ context.Context, r attendance.Record) (attendance.Record, error) {
	return r, nil
}

func (f *fakeSessions) ListSessionsByTeacher(context.Context, string) ([]attendance.Session, error) {
	return nil, nil
}

func (f *fakeSessions) ListRecordsBySession(context.Context, string) ([]attendance.Record, error) {
	return nil, nil
}

func (f *fakeSessions) ListRecordsByStudent(context.Context, string) ([]attendance.Record, error) {
	return nil, nil
}

func newTestAPI() (*api, *fakeUsers, *fakeSessions) {
	fu := &fakeUsers{users: make(map[string]roster.User)}
	fs := &fakeSessions{sessions: make(map[string]attendance.Session)}
	a := &api{
		cfg:   config.App{PublicBaseURL: "https://rollcall.test"},
		users: roster.NewService(fu),
		att:   attendance.NewService(fs),
	}
	return a, fu, fs
}

func postJSON(a *api, handler gin.HandlerFunc, path, body string, claims auth.Claims) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Set("claims", claims)
	handler(c)
	return w
}

func TestCreateSessionAuthorizesAgainstStore(t *testing.T) {
	a, fu, fs := newTestAPI()
	fu.users["T1"] = roster.User{ID: "T1", Role: roster.RoleTeacher}
	fu.users["U2"] = roster.User{ID: "U2", Role: roster.RoleStudent}

	// token and store agree: teacher may open a session
	w := postJSON(a, a.handleCreateSession, "/v1/sessions", `{"course_name":"Math 101"}`, auth.Claims{Subject: "T1", Role: roster.RoleTeacher})
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Len(t, fs.sessions, 1)

	// token still claims teacher but the store says student: stale token
	w = postJSON(a, a.handleCreateSession, "/v1/sessions", `{"course_name":"Math 101"}`, auth.Claims{Subject: "U2", Role: roster.RoleTeacher})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Len(t, fs.sessions, 1)

	// unknown requester
	w = postJSON(a, a.handleCreateSession, "/v1/sessions", `{"course_name":"Math 101"}`, auth.Claims{Subject: "ghost", Role: roster.RoleTeacher})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Len(t, fs.sessions, 1)
}
