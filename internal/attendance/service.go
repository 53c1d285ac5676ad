package attendance

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// StatusPresent is the only status the lifecycle produces.
const StatusPresent = "present"

// UnknownCourse is returned for a record whose session can no longer be resolved.
const UnknownCourse = "Unknown Course"

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrSessionExists       = errors.New("session id already in use")
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionInactive     = errors.New("session is no longer active")
	ErrDuplicateAttendance = errors.New("attendance already marked for this session")
)

// Session is a teacher-initiated attendance-taking window.
type Session struct {
	ID          string    `json:"id"`
	TeacherID   string    `json:"teacher_id"`
	CourseName  string    `json:"course_name"`
	QRCodeValue string    `json:"qr_code_value"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

// Record is one student's proof-of-presence for a session. CourseName is
// populated only by ListRecordsByStudent, where it is denormalized from the
// owning session.
type Record struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	StudentID   string    `json:"student_id"`
	StudentName string    `json:"student_name"`
	Status      string    `json:"status"`
	CourseName  string    `json:"course_name,omitempty"`
	MarkedAt    time.Time `json:"marked_at"`
}

// Store is the persistence contract the lifecycle runs against. InsertSession
// must be insert-if-absent on the session id; InsertRecord must fail with
// ErrDuplicateAttendance when a (session, student) pair already exists, so the
// uniqueness invariant holds even under concurrent marks.
type Store interface {
	InsertSession(ctx context.Context, s Session) (Session, error)
	GetSession(ctx context.Context, id string) (Session, error)
	SetSessionActive(ctx context.Context, id string, active bool) error
	InsertRecord(ctx context.Context, r Record) (Record, error)
	ListSessionsByTeacher(ctx context.Context, teacherID string) ([]Session, error)
	ListRecordsBySession(ctx context.Context, sessionID string) ([]Record, error)
	ListRecordsByStudent(ctx context.Context, studentID string) ([]Record, error)
}

// MarkedEvent is the queue payload emitted after a successful mark.
type MarkedEvent struct {
	RecordID  string `json:"record_id"`
	SessionID string `json:"session_id"`
}

// Service coordinates the attendance session lifecycle.
type Service struct {
	store Store
}

// NewService creates a service backed by a store.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// NewSessionID returns a fresh random session id. 122 random bits make a
// collision with an existing id negligible; an actual collision is still
// rejected by the insert-if-absent in CreateSession.
func NewSessionID() string {
	return uuid.NewString()
}

// CreateSession persists a new active session. The session id is caller
// supplied so the QR code can be rendered before the session exists.
func (s *Service) CreateSession(ctx context.Context, courseName, teacherID, sessionID, qrCodeValue string) (Session, error) {
	if strings.TrimSpace(courseName) == "" {
		return Session{}, fmt.Errorf("%w: course name is required", ErrInvalidInput)
	}
	if teacherID == "" {
		return Session{}, fmt.Errorf("%w: teacher id is required", ErrInvalidInput)
	}
	if sessionID == "" {
		return Session{}, fmt.Errorf("%w: session id is required", ErrInvalidInput)
	}
	u, err := url.Parse(qrCodeValue)
	if err != nil || !u.IsAbs() {
		return Session{}, fmt.Errorf("%w: qr code value must be an absolute URL", ErrInvalidInput)
	}
	if !strings.Contains(qrCodeValue, sessionID) {
		return Session{}, fmt.Errorf("%w: qr code value must embed the session id", ErrInvalidInput)
	}

	return s.store.InsertSession(ctx, Session{
		ID:          sessionID,
		TeacherID:   teacherID,
		CourseName:  strings.TrimSpace(courseName),
		QRCodeValue: qrCodeValue,
		Active:      true,
	})
}

// GetSession returns a session by id.
func (s *Service) GetSession(ctx context.Context, sessionID string) (Session, error) {
	if sessionID == "" {
		return Session{}, fmt.Errorf("%w: session id is required", ErrInvalidInput)
	}
	return s.store.GetSession(ctx, sessionID)
}

// SetSessionActive idempotently toggles whether a session accepts marks.
// Re-activating an ended session is legal; the transition is not guarded.
func (s *Service) SetSessionActive(ctx context.Context, sessionID string, active bool) error {
	if sessionID == "" {
		return fmt.Errorf("%w: session id is required", ErrInvalidInput)
	}
	return s.store.SetSessionActive(ctx, sessionID, active)
}

// MarkAttendance records a student's presence. Checks run in order: the
// session must exist, must be active, and the student must not have marked
// already. The duplicate check is the store's unique constraint, so two
// near-simultaneous submissions cannot both land.
func (s *Service) MarkAttendance(ctx context.Context, sessionID, studentID, studentName string) (Record, error) {
	if sessionID == "" || studentID == "" || strings.TrimSpace(studentName) == "" {
		return Record{}, fmt.Errorf("%w: session id, student id and student name are required", ErrInvalidInput)
	}

	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return Record{}, err
	}
	if !sess.Active {
		return Record{}, ErrSessionInactive
	}

	return s.store.InsertRecord(ctx, Record{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		StudentID:   studentID,
		StudentName: strings.TrimSpace(studentName),
		Status:      StatusPresent,
	})
}

// ListSessionsByTeacher returns a teacher's sessions, newest first.
func (s *Service) ListSessionsByTeacher(ctx context.Context, teacherID string) ([]Session, error) {
	if teacherID == "" {
		return nil, fmt.Errorf("%w: teacher id is required", ErrInvalidInput)
	}
	return s.store.ListSessionsByTeacher(ctx, teacherID)
}

// ListRecordsBySession returns a session's records, oldest first.
func (s *Service) ListRecordsBySession(ctx context.Context, sessionID string) ([]Record, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session id is required", ErrInvalidInput)
	}
	return s.store.ListRecordsBySession(ctx, sessionID)
}

// ListRecordsByStudent returns a student's history, newest first, with each
// record's course name denormalized from its session. A record whose session
// cannot be resolved is still returned with UnknownCourse.
func (s *Service) ListRecordsByStudent(ctx context.Context, studentID string) ([]Record, error) {
	if studentID == "" {
		return nil, fmt.Errorf("%w: student id is required", ErrInvalidInput)
	}
	return s.store.ListRecordsByStudent(ctx, studentID)
}
