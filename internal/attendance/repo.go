package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Repository persists sessions and records in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// InsertSession writes a new session. The insert is conditional on the primary
// key so a reused id fails instead of overwriting.
func (r *Repository) InsertSession(ctx context.Context, s Session) (Session, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_sessions (id, teacher_id, course_name, qr_code_value, active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
		RETURNING created_at
	`, s.ID, s.TeacherID, s.CourseName, s.QRCodeValue, s.Active)
	if err := row.Scan(&s.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrSessionExists
		}
		return Session{}, fmt.Errorf("insert session: %w", err)
	}
	s.CreatedAt = s.CreatedAt.UTC()
	return s, nil
}

// GetSession returns a single session by id.
func (r *Repository) GetSession(ctx context.Context, id string) (Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, teacher_id, course_name, qr_code_value, active, created_at
		FROM attendance_sessions WHERE id = $1
	`, id)
	var s Session
	if err := row.Scan(&s.ID, &s.TeacherID, &s.CourseName, &s.QRCodeValue, &s.Active, &s.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, fmt.Errorf("get session: %w", err)
	}
	s.CreatedAt = s.CreatedAt.UTC()
	return s, nil
}

// SetSessionActive updates the active flag.
func (r *Repository) SetSessionActive(ctx context.Context, id string, active bool) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE attendance_sessions SET active = $2 WHERE id = $1
	`, id, active)
	if err != nil {
		return fmt.Errorf("set session active: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set session active: %w", err)
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// InsertRecord writes a new attendance record. The (session_id, student_id)
// unique constraint turns a duplicate into ErrDuplicateAttendance atomically.
func (r *Repository) InsertRecord(ctx context.Context, rec Record) (Record, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_records (id, session_id, student_id, student_name, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id, student_id) DO NOTHING
		RETURNING marked_at
	`, rec.ID, rec.SessionID, rec.StudentID, rec.StudentName, rec.Status)
	if err := row.Scan(&rec.MarkedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrDuplicateAttendance
		}
		return Record{}, fmt.Errorf("insert record: %w", err)
	}
	rec.MarkedAt = rec.MarkedAt.UTC()
	return rec, nil
}

// ListSessionsByTeacher returns a teacher's sessions, newest first.
func (r *Repository) ListSessionsByTeacher(ctx context.Context, teacherID string) ([]Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, teacher_id, course_name, qr_code_value, active, created_at
		FROM attendance_sessions
		WHERE teacher_id = $1
		ORDER BY created_at DESC
	`, teacherID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var res []Session
	for rows.Next() {
		var s Session
		if err := rows.Scan(&s.ID, &s.TeacherID, &s.CourseName, &s.QRCodeValue, &s.Active, &s.CreatedAt); err != nil {
			return nil, err
		}
		s.CreatedAt = s.CreatedAt.UTC()
		res = append(res, s)
	}
	return res, rows.Err()
}

// ListRecordsBySession returns a session's records, oldest first.
func (r *Repository) ListRecordsBySession(ctx context.Context, sessionID string) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session_id, student_id, student_name, status, marked_at
		FROM attendance_records
		WHERE session_id = $1
		ORDER BY marked_at ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var res []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.StudentID, &rec.StudentName, &rec.Status, &rec.MarkedAt); err != nil {
			return nil, err
		}
		rec.MarkedAt = rec.MarkedAt.UTC()
		res = append(res, rec)
	}
	return res, rows.Err()
}

// ListRecordsByStudent returns a student's history, newest first. The LEFT
// JOIN keeps records whose session row is missing; those fall back to the
// UnknownCourse sentinel instead of failing the whole list.
func (r *Repository) ListRecordsByStudent(ctx context.Context, studentID string) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT r.id, r.session_id, r.student_id, r.student_name, r.status, r.marked_at,
		       COALESCE(s.course_name, $2)
		FROM attendance_records r
		LEFT JOIN attendance_sessions s ON s.id = r.session_id
		WHERE r.student_id = $1
		ORDER BY r.marked_at DESC
	`, studentID, UnknownCourse)
	if err != nil {
		return nil, fmt.Errorf("list student records: %w", err)
	}
	defer rows.Close()

	var res []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.StudentID, &rec.StudentName, &rec.Status, &rec.MarkedAt, &rec.CourseName); err != nil {
			return nil, err
		}
		rec.MarkedAt = rec.MarkedAt.UTC()
		res = append(res, rec)
	}
	return res, rows.Err()
}
