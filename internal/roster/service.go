package roster

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"rollcall/internal/auth"
)

// Roles a user can hold.
const (
	RoleAdmin   = "admin"
	RoleTeacher = "teacher"
	RoleStudent = "student"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrNotFound           = errors.New("user not found")
	ErrEmailTaken         = errors.New("a user with this email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUnauthorized       = errors.New("admin privileges required")
)

// User is a registered account. Passwords live only in the store as bcrypt
// hashes and never appear on this type.
type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
}

// Stats counts users by role partition for dashboards. The counts come from
// one query but are display-only either way.
type Stats struct {
	TotalUsers    int `json:"total_users"`
	TotalTeachers int `json:"total_teachers"`
	TotalStudents int `json:"total_students"`
	TotalAdmins   int `json:"total_admins"`
}

// Claim is the capability object handed out by Authorize. Privileged
// operations consult it instead of re-deriving role checks per call site.
type Claim struct {
	UserID string
	Role   string
}

// CanManageUsers reports whether the holder may administer accounts.
func (c Claim) CanManageUsers() bool { return c.Role == RoleAdmin }

// CanRunSessions reports whether the holder may create or toggle sessions.
func (c Claim) CanRunSessions() bool { return c.Role == RoleAdmin || c.Role == RoleTeacher }

// ValidRole reports whether r is a known role.
func ValidRole(r string) bool {
	return r == RoleAdmin || r == RoleTeacher || r == RoleStudent
}

// Store is the persistence contract for accounts.
type Store interface {
	InsertUser(ctx context.Context, u User, passwordHash string) (User, error)
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, string, error)
	ListUsers(ctx context.Context) ([]User, error)
	UpdateUserRole(ctx context.Context, id, role string) error
	CountByRole(ctx context.Context) (map[string]int, error)
}

// Service manages accounts, authorization and role stats.
type Service struct {
	store Store
}

// NewService creates a service backed by a store.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Signup creates a new account. The display name defaults to the local part
// of the email when omitted.
func (s *Service) Signup(ctx context.Context, email, password, displayName, role string) (User, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil {
		return User{}, fmt.Errorf("%w: invalid email address", ErrInvalidInput)
	}
	// ParseAddress accepts display-name forms; only the address is stored.
	email = strings.ToLower(addr.Address)
	if len(password) < 6 {
		return User{}, fmt.Errorf("%w: password must be at least 6 characters", ErrInvalidInput)
	}
	if !ValidRole(role) {
		return User{}, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = email[:strings.Index(email, "@")]
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	return s.store.InsertUser(ctx, User{
		ID:          uuid.NewString(),
		Email:       email,
		DisplayName: displayName,
		Role:        role,
	}, hash)
}

// Login verifies credentials and returns the account.
func (s *Service) Login(ctx context.Context, email, password string) (User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, hash, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, ErrInvalidCredentials
		}
		return User{}, err
	}
	if !auth.CheckPassword(hash, password) {
		return User{}, ErrInvalidCredentials
	}
	return u, nil
}

// Authorize resolves the requester into a Claim. An unknown requester is
// unauthorized, not merely not found.
func (s *Service) Authorize(ctx context.Context, requesterID string) (Claim, error) {
	if requesterID == "" {
		return Claim{}, ErrUnauthorized
	}
	u, err := s.store.GetUser(ctx, requesterID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Claim{}, ErrUnauthorized
		}
		return Claim{}, err
	}
	return Claim{UserID: u.ID, Role: u.Role}, nil
}

// GetUser returns an account by id.
func (s *Service) GetUser(ctx context.Context, id string) (User, error) {
	if id == "" {
		return User{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	return s.store.GetUser(ctx, id)
}

// ListUsers returns every account. Admin only.
func (s *Service) ListUsers(ctx context.Context, requesterID string) ([]User, error) {
	claim, err := s.Authorize(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	if !claim.CanManageUsers() {
		return nil, ErrUnauthorized
	}
	return s.store.ListUsers(ctx)
}

// AdminCreateUser creates a teacher or student account on behalf of an admin.
// The admin form never mints admins.
func (s *Service) AdminCreateUser(ctx context.Context, adminUserID, email, password, displayName, role string) (User, error) {
	claim, err := s.Authorize(ctx, adminUserID)
	if err != nil {
		return User{}, err
	}
	if !claim.CanManageUsers() {
		return User{}, ErrUnauthorized
	}
	if role != RoleTeacher && role != RoleStudent {
		return User{}, fmt.Errorf("%w: role must be teacher or student", ErrInvalidInput)
	}
	return s.Signup(ctx, email, password, displayName, role)
}

// UpdateUserRole changes an account's role. Admin only. Self-demotion is
// permitted here; restricting it is a UI policy concern.
func (s *Service) UpdateUserRole(ctx context.Context, adminUserID, targetUserID, newRole string) error {
	claim, err := s.Authorize(ctx, adminUserID)
	if err != nil {
		return err
	}
	if !claim.CanManageUsers() {
		return ErrUnauthorized
	}
	if !ValidRole(newRole) {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidInput, newRole)
	}
	if targetUserID == "" {
		return fmt.Errorf("%w: target user id is required", ErrInvalidInput)
	}
	return s.store.UpdateUserRole(ctx, targetUserID, newRole)
}

// GetUserStats returns role counts for the admin dashboard.
func (s *Service) GetUserStats(ctx context.Context, requesterID string) (Stats, error) {
	claim, err := s.Authorize(ctx, requesterID)
	if err != nil {
		return Stats{}, err
	}
	if !claim.CanManageUsers() {
		return Stats{}, ErrUnauthorized
	}
	counts, err := s.store.CountByRole(ctx)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{
		TotalTeachers: counts[RoleTeacher],
		TotalStudents: counts[RoleStudent],
		TotalAdmins:   counts[RoleAdmin],
	}
	for _, n := range counts {
		st.TotalUsers += n
	}
	return st, nil
}
