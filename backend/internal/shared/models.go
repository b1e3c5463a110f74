// ============================================================================
// backend/internal/shared/models.go
// Typed entities for classes, assignments, grade records and users
// ============================================================================

package shared

import (
	"time"
)

// ============================================================================
// User Models
// ============================================================================

// User represents an account known to the user directory
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`    // Never expose in JSON
	Role         string    `json:"role"` // teacher, student, admin
	Name         string    `json:"name"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

// Principal is an authenticated caller as resolved by the user directory.
// Its ID is trusted as teacherId / studentId by the core.
type Principal struct {
	ID    string `json:"id"`
	Role  string `json:"role"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// IsTeacher reports whether the principal may manage classes
func (p Principal) IsTeacher() bool { return p.Role == RoleTeacher }

// IsStudent reports whether the principal is a student
func (p Principal) IsStudent() bool { return p.Role == RoleStudent }

// IsAdmin reports whether the principal bypasses ownership checks
func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

// Session represents an issued token tracked for revocation
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// IsExpired checks if a session has expired at now. A zero ExpiresAt never expires.
func (s *Session) IsExpired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// ============================================================================
// Class Models
// ============================================================================

// ClassModel is a teacher-owned class with its student roster
type ClassModel struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Subject        string    `json:"subject,omitempty"`
	TeacherID      string    `json:"teacher_id"`
	StudentIDs     []string  `json:"student_ids"`
	MaxStudents    int       `json:"max_students,omitempty"` // 0 = unlimited
	EnrollmentCode string    `json:"enrollment_code"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at,omitempty"`
	Revision       int64     `json:"revision"`
}

// HasStudent reports roster membership
func (c *ClassModel) HasStudent(studentID string) bool {
	for _, id := range c.StudentIDs {
		if id == studentID {
			return true
		}
	}
	return false
}

// ManagedBy reports whether p may administer the class: its owner or an admin
func (c *ClassModel) ManagedBy(p Principal) bool {
	return p.IsAdmin() || (p.IsTeacher() && p.ID == c.TeacherID)
}

// VisibleTo reports whether p may read the class
func (c *ClassModel) VisibleTo(p Principal) bool {
	return c.ManagedBy(p) || (p.IsStudent() && c.HasStudent(p.ID))
}

// HasCapacity reports whether MaxStudents is set
func (c *ClassModel) HasCapacity() bool {
	return c.MaxStudents > 0
}

// SeatsAvailable returns remaining seats, or -1 when the class is unlimited
func (c *ClassModel) SeatsAvailable() int {
	if !c.HasCapacity() {
		return -1
	}
	available := c.MaxStudents - len(c.StudentIDs)
	if available < 0 {
		return 0
	}
	return available
}

// ============================================================================
// Assignment Models
// ============================================================================

// Assignment is a gradeable piece of work published to a class roster
type Assignment struct {
	ID             string    `json:"id"`
	ClassID        string    `json:"class_id"`
	Title          string    `json:"title"`
	PointsPossible float64   `json:"points_possible"`
	DueAt          time.Time `json:"due_at,omitempty"`
	Published      bool      `json:"published"`
	CreatedAt      time.Time `json:"created_at"`
}

// ============================================================================
// Grade Models
// ============================================================================

// GradeStatus is the lifecycle state of a grade record
type GradeStatus string

const (
	GradePending      GradeStatus = "pending"
	GradeDraft        GradeStatus = "draft"
	GradeGraded       GradeStatus = "graded"
	GradeReturned     GradeStatus = "returned"
	GradeRevised      GradeStatus = "revised"
	GradeNotSubmitted GradeStatus = "notSubmitted" // read-time only, never stored
)

// AllGradeStatuses lists every status in lifecycle order
var AllGradeStatuses = []GradeStatus{
	GradePending, GradeDraft, GradeGraded, GradeReturned, GradeRevised, GradeNotSubmitted,
}

// IsValid checks the status against the known set
func (s GradeStatus) IsValid() bool {
	for _, known := range AllGradeStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsCompleted reports whether the status counts toward statistics
func (s GradeStatus) IsCompleted() bool {
	return s == GradeGraded || s == GradeReturned
}

// GradeRecord is the unit of gradeable work per (student, assignment) pair
type GradeRecord struct {
	ID             string      `json:"id"`
	ClassID        string      `json:"class_id"`
	AssignmentID   string      `json:"assignment_id"`
	StudentID      string      `json:"student_id"`
	PointsEarned   float64     `json:"points_earned"`
	PointsPossible float64     `json:"points_possible"`
	Percentage     float64     `json:"percentage"`
	LetterGrade    string      `json:"letter_grade,omitempty"`
	Status         GradeStatus `json:"status"`
	Feedback       string      `json:"feedback,omitempty"`
	DueAt          time.Time   `json:"due_at,omitempty"`
	SubmittedAt    time.Time   `json:"submitted_at,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
	GradedAt       time.Time   `json:"graded_at,omitempty"`
}

// HasSubmission reports whether the student has turned the work in
func (g *GradeRecord) HasSubmission() bool {
	return !g.SubmittedAt.IsZero()
}

// GradeRecordID derives the synthetic record id from its composite identity
func GradeRecordID(assignmentID, studentID string) string {
	return assignmentID + ":" + studentID
}

// ============================================================================
// Statistics Models
// ============================================================================

// ClassStatistics is derived from grade records on every read
type ClassStatistics struct {
	Average       float64             `json:"average"`
	Highest       float64             `json:"highest"`
	Lowest        float64             `json:"lowest"`
	Median        float64             `json:"median"`
	TotalGrades   int                 `json:"total_grades"`
	TotalRecords  int                 `json:"total_records"`
	Skipped       int                 `json:"skipped"`
	StatusCounts  map[GradeStatus]int `json:"status_counts"`
	AverageLetter string              `json:"average_letter,omitempty"`
}

// ============================================================================
// Constants
// ============================================================================

const (
	// User roles
	RoleTeacher = "teacher"
	RoleStudent = "student"
	RoleAdmin   = "admin"

	// Collections
	CollectionUsers       = "users"
	CollectionSessions    = "sessions"
	CollectionClasses     = "classes"
	CollectionAssignments = "assignments"
	CollectionGrades      = "grades"
)

// IsValidRole checks if user role is valid
func IsValidRole(role string) bool {
	switch role {
	case RoleTeacher, RoleStudent, RoleAdmin:
		return true
	}
	return false
}
