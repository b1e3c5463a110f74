// ============================================================================
// backend/internal/rpc/messages.go
// Request and response shapes carried inside google.protobuf.Struct
// ============================================================================

package rpc

import (
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"classroom/backend/internal/directory"
	"classroom/backend/internal/gradebook"
	"classroom/backend/internal/shared"
)

// ============================================================================
// Auth
// ============================================================================

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse = directory.LoginResult

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Role     string `json:"role"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

type Empty struct{}

type Ack struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// ============================================================================
// Classes
// ============================================================================

type CreateClassRequest struct {
	Name        string `json:"name"`
	Subject     string `json:"subject,omitempty"`
	MaxStudents int    `json:"max_students,omitempty"`
	TeacherID   string `json:"teacher_id,omitempty"`
}

type ClassRequest struct {
	ClassID string `json:"class_id"`
}

type ClassResponse struct {
	Class shared.ClassModel `json:"class"`
}

type ListClassesResponse struct {
	Classes []shared.ClassModel `json:"classes"`
}

type JoinClassRequest struct {
	Code string `json:"code"`
}

type StudentRequest struct {
	ClassID   string `json:"class_id"`
	StudentID string `json:"student_id"`
}

type RemoveStudentsRequest struct {
	ClassID    string   `json:"class_id"`
	StudentIDs []string `json:"student_ids"`
}

type RemoveStudentsResponse struct {
	Class   shared.ClassModel `json:"class"`
	Removed int               `json:"removed"`
}

// ============================================================================
// Assignments and grades
// ============================================================================

type PublishAssignmentRequest struct {
	ClassID        string    `json:"class_id"`
	Title          string    `json:"title"`
	PointsPossible float64   `json:"points_possible"`
	DueAt          time.Time `json:"due_at"`
}

type AssignmentRequest struct {
	AssignmentID string `json:"assignment_id"`
}

type AssignmentResponse struct {
	Assignment shared.Assignment `json:"assignment"`
}

type ListAssignmentsResponse struct {
	Assignments []shared.Assignment `json:"assignments"`
}

type DeleteAssignmentResponse struct {
	Deleted int64 `json:"deleted"`
}

type GradeEntryRequest struct {
	RecordID string  `json:"record_id"`
	Points   float64 `json:"points"`
	Feedback string  `json:"feedback,omitempty"`
}

type ReturnGradesRequest struct {
	AssignmentID string   `json:"assignment_id"`
	StudentIDs   []string `json:"student_ids,omitempty"`
}

type ListGradesRequest struct {
	ClassID      string `json:"class_id"`
	AssignmentID string `json:"assignment_id,omitempty"`
	StudentID    string `json:"student_id,omitempty"`
}

type GradeResponse struct {
	Grade shared.GradeRecord `json:"grade"`
}

type GradesResponse struct {
	Grades []shared.GradeRecord `json:"grades"`
}

type StatisticsRequest struct {
	ClassID      string `json:"class_id"`
	AssignmentID string `json:"assignment_id,omitempty"`
}

type StatisticsResponse = gradebook.Statistics

type StudentSummaryRequest struct {
	ClassID   string `json:"class_id"`
	StudentID string `json:"student_id,omitempty"`
}

type StudentSummaryResponse = gradebook.StudentSummary

// ============================================================================
// Struct Envelope
// ============================================================================

// toStruct encodes a message through its JSON shape
func toStruct(v interface{}) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	fields := map[string]interface{}{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return structpb.NewStruct(fields)
}

// fromStruct decodes a Struct into a typed message
func fromStruct(s *structpb.Struct, v interface{}) error {
	raw, err := json.Marshal(s.AsMap())
	if err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	return nil
}
