package enrollment

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"classroom/backend/internal/grading"
	"classroom/backend/internal/metrics"
	"classroom/backend/internal/shared"
	"classroom/backend/internal/store"
)

// Service manages classes and their rosters on top of the typed repositories
type Service struct {
	records *store.Records
	codes   *Generator
	now     func() time.Time
}

// NewService creates a new enrollment Service. A nil clock means time.Now.
func NewService(records *store.Records, codes *Generator, now func() time.Time) *Service {
	if codes == nil {
		codes = NewGenerator()
	}
	if now == nil {
		now = time.Now
	}
	return &Service{records: records, codes: codes, now: now}
}

// NewClass carries the teacher-supplied fields of a class
type NewClass struct {
	Name        string
	Subject     string
	MaxStudents int
	// TeacherID is honoured only for admins; teachers always own what they create
	TeacherID string
}

// CreateClass creates an active class with a fresh enrollment code
func (s *Service) CreateClass(ctx context.Context, p shared.Principal, in NewClass) (shared.ClassModel, error) {
	if !p.IsTeacher() && !p.IsAdmin() {
		return shared.ClassModel{}, fmt.Errorf("%w: only teachers create classes", shared.ErrPermissionDenied)
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return shared.ClassModel{}, fmt.Errorf("%w: class name is required", shared.ErrInvalidArgument)
	}
	if in.MaxStudents < 0 {
		return shared.ClassModel{}, fmt.Errorf("%w: max students cannot be negative", shared.ErrInvalidArgument)
	}

	teacherID := p.ID
	if p.IsAdmin() && in.TeacherID != "" {
		teacherID = in.TeacherID
	}

	code, err := s.codes.Generate(ctx, s.codeInUse)
	if err != nil {
		return shared.ClassModel{}, err
	}

	now := s.now()
	class := shared.ClassModel{
		ID:             shared.GenerateClassID(),
		Name:           name,
		Subject:        strings.TrimSpace(in.Subject),
		TeacherID:      teacherID,
		StudentIDs:     []string{},
		MaxStudents:    in.MaxStudents,
		EnrollmentCode: code,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.records.PutClass(ctx, class); err != nil {
		return shared.ClassModel{}, fmt.Errorf("failed to create class: %w", err)
	}

	log.Printf("INFO: Class %s created by %s (code %s)", class.ID, p.ID, class.EnrollmentCode)
	return class, nil
}

// GetClass returns a class the principal may read. Students see only
// themselves on the roster.
func (s *Service) GetClass(ctx context.Context, p shared.Principal, classID string) (shared.ClassModel, error) {
	class, err := s.records.GetClass(ctx, classID)
	if err != nil {
		return shared.ClassModel{}, err
	}
	if !class.VisibleTo(p) {
		return shared.ClassModel{}, fmt.Errorf("%w: class %s", shared.ErrPermissionDenied, classID)
	}
	return redactRoster(class, p), nil
}

// ListClasses returns the classes a principal teaches or attends; admins see all
func (s *Service) ListClasses(ctx context.Context, p shared.Principal) ([]shared.ClassModel, error) {
	var (
		classes []shared.ClassModel
		err     error
	)
	switch {
	case p.IsAdmin():
		classes, err = s.records.ListClasses(ctx)
	case p.IsTeacher():
		classes, err = s.records.ListClassesByTeacher(ctx, p.ID)
	case p.IsStudent():
		classes, err = s.records.ListClassesByStudent(ctx, p.ID)
	default:
		return nil, fmt.Errorf("%w: unknown role %q", shared.ErrPermissionDenied, p.Role)
	}
	if err != nil {
		return nil, err
	}
	for i := range classes {
		classes[i] = redactRoster(classes[i], p)
	}
	return classes, nil
}

// JoinByCode enrolls the calling student in the active class holding code.
// Unknown, ill-formed and archived codes all fail with ErrInvalidCode.
func (s *Service) JoinByCode(ctx context.Context, p shared.Principal, code string) (shared.ClassModel, error) {
	if !p.IsStudent() {
		return shared.ClassModel{}, fmt.Errorf("%w: only students join by code", shared.ErrPermissionDenied)
	}

	// 1. Resolve the code to an active class
	code = NormalizeCode(code)
	if !ValidCode(code) {
		metrics.EnrollmentAttempts.WithLabelValues("invalid_code").Inc()
		return shared.ClassModel{}, shared.ErrInvalidCode
	}
	class, err := s.activeClassByCode(ctx, code)
	if err != nil {
		metrics.EnrollmentAttempts.WithLabelValues("invalid_code").Inc()
		return shared.ClassModel{}, err
	}

	// 2. Apply roster rules under the revision guard
	updated, err := s.enroll(ctx, class.ID, p.ID)
	if err != nil {
		return shared.ClassModel{}, err
	}
	return redactRoster(updated, p), nil
}

// AddStudent enrolls studentID on behalf of the class owner
func (s *Service) AddStudent(ctx context.Context, p shared.Principal, classID, studentID string) (shared.ClassModel, error) {
	if _, err := s.managedClass(ctx, p, classID); err != nil {
		return shared.ClassModel{}, err
	}
	return s.enroll(ctx, classID, studentID)
}

func (s *Service) enroll(ctx context.Context, classID, studentID string) (shared.ClassModel, error) {
	now := s.now()
	updated, err := s.records.MutateClass(ctx, classID, func(c shared.ClassModel) (shared.ClassModel, error) {
		return Enroll(c, studentID, now)
	})
	if err != nil {
		metrics.EnrollmentAttempts.WithLabelValues(enrollOutcome(err)).Inc()
		return shared.ClassModel{}, err
	}
	metrics.EnrollmentAttempts.WithLabelValues("enrolled").Inc()
	log.Printf("INFO: Student %s enrolled in %s", studentID, classID)

	// 3. Give the new student a pending record for every published assignment
	if err := s.seedPendingRecords(ctx, updated, studentID); err != nil {
		log.Printf("ERROR: Failed to seed grade records for %s in %s: %v", studentID, classID, err)
		return shared.ClassModel{}, err
	}
	return updated, nil
}

// RemoveStudents drops students from the roster and deletes their grade
// records in the class. Students already absent are skipped silently.
// A student may remove only themselves.
func (s *Service) RemoveStudents(ctx context.Context, p shared.Principal, classID string, studentIDs ...string) (shared.ClassModel, int, error) {
	class, err := s.records.GetClass(ctx, classID)
	if err != nil {
		return shared.ClassModel{}, 0, err
	}
	selfOnly := len(studentIDs) == 1 && studentIDs[0] == p.ID && p.IsStudent()
	if !class.ManagedBy(p) && !selfOnly {
		return shared.ClassModel{}, 0, fmt.Errorf("%w: class %s", shared.ErrPermissionDenied, classID)
	}
	if len(studentIDs) == 0 {
		return redactRoster(class, p), 0, nil
	}

	now := s.now()
	var removed int
	updated, err := s.records.MutateClass(ctx, classID, func(c shared.ClassModel) (shared.ClassModel, error) {
		var next shared.ClassModel
		next, removed = Unenroll(c, now, studentIDs...)
		return next, nil
	})
	if err != nil {
		return shared.ClassModel{}, 0, err
	}

	// cascade for every requested id so a retried removal also clears leftovers
	for _, studentID := range studentIDs {
		if _, err := s.records.DeleteGrades(ctx, store.GradeQuery{ClassID: classID, StudentID: studentID}); err != nil {
			return shared.ClassModel{}, removed, fmt.Errorf("failed to delete grade records of %s: %w", studentID, err)
		}
	}
	if removed > 0 {
		log.Printf("INFO: Removed %d student(s) from %s", removed, classID)
	}
	return redactRoster(updated, p), removed, nil
}

// ArchiveClass deactivates a class; its code stops resolving
func (s *Service) ArchiveClass(ctx context.Context, p shared.Principal, classID string) (shared.ClassModel, error) {
	if _, err := s.managedClass(ctx, p, classID); err != nil {
		return shared.ClassModel{}, err
	}
	now := s.now()
	return s.records.MutateClass(ctx, classID, func(c shared.ClassModel) (shared.ClassModel, error) {
		c.IsActive = false
		c.UpdatedAt = now
		return c, nil
	})
}

// RestoreClass reactivates a class. When another active class took the
// code in the meantime a new one is drawn.
func (s *Service) RestoreClass(ctx context.Context, p shared.Principal, classID string) (shared.ClassModel, error) {
	class, err := s.managedClass(ctx, p, classID)
	if err != nil {
		return shared.ClassModel{}, err
	}
	if class.IsActive {
		return class, nil
	}

	code := class.EnrollmentCode
	taken, err := s.codeInUse(ctx, code)
	if err != nil {
		return shared.ClassModel{}, err
	}
	if taken || !ValidCode(code) {
		if code, err = s.codes.Generate(ctx, s.codeInUse); err != nil {
			return shared.ClassModel{}, err
		}
		log.Printf("INFO: Class %s restored with new code %s", classID, code)
	}

	now := s.now()
	return s.records.MutateClass(ctx, classID, func(c shared.ClassModel) (shared.ClassModel, error) {
		c.IsActive = true
		c.EnrollmentCode = code
		c.UpdatedAt = now
		return c, nil
	})
}

// RegenerateCode replaces the enrollment code; the old one stops resolving
func (s *Service) RegenerateCode(ctx context.Context, p shared.Principal, classID string) (shared.ClassModel, error) {
	class, err := s.managedClass(ctx, p, classID)
	if err != nil {
		return shared.ClassModel{}, err
	}
	if !class.IsActive {
		return shared.ClassModel{}, fmt.Errorf("%w: %s", shared.ErrClassArchived, classID)
	}

	code, err := s.codes.Generate(ctx, s.codeInUse)
	if err != nil {
		return shared.ClassModel{}, err
	}
	now := s.now()
	return s.records.MutateClass(ctx, classID, func(c shared.ClassModel) (shared.ClassModel, error) {
		c.EnrollmentCode = code
		c.UpdatedAt = now
		return c, nil
	})
}

// ============================================================================
// Internal Helpers
// ============================================================================

// codeInUse is the generator's existence check: only active classes hold codes
func (s *Service) codeInUse(ctx context.Context, code string) (bool, error) {
	classes, err := s.records.FindClassesByCode(ctx, code)
	if err != nil {
		return false, err
	}
	for _, c := range classes {
		if c.IsActive {
			return true, nil
		}
	}
	return false, nil
}

func (s *Service) activeClassByCode(ctx context.Context, code string) (shared.ClassModel, error) {
	classes, err := s.records.FindClassesByCode(ctx, code)
	if err != nil {
		return shared.ClassModel{}, err
	}
	for _, c := range classes {
		if c.IsActive {
			return c, nil
		}
	}
	return shared.ClassModel{}, shared.ErrInvalidCode
}

func (s *Service) managedClass(ctx context.Context, p shared.Principal, classID string) (shared.ClassModel, error) {
	class, err := s.records.GetClass(ctx, classID)
	if err != nil {
		return shared.ClassModel{}, err
	}
	if !class.ManagedBy(p) {
		return shared.ClassModel{}, fmt.Errorf("%w: class %s", shared.ErrPermissionDenied, classID)
	}
	return class, nil
}

func (s *Service) seedPendingRecords(ctx context.Context, class shared.ClassModel, studentID string) error {
	assignments, err := s.records.ListAssignments(ctx, class.ID)
	if err != nil {
		return err
	}
	now := s.now()
	for _, a := range assignments {
		if !a.Published {
			continue
		}
		_, err := s.records.GetGrade(ctx, shared.GradeRecordID(a.ID, studentID))
		if err == nil {
			continue
		}
		if !errors.Is(err, shared.ErrRecordNotFound) {
			return err
		}
		if err := s.records.PutGrade(ctx, grading.NewPendingRecord(a, studentID, now)); err != nil {
			return err
		}
	}
	return nil
}

func redactRoster(c shared.ClassModel, p shared.Principal) shared.ClassModel {
	if c.ManagedBy(p) {
		return c
	}
	if c.HasStudent(p.ID) {
		c.StudentIDs = []string{p.ID}
	} else {
		c.StudentIDs = []string{}
	}
	return c
}

func enrollOutcome(err error) string {
	switch {
	case errors.Is(err, shared.ErrAlreadyEnrolled):
		return "already_enrolled"
	case errors.Is(err, shared.ErrClassFull):
		return "class_full"
	case errors.Is(err, shared.ErrClassArchived):
		return "archived"
	case errors.Is(err, store.ErrConflict):
		return "conflict"
	}
	return "error"
}
