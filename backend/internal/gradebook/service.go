// Package gradebook runs the grade workflow: publishing assignments, grade
// entry through the status lifecycle, and statistics computed on read.
package gradebook

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"classroom/backend/internal/grading"
	"classroom/backend/internal/metrics"
	"classroom/backend/internal/shared"
	"classroom/backend/internal/store"
)

// Service implements the grade workflow over the typed repositories
type Service struct {
	records *store.Records
	now     func() time.Time
}

// NewService creates a new gradebook Service. A nil clock means time.Now.
func NewService(records *store.Records, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{records: records, now: now}
}

// NewAssignment carries the fields of an assignment to publish
type NewAssignment struct {
	ClassID        string
	Title          string
	PointsPossible float64
	DueAt          time.Time
}

// Statistics is the class or assignment view of the aggregate
type Statistics struct {
	ClassID      string `json:"class_id"`
	AssignmentID string `json:"assignment_id,omitempty"`
	shared.ClassStatistics
	CompletionRate float64 `json:"completion_rate"`
	// Assignments breaks class-wide statistics down per assignment id
	Assignments map[string]shared.ClassStatistics `json:"assignments,omitempty"`
}

// StudentSummary is one student's standing in a class
type StudentSummary struct {
	ClassID        string                 `json:"class_id"`
	StudentID      string                 `json:"student_id"`
	Statistics     shared.ClassStatistics `json:"statistics"`
	CompletionRate float64                `json:"completion_rate"`
	Assignments    int                    `json:"assignments"`
	Grades         []shared.GradeRecord   `json:"grades"`
}

// ============================================================================
// Assignments
// ============================================================================

// PublishAssignment stores the assignment and creates a pending record for
// every student on the roster
func (s *Service) PublishAssignment(ctx context.Context, p shared.Principal, in NewAssignment) (shared.Assignment, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return shared.Assignment{}, fmt.Errorf("%w: title is required", shared.ErrInvalidArgument)
	}
	if !(in.PointsPossible > 0) {
		return shared.Assignment{}, fmt.Errorf("%w: points possible must be positive", shared.ErrInvalidGradeValue)
	}

	class, err := s.managedClass(ctx, p, in.ClassID)
	if err != nil {
		return shared.Assignment{}, err
	}
	if !class.IsActive {
		return shared.Assignment{}, fmt.Errorf("%w: %s", shared.ErrClassArchived, class.ID)
	}

	now := s.now()
	a := shared.Assignment{
		ID:             shared.GenerateAssignmentID(),
		ClassID:        class.ID,
		Title:          title,
		PointsPossible: in.PointsPossible,
		DueAt:          in.DueAt.UTC(),
		Published:      true,
		CreatedAt:      now,
	}
	if err := s.records.PutAssignment(ctx, a); err != nil {
		return shared.Assignment{}, fmt.Errorf("failed to publish assignment: %w", err)
	}

	// Re-read the roster: a student who joined after the first read seeds
	// only the assignments that existed when they joined.
	roster, err := s.records.GetClass(ctx, class.ID)
	if err != nil {
		return shared.Assignment{}, err
	}
	seeded := 0
	for _, studentID := range roster.StudentIDs {
		created, err := s.seedPending(ctx, a, studentID, now)
		if err != nil {
			return shared.Assignment{}, fmt.Errorf("failed to create grade record for %s: %w", studentID, err)
		}
		if created {
			seeded++
		}
	}
	log.Printf("INFO: Assignment %s published to %s (%d records)", a.ID, class.ID, seeded)
	return a, nil
}

// seedPending creates a pending record unless the student already has one
func (s *Service) seedPending(ctx context.Context, a shared.Assignment, studentID string, now time.Time) (bool, error) {
	_, err := s.records.GetGrade(ctx, shared.GradeRecordID(a.ID, studentID))
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, shared.ErrRecordNotFound) {
		return false, err
	}
	return true, s.records.PutGrade(ctx, grading.NewPendingRecord(a, studentID, now))
}

// ListAssignments returns a class's assignments ordered by due date
func (s *Service) ListAssignments(ctx context.Context, p shared.Principal, classID string) ([]shared.Assignment, error) {
	class, err := s.records.GetClass(ctx, classID)
	if err != nil {
		return nil, err
	}
	if !class.VisibleTo(p) {
		return nil, fmt.Errorf("%w: class %s", shared.ErrPermissionDenied, classID)
	}
	assignments, err := s.records.ListAssignments(ctx, classID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(assignments, func(i, j int) bool {
		return assignments[i].DueAt.Before(assignments[j].DueAt)
	})
	return assignments, nil
}

// DeleteAssignment removes the assignment and every grade record under it
func (s *Service) DeleteAssignment(ctx context.Context, p shared.Principal, assignmentID string) (int64, error) {
	a, err := s.records.GetAssignment(ctx, assignmentID)
	if err != nil {
		return 0, err
	}
	if _, err := s.managedClass(ctx, p, a.ClassID); err != nil {
		return 0, err
	}

	deleted, err := s.records.DeleteGrades(ctx, store.GradeQuery{AssignmentID: assignmentID})
	if err != nil {
		return 0, fmt.Errorf("failed to delete grade records: %w", err)
	}
	if err := s.records.DeleteAssignment(ctx, assignmentID); err != nil {
		return deleted, err
	}
	log.Printf("INFO: Assignment %s deleted with %d grade records", assignmentID, deleted)
	return deleted, nil
}

// ============================================================================
// Grade Entry
// ============================================================================

// SaveDraft holds points entered but not yet committed
func (s *Service) SaveDraft(ctx context.Context, p shared.Principal, recordID string, points float64) (shared.GradeRecord, error) {
	now := s.now()
	return s.transition(ctx, p, recordID, shared.GradeDraft, func(rec shared.GradeRecord) (shared.GradeRecord, error) {
		return grading.SaveDraft(rec, points, now)
	})
}

// CommitGrade commits a score. Out-of-range points fail with
// ErrInvalidGradeValue and leave the stored record untouched.
func (s *Service) CommitGrade(ctx context.Context, p shared.Principal, recordID string, points float64, feedback string) (shared.GradeRecord, error) {
	now := s.now()
	return s.transition(ctx, p, recordID, shared.GradeGraded, func(rec shared.GradeRecord) (shared.GradeRecord, error) {
		return grading.Commit(rec, points, strings.TrimSpace(feedback), now)
	})
}

// ReturnGrades releases graded records of an assignment. With no student ids
// every graded record is released; records in other states are skipped.
func (s *Service) ReturnGrades(ctx context.Context, p shared.Principal, assignmentID string, studentIDs ...string) ([]shared.GradeRecord, error) {
	a, err := s.records.GetAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if _, err := s.managedClass(ctx, p, a.ClassID); err != nil {
		return nil, err
	}

	records, err := s.records.ListGrades(ctx, store.GradeQuery{AssignmentID: assignmentID})
	if err != nil {
		return nil, err
	}
	wanted := make(map[string]bool, len(studentIDs))
	for _, id := range studentIDs {
		wanted[id] = true
	}

	now := s.now()
	returned := make([]shared.GradeRecord, 0, len(records))
	for _, rec := range records {
		if rec.Status != shared.GradeGraded || (len(wanted) > 0 && !wanted[rec.StudentID]) {
			continue
		}
		updated, err := s.records.MutateGrade(ctx, rec.ID, func(cur shared.GradeRecord) (shared.GradeRecord, error) {
			return grading.Return(cur, now)
		})
		if errors.Is(err, shared.ErrInvalidTransition) {
			// regraded or released concurrently
			continue
		}
		if err != nil {
			return returned, err
		}
		metrics.GradeTransitions.WithLabelValues(string(shared.GradeReturned)).Inc()
		returned = append(returned, updated)
	}
	log.Printf("INFO: Returned %d grade(s) for assignment %s", len(returned), assignmentID)
	return returned, nil
}

// RecordSubmission marks the calling student's work as turned in. After a
// release this moves the record to revised for re-grading.
func (s *Service) RecordSubmission(ctx context.Context, p shared.Principal, assignmentID string) (shared.GradeRecord, error) {
	if !p.IsStudent() {
		return shared.GradeRecord{}, fmt.Errorf("%w: only students submit work", shared.ErrPermissionDenied)
	}
	now := s.now()
	rec, err := s.records.MutateGrade(ctx, shared.GradeRecordID(assignmentID, p.ID), func(cur shared.GradeRecord) (shared.GradeRecord, error) {
		return grading.Resubmit(cur, now)
	})
	if errors.Is(err, shared.ErrRecordNotFound) {
		return shared.GradeRecord{}, fmt.Errorf("%w: not enrolled for assignment %s", shared.ErrNotEnrolled, assignmentID)
	}
	if err != nil {
		return shared.GradeRecord{}, err
	}
	if rec.Status == shared.GradeRevised {
		metrics.GradeTransitions.WithLabelValues(string(shared.GradeRevised)).Inc()
	}
	return redactForStudent(rec, now), nil
}

func (s *Service) transition(ctx context.Context, p shared.Principal, recordID string, to shared.GradeStatus, step func(shared.GradeRecord) (shared.GradeRecord, error)) (shared.GradeRecord, error) {
	rec, err := s.records.GetGrade(ctx, recordID)
	if err != nil {
		return shared.GradeRecord{}, err
	}
	if _, err := s.managedClass(ctx, p, rec.ClassID); err != nil {
		return shared.GradeRecord{}, err
	}

	updated, err := s.records.MutateGrade(ctx, recordID, step)
	if err != nil {
		return shared.GradeRecord{}, err
	}
	metrics.GradeTransitions.WithLabelValues(string(to)).Inc()
	return updated, nil
}

// ============================================================================
// Reads
// ============================================================================

// ListGrades returns records with their status as of now. Students only see
// their own records, and points of unreleased grades are withheld.
func (s *Service) ListGrades(ctx context.Context, p shared.Principal, q store.GradeQuery) ([]shared.GradeRecord, error) {
	if q.ClassID == "" {
		return nil, fmt.Errorf("%w: class id is required", shared.ErrInvalidArgument)
	}
	class, err := s.records.GetClass(ctx, q.ClassID)
	if err != nil {
		return nil, err
	}
	if !class.VisibleTo(p) {
		return nil, fmt.Errorf("%w: class %s", shared.ErrPermissionDenied, q.ClassID)
	}

	student := !class.ManagedBy(p)
	if student {
		if q.StudentID != "" && q.StudentID != p.ID {
			return nil, fmt.Errorf("%w: students can only read their own grades", shared.ErrPermissionDenied)
		}
		q.StudentID = p.ID
	}

	records, err := s.records.ListGrades(ctx, q)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := grading.WithEffectiveStatus(records, now)
	if student {
		for i := range out {
			out[i] = redactForStudent(out[i], now)
		}
	}
	sortRecords(out)
	return out, nil
}

// ClassStatistics aggregates a class, or one assignment when assignmentID is set
func (s *Service) ClassStatistics(ctx context.Context, p shared.Principal, classID, assignmentID string) (Statistics, error) {
	if _, err := s.managedClass(ctx, p, classID); err != nil {
		return Statistics{}, err
	}
	return s.statistics(ctx, classID, assignmentID)
}

func (s *Service) statistics(ctx context.Context, classID, assignmentID string) (Statistics, error) {
	records, err := s.records.ListGrades(ctx, store.GradeQuery{ClassID: classID, AssignmentID: assignmentID})
	if err != nil {
		return Statistics{}, err
	}
	records = grading.WithEffectiveStatus(records, s.now())
	out := Statistics{
		ClassID:         classID,
		AssignmentID:    assignmentID,
		ClassStatistics: grading.Aggregate(records),
		CompletionRate:  grading.CompletionRate(records),
	}
	if assignmentID == "" {
		out.Assignments = make(map[string]shared.ClassStatistics)
		for id, group := range grading.ByAssignment(records) {
			out.Assignments[id] = grading.Aggregate(group)
		}
	}
	return out, nil
}

// StudentSummary reports one student's records and averages in a class.
// A student reading their own summary sees released grades only.
func (s *Service) StudentSummary(ctx context.Context, p shared.Principal, classID, studentID string) (StudentSummary, error) {
	if studentID == "" {
		studentID = p.ID
	}

	var (
		class       shared.ClassModel
		assignments []shared.Assignment
		records     []shared.GradeRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		class, err = s.records.GetClass(gctx, classID)
		return err
	})
	g.Go(func() (err error) {
		assignments, err = s.records.ListAssignments(gctx, classID)
		return err
	})
	g.Go(func() (err error) {
		records, err = s.records.ListGrades(gctx, store.GradeQuery{ClassID: classID, StudentID: studentID})
		return err
	})
	if err := g.Wait(); err != nil {
		return StudentSummary{}, err
	}

	manager := class.ManagedBy(p)
	if !manager && !(p.IsStudent() && p.ID == studentID && class.HasStudent(p.ID)) {
		return StudentSummary{}, fmt.Errorf("%w: summary of %s", shared.ErrPermissionDenied, studentID)
	}

	now := s.now()
	records = grading.WithEffectiveStatus(records, now)
	if !manager {
		for i := range records {
			records[i] = redactForStudent(records[i], now)
		}
	}
	sortRecords(records)

	published := 0
	for _, a := range assignments {
		if a.Published {
			published++
		}
	}
	return StudentSummary{
		ClassID:        classID,
		StudentID:      studentID,
		Statistics:     grading.Aggregate(records),
		CompletionRate: grading.CompletionRate(records),
		Assignments:    published,
		Grades:         records,
	}, nil
}

// WatchStatistics emits the class statistics now and again after every
// change to the class's grade records, until ctx is cancelled. Bursts of
// changes are coalesced into one recomputation.
func (s *Service) WatchStatistics(ctx context.Context, p shared.Principal, classID string) (<-chan Statistics, error) {
	if _, err := s.managedClass(ctx, p, classID); err != nil {
		return nil, err
	}
	changes, err := s.records.WatchGrades(ctx, classID)
	if err != nil {
		return nil, err
	}
	initial, err := s.statistics(ctx, classID, "")
	if err != nil {
		return nil, err
	}

	out := make(chan Statistics, 1)
	out <- initial
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-changes:
				if !ok {
					return
				}
				drain(changes)
				stats, err := s.statistics(ctx, classID, "")
				if err != nil {
					if ctx.Err() == nil {
						log.Printf("WARN: failed to recompute statistics for %s: %v", classID, err)
					}
					continue
				}
				select {
				case out <- stats:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// ============================================================================
// Internal Helpers
// ============================================================================

func (s *Service) managedClass(ctx context.Context, p shared.Principal, classID string) (shared.ClassModel, error) {
	if classID == "" {
		return shared.ClassModel{}, fmt.Errorf("%w: class id is required", shared.ErrInvalidArgument)
	}
	class, err := s.records.GetClass(ctx, classID)
	if err != nil {
		return shared.ClassModel{}, err
	}
	if !class.ManagedBy(p) {
		return shared.ClassModel{}, fmt.Errorf("%w: class %s", shared.ErrPermissionDenied, classID)
	}
	return class, nil
}

// redactForStudent withholds scores the teacher has not released. Drafts and
// unreturned grades read as pending, or notSubmitted once past due.
func redactForStudent(rec shared.GradeRecord, now time.Time) shared.GradeRecord {
	switch rec.Status {
	case shared.GradeDraft, shared.GradeGraded, shared.GradeNotSubmitted:
		rec.Status = shared.GradePending
		rec.Status = grading.EffectiveStatus(rec, now)
		rec.PointsEarned = 0
		rec.Percentage = 0
		rec.LetterGrade = ""
		rec.Feedback = ""
		rec.GradedAt = time.Time{}
	}
	return rec
}

func drain(changes <-chan store.Change) {
	for {
		select {
		case _, ok := <-changes:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

func sortRecords(records []shared.GradeRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].AssignmentID != records[j].AssignmentID {
			return records[i].AssignmentID < records[j].AssignmentID
		}
		return records[i].StudentID < records[j].StudentID
	})
}
