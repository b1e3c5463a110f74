// ============================================================================
// backend/internal/store/records.go
// Typed repositories: the only place documents become entities
// ============================================================================

package store

import (
	"context"
	"errors"
	"fmt"
	"math"

	"classroom/backend/internal/grading"
	"classroom/backend/internal/shared"
)

// Records exposes typed access to every collection of the classroom core
type Records struct {
	ds DocumentStore
}

// NewRecords wraps a document store
func NewRecords(ds DocumentStore) *Records {
	return &Records{ds: ds}
}

// Store returns the underlying document store
func (r *Records) Store() DocumentStore {
	return r.ds
}

// ============================================================================
// Classes
// ============================================================================

// GetClass loads a class by id
func (r *Records) GetClass(ctx context.Context, id string) (shared.ClassModel, error) {
	doc, err := r.ds.Get(ctx, shared.CollectionClasses, id)
	if errors.Is(err, ErrNotFound) {
		return shared.ClassModel{}, shared.ErrClassNotFound
	}
	if err != nil {
		return shared.ClassModel{}, err
	}
	return classFromDocument(doc)
}

// PutClass upserts a class
func (r *Records) PutClass(ctx context.Context, c shared.ClassModel) error {
	return r.ds.Put(ctx, shared.CollectionClasses, c.ID, classToDocument(c))
}

// MutateClass applies fn to the stored class under the revision guard.
// Domain errors returned by fn surface unchanged.
func (r *Records) MutateClass(ctx context.Context, id string, fn func(shared.ClassModel) (shared.ClassModel, error)) (shared.ClassModel, error) {
	doc, err := r.ds.Mutate(ctx, shared.CollectionClasses, id, func(current Document) (Document, error) {
		c, err := classFromDocument(current)
		if err != nil {
			return nil, err
		}
		next, err := fn(c)
		if err != nil {
			return nil, err
		}
		return classToDocument(next), nil
	})
	if errors.Is(err, ErrNotFound) {
		return shared.ClassModel{}, shared.ErrClassNotFound
	}
	if err != nil {
		return shared.ClassModel{}, err
	}
	return classFromDocument(doc)
}

// FindClassesByCode returns classes currently holding code
func (r *Records) FindClassesByCode(ctx context.Context, code string) ([]shared.ClassModel, error) {
	return r.findClasses(ctx, Filter{"enrollment_code": code})
}

// ListClassesByTeacher returns every class owned by teacherID
func (r *Records) ListClassesByTeacher(ctx context.Context, teacherID string) ([]shared.ClassModel, error) {
	return r.findClasses(ctx, Filter{"teacher_id": teacherID})
}

// ListClassesByStudent returns every class with studentID on its roster
func (r *Records) ListClassesByStudent(ctx context.Context, studentID string) ([]shared.ClassModel, error) {
	return r.findClasses(ctx, Filter{"student_ids": ArrayContains(studentID)})
}

// ListClasses returns every class
func (r *Records) ListClasses(ctx context.Context) ([]shared.ClassModel, error) {
	return r.findClasses(ctx, nil)
}

func (r *Records) findClasses(ctx context.Context, filter Filter) ([]shared.ClassModel, error) {
	docs, err := r.ds.Find(ctx, shared.CollectionClasses, filter)
	if err != nil {
		return nil, err
	}
	classes := make([]shared.ClassModel, 0, len(docs))
	for _, doc := range docs {
		c, err := classFromDocument(doc)
		if err != nil {
			return nil, err
		}
		classes = append(classes, c)
	}
	return classes, nil
}

func classToDocument(c shared.ClassModel) Document {
	studentIDs := c.StudentIDs
	if studentIDs == nil {
		studentIDs = []string{}
	}
	doc := Document{
		FieldID:           c.ID,
		FieldRevision:     c.Revision,
		"name":            c.Name,
		"subject":         c.Subject,
		"teacher_id":      c.TeacherID,
		"student_ids":     append([]string(nil), studentIDs...),
		"max_students":    int64(c.MaxStudents),
		"enrollment_code": c.EnrollmentCode,
		"is_active":       c.IsActive,
	}
	timeValue(doc, "created_at", c.CreatedAt)
	timeValue(doc, "updated_at", c.UpdatedAt)
	return doc
}

func classFromDocument(doc Document) (shared.ClassModel, error) {
	var c shared.ClassModel
	var err error
	if c.ID, err = shared.GetString(doc[FieldID]); err != nil {
		return c, fmt.Errorf("class id: %w", err)
	}
	c.Name, _ = shared.GetString(doc["name"])
	c.Subject, _ = shared.GetString(doc["subject"])
	c.TeacherID, _ = shared.GetString(doc["teacher_id"])
	if c.StudentIDs, err = shared.GetStringArray(doc["student_ids"]); err != nil {
		return c, fmt.Errorf("class %s student_ids: %w", c.ID, err)
	}
	c.MaxStudents, _ = shared.GetInt(doc["max_students"])
	if c.MaxStudents < 0 {
		c.MaxStudents = 0
	}
	c.EnrollmentCode, _ = shared.GetString(doc["enrollment_code"])
	c.IsActive, _ = shared.GetBool(doc["is_active"])
	c.CreatedAt, _ = shared.GetTime(doc["created_at"])
	c.UpdatedAt, _ = shared.GetTime(doc["updated_at"])
	c.Revision = doc.Revision()
	return c, nil
}

// ============================================================================
// Assignments
// ============================================================================

// GetAssignment loads an assignment by id
func (r *Records) GetAssignment(ctx context.Context, id string) (shared.Assignment, error) {
	doc, err := r.ds.Get(ctx, shared.CollectionAssignments, id)
	if errors.Is(err, ErrNotFound) {
		return shared.Assignment{}, shared.ErrAssignmentNotFound
	}
	if err != nil {
		return shared.Assignment{}, err
	}
	return assignmentFromDocument(doc)
}

// PutAssignment upserts an assignment
func (r *Records) PutAssignment(ctx context.Context, a shared.Assignment) error {
	return r.ds.Put(ctx, shared.CollectionAssignments, a.ID, assignmentToDocument(a))
}

// DeleteAssignment removes an assignment; its grade records are not touched
func (r *Records) DeleteAssignment(ctx context.Context, id string) error {
	err := r.ds.Delete(ctx, shared.CollectionAssignments, id)
	if errors.Is(err, ErrNotFound) {
		return shared.ErrAssignmentNotFound
	}
	return err
}

// ListAssignments returns the assignments of a class
func (r *Records) ListAssignments(ctx context.Context, classID string) ([]shared.Assignment, error) {
	docs, err := r.ds.Find(ctx, shared.CollectionAssignments, Filter{"class_id": classID})
	if err != nil {
		return nil, err
	}
	out := make([]shared.Assignment, 0, len(docs))
	for _, doc := range docs {
		a, err := assignmentFromDocument(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func assignmentToDocument(a shared.Assignment) Document {
	doc := Document{
		FieldID:           a.ID,
		"class_id":        a.ClassID,
		"title":           a.Title,
		"points_possible": a.PointsPossible,
		"published":       a.Published,
	}
	timeValue(doc, "due_at", a.DueAt)
	timeValue(doc, "created_at", a.CreatedAt)
	return doc
}

func assignmentFromDocument(doc Document) (shared.Assignment, error) {
	var a shared.Assignment
	var err error
	if a.ID, err = shared.GetString(doc[FieldID]); err != nil {
		return a, fmt.Errorf("assignment id: %w", err)
	}
	a.ClassID, _ = shared.GetString(doc["class_id"])
	a.Title, _ = shared.GetString(doc["title"])
	a.PointsPossible, _ = shared.GetFloat64(doc["points_possible"])
	a.Published, _ = shared.GetBool(doc["published"])
	a.DueAt, _ = shared.GetTime(doc["due_at"])
	a.CreatedAt, _ = shared.GetTime(doc["created_at"])
	return a, nil
}

// ============================================================================
// Grade Records
// ============================================================================

// GradeQuery narrows a grade listing; empty fields do not filter
type GradeQuery struct {
	ClassID      string
	AssignmentID string
	StudentID    string
}

func (q GradeQuery) filter() Filter {
	f := Filter{}
	if q.ClassID != "" {
		f["class_id"] = q.ClassID
	}
	if q.AssignmentID != "" {
		f["assignment_id"] = q.AssignmentID
	}
	if q.StudentID != "" {
		f["student_id"] = q.StudentID
	}
	return f
}

// GetGrade loads a grade record by id
func (r *Records) GetGrade(ctx context.Context, id string) (shared.GradeRecord, error) {
	doc, err := r.ds.Get(ctx, shared.CollectionGrades, id)
	if errors.Is(err, ErrNotFound) {
		return shared.GradeRecord{}, shared.ErrRecordNotFound
	}
	if err != nil {
		return shared.GradeRecord{}, err
	}
	return GradeFromDocument(doc)
}

// PutGrade upserts a grade record
func (r *Records) PutGrade(ctx context.Context, g shared.GradeRecord) error {
	return r.ds.Put(ctx, shared.CollectionGrades, g.ID, gradeToDocument(g))
}

// MutateGrade applies a lifecycle step to the stored record under the
// revision guard, so concurrent transitions cannot overwrite each other.
func (r *Records) MutateGrade(ctx context.Context, id string, fn func(shared.GradeRecord) (shared.GradeRecord, error)) (shared.GradeRecord, error) {
	doc, err := r.ds.Mutate(ctx, shared.CollectionGrades, id, func(current Document) (Document, error) {
		g, err := GradeFromDocument(current)
		if err != nil {
			return nil, err
		}
		next, err := fn(g)
		if err != nil {
			return nil, err
		}
		return gradeToDocument(next), nil
	})
	if errors.Is(err, ErrNotFound) {
		return shared.GradeRecord{}, shared.ErrRecordNotFound
	}
	if err != nil {
		return shared.GradeRecord{}, err
	}
	return GradeFromDocument(doc)
}

// ListGrades returns grade records matching q
func (r *Records) ListGrades(ctx context.Context, q GradeQuery) ([]shared.GradeRecord, error) {
	docs, err := r.ds.Find(ctx, shared.CollectionGrades, q.filter())
	if err != nil {
		return nil, err
	}
	out := make([]shared.GradeRecord, 0, len(docs))
	for _, doc := range docs {
		g, err := GradeFromDocument(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

// DeleteGrades removes grade records matching q. An empty query is refused.
func (r *Records) DeleteGrades(ctx context.Context, q GradeQuery) (int64, error) {
	f := q.filter()
	if len(f) == 0 {
		return 0, fmt.Errorf("%w: refusing to delete every grade record", shared.ErrInvalidArgument)
	}
	return r.ds.DeleteMany(ctx, shared.CollectionGrades, f)
}

// WatchGrades streams grade record changes for a class
func (r *Records) WatchGrades(ctx context.Context, classID string) (<-chan Change, error) {
	changes, err := r.ds.Watch(ctx, shared.CollectionGrades)
	if err != nil {
		return nil, err
	}
	out := make(chan Change)
	go func() {
		defer close(out)
		for ch := range changes {
			// deletes carry no document; the id prefix is the assignment, not the class
			if ch.Kind == ChangeUpsert {
				if id, _ := shared.GetString(ch.Doc["class_id"]); id != classID {
					continue
				}
			}
			select {
			case out <- ch:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func gradeToDocument(g shared.GradeRecord) Document {
	doc := Document{
		FieldID:           g.ID,
		"class_id":        g.ClassID,
		"assignment_id":   g.AssignmentID,
		"student_id":      g.StudentID,
		"points_earned":   g.PointsEarned,
		"points_possible": g.PointsPossible,
		"status":          string(g.Status),
		"feedback":        g.Feedback,
	}
	timeValue(doc, "due_at", g.DueAt)
	timeValue(doc, "submitted_at", g.SubmittedAt)
	timeValue(doc, "created_at", g.CreatedAt)
	timeValue(doc, "updated_at", g.UpdatedAt)
	timeValue(doc, "graded_at", g.GradedAt)
	return doc
}

// GradeFromDocument converts a stored grade. Percentage and letter are never
// read from storage: they are recomputed from the points so the two cannot
// drift. Stored points outside [0, possible] are clamped.
func GradeFromDocument(doc Document) (shared.GradeRecord, error) {
	var g shared.GradeRecord
	var err error
	if g.ID, err = shared.GetString(doc[FieldID]); err != nil {
		return g, fmt.Errorf("grade id: %w", err)
	}
	g.ClassID, _ = shared.GetString(doc["class_id"])
	g.AssignmentID, _ = shared.GetString(doc["assignment_id"])
	g.StudentID, _ = shared.GetString(doc["student_id"])
	g.PointsEarned, _ = shared.GetFloat64(doc["points_earned"])
	g.PointsPossible, _ = shared.GetFloat64(doc["points_possible"])
	g.Feedback, _ = shared.GetString(doc["feedback"])

	status, _ := shared.GetString(doc["status"])
	g.Status = shared.GradeStatus(status)
	if !g.Status.IsValid() || g.Status == shared.GradeNotSubmitted {
		return g, fmt.Errorf("grade %s: unknown stored status %q", g.ID, status)
	}

	g.DueAt, _ = shared.GetTime(doc["due_at"])
	g.SubmittedAt, _ = shared.GetTime(doc["submitted_at"])
	g.CreatedAt, _ = shared.GetTime(doc["created_at"])
	g.UpdatedAt, _ = shared.GetTime(doc["updated_at"])
	g.GradedAt, _ = shared.GetTime(doc["graded_at"])

	if g.PointsPossible > 0 {
		g.PointsEarned = math.Max(0, math.Min(g.PointsEarned, g.PointsPossible))
	}
	switch g.Status {
	case shared.GradeGraded, shared.GradeReturned, shared.GradeRevised:
		g.Percentage, g.LetterGrade, _ = grading.Derive(g.PointsEarned, g.PointsPossible)
	}
	return g, nil
}
