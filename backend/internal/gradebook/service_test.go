package gradebook

import (
	"context"
	"errors"
	"testing"
	"time"

	"classroom/backend/internal/shared"
	"classroom/backend/internal/store"
	"classroom/backend/internal/store/memory"
)

var (
	start   = time.Date(2026, 10, 5, 9, 0, 0, 0, time.UTC)
	teacher = shared.Principal{ID: "t1", Role: shared.RoleTeacher}
	other   = shared.Principal{ID: "t2", Role: shared.RoleTeacher}
)

func student(id string) shared.Principal {
	return shared.Principal{ID: id, Role: shared.RoleStudent}
}

type fixture struct {
	svc     *Service
	records *store.Records
	clock   time.Time
	class   shared.ClassModel
}

func newFixture(t *testing.T, students ...string) *fixture {
	t.Helper()
	f := &fixture{records: store.NewRecords(memory.New()), clock: start}
	f.svc = NewService(f.records, func() time.Time { return f.clock })
	f.class = shared.ClassModel{ID: "CLS_1", TeacherID: "t1", StudentIDs: students, IsActive: true}
	if err := f.records.PutClass(context.Background(), f.class); err != nil {
		t.Fatalf("PutClass: %v", err)
	}
	return f
}

func (f *fixture) publish(t *testing.T, possible float64, due time.Time) shared.Assignment {
	t.Helper()
	a, err := f.svc.PublishAssignment(context.Background(), teacher, NewAssignment{
		ClassID: f.class.ID, Title: "Essay", PointsPossible: possible, DueAt: due,
	})
	if err != nil {
		t.Fatalf("PublishAssignment: %v", err)
	}
	return a
}

func TestPublishCreatesPendingRecords(t *testing.T) {
	f := newFixture(t, "s1", "s2", "s3")
	ctx := context.Background()
	a := f.publish(t, 100, start.Add(24*time.Hour))

	records, err := f.svc.ListGrades(ctx, teacher, store.GradeQuery{ClassID: f.class.ID})
	if err != nil {
		t.Fatalf("ListGrades: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}
	for _, rec := range records {
		if rec.Status != shared.GradePending || rec.AssignmentID != a.ID || rec.PointsPossible != 100 {
			t.Errorf("record = %+v", rec)
		}
	}

	if _, err := f.svc.PublishAssignment(ctx, teacher, NewAssignment{ClassID: f.class.ID, Title: "Quiz", PointsPossible: 0}); !errors.Is(err, shared.ErrInvalidGradeValue) {
		t.Errorf("zero points possible err = %v", err)
	}
	if _, err := f.svc.PublishAssignment(ctx, other, NewAssignment{ClassID: f.class.ID, Title: "Quiz", PointsPossible: 5}); !errors.Is(err, shared.ErrPermissionDenied) {
		t.Errorf("non-owner err = %v", err)
	}
}

// joinOnPublish enrolls a student the moment an assignment is written,
// between PublishAssignment's roster read and its record seeding
type joinOnPublish struct {
	store.DocumentStore
	student string
}

func (j *joinOnPublish) Put(ctx context.Context, collection, id string, doc store.Document) error {
	if err := j.DocumentStore.Put(ctx, collection, id, doc); err != nil {
		return err
	}
	if collection != shared.CollectionAssignments {
		return nil
	}
	records := store.NewRecords(j.DocumentStore)
	_, err := records.MutateClass(ctx, "CLS_1", func(c shared.ClassModel) (shared.ClassModel, error) {
		c.StudentIDs = append(c.StudentIDs, j.student)
		return c, nil
	})
	return err
}

func TestPublishSeedsLateJoiner(t *testing.T) {
	ctx := context.Background()
	records := store.NewRecords(&joinOnPublish{DocumentStore: memory.New(), student: "s2"})
	svc := NewService(records, func() time.Time { return start })
	if err := records.PutClass(ctx, shared.ClassModel{ID: "CLS_1", TeacherID: "t1", StudentIDs: []string{"s1"}, IsActive: true}); err != nil {
		t.Fatalf("PutClass: %v", err)
	}

	a, err := svc.PublishAssignment(ctx, teacher, NewAssignment{ClassID: "CLS_1", Title: "Lab", PointsPossible: 10})
	if err != nil {
		t.Fatalf("PublishAssignment: %v", err)
	}
	for _, id := range []string{"s1", "s2"} {
		rec, err := records.GetGrade(ctx, shared.GradeRecordID(a.ID, id))
		if err != nil || rec.Status != shared.GradePending {
			t.Errorf("record for %s = %+v, %v", id, rec, err)
		}
	}
}

func TestGradeWorkflowAndStatistics(t *testing.T) {
	f := newFixture(t, "s1", "s2", "s3", "s4", "s5")
	ctx := context.Background()
	a := f.publish(t, 100, time.Time{})

	for student, points := range map[string]float64{"s1": 80, "s2": 90, "s3": 100} {
		if _, err := f.svc.CommitGrade(ctx, teacher, shared.GradeRecordID(a.ID, student), points, ""); err != nil {
			t.Fatalf("CommitGrade(%s): %v", student, err)
		}
	}

	stats, err := f.svc.ClassStatistics(ctx, teacher, f.class.ID, "")
	if err != nil {
		t.Fatalf("ClassStatistics: %v", err)
	}
	if stats.Average != 90 || stats.TotalGrades != 3 || stats.TotalRecords != 5 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.CompletionRate != 0.6 {
		t.Errorf("CompletionRate = %v, want 0.6", stats.CompletionRate)
	}
	if stats.StatusCounts[shared.GradePending] != 2 {
		t.Errorf("pending count = %d, want 2", stats.StatusCounts[shared.GradePending])
	}
	if len(stats.Assignments) != 1 || stats.Assignments[a.ID].Average != 90 {
		t.Errorf("per-assignment stats = %+v", stats.Assignments)
	}

	b := f.publish(t, 100, time.Time{})
	if _, err := f.svc.CommitGrade(ctx, teacher, shared.GradeRecordID(b.ID, "s1"), 50, ""); err != nil {
		t.Fatalf("CommitGrade: %v", err)
	}
	stats, _ = f.svc.ClassStatistics(ctx, teacher, f.class.ID, "")
	if stats.Average != 80 || stats.Assignments[a.ID].Average != 90 || stats.Assignments[b.ID].Average != 50 || stats.Assignments[b.ID].TotalRecords != 5 {
		t.Errorf("class stats = %+v, per assignment %+v", stats.ClassStatistics, stats.Assignments)
	}
	if single, _ := f.svc.ClassStatistics(ctx, teacher, f.class.ID, b.ID); single.Assignments != nil {
		t.Errorf("single-assignment stats carry a breakdown: %+v", single.Assignments)
	}

	if _, err := f.svc.ClassStatistics(ctx, student("s1"), f.class.ID, ""); !errors.Is(err, shared.ErrPermissionDenied) {
		t.Errorf("student statistics err = %v", err)
	}
}

func TestCommitInvalidLeavesRecord(t *testing.T) {
	f := newFixture(t, "s1")
	ctx := context.Background()
	a := f.publish(t, 20, time.Time{})
	id := shared.GradeRecordID(a.ID, "s1")

	if _, err := f.svc.CommitGrade(ctx, teacher, id, 25, ""); !errors.Is(err, shared.ErrInvalidGradeValue) {
		t.Fatalf("err = %v, want ErrInvalidGradeValue", err)
	}
	rec, _ := f.records.GetGrade(ctx, id)
	if rec.Status != shared.GradePending || rec.PointsEarned != 0 {
		t.Errorf("record changed on failed commit: %+v", rec)
	}

	if _, err := f.svc.CommitGrade(ctx, other, id, 10, ""); !errors.Is(err, shared.ErrPermissionDenied) {
		t.Errorf("non-owner err = %v", err)
	}
}

func TestReturnResubmitRegrade(t *testing.T) {
	f := newFixture(t, "s1", "s2")
	ctx := context.Background()
	a := f.publish(t, 50, time.Time{})
	id := shared.GradeRecordID(a.ID, "s1")

	f.svc.CommitGrade(ctx, teacher, id, 40, "good start")
	f.svc.SaveDraft(ctx, teacher, shared.GradeRecordID(a.ID, "s2"), 10)

	returned, err := f.svc.ReturnGrades(ctx, teacher, a.ID)
	if err != nil {
		t.Fatalf("ReturnGrades: %v", err)
	}
	if len(returned) != 1 || returned[0].StudentID != "s1" || returned[0].Status != shared.GradeReturned {
		t.Fatalf("returned = %+v, want only the graded record", returned)
	}

	f.clock = start.Add(time.Hour)
	rec, err := f.svc.RecordSubmission(ctx, student("s1"), a.ID)
	if err != nil {
		t.Fatalf("RecordSubmission: %v", err)
	}
	if rec.Status != shared.GradeRevised {
		t.Errorf("status after resubmission = %s, want revised", rec.Status)
	}

	regraded, err := f.svc.CommitGrade(ctx, teacher, id, 48, "")
	if err != nil {
		t.Fatalf("regrade: %v", err)
	}
	if regraded.Status != shared.GradeGraded || regraded.LetterGrade != "A" || !regraded.GradedAt.Equal(start) {
		t.Errorf("regraded = %+v", regraded)
	}

	if _, err := f.svc.RecordSubmission(ctx, student("s9"), a.ID); !errors.Is(err, shared.ErrNotEnrolled) {
		t.Errorf("outsider submission err = %v", err)
	}
}

func TestStudentViewRedactsUnreleased(t *testing.T) {
	f := newFixture(t, "s1", "s2")
	ctx := context.Background()
	a1 := f.publish(t, 10, time.Time{})
	a2 := f.publish(t, 10, time.Time{})

	f.svc.CommitGrade(ctx, teacher, shared.GradeRecordID(a1.ID, "s1"), 9, "")
	f.svc.CommitGrade(ctx, teacher, shared.GradeRecordID(a2.ID, "s1"), 7, "see me")
	f.svc.ReturnGrades(ctx, teacher, a1.ID, "s1")

	grades, err := f.svc.ListGrades(ctx, student("s1"), store.GradeQuery{ClassID: f.class.ID})
	if err != nil {
		t.Fatalf("ListGrades: %v", err)
	}
	if len(grades) != 2 {
		t.Fatalf("student sees %d records, want only their own 2", len(grades))
	}
	for _, g := range grades {
		switch g.AssignmentID {
		case a1.ID:
			if g.PointsEarned != 9 || g.LetterGrade != "A-" {
				t.Errorf("released record = %+v", g)
			}
		case a2.ID:
			if g.PointsEarned != 0 || g.LetterGrade != "" || g.Feedback != "" || g.Status != shared.GradePending {
				t.Errorf("unreleased record leaked: %+v", g)
			}
		}
	}

	if _, err := f.svc.ListGrades(ctx, student("s1"), store.GradeQuery{ClassID: f.class.ID, StudentID: "s2"}); !errors.Is(err, shared.ErrPermissionDenied) {
		t.Errorf("reading another student err = %v", err)
	}

	summary, err := f.svc.StudentSummary(ctx, student("s1"), f.class.ID, "")
	if err != nil {
		t.Fatalf("StudentSummary: %v", err)
	}
	if summary.Statistics.TotalGrades != 1 || summary.Statistics.Average != 90 || summary.Assignments != 2 {
		t.Errorf("student summary = %+v", summary.Statistics)
	}
	// every summary field agrees that the second grade is still pending
	if summary.Statistics.TotalRecords != 2 || summary.CompletionRate != 0.5 {
		t.Errorf("student summary totals = %+v, completion %v", summary.Statistics, summary.CompletionRate)
	}
	if c := summary.Statistics.StatusCounts; c[shared.GradeReturned] != 1 || c[shared.GradePending] != 1 || c[shared.GradeGraded] != 0 {
		t.Errorf("student status counts = %v", c)
	}
	for _, g := range summary.Grades {
		if g.AssignmentID == a2.ID && (g.Status != shared.GradePending || g.PointsEarned != 0) {
			t.Errorf("summary leaked unreleased grade: %+v", g)
		}
	}

	full, err := f.svc.StudentSummary(ctx, teacher, f.class.ID, "s1")
	if err != nil || full.Statistics.TotalGrades != 2 || full.Statistics.Average != 80 || full.CompletionRate != 1 {
		t.Errorf("teacher summary = %+v, %v", full.Statistics, err)
	}
	if _, err := f.svc.StudentSummary(ctx, student("s2"), f.class.ID, "s1"); !errors.Is(err, shared.ErrPermissionDenied) {
		t.Errorf("peer summary err = %v", err)
	}
}

func TestNotSubmittedAtReadTime(t *testing.T) {
	f := newFixture(t, "s1", "s2")
	ctx := context.Background()
	a := f.publish(t, 10, start.Add(time.Hour))
	f.svc.RecordSubmission(ctx, student("s2"), a.ID)

	f.clock = start.Add(2 * time.Hour)
	grades, _ := f.svc.ListGrades(ctx, teacher, store.GradeQuery{ClassID: f.class.ID, AssignmentID: a.ID})
	statuses := map[string]shared.GradeStatus{}
	for _, g := range grades {
		statuses[g.StudentID] = g.Status
	}
	if statuses["s1"] != shared.GradeNotSubmitted || statuses["s2"] != shared.GradePending {
		t.Errorf("statuses = %v", statuses)
	}

	stats, err := f.svc.ClassStatistics(ctx, teacher, f.class.ID, a.ID)
	if err != nil {
		t.Fatalf("ClassStatistics: %v", err)
	}
	if stats.StatusCounts[shared.GradeNotSubmitted] != 1 || stats.StatusCounts[shared.GradePending] != 1 {
		t.Errorf("status counts = %v", stats.StatusCounts)
	}
	if stats.TotalRecords != 2 || stats.TotalGrades != 0 || stats.CompletionRate != 0 {
		t.Errorf("stats = %+v", stats)
	}

	// committing s2 leaves s1 in the completion denominator
	if _, err := f.svc.CommitGrade(ctx, teacher, shared.GradeRecordID(a.ID, "s2"), 8, ""); err != nil {
		t.Fatalf("CommitGrade: %v", err)
	}
	stats, _ = f.svc.ClassStatistics(ctx, teacher, f.class.ID, a.ID)
	if stats.CompletionRate != 0.5 || stats.Average != 80 || stats.StatusCounts[shared.GradeNotSubmitted] != 1 {
		t.Errorf("stats after commit = %+v", stats)
	}

	stored, _ := f.records.GetGrade(ctx, shared.GradeRecordID(a.ID, "s1"))
	if stored.Status != shared.GradePending {
		t.Errorf("notSubmitted was persisted: %s", stored.Status)
	}
}

func TestDeleteAssignmentCascades(t *testing.T) {
	f := newFixture(t, "s1", "s2")
	ctx := context.Background()
	a := f.publish(t, 10, time.Time{})
	keep := f.publish(t, 10, time.Time{})

	deleted, err := f.svc.DeleteAssignment(ctx, teacher, a.ID)
	if err != nil || deleted != 2 {
		t.Fatalf("DeleteAssignment = %d, %v, want 2", deleted, err)
	}
	left, _ := f.records.ListGrades(ctx, store.GradeQuery{ClassID: f.class.ID})
	if len(left) != 2 || left[0].AssignmentID != keep.ID {
		t.Errorf("records left = %+v", left)
	}
	if _, err := f.records.GetAssignment(ctx, a.ID); !errors.Is(err, shared.ErrAssignmentNotFound) {
		t.Errorf("assignment still present: %v", err)
	}
}

func TestWatchStatistics(t *testing.T) {
	f := newFixture(t, "s1")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a := f.publish(t, 10, time.Time{})

	updates, err := f.svc.WatchStatistics(ctx, teacher, f.class.ID)
	if err != nil {
		t.Fatalf("WatchStatistics: %v", err)
	}
	first := <-updates
	if first.TotalGrades != 0 || first.TotalRecords != 1 {
		t.Errorf("initial = %+v", first)
	}

	if _, err := f.svc.CommitGrade(ctx, teacher, shared.GradeRecordID(a.ID, "s1"), 8, ""); err != nil {
		t.Fatalf("CommitGrade: %v", err)
	}
	deadline := time.After(2 * time.Second)
	for {
		select {
		case stats := <-updates:
			if stats.TotalGrades == 1 && stats.Average == 80 {
				return
			}
		case <-deadline:
			t.Fatal("no statistics update after commit")
		}
	}
}
