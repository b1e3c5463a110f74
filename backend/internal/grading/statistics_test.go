package grading

import (
	"math"
	"testing"

	"classroom/backend/internal/shared"
)

func record(id string, status shared.GradeStatus, earned, possible float64) shared.GradeRecord {
	return shared.GradeRecord{
		ID:             id,
		AssignmentID:   "asg-1",
		StudentID:      "stu-" + id,
		Status:         status,
		PointsEarned:   earned,
		PointsPossible: possible,
	}
}

func TestAggregateEmpty(t *testing.T) {
	got := Aggregate(nil)
	if got.Average != 0 || got.Highest != 0 || got.Lowest != 0 || got.TotalGrades != 0 {
		t.Errorf("Aggregate(nil) = %+v, want zero values", got)
	}
	if math.IsNaN(got.Average) || math.IsNaN(got.Median) {
		t.Error("Aggregate(nil) produced NaN")
	}
	if got.AverageLetter != "" {
		t.Errorf("AverageLetter = %q, want empty", got.AverageLetter)
	}
}

func TestAggregateExcludesUngraded(t *testing.T) {
	records := []shared.GradeRecord{
		record("1", shared.GradeGraded, 80, 100),
		record("2", shared.GradeReturned, 90, 100),
		record("3", shared.GradeGraded, 100, 100),
		record("4", shared.GradePending, 0, 100),
		record("5", shared.GradePending, 0, 100),
	}

	got := Aggregate(records)
	if got.Average != 90 {
		t.Errorf("Average = %v, want 90", got.Average)
	}
	if got.TotalGrades != 3 {
		t.Errorf("TotalGrades = %d, want 3", got.TotalGrades)
	}
	if got.Highest != 100 || got.Lowest != 80 || got.Median != 90 {
		t.Errorf("Highest/Lowest/Median = %v/%v/%v", got.Highest, got.Lowest, got.Median)
	}
	if got.TotalRecords != 5 {
		t.Errorf("TotalRecords = %d, want 5", got.TotalRecords)
	}
	if got.StatusCounts[shared.GradePending] != 2 || got.StatusCounts[shared.GradeGraded] != 2 {
		t.Errorf("StatusCounts = %v", got.StatusCounts)
	}
	if got.AverageLetter != "A-" {
		t.Errorf("AverageLetter = %q, want A-", got.AverageLetter)
	}
}

func TestAggregateSkipsZeroPossible(t *testing.T) {
	records := []shared.GradeRecord{
		record("1", shared.GradeGraded, 40, 50),
		record("2", shared.GradeGraded, 10, 0),
	}

	got := Aggregate(records)
	if got.TotalGrades != 1 || got.Skipped != 1 {
		t.Errorf("TotalGrades/Skipped = %d/%d, want 1/1", got.TotalGrades, got.Skipped)
	}
	if got.Average != 80 {
		t.Errorf("Average = %v, want 80", got.Average)
	}
}

func TestAggregateOnlySkipped(t *testing.T) {
	got := Aggregate([]shared.GradeRecord{record("1", shared.GradeReturned, 3, 0)})
	if got.TotalGrades != 0 || got.Average != 0 || math.IsNaN(got.Average) {
		t.Errorf("Aggregate = %+v, want zero values", got)
	}
}

func TestCompletionRate(t *testing.T) {
	tests := []struct {
		name    string
		records []shared.GradeRecord
		want    float64
	}{
		{name: "empty", want: 0},
		{
			name: "mixed",
			records: []shared.GradeRecord{
				record("1", shared.GradeGraded, 1, 1),
				record("2", shared.GradeReturned, 1, 1),
				record("3", shared.GradeDraft, 1, 1),
				record("4", shared.GradePending, 0, 1),
			},
			want: 0.5,
		},
		{
			name:    "zero possible still counts",
			records: []shared.GradeRecord{record("1", shared.GradeGraded, 1, 0)},
			want:    1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CompletionRate(tt.records); got != tt.want {
				t.Errorf("CompletionRate = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCommitThenAggregateNoDrift(t *testing.T) {
	rec := pendingRecord()
	graded, err := Commit(rec, 41, "", t1)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	want, _ := CalculatePercentage(41, 50)
	if graded.Percentage != want || graded.LetterGrade != LetterGrade(want) {
		t.Errorf("record = %v %q, calculator = %v %q", graded.Percentage, graded.LetterGrade, want, LetterGrade(want))
	}

	got := Aggregate([]shared.GradeRecord{graded})
	if got.Average != graded.Percentage || got.AverageLetter != graded.LetterGrade {
		t.Errorf("aggregate = %v %q, record = %v %q", got.Average, got.AverageLetter, graded.Percentage, graded.LetterGrade)
	}
}

func TestStudentAverage(t *testing.T) {
	records := []shared.GradeRecord{
		{ID: "a", StudentID: "s1", Status: shared.GradeGraded, PointsEarned: 7, PointsPossible: 10},
		{ID: "b", StudentID: "s1", Status: shared.GradeReturned, PointsEarned: 9, PointsPossible: 10},
		{ID: "c", StudentID: "s2", Status: shared.GradeGraded, PointsEarned: 2, PointsPossible: 10},
	}
	got := StudentAverage(records, "s1")
	if got.TotalGrades != 2 || got.Average != 80 {
		t.Errorf("StudentAverage = %+v", got)
	}
	if groups := ByAssignment(records); len(groups[""]) != 3 {
		t.Errorf("ByAssignment = %v", groups)
	}
}
