package enrollment

import (
	"errors"
	"testing"
	"time"

	"classroom/backend/internal/shared"
)

var rosterTime = time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)

func activeClass(max int, students ...string) shared.ClassModel {
	return shared.ClassModel{ID: "CLS_1", TeacherID: "t1", MaxStudents: max, StudentIDs: students, IsActive: true}
}

func TestEnroll(t *testing.T) {
	tests := []struct {
		name    string
		class   shared.ClassModel
		student string
		wantErr error
	}{
		{name: "open seat", class: activeClass(2, "s1"), student: "s2"},
		{name: "unlimited", class: activeClass(0, "s1", "s2", "s3"), student: "s4"},
		{name: "full", class: activeClass(2, "s1", "s2"), student: "s3", wantErr: shared.ErrClassFull},
		{name: "over capacity", class: activeClass(1, "s1", "s2"), student: "s3", wantErr: shared.ErrClassFull},
		{name: "already enrolled", class: activeClass(5, "s1"), student: "s1", wantErr: shared.ErrAlreadyEnrolled},
		{name: "archived", class: shared.ClassModel{ID: "CLS_1"}, student: "s1", wantErr: shared.ErrClassArchived},
		{name: "empty id", class: activeClass(0), student: "", wantErr: shared.ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := len(tt.class.StudentIDs)
			got, err := Enroll(tt.class, tt.student, rosterTime)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Enroll: %v", err)
			}
			if !got.HasStudent(tt.student) || len(got.StudentIDs) != before+1 {
				t.Errorf("roster = %v", got.StudentIDs)
			}
			if len(tt.class.StudentIDs) != before {
				t.Error("Enroll modified the input roster")
			}
		})
	}
}

func TestSeatsAvailable(t *testing.T) {
	tests := []struct {
		class shared.ClassModel
		want  int
	}{
		{activeClass(0, "s1"), -1},
		{activeClass(3, "s1"), 2},
		{activeClass(1, "s1"), 0},
		{activeClass(1, "s1", "s2"), 0},
	}
	for _, tt := range tests {
		if got := tt.class.SeatsAvailable(); got != tt.want {
			t.Errorf("SeatsAvailable(max %d, %d students) = %d, want %d", tt.class.MaxStudents, len(tt.class.StudentIDs), got, tt.want)
		}
	}
}

func TestEnrollDoesNotAliasInput(t *testing.T) {
	backing := make([]string, 1, 10)
	backing[0] = "s1"
	class := activeClass(0)
	class.StudentIDs = backing

	a, _ := Enroll(class, "s2", rosterTime)
	b, _ := Enroll(class, "s3", rosterTime)
	if a.StudentIDs[1] != "s2" || b.StudentIDs[1] != "s3" {
		t.Errorf("rosters share storage: %v %v", a.StudentIDs, b.StudentIDs)
	}
}

func TestUnenrollIdempotent(t *testing.T) {
	class := activeClass(0, "s1", "s2")

	got, removed := Unenroll(class, rosterTime, "s9")
	if removed != 0 || len(got.StudentIDs) != 2 {
		t.Errorf("Unenroll non-member = %v removed=%d", got.StudentIDs, removed)
	}
	if !got.UpdatedAt.IsZero() {
		t.Error("no-op unenroll touched UpdatedAt")
	}

	got, removed = Unenroll(class, rosterTime, "s1", "s1", "s9")
	if removed != 1 || got.HasStudent("s1") || !got.HasStudent("s2") {
		t.Errorf("Unenroll = %v removed=%d", got.StudentIDs, removed)
	}
	if len(class.StudentIDs) != 2 {
		t.Error("Unenroll modified the input roster")
	}
}
