package grading

import (
	"fmt"
	"math"
	"time"

	"classroom/backend/internal/shared"
)

// transitions lists the stored-status edges a caller may request.
// notSubmitted never appears: it is derived at read time.
var transitions = map[shared.GradeStatus][]shared.GradeStatus{
	shared.GradePending:  {shared.GradeDraft, shared.GradeGraded},
	shared.GradeDraft:    {shared.GradeDraft, shared.GradeGraded},
	shared.GradeGraded:   {shared.GradeGraded, shared.GradeReturned},
	shared.GradeReturned: {shared.GradeRevised},
	shared.GradeRevised:  {shared.GradeDraft, shared.GradeGraded},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to shared.GradeStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func checkTransition(from, to shared.GradeStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", shared.ErrInvalidTransition, from, to)
	}
	return nil
}

// ValidatePoints checks 0 <= points <= possible with a positive possible.
func ValidatePoints(points, possible float64) error {
	switch {
	case math.IsNaN(points) || math.IsInf(points, 0):
		return fmt.Errorf("%w: points must be a number", shared.ErrInvalidGradeValue)
	case possible <= 0 || math.IsNaN(possible):
		return fmt.Errorf("%w: points possible must be positive", shared.ErrInvalidGradeValue)
	case points < 0:
		return fmt.Errorf("%w: points %.2f below zero", shared.ErrInvalidGradeValue, points)
	case points > possible:
		return fmt.Errorf("%w: points %.2f exceed %.2f possible", shared.ErrInvalidGradeValue, points, possible)
	}
	return nil
}

// NewPendingRecord creates the implicit record for a student when an
// assignment is published to the roster.
func NewPendingRecord(a shared.Assignment, studentID string, now time.Time) shared.GradeRecord {
	return shared.GradeRecord{
		ID:             shared.GradeRecordID(a.ID, studentID),
		ClassID:        a.ClassID,
		AssignmentID:   a.ID,
		StudentID:      studentID,
		PointsPossible: a.PointsPossible,
		Status:         shared.GradePending,
		DueAt:          a.DueAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// SaveDraft records unsaved grade entry. Draft points are held as entered
// and carry no derived letter until committed.
func SaveDraft(rec shared.GradeRecord, points float64, now time.Time) (shared.GradeRecord, error) {
	if err := checkTransition(rec.Status, shared.GradeDraft); err != nil {
		return rec, err
	}
	if err := ValidatePoints(points, rec.PointsPossible); err != nil {
		return rec, err
	}
	rec.Status = shared.GradeDraft
	rec.PointsEarned = points
	rec.Percentage = 0
	rec.LetterGrade = ""
	rec.UpdatedAt = now
	return rec, nil
}

// Commit stores a graded score. The input record is returned unchanged
// together with the error when validation fails.
func Commit(rec shared.GradeRecord, points float64, feedback string, now time.Time) (shared.GradeRecord, error) {
	if err := ValidatePoints(points, rec.PointsPossible); err != nil {
		return rec, err
	}
	if err := checkTransition(rec.Status, shared.GradeGraded); err != nil {
		return rec, err
	}
	percentage, letter, _ := Derive(points, rec.PointsPossible)
	rec.Status = shared.GradeGraded
	rec.PointsEarned = points
	rec.Percentage = percentage
	rec.LetterGrade = letter
	if feedback != "" {
		rec.Feedback = feedback
	}
	rec.UpdatedAt = now
	if rec.GradedAt.IsZero() {
		rec.GradedAt = now
	}
	return rec, nil
}

// Return releases a graded score to the student.
func Return(rec shared.GradeRecord, now time.Time) (shared.GradeRecord, error) {
	if err := checkTransition(rec.Status, shared.GradeReturned); err != nil {
		return rec, err
	}
	rec.Status = shared.GradeReturned
	rec.UpdatedAt = now
	return rec, nil
}

// Resubmit records a student submission. After a release the record moves
// to revised and awaits re-grading; before that only SubmittedAt changes.
func Resubmit(rec shared.GradeRecord, now time.Time) (shared.GradeRecord, error) {
	switch rec.Status {
	case shared.GradeReturned:
		rec.Status = shared.GradeRevised
	case shared.GradePending, shared.GradeDraft, shared.GradeGraded, shared.GradeRevised:
	default:
		return rec, fmt.Errorf("%w: cannot submit while %s", shared.ErrInvalidTransition, rec.Status)
	}
	rec.SubmittedAt = now
	rec.UpdatedAt = now
	return rec, nil
}

// EffectiveStatus is the status a reader sees at now. A record with no
// committed grade, no submission and a past due date reads as notSubmitted.
func EffectiveStatus(rec shared.GradeRecord, now time.Time) shared.GradeStatus {
	if rec.Status != shared.GradePending && rec.Status != shared.GradeDraft {
		return rec.Status
	}
	if rec.DueAt.IsZero() || rec.HasSubmission() || !now.After(rec.DueAt) {
		return rec.Status
	}
	return shared.GradeNotSubmitted
}

// WithEffectiveStatus returns a copy of records with read-time status applied.
func WithEffectiveStatus(records []shared.GradeRecord, now time.Time) []shared.GradeRecord {
	out := make([]shared.GradeRecord, len(records))
	for i, rec := range records {
		rec.Status = EffectiveStatus(rec, now)
		out[i] = rec
	}
	return out
}
