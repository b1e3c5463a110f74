// Package enrollment implements class rosters: join codes, membership rules
// and the store-backed class operations built on them.
package enrollment

import (
	"fmt"
	"time"

	"classroom/backend/internal/shared"
)

// Enroll adds studentID to the roster. The returned class owns a fresh
// StudentIDs slice; the input is never modified.
func Enroll(class shared.ClassModel, studentID string, now time.Time) (shared.ClassModel, error) {
	if studentID == "" {
		return class, fmt.Errorf("%w: student id is required", shared.ErrInvalidArgument)
	}
	if !class.IsActive {
		return class, fmt.Errorf("%w: %s", shared.ErrClassArchived, class.ID)
	}
	if class.HasStudent(studentID) {
		return class, fmt.Errorf("%w: %s in %s", shared.ErrAlreadyEnrolled, studentID, class.ID)
	}
	if class.SeatsAvailable() == 0 {
		return class, fmt.Errorf("%w: %d of %d seats taken", shared.ErrClassFull, len(class.StudentIDs), class.MaxStudents)
	}

	roster := make([]string, len(class.StudentIDs), len(class.StudentIDs)+1)
	copy(roster, class.StudentIDs)
	class.StudentIDs = append(roster, studentID)
	class.UpdatedAt = now
	return class, nil
}

// Unenroll removes studentIDs from the roster. Removing a non-member is a
// no-op; removed reports how many were actually on the roster.
func Unenroll(class shared.ClassModel, now time.Time, studentIDs ...string) (updated shared.ClassModel, removed int) {
	drop := make(map[string]bool, len(studentIDs))
	for _, id := range studentIDs {
		drop[id] = true
	}

	roster := make([]string, 0, len(class.StudentIDs))
	for _, id := range class.StudentIDs {
		if drop[id] {
			removed++
			continue
		}
		roster = append(roster, id)
	}
	class.StudentIDs = roster
	if removed > 0 {
		class.UpdatedAt = now
	}
	return class, removed
}
