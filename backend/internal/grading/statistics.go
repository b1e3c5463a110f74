package grading

import (
	"log"

	"github.com/montanaflynn/stats"

	"classroom/backend/internal/shared"
)

// Aggregate reduces grade records into class statistics. Only graded and
// returned records contribute to the percentage figures; every record is
// counted in StatusCounts and TotalRecords. Records whose points possible is
// not positive are skipped and logged. An empty contributing set yields
// zero values, never NaN.
func Aggregate(records []shared.GradeRecord) shared.ClassStatistics {
	result := shared.ClassStatistics{
		TotalRecords: len(records),
		StatusCounts: make(map[shared.GradeStatus]int),
	}

	percentages := make(stats.Float64Data, 0, len(records))
	for _, rec := range records {
		result.StatusCounts[rec.Status]++
		if !rec.Status.IsCompleted() {
			continue
		}
		p, ok := CalculatePercentage(rec.PointsEarned, rec.PointsPossible)
		if !ok {
			result.Skipped++
			log.Printf("WARN: %v (record %s)", shared.ErrDivisionGuardSkipped, rec.ID)
			continue
		}
		percentages = append(percentages, p)
	}

	if len(percentages) == 0 {
		return result
	}

	// stats only errors on empty input, which is excluded above
	result.Average, _ = stats.Mean(percentages)
	result.Highest, _ = stats.Max(percentages)
	result.Lowest, _ = stats.Min(percentages)
	result.Median, _ = stats.Median(percentages)
	result.TotalGrades = len(percentages)
	result.AverageLetter = LetterGrade(result.Average)
	return result
}

// CompletionRate is completed/total over the unfiltered set, where completed
// means graded or returned. It is 0 for an empty set.
func CompletionRate(records []shared.GradeRecord) float64 {
	if len(records) == 0 {
		return 0
	}
	completed := 0
	for _, rec := range records {
		if rec.Status.IsCompleted() {
			completed++
		}
	}
	return float64(completed) / float64(len(records))
}

// StudentAverage aggregates only the records belonging to studentID.
func StudentAverage(records []shared.GradeRecord, studentID string) shared.ClassStatistics {
	own := make([]shared.GradeRecord, 0, len(records))
	for _, rec := range records {
		if rec.StudentID == studentID {
			own = append(own, rec)
		}
	}
	return Aggregate(own)
}

// ByAssignment groups records by assignment id.
func ByAssignment(records []shared.GradeRecord) map[string][]shared.GradeRecord {
	groups := make(map[string][]shared.GradeRecord)
	for _, rec := range records {
		groups[rec.AssignmentID] = append(groups[rec.AssignmentID], rec)
	}
	return groups
}
