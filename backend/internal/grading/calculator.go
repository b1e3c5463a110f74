// Package grading holds the pure gradebook computations: percentages,
// letter grades, the grade status lifecycle and class statistics.
package grading

import "math"

// threshold maps a minimum percentage to its letter.
type threshold struct {
	min    float64
	letter string
}

// letterThresholds is the only letter-grade table in the codebase. Ordered
// from highest to lowest; the first entry whose min is met wins.
var letterThresholds = []threshold{
	{97, "A+"},
	{93, "A"},
	{90, "A-"},
	{87, "B+"},
	{83, "B"},
	{80, "B-"},
	{77, "C+"},
	{73, "C"},
	{70, "C-"},
	{67, "D+"},
	{65, "D"},
	{60, "D-"},
}

// LetterF is returned for any defined percentage below the lowest threshold.
const LetterF = "F"

// CalculatePercentage returns earned/possible*100. When possible <= 0 or
// either input is NaN the percentage is undefined: it returns NaN and false.
func CalculatePercentage(earned, possible float64) (float64, bool) {
	if math.IsNaN(earned) || math.IsNaN(possible) || possible <= 0 {
		return math.NaN(), false
	}
	return earned / possible * 100, true
}

// LetterGrade maps a percentage to its letter. An undefined (NaN)
// percentage has no letter and yields "".
func LetterGrade(percentage float64) string {
	if math.IsNaN(percentage) {
		return ""
	}
	for _, t := range letterThresholds {
		if percentage >= t.min {
			return t.letter
		}
	}
	return LetterF
}

// Derive computes percentage and letter together. ok is false when the
// percentage is undefined, in which case percentage is 0 and letter is "".
func Derive(earned, possible float64) (percentage float64, letter string, ok bool) {
	p, ok := CalculatePercentage(earned, possible)
	if !ok {
		return 0, "", false
	}
	return p, LetterGrade(p), true
}

// Letters lists every letter the table can produce, best first.
func Letters() []string {
	out := make([]string, 0, len(letterThresholds)+1)
	for _, t := range letterThresholds {
		out = append(out, t.letter)
	}
	return append(out, LetterF)
}
