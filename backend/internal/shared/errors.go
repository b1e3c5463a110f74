package shared

import "errors"

// Grading errors
var (
	ErrInvalidGradeValue    = errors.New("invalid grade value")
	ErrInvalidTransition    = errors.New("invalid grade status transition")
	ErrDivisionGuardSkipped = errors.New("record skipped: points possible is zero")
)

// Enrollment errors
var (
	ErrCodeGenerationExhausted = errors.New("enrollment code generation exhausted")
	ErrAlreadyEnrolled         = errors.New("student already enrolled")
	ErrClassFull               = errors.New("class is full")
	ErrClassNotFound           = errors.New("class not found")
	ErrClassArchived           = errors.New("class is archived")
	ErrNotEnrolled             = errors.New("student not enrolled in class")
)

// ErrInvalidCode matches any invalid enrollment code error
var ErrInvalidCode error = &codeError{}

// Lookup and access errors
var (
	ErrAssignmentNotFound = errors.New("assignment not found")
	ErrRecordNotFound     = errors.New("grade record not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrUnauthenticated    = errors.New("unauthenticated")
)

// codeError is the invalid-code failure; it also reads as ErrClassNotFound
// since callers resolving a code treat both the same.
type codeError struct{}

func (*codeError) Error() string { return "invalid enrollment code" }

func (*codeError) Is(target error) bool {
	return target == ErrClassNotFound
}
