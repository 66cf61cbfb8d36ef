package domain

import "errors"

// Kind classifies an error so callers can map it to a stable response.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindConflict
	KindForbidden
	KindValidation
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindForbidden:
		return "forbidden"
	case KindValidation:
		return "validation"
	case KindUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Error is a sentinel carrying its classification.
type Error struct {
	kind Kind
	msg  string
}

func newError(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

func (e *Error) Error() string { return e.msg }

// Kind returns the classification of the error.
func (e *Error) Kind() Kind { return e.kind }

var (
	// ErrExamNotFound indicates the exam could not be loaded from the catalog.
	ErrExamNotFound = newError(KindNotFound, "exam not found")
	// ErrAttemptNotFound is returned for unknown attempt ids.
	ErrAttemptNotFound = newError(KindNotFound, "attempt not found")
	// ErrQuestionNotFound indicates a submitted question ID is not part of the exam.
	ErrQuestionNotFound = newError(KindNotFound, "question not found")

	ErrDuplicateAttempt    = newError(KindConflict, "student already has an attempt for this exam")
	ErrAttemptClosed       = newError(KindConflict, "attempt is no longer in progress")
	ErrAttemptNotSubmitted = newError(KindConflict, "attempt has not been submitted yet")
	ErrAttemptFinalized    = newError(KindConflict, "attempt grading is already final")

	ErrExamNotOpenYet = newError(KindForbidden, "exam is not open yet")
	ErrExamClosed     = newError(KindForbidden, "exam is closed")
	// ErrNotExamManager is returned when a teacher action comes from someone who neither owns nor grades the exam.
	ErrNotExamManager = newError(KindForbidden, "only the exam owner or a grader may do this")

	ErrNoAnswers        = newError(KindValidation, "no answers submitted")
	ErrInvalidScore     = newError(KindValidation, "score must be zero or greater")
	ErrPayloadTooLarge  = newError(KindValidation, "answer payload too large")
	ErrInvalidStudent   = newError(KindValidation, "student name or email is required")
	ErrInvalidExtraTime = newError(KindValidation, "extra time must be positive")

	// ErrUnavailable marks backend failures (storage, cache, event log) that callers may retry.
	ErrUnavailable = newError(KindUnavailable, "storage unavailable")
)

// KindOf walks the error chain and returns the first classification found.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var de *Error
	if errors.As(err, &de) {
		return de.kind
	}
	return KindUnknown
}
