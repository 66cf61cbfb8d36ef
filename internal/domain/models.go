package domain

import (
	"encoding/json"
	"time"
)

// GradingMode selects whether answers are scored on submission or left for a teacher.
type GradingMode string

const (
	GradingAuto   GradingMode = "auto"
	GradingManual GradingMode = "manual"
)

// QuestionKind drives how an answer payload is interpreted and scored.
type QuestionKind string

const (
	KindMultipleChoice QuestionKind = "multiple-choice"
	KindTrueFalse      QuestionKind = "true-false"
	KindShortText      QuestionKind = "short-text"
	KindFillInBlank    QuestionKind = "fill-in-blank"
)

// AttemptStatus is the persisted lifecycle state of an attempt.
type AttemptStatus string

const (
	StatusInProgress AttemptStatus = "in_progress"
	StatusSubmitted  AttemptStatus = "submitted"
	StatusInReview   AttemptStatus = "in_review"
	StatusGraded     AttemptStatus = "graded"
)

// Terminal reports whether the attempt has finished running.
func (s AttemptStatus) Terminal() bool {
	return s == StatusSubmitted || s == StatusInReview || s == StatusGraded
}

// EndReason records why an attempt stopped running.
type EndReason string

const (
	EndSubmitted      EndReason = "submitted"
	EndLivesExhausted EndReason = "lives_exhausted"
	EndExpired        EndReason = "expired"
)

// DefaultLivesAllowed is used when an exam fixture does not set a value.
const DefaultLivesAllowed = 3

// OverallFeedbackQuestionID is the reserved answer slot for free-form grader feedback.
// It never contributes to the score.
const OverallFeedbackQuestionID = "__overall__"

// Exam is the configuration of one test instance, including its ordered questions.
type Exam struct {
	ID              string      `json:"id"`
	Title           string      `json:"title"`
	OwnerID         string      `json:"ownerId"`
	Graders         []string    `json:"graders,omitempty"`
	LivesAllowed    int         `json:"livesAllowed"`
	DurationMinutes *int        `json:"durationMinutes,omitempty"`
	GradingMode     GradingMode `json:"gradingMode"`
	OpensAt         *time.Time  `json:"opensAt,omitempty"`
	ClosesAt        *time.Time  `json:"closesAt,omitempty"`
	MaxScore        *float64    `json:"maxScore,omitempty"`
	Questions       []Question  `json:"questions"`
}

// CanManage reports whether userID owns the exam or is one of its graders.
func (e Exam) CanManage(userID string) bool {
	if userID == "" {
		return false
	}
	if e.OwnerID == userID {
		return true
	}
	for _, g := range e.Graders {
		if g == userID {
			return true
		}
	}
	return false
}

// Timed reports whether attempts on this exam have a deadline.
func (e Exam) Timed() bool {
	return e.DurationMinutes != nil && *e.DurationMinutes > 0
}

// Question is one gradable item of an exam.
type Question struct {
	ID             string          `json:"id"`
	Kind           QuestionKind    `json:"kind"`
	Prompt         string          `json:"prompt"`
	Choices        []string        `json:"choices,omitempty"`
	ExpectedAnswer json.RawMessage `json:"expectedAnswer,omitempty"`
	Points         int             `json:"points"` // defaults to 1 if zero
	Position       int             `json:"position"`
}

// PointValue returns the question's points with the default applied.
func (q Question) PointValue() int {
	if q.Points < 1 {
		return 1
	}
	return q.Points
}

// Attempt is one student's run through an exam.
type Attempt struct {
	ID            string        `json:"id"`
	ExamID        string        `json:"examId"`
	StudentKey    string        `json:"studentKey"`
	StudentName   string        `json:"studentName,omitempty"`
	StudentEmail  string        `json:"studentEmail,omitempty"`
	Status        AttemptStatus `json:"status"`
	StartAt       time.Time     `json:"startAt"`
	EndAt         *time.Time    `json:"endAt,omitempty"`
	EndReason     EndReason     `json:"endReason,omitempty"`
	LivesUsed     int           `json:"livesUsed"`
	ExtraTimeSecs int           `json:"extraTimeSecs"`
	Score         *float64      `json:"score,omitempty"`
}

// Answer is one response to one question within one attempt.
type Answer struct {
	AttemptID  string          `json:"attemptId"`
	QuestionID string          `json:"questionId"`
	Value      json.RawMessage `json:"value,omitempty"`
	Score      *float64        `json:"score,omitempty"`
	Feedback   string          `json:"feedback,omitempty"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// PenaltyEvent is an immutable record of one observed violation.
type PenaltyEvent struct {
	AttemptID  string    `json:"attemptId"`
	Tag        string    `json:"tag"`
	Penalized  bool      `json:"penalized"`
	OccurredAt time.Time `json:"occurredAt"`
}

// StudentIdentity is what a student presents when starting an attempt.
type StudentIdentity struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// AnswerSubmission is one (question, value) pair handed in by a student.
type AnswerSubmission struct {
	QuestionID string          `json:"questionId"`
	Value      json.RawMessage `json:"value"`
}

// QuestionGrade is a teacher's score and feedback for one question.
type QuestionGrade struct {
	QuestionID string  `json:"questionId"`
	Score      float64 `json:"score"`
	Feedback   string  `json:"feedback,omitempty"`
}

// AttemptEventType names a lifecycle transition published to teacher dashboards.
type AttemptEventType string

const (
	EventStarted        AttemptEventType = "started"
	EventPenalty        AttemptEventType = "penalty"
	EventSubmitted      AttemptEventType = "submitted"
	EventExpired        AttemptEventType = "expired"
	EventLivesExhausted AttemptEventType = "lives_exhausted"
	EventGraded         AttemptEventType = "graded"
	EventExtraTime      AttemptEventType = "extra_time"
	EventLifeForgiven   AttemptEventType = "life_forgiven"
)

// AttemptEvent is a snapshot of an attempt right after a transition.
type AttemptEvent struct {
	Type       AttemptEventType `json:"type"`
	ExamID     string           `json:"examId"`
	AttemptID  string           `json:"attemptId"`
	StudentKey string           `json:"studentKey"`
	Status     AttemptStatus    `json:"status"`
	LivesUsed  int              `json:"livesUsed"`
	Tag        string           `json:"tag,omitempty"`
	At         time.Time        `json:"at"`
}
