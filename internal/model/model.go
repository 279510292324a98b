// Package model defines domain entities shared by the API client, stores and storage.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// User is the authenticated account as returned by the backend.
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// Exam is a catalog entry. Immutable once fetched.
type Exam struct {
	ID              int64  `json:"id"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	DurationMinutes int    `json:"duration_minutes"`
	TotalQuestions  int    `json:"total_questions"`
	Difficulty      string `json:"difficulty"` // easy | medium | hard
}

// Choice is a single selectable option of a question.
type Choice struct {
	ID   int64  `json:"id"`
	Text string `json:"choice_text"`
}

// Question holds the prompt and its ordered choices. Immutable for the session.
type Question struct {
	ID      int64    `json:"id"`
	Text    string   `json:"question_text"`
	Choices []Choice `json:"choices"`
}

// Session statuses reported by the backend.
const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusExpired    = "expired"
)

// ExamSession is a server-tracked attempt at a specific exam.
type ExamSession struct {
	ID             uuid.UUID `json:"session_id"`
	Exam           Exam      `json:"exam"`
	StartTime      time.Time `json:"start_time"`
	Status         string    `json:"status"`
	Score          *float64  `json:"score"`
	TotalQuestions int       `json:"total_questions"`
	CorrectAnswers int       `json:"correct_answers"`
}

// ExamResult is the finalized, scored outcome of a submitted session.
type ExamResult struct {
	SessionID      uuid.UUID `json:"session_id"`
	Exam           Exam      `json:"exam"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	Score          float64   `json:"score"`
	TotalQuestions int       `json:"total_questions"`
	CorrectAnswers int       `json:"correct_answers"`
	Status         string    `json:"status"`
}

// PendingAnswer is a journaled answer not yet confirmed by the backend.
// ChoiceID == nil means an explicit "no answer" for the question.
type PendingAnswer struct {
	SessionID  uuid.UUID
	QuestionID int64
	ChoiceID   *int64
}
