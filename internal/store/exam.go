package store

import (
	"context"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/nstepura/examly/internal/api"
	"github.com/nstepura/examly/internal/errs"
	"github.com/nstepura/examly/internal/model"
)

// fallbackDuration is used only when the session carries no exam duration.
const fallbackDuration = 5 * time.Minute

// ExamAPI is the slice of the backend client the exam store depends on.
type ExamAPI interface {
	AvailableExams(ctx context.Context) ([]model.Exam, error)
	StartExam(ctx context.Context, examID int64) (*model.ExamSession, error)
	SessionQuestions(ctx context.Context, sessionID uuid.UUID) (*api.QuestionsPayload, error)
	SubmitAnswer(ctx context.Context, sessionID uuid.UUID, questionID int64, choiceID *int64) error
	SubmitExam(ctx context.Context, sessionID uuid.UUID) (*model.ExamResult, error)
	History(ctx context.Context) ([]model.ExamResult, error)
}

// AnswerJournal durably tracks per-answer sync state so failed submissions
// stay observable and retryable.
type AnswerJournal interface {
	RecordAnswer(sessionID uuid.UUID, questionID int64, choiceID *int64, synced bool) error
	MarkAnswerSynced(sessionID uuid.UUID, questionID int64) error
	PendingAnswers(sessionID uuid.UUID) ([]model.PendingAnswer, error)
	ClearAnswers(sessionID uuid.UUID) error
}

// ResultCache caches completed results for offline history rendering.
type ResultCache interface {
	CacheResults(results []model.ExamResult) error
	CachedResults() ([]model.ExamResult, error)
}

// ExamStore holds the catalog, the active session state machine, the answer
// map, the countdown value and the last result. At most one session is
// active at a time; an active session and a result are mutually exclusive.
type ExamStore struct {
	mu      sync.Mutex
	api     ExamAPI
	journal AnswerJournal
	cache   ResultCache
	log     *zap.Logger

	exams     []model.Exam
	session   *model.ExamSession
	questions []model.Question
	index     int
	answers   map[int64]*int64
	unsynced  map[int64]bool
	remaining int
	loading   bool
	errMsg    string
	result    *model.ExamResult

	// submitting guards the 1→0 tick and a concurrent manual submit from
	// finalizing the same session twice.
	submitting  bool
	expireFired bool
}

// NewExamStore constructs the store. journal and cache may be shared by one
// storage implementation.
func NewExamStore(examAPI ExamAPI, journal AnswerJournal, cache ResultCache, log *zap.Logger) *ExamStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &ExamStore{
		api:      examAPI,
		journal:  journal,
		cache:    cache,
		log:      log,
		answers:  map[int64]*int64{},
		unsynced: map[int64]bool{},
	}
}

// FetchAvailableExams replaces the catalog wholesale. On failure the prior
// catalog stays and an error is recorded.
func (s *ExamStore) FetchAvailableExams(ctx context.Context) error {
	s.setLoading()

	exams, err := s.api.AvailableExams(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if err != nil {
		s.errMsg = errorMessage(err, nil, "Failed to load exams")
		return err
	}
	s.exams = exams
	return nil
}

// StartExam requests a new session for the exam. On failure the session
// stays unset and the catalog view remains usable.
func (s *ExamStore) StartExam(ctx context.Context, examID int64) error {
	s.setLoading()

	session, err := s.api.StartExam(ctx, examID)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if err != nil {
		s.errMsg = errorMessage(err, nil, "Failed to start exam")
		return err
	}
	s.session = session
	s.result = nil
	s.errMsg = ""
	return nil
}

// FetchQuestions loads the question set for the active session, resets the
// navigation pointer and answer map, and initializes the countdown from the
// exam's configured duration. A completion for a session that is no longer
// active is discarded.
func (s *ExamStore) FetchQuestions(ctx context.Context) error {
	s.mu.Lock()
	if s.session == nil {
		s.mu.Unlock()
		return errs.ErrNoSession
	}
	sid := s.session.ID
	s.loading = true
	s.errMsg = ""
	s.mu.Unlock()

	payload, err := s.api.SessionQuestions(ctx, sid)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if s.session == nil || s.session.ID != sid {
		return nil // user left the exam flow while the fetch was in flight
	}
	if err != nil {
		s.errMsg = errorMessage(err, nil, "Failed to load questions")
		return err
	}

	s.questions = payload.Questions
	s.index = 0
	s.answers = map[int64]*int64{}
	s.unsynced = map[int64]bool{}

	seconds := payload.DurationMinutes * 60
	if seconds <= 0 {
		seconds = s.session.Exam.DurationMinutes * 60
	}
	if seconds <= 0 {
		seconds = int(fallbackDuration.Seconds())
	}
	s.remaining = seconds
	s.expireFired = false
	return nil
}

// SetCurrentQuestionIndex moves the navigation pointer; out-of-range
// requests are ignored.
func (s *ExamStore) SetCurrentQuestionIndex(i int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.questions) {
		return
	}
	s.index = i
}

// SetAnswer upserts the local answer map entry. choiceID == nil records an
// explicit "no answer"; only non-nil entries count as answered.
func (s *ExamStore) SetAnswer(questionID int64, choiceID *int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setAnswerLocked(questionID, choiceID)
}

func (s *ExamStore) setAnswerLocked(questionID int64, choiceID *int64) {
	if choiceID != nil {
		v := *choiceID
		s.answers[questionID] = &v
		return
	}
	s.answers[questionID] = nil
}

// SubmitAnswer records the answer locally (optimistic), journals it, then
// persists it to the backend. Network failure keeps the local selection and
// leaves the answer flagged unsynced for retry.
func (s *ExamStore) SubmitAnswer(ctx context.Context, questionID int64, choiceID *int64) error {
	s.mu.Lock()
	if s.session == nil {
		s.mu.Unlock()
		return errs.ErrNoSession
	}
	sid := s.session.ID
	s.setAnswerLocked(questionID, choiceID)
	s.unsynced[questionID] = true
	s.mu.Unlock()

	if err := s.journal.RecordAnswer(sid, questionID, choiceID, false); err != nil {
		s.log.Warn("journal answer", zap.Error(err))
	}

	err := s.api.SubmitAnswer(ctx, sid, questionID, choiceID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.errMsg = errorMessage(err, nil, "Failed to save answer")
		return err
	}
	if s.session != nil && s.session.ID == sid {
		delete(s.unsynced, questionID)
	}
	if jerr := s.journal.MarkAnswerSynced(sid, questionID); jerr != nil {
		s.log.Warn("mark answer synced", zap.Error(jerr))
	}
	return nil
}

// ResyncAnswers re-sends journaled answers that never reached the backend.
// It returns how many were confirmed.
func (s *ExamStore) ResyncAnswers(ctx context.Context) (int, error) {
	s.mu.Lock()
	if s.session == nil {
		s.mu.Unlock()
		return 0, errs.ErrNoSession
	}
	sid := s.session.ID
	s.mu.Unlock()

	pending, err := s.journal.PendingAnswers(sid)
	if err != nil {
		return 0, err
	}

	confirmed := 0
	for _, pa := range pending {
		if err := s.api.SubmitAnswer(ctx, sid, pa.QuestionID, pa.ChoiceID); err != nil {
			return confirmed, err
		}
		if jerr := s.journal.MarkAnswerSynced(sid, pa.QuestionID); jerr != nil {
			s.log.Warn("mark answer synced", zap.Error(jerr))
		}
		s.mu.Lock()
		if s.session != nil && s.session.ID == sid {
			delete(s.unsynced, pa.QuestionID)
		}
		s.mu.Unlock()
		confirmed++
	}
	return confirmed, nil
}

// SetTimeRemaining sets the countdown value directly. Negative values clamp
// to zero.
func (s *ExamStore) SetTimeRemaining(seconds int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seconds < 0 {
		seconds = 0
	}
	s.remaining = seconds
	if seconds > 0 {
		s.expireFired = false
	}
}

// Tick decrements the countdown by one second. expired is true exactly once,
// on the tick that reaches zero; subsequent ticks at zero are no-ops.
func (s *ExamStore) Tick() (remaining int, expired bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil || s.remaining <= 0 {
		return s.remaining, false
	}
	s.remaining--
	if s.remaining == 0 && !s.expireFired {
		s.expireFired = true
		return 0, true
	}
	return s.remaining, false
}

// SubmitExam finalizes the session. On success the result is stored and the
// session cleared in the same critical section, so no observer sees both (or
// neither) set. On failure the session stays active and retry is allowed.
// A submission already in flight rejects with ErrSubmitInFlight.
func (s *ExamStore) SubmitExam(ctx context.Context) error {
	s.mu.Lock()
	if s.session == nil {
		s.mu.Unlock()
		return errs.ErrNoSession
	}
	if s.submitting {
		s.mu.Unlock()
		return errs.ErrSubmitInFlight
	}
	s.submitting = true
	s.loading = true
	s.errMsg = ""
	sid := s.session.ID
	s.mu.Unlock()

	result, err := s.api.SubmitExam(ctx, sid)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitting = false
	s.loading = false
	if err != nil {
		if s.session != nil && s.session.ID == sid {
			s.errMsg = errorMessage(err, nil, "Failed to submit exam")
		}
		return err
	}
	if s.session == nil || s.session.ID != sid {
		return nil // exam flow was abandoned while submitting
	}
	s.result = result
	s.session = nil
	s.questions = nil
	s.index = 0
	s.remaining = 0
	if jerr := s.journal.ClearAnswers(sid); jerr != nil {
		s.log.Warn("clear journal", zap.Error(jerr))
	}
	return nil
}

// History returns completed results, most recent first, caching them
// locally; when the backend is unreachable the cached copy is served.
func (s *ExamStore) History(ctx context.Context) ([]model.ExamResult, error) {
	results, err := s.api.History(ctx)
	if err != nil {
		cached, cerr := s.cache.CachedResults()
		if cerr != nil || len(cached) == 0 {
			return nil, err
		}
		s.log.Warn("history from cache", zap.Error(err))
		return cached, nil
	}
	if cerr := s.cache.CacheResults(results); cerr != nil {
		s.log.Warn("cache history", zap.Error(cerr))
	}
	return results, nil
}

// ClearExam resets session, questions, pointer, answers, timer, result and
// error to initial values. Used when abandoning an exam flow or returning
// to the catalog.
func (s *ExamStore) ClearExam() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = nil
	s.questions = nil
	s.index = 0
	s.answers = map[int64]*int64{}
	s.unsynced = map[int64]bool{}
	s.remaining = 0
	s.expireFired = false
	s.result = nil
	s.errMsg = ""
}

// ClearError resets the error slot without touching other fields.
func (s *ExamStore) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errMsg = ""
}

// ---- accessors ----

// Exams returns the current catalog.
func (s *ExamStore) Exams() []model.Exam {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Exam, len(s.exams))
	copy(out, s.exams)
	return out
}

// Session returns a copy of the active session, or nil.
func (s *ExamStore) Session() *model.ExamSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil
	}
	sess := *s.session
	return &sess
}

// HasSession reports whether a session is active.
func (s *ExamStore) HasSession() bool { return s.Session() != nil }

// Questions returns the loaded question list.
func (s *ExamStore) Questions() []model.Question {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Question, len(s.questions))
	copy(out, s.questions)
	return out
}

// CurrentIndex returns the navigation pointer.
func (s *ExamStore) CurrentIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

// Answer returns the recorded choice for the question. ok is false when the
// question has no entry at all; a nil choice with ok==true is an explicit
// "no answer".
func (s *ExamStore) Answer(questionID int64) (choiceID *int64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.answers[questionID]
	if c == nil {
		return nil, ok
	}
	v := *c
	return &v, true
}

// AnsweredCount counts questions with a non-nil choice.
func (s *ExamStore) AnsweredCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.answers {
		if c != nil {
			n++
		}
	}
	return n
}

// UnsyncedCount counts answers not yet confirmed by the backend.
func (s *ExamStore) UnsyncedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.unsynced)
}

// TimeRemaining returns the countdown value in seconds.
func (s *ExamStore) TimeRemaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining
}

// Result returns a copy of the last completed result, or nil.
func (s *ExamStore) Result() *model.ExamResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return nil
	}
	r := *s.result
	return &r
}

// HasResult reports whether a result is populated.
func (s *ExamStore) HasResult() bool { return s.Result() != nil }

// Err returns the recorded error message, or "".
func (s *ExamStore) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errMsg
}

// Loading reports whether an exam operation is in flight.
func (s *ExamStore) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

func (s *ExamStore) setLoading() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = true
	s.errMsg = ""
}
