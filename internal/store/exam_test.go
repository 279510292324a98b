package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"

	"github.com/nstepura/examly/internal/api"
	"github.com/nstepura/examly/internal/errs"
	"github.com/nstepura/examly/internal/model"
)

type fakeExamAPI struct {
	mu sync.Mutex

	exams     []model.Exam
	examsErr  error
	session   *model.ExamSession
	startErr  error
	questions *api.QuestionsPayload
	qErr      error
	answerErr error
	result    *model.ExamResult
	submitErr error
	history   []model.ExamResult
	histErr   error

	submitCalls  int
	answerCalls  int
	submitEnter  chan struct{} // closed when SubmitExam is entered, if set
	submitRelease chan struct{} // blocks SubmitExam until closed, if set
	qEnter       chan struct{} // closed when SessionQuestions is entered, if set
	qRelease     chan struct{} // blocks SessionQuestions until closed, if set
}

var _ ExamAPI = (*fakeExamAPI)(nil)

func (f *fakeExamAPI) AvailableExams(context.Context) ([]model.Exam, error) {
	return f.exams, f.examsErr
}

func (f *fakeExamAPI) StartExam(context.Context, int64) (*model.ExamSession, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	return f.session, nil
}

func (f *fakeExamAPI) SessionQuestions(context.Context, uuid.UUID) (*api.QuestionsPayload, error) {
	if f.qEnter != nil {
		close(f.qEnter)
		f.qEnter = nil
	}
	if f.qRelease != nil {
		<-f.qRelease
	}
	if f.qErr != nil {
		return nil, f.qErr
	}
	return f.questions, nil
}

func (f *fakeExamAPI) SubmitAnswer(context.Context, uuid.UUID, int64, *int64) error {
	f.mu.Lock()
	f.answerCalls++
	f.mu.Unlock()
	return f.answerErr
}

func (f *fakeExamAPI) SubmitExam(context.Context, uuid.UUID) (*model.ExamResult, error) {
	f.mu.Lock()
	f.submitCalls++
	enter, release := f.submitEnter, f.submitRelease
	f.mu.Unlock()
	if enter != nil {
		close(enter)
		f.mu.Lock()
		f.submitEnter = nil
		f.mu.Unlock()
	}
	if release != nil {
		<-release
	}
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return f.result, nil
}

func (f *fakeExamAPI) History(context.Context) ([]model.ExamResult, error) {
	return f.history, f.histErr
}

type memJournal struct {
	mu      sync.Mutex
	rows    map[string]map[int64]*int64
	synced  map[string]map[int64]bool
	cached  []model.ExamResult
	recErr  error
	pendErr error
}

var (
	_ AnswerJournal = (*memJournal)(nil)
	_ ResultCache   = (*memJournal)(nil)
)

func newMemJournal() *memJournal {
	return &memJournal{
		rows:   map[string]map[int64]*int64{},
		synced: map[string]map[int64]bool{},
	}
}

func (j *memJournal) RecordAnswer(sid uuid.UUID, qid int64, choiceID *int64, synced bool) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.recErr != nil {
		return j.recErr
	}
	key := sid.String()
	if j.rows[key] == nil {
		j.rows[key] = map[int64]*int64{}
		j.synced[key] = map[int64]bool{}
	}
	j.rows[key][qid] = choiceID
	j.synced[key][qid] = synced
	return nil
}

func (j *memJournal) MarkAnswerSynced(sid uuid.UUID, qid int64) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if m := j.synced[sid.String()]; m != nil {
		m[qid] = true
	}
	return nil
}

func (j *memJournal) PendingAnswers(sid uuid.UUID) ([]model.PendingAnswer, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.pendErr != nil {
		return nil, j.pendErr
	}
	key := sid.String()
	var out []model.PendingAnswer
	for qid, choice := range j.rows[key] {
		if !j.synced[key][qid] {
			out = append(out, model.PendingAnswer{SessionID: sid, QuestionID: qid, ChoiceID: choice})
		}
	}
	return out, nil
}

func (j *memJournal) ClearAnswers(sid uuid.UUID) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.rows, sid.String())
	delete(j.synced, sid.String())
	return nil
}

func (j *memJournal) CacheResults(results []model.ExamResult) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.cached = append([]model.ExamResult(nil), results...)
	return nil
}

func (j *memJournal) CachedResults() ([]model.ExamResult, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]model.ExamResult(nil), j.cached...), nil
}

func ptr(v int64) *int64 { return &v }

func testSession(t *testing.T, durationMinutes int) *model.ExamSession {
	t.Helper()
	sid, err := uuid.NewV4()
	require.NoError(t, err)
	return &model.ExamSession{
		ID: sid,
		Exam: model.Exam{
			ID: 7, Title: "Go Basics",
			DurationMinutes: durationMinutes, TotalQuestions: 10, Difficulty: "easy",
		},
		Status:         model.StatusInProgress,
		TotalQuestions: 10,
	}
}

func tenQuestions() []model.Question {
	qs := make([]model.Question, 10)
	for i := range qs {
		id := int64(i + 1)
		qs[i] = model.Question{
			ID:   id,
			Text: "question",
			Choices: []model.Choice{
				{ID: id*10 + 1, Text: "a"},
				{ID: id*10 + 2, Text: "b"},
				{ID: id*10 + 3, Text: "c"},
			},
		}
	}
	return qs
}

// startedStore returns a store with an active session and loaded questions.
func startedStore(t *testing.T, fake *fakeExamAPI, durationMinutes int) *ExamStore {
	t.Helper()
	j := newMemJournal()
	s := NewExamStore(fake, j, j, nil)

	if fake.session == nil {
		fake.session = testSession(t, durationMinutes)
	}
	if fake.questions == nil {
		fake.questions = &api.QuestionsPayload{
			SessionID:       fake.session.ID,
			Questions:       tenQuestions(),
			DurationMinutes: durationMinutes,
		}
	}
	require.NoError(t, s.StartExam(context.Background(), 7))
	require.NoError(t, s.FetchQuestions(context.Background()))
	return s
}

func TestFetchAvailableExamsReplacesCatalog(t *testing.T) {
	fake := &fakeExamAPI{exams: []model.Exam{{ID: 1, Title: "A"}, {ID: 2, Title: "B"}}}
	j := newMemJournal()
	s := NewExamStore(fake, j, j, nil)

	require.NoError(t, s.FetchAvailableExams(context.Background()))
	require.Len(t, s.Exams(), 2)

	// Failure keeps the prior catalog and records an error.
	fake.examsErr = errors.New("boom")
	require.Error(t, s.FetchAvailableExams(context.Background()))
	require.Len(t, s.Exams(), 2)
	require.Equal(t, "Failed to load exams", s.Err())
}

func TestStartExamFailureLeavesSessionUnset(t *testing.T) {
	fake := &fakeExamAPI{startErr: &api.Error{StatusCode: 404, Message: "exam gone"}}
	j := newMemJournal()
	s := NewExamStore(fake, j, j, nil)

	require.Error(t, s.StartExam(context.Background(), 99))
	require.False(t, s.HasSession())
	require.Equal(t, "exam gone", s.Err())
}

func TestFetchQuestionsInitializesSession(t *testing.T) {
	fake := &fakeExamAPI{}
	s := startedStore(t, fake, 10)

	require.Len(t, s.Questions(), 10)
	require.Equal(t, 0, s.CurrentIndex())
	require.Equal(t, 0, s.AnsweredCount())
	require.Equal(t, 10*60, s.TimeRemaining())
}

func TestFetchQuestionsFallsBackToFiveMinutes(t *testing.T) {
	fake := &fakeExamAPI{}
	s := startedStore(t, fake, 0)
	require.Equal(t, 5*60, s.TimeRemaining())
}

func TestFetchQuestionsWithoutSession(t *testing.T) {
	fake := &fakeExamAPI{}
	j := newMemJournal()
	s := NewExamStore(fake, j, j, nil)
	require.ErrorIs(t, s.FetchQuestions(context.Background()), errs.ErrNoSession)
}

func TestIndexClampedToQuestionRange(t *testing.T) {
	s := startedStore(t, &fakeExamAPI{}, 10)

	s.SetCurrentQuestionIndex(5)
	require.Equal(t, 5, s.CurrentIndex())

	s.SetCurrentQuestionIndex(-1)
	require.Equal(t, 5, s.CurrentIndex())

	s.SetCurrentQuestionIndex(10)
	require.Equal(t, 5, s.CurrentIndex())

	s.SetCurrentQuestionIndex(9)
	require.Equal(t, 9, s.CurrentIndex())
}

func TestAnswerMapLastWritePerQuestionWins(t *testing.T) {
	s := startedStore(t, &fakeExamAPI{}, 10)

	s.SetAnswer(3, ptr(9))
	s.SetAnswer(4, ptr(41))
	s.SetAnswer(3, ptr(31))
	s.SetAnswer(3, ptr(9))

	got, ok := s.Answer(3)
	require.True(t, ok)
	require.Equal(t, int64(9), *got)

	other, ok := s.Answer(4)
	require.True(t, ok)
	require.Equal(t, int64(41), *other)

	// Re-answering the same question never inflates the count.
	require.Equal(t, 2, s.AnsweredCount())
}

func TestExplicitNoAnswerDoesNotCountAsAnswered(t *testing.T) {
	s := startedStore(t, &fakeExamAPI{}, 10)

	s.SetAnswer(3, ptr(9))
	s.SetAnswer(5, nil)

	require.Equal(t, 1, s.AnsweredCount())

	choice, ok := s.Answer(5)
	require.True(t, ok) // entry exists
	require.Nil(t, choice)

	_, ok = s.Answer(6)
	require.False(t, ok) // never touched
}

func TestSubmitAnswerOptimisticOnFailure(t *testing.T) {
	fake := &fakeExamAPI{answerErr: errors.New("network down")}
	s := startedStore(t, fake, 10)

	err := s.SubmitAnswer(context.Background(), 3, ptr(9))
	require.Error(t, err)

	// Local selection survives, flagged unsynced.
	got, ok := s.Answer(3)
	require.True(t, ok)
	require.Equal(t, int64(9), *got)
	require.Equal(t, 1, s.UnsyncedCount())
	require.Equal(t, "Failed to save answer", s.Err())
}

func TestResyncRetriesJournaledAnswers(t *testing.T) {
	fake := &fakeExamAPI{answerErr: errors.New("network down")}
	s := startedStore(t, fake, 10)

	_ = s.SubmitAnswer(context.Background(), 3, ptr(9))
	_ = s.SubmitAnswer(context.Background(), 4, ptr(41))
	require.Equal(t, 2, s.UnsyncedCount())

	fake.answerErr = nil
	n, err := s.ResyncAnswers(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, 0, s.UnsyncedCount())
}

func TestSubmitExamAtomicTransition(t *testing.T) {
	sid := testSession(t, 10)
	fake := &fakeExamAPI{
		session: sid,
		result: &model.ExamResult{
			SessionID: sid.ID, Exam: sid.Exam,
			Score: 60, TotalQuestions: 10, CorrectAnswers: 6,
			Status: model.StatusCompleted,
		},
	}
	s := startedStore(t, fake, 10)

	require.True(t, s.HasSession())
	require.False(t, s.HasResult())

	require.NoError(t, s.SubmitExam(context.Background()))

	// Session cleared and result populated; never both, never neither.
	require.False(t, s.HasSession())
	require.True(t, s.HasResult())
	require.Equal(t, 60.0, s.Result().Score)
	require.Equal(t, 0, s.TimeRemaining())
	require.Empty(t, s.Questions())
}

func TestSubmitExamFailureKeepsSessionForRetry(t *testing.T) {
	fake := &fakeExamAPI{submitErr: errors.New("boom")}
	s := startedStore(t, fake, 10)

	require.Error(t, s.SubmitExam(context.Background()))
	require.True(t, s.HasSession())
	require.False(t, s.HasResult())

	// Retry succeeds.
	fake.submitErr = nil
	fake.result = &model.ExamResult{Score: 80, Status: model.StatusCompleted}
	require.NoError(t, s.SubmitExam(context.Background()))
	require.False(t, s.HasSession())
	require.True(t, s.HasResult())
}

func TestConcurrentSubmitYieldsOneResult(t *testing.T) {
	enter := make(chan struct{})
	release := make(chan struct{})
	fake := &fakeExamAPI{
		result:       &model.ExamResult{Score: 60, Status: model.StatusCompleted},
		submitEnter:  enter,
		submitRelease: release,
	}
	s := startedStore(t, fake, 10)

	done := make(chan error, 1)
	go func() { done <- s.SubmitExam(context.Background()) }()

	<-enter
	// Second submission while the first is pending is rejected, not doubled.
	require.ErrorIs(t, s.SubmitExam(context.Background()), errs.ErrSubmitInFlight)

	close(release)
	require.NoError(t, <-done)

	require.Equal(t, 1, fake.submitCalls)
	require.True(t, s.HasResult())

	// And once completed, further submits have no session to act on.
	require.ErrorIs(t, s.SubmitExam(context.Background()), errs.ErrNoSession)
}

func TestClearExamResetsEverything(t *testing.T) {
	fake := &fakeExamAPI{result: &model.ExamResult{Score: 60}}
	s := startedStore(t, fake, 10)

	s.SetAnswer(3, ptr(9))
	s.SetCurrentQuestionIndex(4)
	s.ClearExam()

	require.False(t, s.HasSession())
	require.False(t, s.HasResult())
	require.Empty(t, s.Questions())
	require.Equal(t, 0, s.CurrentIndex())
	require.Equal(t, 0, s.AnsweredCount())
	require.Equal(t, 0, s.TimeRemaining())
	require.Empty(t, s.Err())
}

func TestStaleQuestionFetchCannotResurrectSession(t *testing.T) {
	fake := &fakeExamAPI{}
	fake.session = testSession(t, 10)
	fake.questions = &api.QuestionsPayload{
		SessionID: fake.session.ID,
		Questions: tenQuestions(),
	}
	entered := make(chan struct{})
	release := make(chan struct{})
	fake.qEnter = entered
	fake.qRelease = release

	j := newMemJournal()
	s := NewExamStore(fake, j, j, nil)
	require.NoError(t, s.StartExam(context.Background(), 7))

	done := make(chan error, 1)
	go func() { done <- s.FetchQuestions(context.Background()) }()

	// User abandons the exam while the fetch is in flight: the completion
	// arriving afterwards must be discarded.
	<-entered
	s.ClearExam()
	close(release)
	require.NoError(t, <-done)

	require.False(t, s.HasSession())
	require.Empty(t, s.Questions())
	require.Equal(t, 0, s.TimeRemaining())
}

func TestHistoryFallsBackToCache(t *testing.T) {
	fake := &fakeExamAPI{history: []model.ExamResult{{Score: 70}, {Score: 90}}}
	j := newMemJournal()
	s := NewExamStore(fake, j, j, nil)

	got, err := s.History(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)

	// Backend gone: cached copy is served.
	fake.histErr = errors.New("network down")
	got, err = s.History(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)

	// No cache and no backend: the failure propagates.
	j.cached = nil
	_, err = s.History(context.Background())
	require.Error(t, err)
}
