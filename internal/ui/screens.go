package ui

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nstepura/examly/internal/api"
	"github.com/nstepura/examly/internal/errs"
	"github.com/nstepura/examly/internal/store"
)

// loginScreen authenticates by email/password. "register" switches forms.
func (u *UI) loginScreen(ctx context.Context) (Screen, error) {
	u.printf("\n== Sign in ==\n")
	u.showError(u.auth.Err(), u.auth.ClearError)

	email, err := u.prompt(ctx, "email ('register' for a new account, 'quit' to exit): ")
	if err != nil {
		return ScreenLogin, err
	}
	switch strings.ToLower(email) {
	case "quit", "q":
		return ScreenLogin, errQuit
	case "register":
		return ScreenRegister, nil
	case "":
		return ScreenLogin, nil
	}

	password, err := u.promptSecret(ctx, "password: ")
	if err != nil {
		return ScreenLogin, err
	}

	if err := u.auth.Login(ctx, email, password); err != nil {
		u.showError(u.auth.Err(), u.auth.ClearError)
		return ScreenLogin, nil
	}
	if user := u.auth.User(); user != nil {
		u.printf("welcome back, %s %s\n", user.FirstName, user.LastName)
	}
	return ScreenDashboard, nil
}

// registerScreen collects the registration form and submits it.
func (u *UI) registerScreen(ctx context.Context) (Screen, error) {
	u.printf("\n== Create account ==  ('back' returns to sign in)\n")
	u.showError(u.auth.Err(), u.auth.ClearError)

	var req api.RegisterRequest
	fields := []struct {
		label  string
		secret bool
		dst    *string
	}{
		{"username: ", false, &req.Username},
		{"email: ", false, &req.Email},
		{"first name: ", false, &req.FirstName},
		{"last name: ", false, &req.LastName},
		{"password: ", true, &req.Password},
		{"confirm password: ", true, &req.PasswordConfirm},
	}
	for _, f := range fields {
		var line string
		var err error
		if f.secret {
			line, err = u.promptSecret(ctx, f.label)
		} else {
			line, err = u.prompt(ctx, f.label)
		}
		if err != nil {
			return ScreenRegister, err
		}
		if strings.EqualFold(line, "back") && !f.secret {
			return ScreenLogin, nil
		}
		*f.dst = line
	}

	if err := u.auth.Register(ctx, req); err != nil {
		u.showError(u.auth.Err(), u.auth.ClearError)
		return ScreenRegister, nil
	}
	u.printf("account created\n")
	return ScreenDashboard, nil
}

// dashboardScreen lists the catalog and starts sessions. Returning here
// invalidates any previous result.
func (u *UI) dashboardScreen(ctx context.Context) (Screen, error) {
	u.exams.ClearExam()

	if err := u.exams.FetchAvailableExams(ctx); err != nil {
		if errors.Is(err, errs.ErrUnauthorized) {
			u.printf("! session expired, please sign in again\n")
			u.auth.Logout()
			return ScreenLogin, nil
		}
		u.showError(u.exams.Err(), u.exams.ClearError)
	}

	exams := u.exams.Exams()
	u.printf("\n== Available exams ==\n")
	if len(exams) == 0 {
		u.printf("(no exams available)\n")
	}
	for i, e := range exams {
		u.printf("%2d. %s [%s] - %d questions, %d min\n",
			i+1, e.Title, e.Difficulty, e.TotalQuestions, e.DurationMinutes)
		if e.Description != "" {
			u.printf("    %s\n", e.Description)
		}
	}

	line, err := u.prompt(ctx, "exam # to start (or: history, refresh, logout, quit): ")
	if err != nil {
		return ScreenDashboard, err
	}
	switch strings.ToLower(line) {
	case "quit", "q":
		return ScreenDashboard, errQuit
	case "refresh", "":
		return ScreenDashboard, nil
	case "history":
		return ScreenHistory, nil
	case "logout":
		u.auth.Logout()
		return ScreenLogin, nil
	}

	n, convErr := strconv.Atoi(line)
	if convErr != nil || n < 1 || n > len(exams) {
		u.printf("! unknown command %q\n", line)
		return ScreenDashboard, nil
	}

	if err := u.exams.StartExam(ctx, exams[n-1].ID); err != nil {
		u.showError(u.exams.Err(), u.exams.ClearError)
		return ScreenDashboard, nil
	}
	return ScreenExam, nil
}

// examScreen runs the active session: loads questions, starts the countdown
// and serves navigation/answer commands until submission or timeout.
func (u *UI) examScreen(ctx context.Context) (Screen, error) {
	if err := u.exams.FetchQuestions(ctx); err != nil {
		u.showError(u.exams.Err(), u.exams.ClearError)
		u.exams.ClearExam()
		return ScreenDashboard, nil
	}
	questions := u.exams.Questions()
	if len(questions) == 0 {
		u.printf("! exam has no questions\n")
		u.exams.ClearExam()
		return ScreenDashboard, nil
	}

	expired := make(chan struct{}, 1)
	cd := store.NewCountdown(u.exams, u.tickInterval, nil, func() {
		expired <- struct{}{}
	})
	cd.Start()
	defer cd.Stop()

	for {
		u.renderQuestion()

		line, err := u.in.readLine(ctx, expired)
		if errors.Is(err, errInterrupted) {
			return u.autoSubmit(ctx)
		}
		if err != nil {
			return ScreenExam, err
		}

		// The countdown may have expired while the line was typed.
		select {
		case <-expired:
			return u.autoSubmit(ctx)
		default:
		}

		next, done, err := u.handleExamCommand(ctx, line)
		if done || err != nil {
			return next, err
		}
	}
}

// handleExamCommand executes one exam-screen command. done is true when the
// screen should be left.
func (u *UI) handleExamCommand(ctx context.Context, line string) (next Screen, done bool, err error) {
	questions := u.exams.Questions()
	idx := u.exams.CurrentIndex()
	q := questions[idx]

	cmd, arg, _ := strings.Cut(strings.ToLower(line), " ")
	switch cmd {
	case "quit", "q":
		return ScreenExam, true, errQuit

	case "leave":
		u.exams.ClearExam()
		return ScreenDashboard, true, nil

	case "n", "next", "":
		u.exams.SetCurrentQuestionIndex(idx + 1)
		return ScreenExam, false, nil

	case "p", "prev":
		u.exams.SetCurrentQuestionIndex(idx - 1)
		return ScreenExam, false, nil

	case "g", "goto":
		n, convErr := strconv.Atoi(arg)
		if convErr != nil {
			u.printf("! usage: goto <question number>\n")
			return ScreenExam, false, nil
		}
		u.exams.SetCurrentQuestionIndex(n - 1)
		return ScreenExam, false, nil

	case "clear":
		// Explicit "no answer"; still persisted so the backend forgets the
		// previous selection too.
		if err := u.exams.SubmitAnswer(ctx, q.ID, nil); err != nil {
			u.showError(u.exams.Err(), u.exams.ClearError)
		}
		return ScreenExam, false, nil

	case "sync":
		n, syncErr := u.exams.ResyncAnswers(ctx)
		if syncErr != nil {
			u.printf("! resync stopped after %d answers: %v\n", n, syncErr)
		} else {
			u.printf("resynced %d answers\n", n)
		}
		return ScreenExam, false, nil

	case "submit":
		answered := u.exams.AnsweredCount()
		total := len(questions)
		confirm, perr := u.prompt(ctx,
			"you answered "+strconv.Itoa(answered)+" of "+strconv.Itoa(total)+" questions; submit? (y/n): ")
		if perr != nil {
			return ScreenExam, true, perr
		}
		if !strings.EqualFold(confirm, "y") && !strings.EqualFold(confirm, "yes") {
			return ScreenExam, false, nil
		}
		if err := u.exams.SubmitExam(ctx); err != nil {
			if errors.Is(err, errs.ErrSubmitInFlight) {
				return ScreenResults, true, nil
			}
			u.showError(u.exams.Err(), u.exams.ClearError)
			return ScreenExam, false, nil
		}
		return ScreenResults, true, nil
	}

	// A bare number picks a choice on the current question.
	if n, convErr := strconv.Atoi(cmd); convErr == nil {
		if n < 1 || n > len(q.Choices) {
			u.printf("! choice out of range\n")
			return ScreenExam, false, nil
		}
		choiceID := q.Choices[n-1].ID
		if err := u.exams.SubmitAnswer(ctx, q.ID, &choiceID); err != nil {
			// Selection is kept locally and journaled; surface and move on.
			u.showError(u.exams.Err(), u.exams.ClearError)
		}
		return ScreenExam, false, nil
	}

	u.printf("! unknown command %q\n", line)
	return ScreenExam, false, nil
}

// autoSubmit is the forced-submission path on timeout.
func (u *UI) autoSubmit(ctx context.Context) (Screen, error) {
	u.printf("\n! time is up, submitting exam\n")
	if err := u.exams.SubmitExam(ctx); err != nil && !errors.Is(err, errs.ErrSubmitInFlight) {
		u.showError(u.exams.Err(), u.exams.ClearError)
		u.log.Warn("auto-submit", zap.Error(err))
	}
	return ScreenResults, nil
}

// renderQuestion prints the current question with its choices and the
// session header.
func (u *UI) renderQuestion() {
	session := u.exams.Session()
	questions := u.exams.Questions()
	idx := u.exams.CurrentIndex()
	if session == nil || idx >= len(questions) {
		return
	}
	q := questions[idx]
	selected, _ := u.exams.Answer(q.ID)

	u.printf("\n-- %s | question %d of %d | %s left | %d/%d answered",
		session.Exam.Title, idx+1, len(questions),
		formatClock(u.exams.TimeRemaining()),
		u.exams.AnsweredCount(), len(questions))
	if n := u.exams.UnsyncedCount(); n > 0 {
		u.printf(" | %d unsynced ('sync' to retry)", n)
	}
	u.printf("\n%s\n", q.Text)
	for i, c := range q.Choices {
		marker := " "
		if selected != nil && *selected == c.ID {
			marker = "*"
		}
		u.printf(" %s %d) %s\n", marker, i+1, c.Text)
	}
	u.printf("(choice #, next/prev/goto N, clear, submit, leave, quit)\n> ")
}

// resultsScreen renders the scored outcome of the submitted session.
func (u *UI) resultsScreen(ctx context.Context) (Screen, error) {
	r := u.exams.Result()
	if r == nil {
		return ScreenDashboard, nil
	}

	u.printf("\n== Results: %s ==\n", r.Exam.Title)
	u.printf("score: %d%% - %s\n", roundScore(r.Score), performanceText(r.Score))
	u.printf("correct: %d of %d\n", r.CorrectAnswers, r.TotalQuestions)
	if !r.EndTime.IsZero() && !r.StartTime.IsZero() {
		u.printf("time taken: %s\n", r.EndTime.Sub(r.StartTime).Round(time.Second))
	}

	line, err := u.prompt(ctx, "press enter for the dashboard (or: quit): ")
	if err != nil {
		return ScreenResults, err
	}
	if strings.EqualFold(line, "quit") || strings.EqualFold(line, "q") {
		return ScreenResults, errQuit
	}
	return ScreenDashboard, nil
}

// historyScreen lists completed sessions, falling back to the local cache
// when the backend is unreachable.
func (u *UI) historyScreen(ctx context.Context) (Screen, error) {
	results, err := u.exams.History(ctx)
	if err != nil {
		u.printf("! failed to load history: %v\n", err)
		return ScreenDashboard, nil
	}

	u.printf("\n== Exam history ==\n")
	if len(results) == 0 {
		u.printf("(no completed exams yet)\n")
	}
	for _, r := range results {
		u.printf("%s  %-30s %3d%%  (%d/%d)\n",
			r.EndTime.Local().Format("2006-01-02 15:04"),
			r.Exam.Title, roundScore(r.Score), r.CorrectAnswers, r.TotalQuestions)
	}

	if _, err := u.prompt(ctx, "press enter for the dashboard: "); err != nil {
		return ScreenHistory, err
	}
	return ScreenDashboard, nil
}
