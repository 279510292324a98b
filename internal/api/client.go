// Package api implements the REST client for the exam platform backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/nstepura/examly/internal/model"
)

// TokenSource yields the current bearer token, or "" when unauthenticated.
type TokenSource interface {
	Token() string
}

// Client talks to the backend over HTTP/JSON. All methods honor ctx cancellation.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	log     *zap.Logger
}

// New constructs a Client. tokens may be nil for an always-anonymous client.
func New(baseURL string, timeout time.Duration, tokens TokenSource, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		tokens:  tokens,
		log:     log,
	}
}

// AuthPayload is the login/register response body.
type AuthPayload struct {
	User   model.User `json:"user"`
	Tokens struct {
		Access string `json:"access"`
	} `json:"tokens"`
}

// RegisterRequest is the registration form sent to the backend.
type RegisterRequest struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
}

// QuestionsPayload is the session questions response body.
type QuestionsPayload struct {
	SessionID       uuid.UUID        `json:"session_id"`
	Questions       []model.Question `json:"questions"`
	DurationMinutes int              `json:"duration_minutes"`
	StartTime       time.Time        `json:"start_time"`
}

// Login authenticates by email and password.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthPayload, error) {
	body := map[string]string{"email": email, "password": password}
	var out AuthPayload
	if err := c.do(ctx, http.MethodPost, "/auth/login/", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Register creates a new account and returns the issued identity and token.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*AuthPayload, error) {
	var out AuthPayload
	if err := c.do(ctx, http.MethodPost, "/auth/register/", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AvailableExams returns the current catalog.
func (c *Client) AvailableExams(ctx context.Context) ([]model.Exam, error) {
	var out []model.Exam
	if err := c.do(ctx, http.MethodGet, "/exams/available/", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// StartExam opens a new session for the given exam.
func (c *Client) StartExam(ctx context.Context, examID int64) (*model.ExamSession, error) {
	var out struct {
		Message string            `json:"message"`
		Session model.ExamSession `json:"session"`
	}
	path := fmt.Sprintf("/exams/%d/start/", examID)
	if err := c.do(ctx, http.MethodPost, path, nil, &out); err != nil {
		return nil, err
	}
	return &out.Session, nil
}

// SessionQuestions fetches the question set for an active session.
func (c *Client) SessionQuestions(ctx context.Context, sessionID uuid.UUID) (*QuestionsPayload, error) {
	var out QuestionsPayload
	path := fmt.Sprintf("/exams/session/%s/questions/", sessionID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitAnswer persists a single answer. choiceID == nil clears the selection.
func (c *Client) SubmitAnswer(ctx context.Context, sessionID uuid.UUID, questionID int64, choiceID *int64) error {
	body := map[string]any{"question_id": questionID, "choice_id": choiceID}
	path := fmt.Sprintf("/exams/session/%s/answer/", sessionID)
	return c.do(ctx, http.MethodPost, path, body, nil)
}

// SubmitExam finalizes the session and returns the scored result.
func (c *Client) SubmitExam(ctx context.Context, sessionID uuid.UUID) (*model.ExamResult, error) {
	var out struct {
		Message string           `json:"message"`
		Result  model.ExamResult `json:"result"`
	}
	path := fmt.Sprintf("/exams/session/%s/submit/", sessionID)
	if err := c.do(ctx, http.MethodPost, path, nil, &out); err != nil {
		return nil, err
	}
	return &out.Result, nil
}

// SessionResult fetches the result of an already completed session.
func (c *Client) SessionResult(ctx context.Context, sessionID uuid.UUID) (*model.ExamResult, error) {
	var out model.ExamResult
	path := fmt.Sprintf("/exams/session/%s/result/", sessionID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// History returns the user's completed sessions, most recent first.
func (c *Client) History(ctx context.Context) ([]model.ExamResult, error) {
	var out []model.ExamResult
	if err := c.do(ctx, http.MethodGet, "/exams/history/", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// do performs one JSON round-trip; non-2xx responses become *Error values
// wrapping the matching sentinel. Payloads are never logged.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		if tok := c.tokens.Token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("http",
			zap.String("method", method),
			zap.String("path", path),
			zap.Duration("dur", time.Since(start)),
			zap.Error(err),
		)
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.log.Info("http",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("dur", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
