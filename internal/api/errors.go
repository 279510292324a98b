package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/nstepura/examly/internal/errs"
)

// Error is a decoded non-2xx backend response. It unwraps to one of the
// errs sentinels so callers can match with errors.Is.
type Error struct {
	StatusCode int
	Message    string
	Fields     map[string][]string
	sentinel   error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if m := e.FieldMessage("username", "email"); m != "" {
		return m
	}
	return fmt.Sprintf("backend returned status %d", e.StatusCode)
}

func (e *Error) Unwrap() error { return e.sentinel }

// FieldMessage returns the first validation message found for the given
// fields, checked in order.
func (e *Error) FieldMessage(fields ...string) string {
	for _, f := range fields {
		if msgs := e.Fields[f]; len(msgs) > 0 {
			return msgs[0]
		}
	}
	return ""
}

// decodeError maps a non-2xx response onto *Error. The backend answers either
// {"error": "..."} or a per-field validation map {"username": ["taken"]}.
func decodeError(resp *http.Response) error {
	apiErr := &Error{StatusCode: resp.StatusCode}
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		apiErr.sentinel = errs.ErrUnauthorized
	case http.StatusNotFound:
		apiErr.sentinel = errs.ErrNotFound
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil || len(body) == 0 {
		return apiErr
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return apiErr
	}
	if msg, ok := raw["error"]; ok {
		_ = json.Unmarshal(msg, &apiErr.Message)
	}
	for key, val := range raw {
		if key == "error" {
			continue
		}
		var msgs []string
		if err := json.Unmarshal(val, &msgs); err == nil && len(msgs) > 0 {
			if apiErr.Fields == nil {
				apiErr.Fields = map[string][]string{}
			}
			apiErr.Fields[key] = msgs
		}
	}
	return apiErr
}
