package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"resty.dev/v3"
)

// GenericMessage is shown when the server did not explain a failure.
const GenericMessage = "Something went wrong. Please try again."

// Error is a non-2xx answer from the API.
type Error struct {
	StatusCode int
	Detail     string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("api: status %d", e.StatusCode)
	}
	return fmt.Sprintf("api: status %d: %s", e.StatusCode, e.Detail)
}

// errorBody mirrors the backend's error envelope. detail is a string for
// handled errors and a list of field errors for request validation failures.
type errorBody struct {
	Detail  json.RawMessage `json:"detail"`
	Message string          `json:"message"`
}

func (b *errorBody) text() string {
	if b == nil {
		return ""
	}

	if len(b.Detail) > 0 {
		var detail string
		if err := json.Unmarshal(b.Detail, &detail); err == nil {
			return detail
		}

		var fields []struct {
			Loc []any  `json:"loc"`
			Msg string `json:"msg"`
		}
		if err := json.Unmarshal(b.Detail, &fields); err == nil && len(fields) > 0 {
			msgs := make([]string, 0, len(fields))
			for _, f := range fields {
				msgs = append(msgs, f.Msg)
			}
			return strings.Join(msgs, "; ")
		}
	}

	return b.Message
}

// check turns a resty outcome into an error. A server error response wins
// over a body decoding failure so callers always see the status code.
func check(res *resty.Response, err error) error {
	if res != nil && res.IsError() {
		apiErr := &Error{StatusCode: res.StatusCode()}
		if body, ok := res.Error().(*errorBody); ok {
			apiErr.Detail = body.text()
		}
		return apiErr
	}
	return err
}

func statusOf(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

func IsNotFound(err error) bool {
	return statusOf(err) == http.StatusNotFound
}

func IsUnauthorized(err error) bool {
	return statusOf(err) == http.StatusUnauthorized
}

// Message returns the text to show a user for err: the server's detail when
// it sent one, a generic fallback otherwise.
func Message(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Detail != "" {
		return apiErr.Detail
	}
	return GenericMessage
}
