package genclient

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrUnavailable wraps transport failures: the service could not be reached
// or the connection dropped before a response arrived.
var ErrUnavailable = errors.New("genclient: generation service unavailable")

// ErrResponseTooLarge means a response body exceeded the client's size limit.
// Nothing from such a response is returned.
var ErrResponseTooLarge = errors.New("genclient: response too large")

// GenericFailureMessage is shown when the service gave no usable detail.
const GenericFailureMessage = "Could not reach the generation service. Check your connection and try again."

// RemoteError is a non-2xx response from the generation service.
type RemoteError struct {
	Method string
	Path   string
	Status int
	// Detail is the server supplied explanation, if any.
	Detail string
}

func (e *RemoteError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("genclient: %s %s: %d: %s", e.Method, e.Path, e.Status, e.Detail)
	}
	return fmt.Sprintf("genclient: %s %s: %d %s", e.Method, e.Path, e.Status, http.StatusText(e.Status))
}

// Temporary reports whether retrying the same request could succeed.
func (e *RemoteError) Temporary() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests || e.Status == http.StatusRequestTimeout
}

// ErrorMessage returns the text to show a user for err: the server detail
// verbatim when there is one, otherwise GenericFailureMessage.
func ErrorMessage(err error) string {
	var remote *RemoteError
	if errors.As(err, &remote) && strings.TrimSpace(remote.Detail) != "" {
		return remote.Detail
	}
	return GenericFailureMessage
}

// parseDetail extracts the detail field of an error body. FastAPI style
// validation errors carry a list of {msg} objects instead of a string.
func parseDetail(body []byte) string {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '{' {
		return ""
	}
	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Detail) == 0 {
		return ""
	}
	var text string
	if err := json.Unmarshal(envelope.Detail, &text); err == nil {
		return strings.TrimSpace(text)
	}
	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(envelope.Detail, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, item := range items {
			if m := strings.TrimSpace(item.Msg); m != "" {
				msgs = append(msgs, m)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return ""
}
