package nexusclient

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// ProblemError is an RFC 7807 problem+json error response from nexusd.
type ProblemError struct {
	Status int    `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
}

func (e *ProblemError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Title, e.Detail)
	}
	return e.Title
}

// IsNotFound reports whether e represents a 404 response.
func (e *ProblemError) IsNotFound() bool { return e.Status == http.StatusNotFound }

// IsConflict reports whether e represents a 409 response.
func (e *ProblemError) IsConflict() bool { return e.Status == http.StatusConflict }

// IsUnauthorized reports whether e represents a 401 response.
func (e *ProblemError) IsUnauthorized() bool { return e.Status == http.StatusUnauthorized }

func problemFromBody(status int, body []byte) error {
	var p ProblemError
	if json.Unmarshal(body, &p) == nil && p.Title != "" {
		p.Status = status
		return &p
	}
	return &ProblemError{Status: status, Title: "Error", Detail: string(body)}
}
