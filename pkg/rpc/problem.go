package rpc

import (
	"encoding/json"
	"net/http"

	cerrors "github.com/nexusd/nexuscore/pkg/child/errors"
)

// Problem is an RFC 7807 "problem details" response body.
// https://tools.ietf.org/html/rfc7807
type Problem struct {
	Type   string `json:"type,omitempty"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

const contentTypeProblemJSON = "application/problem+json"

// writeProblem writes an RFC 7807 problem response.
func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", contentTypeProblemJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(&Problem{Type: "about:blank", Title: title, Status: status, Detail: detail})
}

// writeError maps a Nexus-domain error to its RFC 7807 response, per §7's
// error kind taxonomy.
func writeError(w http.ResponseWriter, err error) {
	de, ok := err.(*cerrors.DeviceError)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", err.Error())
		return
	}

	status, title := statusForCode(de.Code)
	writeProblem(w, status, title, de.Error())
}

func statusForCode(code cerrors.ErrorCode) (int, string) {
	switch code {
	case cerrors.ErrInvalidURI, cerrors.ErrInvalidOffset, cerrors.ErrInvalidAlignment,
		cerrors.ErrGeometryMismatch, cerrors.ErrInsufficientCapacity:
		return http.StatusBadRequest, "Bad Request"
	case cerrors.ErrAuthRejected:
		return http.StatusUnauthorized, "Unauthorized"
	case cerrors.ErrNotFound:
		return http.StatusNotFound, "Not Found"
	case cerrors.ErrAlreadyExists:
		return http.StatusConflict, "Conflict"
	case cerrors.ErrInProgress:
		return http.StatusConflict, "Conflict"
	case cerrors.ErrTransportUnavailable, cerrors.ErrDisconnected, cerrors.ErrNoHealthyChild:
		return http.StatusServiceUnavailable, "Service Unavailable"
	case cerrors.ErrIO:
		return http.StatusBadGateway, "Bad Gateway"
	default:
		return http.StatusInternalServerError, "Internal Server Error"
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
