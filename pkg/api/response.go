package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	log "github.com/sirupsen/logrus"
)

// apiError is an error with the HTTP status it should be reported with.
// body replaces the default {"error": msg} payload when set.
type apiError struct {
	status int
	msg    string
	body   any
}

func (e *apiError) Error() string {
	return e.msg
}

func errorf(status int, format string, args ...any) error {
	return &apiError{status: status, msg: fmt.Sprintf(format, args...)}
}

func badRequest(msg string) error {
	return &apiError{status: http.StatusBadRequest, msg: msg}
}

func unavailable(msg string) error {
	return &apiError{status: http.StatusServiceUnavailable, msg: msg}
}

type handlerFunc func(r *http.Request) (any, error)

// handleJSON adapts a handlerFunc to an http.Handler. Values are encoded as
// JSON; errors become {"error": ...} with the status carried by apiError,
// or 500 for anything else.
func handleJSON(fn handlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		value, err := fn(r)
		if err != nil {
			handleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, value)
	})
}

func handleError(w http.ResponseWriter, err error) {
	var apiErr *apiError
	if !errors.As(err, &apiErr) {
		log.Errorf("Unhandled error: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	if apiErr.body != nil {
		writeJSON(w, apiErr.status, apiErr.body)
		return
	}
	writeJSON(w, apiErr.status, map[string]string{"error": apiErr.msg})
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(value); err != nil {
		log.Errorf("Error encoding response: %v", err)
	}
}

// decodeBody reads a JSON request body into v. An empty body is reported
// as ok=false so handlers can answer with their own message.
func decodeBody(r *http.Request, v any) (ok bool, err error) {
	err = json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return false, nil
	}
	if err != nil {
		return false, badRequest("Bad Request.")
	}
	return true, nil
}
