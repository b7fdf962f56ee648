package finder

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/marmos91/dittofm/internal/logger"
	"github.com/marmos91/dittofm/pkg/storage"
	"github.com/marmos91/dittofm/pkg/transfer"
)

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Envelope is the uniform response body of every JSON command.
type Envelope struct {
	Status  string        `json:"status"`
	Data    any           `json:"data"`
	Error   *storage.Code `json:"error"`
	Message string        `json:"message,omitempty"`
}

func writeOK(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, Envelope{Status: StatusOK, Data: data})
}

// writeError classifies err and writes the error envelope. data may carry a
// partial result (unarchive, upload).
func writeError(w http.ResponseWriter, err error, data any) {
	code, status := storage.Classify(err)

	message := err.Error()
	if status >= http.StatusInternalServerError {
		// Backend errors may carry absolute paths or endpoints.
		logger.Error("request failed: %v", err)
		message = storage.ErrIOFailure.Error()
		if errors.Is(err, transfer.ErrIdleTimeout) {
			message = transfer.ErrIdleTimeout.Error()
		}
	}

	writeJSON(w, status, Envelope{
		Status:  StatusError,
		Data:    data,
		Error:   &code,
		Message: message,
	})
}

// WriteError writes an error envelope for code with the given HTTP status.
// It serves middlewares that reject requests before they reach the router.
func WriteError(w http.ResponseWriter, status int, code storage.Code, message string) {
	writeJSON(w, status, Envelope{Status: StatusError, Error: &code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("writing response: %v", err)
	}
}

func errorf(sentinel error, format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, sentinel)...)
}

func badRequest(format string, args ...any) error {
	return errorf(storage.ErrBadRequest, format, args...)
}
