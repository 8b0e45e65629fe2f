// Package respond writes JSON bodies and maps error kinds to status codes.
package respond

import (
	"encoding/json"
	"errors"
	"net/http"

	"docshare/pkg/apperror"
	"docshare/pkg/logger"
)

// MaxBodyBytes caps decoded request bodies.
const MaxBodyBytes = 1 << 20

func JSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			logger.Sugar.Errorf("Failed to encode response: %v", err)
		}
	}
}

func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperror.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperror.ErrConflict), errors.Is(err, apperror.ErrDuplicate):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// FromError writes err as a JSON error. A lock conflict also reports who
// holds the lock and since when.
func FromError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		logger.Sugar.Errorw("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}

	var lc *apperror.LockConflictError
	if errors.As(err, &lc) {
		JSON(w, status, map[string]any{
			"error":    apperror.Message(err),
			"lockedBy": lc.HolderID,
			"lockedAt": lc.Since,
		})
		return
	}
	Error(w, status, apperror.Message(err))
}

// Decode reads a JSON body into dst, rejecting oversized or malformed input.
func Decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return apperror.Validation("Invalid input")
	}
	return nil
}
