package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/vedran77/parley/pkg/apperr"
	"github.com/vedran77/parley/pkg/validator"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

func writeValidationErrors(w http.ResponseWriter, errs validator.ValidationErrors) {
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"error": map[string]any{
			"code":   "VALIDATION_ERROR",
			"fields": errs,
		},
	})
}

func statusFor(code apperr.Code) int {
	switch code {
	case apperr.CodeUnauthenticated:
		return http.StatusUnauthorized
	case apperr.CodeNotFound:
		return http.StatusNotFound
	case apperr.CodeForbidden, apperr.CodePermissionDenied:
		return http.StatusForbidden
	case apperr.CodeInvalidState, apperr.CodeConflict:
		return http.StatusConflict
	case apperr.CodeInvalidArgument:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// writeServiceError renders a service failure. Typed errors keep their code
// and message; anything else is logged under op and hidden from the client.
func writeServiceError(w http.ResponseWriter, op string, err error) {
	code := apperr.CodeOf(err)
	if code == apperr.CodeInternal {
		log.Error(op, "err", err)
	}
	writeError(w, statusFor(code), string(code), apperr.MessageOf(err))
}

// decodeJSON decodes the request body into dst. An empty body is accepted
// when optional is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, optional bool) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return true
	}
	writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
	return false
}

// decodeValid decodes a required body and runs struct validation on it.
func decodeValid(w http.ResponseWriter, r *http.Request, dst any) bool {
	if !decodeJSON(w, r, dst, false) {
		return false
	}
	if errs := validator.Struct(dst); errs.HasErrors() {
		writeValidationErrors(w, errs)
		return false
	}
	return true
}

func pathUUID(w http.ResponseWriter, r *http.Request, name, label string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid "+label+" ID")
		return uuid.Nil, false
	}
	return id, true
}
