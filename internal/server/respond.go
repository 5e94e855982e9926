package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/akshitpareta/OpenSalesAI-sub000/internal/apperrors"
	"github.com/akshitpareta/OpenSalesAI-sub000/internal/logging"
)

// errorBody is the error envelope returned by every endpoint.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// statusForCode maps application error codes to HTTP statuses.
func statusForCode(code apperrors.Code) int {
	switch code {
	case apperrors.ErrStoreNotFound, apperrors.ErrRepNotFound,
		apperrors.ErrVisitNotFound, apperrors.ErrNotFound:
		return http.StatusNotFound
	case apperrors.ErrActiveVisitExists:
		return http.StatusConflict
	case apperrors.ErrTooFarFromStore, apperrors.ErrAlreadyCheckedOut,
		apperrors.ErrVisitTooShort, apperrors.ErrInvalidCoordinates,
		apperrors.ErrValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

// writeError maps an error to the envelope and status for its code.
func writeError(w http.ResponseWriter, err error) {
	code := apperrors.CodeOf(err)
	status := statusForCode(code)

	message := err.Error()
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	if status == http.StatusInternalServerError {
		logging.Error("Request failed", err)
		message = "internal error"
	}

	writeJSON(w, status, errorBody{Error: errorDetail{
		Code:    string(code),
		Message: message,
		Details: apperrors.DetailsOf(err),
	}})
}
