package api

import (
	"encoding/json"
	"net/http"

	"gortm/internal"
	"gortm/internal/errors"
)

var responseLogger = internal.DefaultLogger.With("API")

// statusForCode maps application error codes to HTTP status codes
func statusForCode(code string) int {
	switch code {
	case errors.CodeInvalidInput, errors.CodeValidationError:
		return http.StatusBadRequest
	case errors.CodeNotFound:
		return http.StatusNotFound
	case errors.CodeUnreadableWorkbook, errors.CodeNoRequirementsFound:
		return http.StatusUnprocessableEntity
	case errors.CodeOperationCancelled:
		return http.StatusRequestTimeout
	case errors.CodeExternalService:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := errors.GetCode(err)
	status := statusForCode(code)
	if status >= http.StatusInternalServerError {
		responseLogger.Error("Request failed [%s]: %v", code, err)
	}
	writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"code":  code,
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		responseLogger.Warn("Failed to encode response: %v", err)
	}
}
