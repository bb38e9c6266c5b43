package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/waypoint-social/waypoint/libs/domain"
)

func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// WriteError maps a domain error code onto an HTTP status. Internal and
// infrastructure failures hide their detail behind a generic message.
func WriteError(w http.ResponseWriter, err error) {
	code := domain.CodeOf(err)
	status := statusFor(code)

	message := "internal error"
	var de *domain.Error
	if errors.As(err, &de) && code != domain.CodeInfrastructure && code != domain.CodeInternal {
		message = de.Message
	}

	WriteJSON(w, status, map[string]string{
		"code":  string(code),
		"error": message,
	})
}

func statusFor(code domain.Code) int {
	switch code {
	case domain.CodeValidation:
		return http.StatusBadRequest
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeAlreadyExists, domain.CodeConcurrencyConflict:
		return http.StatusConflict
	case domain.CodeUnauthorized:
		return http.StatusUnauthorized
	case domain.CodeForbidden:
		return http.StatusForbidden
	case domain.CodeTooManyConflicts, domain.CodeInfrastructure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
