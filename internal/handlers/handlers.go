package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"idlemine/internal/models"
	"idlemine/internal/services"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

const maxBodyBytes = 1 << 16

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]errorBody{"error": {Code: code, Message: message}})
}

// statusFor maps a domain error code to its HTTP status.
func statusFor(code string) int {
	switch code {
	case models.CodeValidation:
		return http.StatusBadRequest
	case models.CodeNotFound:
		return http.StatusNotFound
	case models.CodeInsufficientFunds, models.CodeMaxLevel, models.CodeBelowMinimum,
		models.CodeOnCooldown, models.CodeDisabled, models.CodeConflict:
		return http.StatusConflict
	case models.CodeTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as a JSON error. Anything that is not a domain error is
// logged and reported as internal_error.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, services.ErrBootstrapDenied) {
		respondError(w, http.StatusForbidden, "FORBIDDEN", err.Error())
		return
	}
	var domainErr *models.Error
	if errors.As(err, &domainErr) {
		status := statusFor(domainErr.Code)
		if status != http.StatusInternalServerError {
			respondError(w, status, domainErr.Code, domainErr.Error())
			return
		}
	}
	h.logger.WithFields(logrus.Fields{
		"method":     r.Method,
		"path":       r.URL.Path,
		"request_id": middleware.GetReqID(r.Context()),
	}).WithError(err).Error("request failed")
	respondError(w, http.StatusInternalServerError, "internal_error", "internal error")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dest any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return models.ErrValidation.WithMessage("invalid payload: %v", err)
	}
	return nil
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, models.ErrValidation.WithMessage("invalid payload: %v", err)
	}
	return body, nil
}
