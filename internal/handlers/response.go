package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/omega-realm/economy/internal/apperr"
	"github.com/omega-realm/economy/internal/middleware"
)

// maxBodyBytes bounds request bodies
const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	if errors.Is(err, apperr.ErrInsufficientFunds) {
		return http.StatusPaymentRequired
	}
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict, apperr.KindStoreConflict:
		return http.StatusConflict
	case apperr.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	body := middleware.ErrorResponse{
		Error:     apperr.PublicMessage(err),
		Code:      apperr.CodeOf(err),
		Retryable: apperr.Retryable(err),
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		body.Field = appErr.Field
	}
	middleware.WriteError(w, statusFor(err), body)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Validation("body", "request body is required")
		}
		return apperr.Validation("body", "Invalid request body")
	}
	return nil
}

func parseID(raw, field string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperr.Validation(field, field+" must be a valid id")
	}
	return id, nil
}

// caller returns the authenticated account id. RequireAuth guarantees the
// claims are present on every route that calls it.
func caller(r *http.Request) (uuid.UUID, bool) {
	claims, ok := middleware.GetUserClaims(r)
	if !ok {
		return uuid.Nil, false
	}
	return claims.AccountID, true
}

func unauthorized(w http.ResponseWriter) {
	middleware.WriteError(w, http.StatusUnauthorized, middleware.ErrorResponse{Error: "Unauthorized", Code: "unauthorized"})
}

// logIfInternal records failures the caller cannot act on.
func logIfInternal(log logrus.FieldLogger, r *http.Request, err error) {
	if statusFor(err) >= http.StatusInternalServerError {
		log.WithError(err).WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("request failed")
	}
}
