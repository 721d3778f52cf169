// Package httpx holds the JSON envelope, request decoding and middleware
// shared by every HTTP handler.
package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/jogardn/dtc-configurator/internal/apperr"
)

const maxBodyBytes = 1 << 20

type ErrorResponse struct {
	Success bool                `json:"success"`
	Kind    apperr.Kind         `json:"kind"`
	Message string              `json:"message"`
	Fields  []apperr.FieldError `json:"fields,omitempty"`
}

func RespondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, `{"success":false,"kind":"internal_error","message":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// RespondWithError writes err as the standard error envelope. Internal
// failures are logged with their cause and reported without it.
func RespondWithError(w http.ResponseWriter, logger logrus.FieldLogger, err error) {
	appErr := apperr.As(err)
	code := apperr.HTTPStatus(appErr.Kind)
	if code >= http.StatusInternalServerError {
		logger.WithError(err).Error("Request failed")
	}
	RespondWithJSON(w, code, ErrorResponse{
		Success: false,
		Kind:    appErr.Kind,
		Message: appErr.Message,
		Fields:  appErr.Fields,
	})
}

// DecodeJSON reads a single JSON object from the request body into v.
func DecodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		switch {
		case errors.Is(err, io.EOF):
			return apperr.Validation(apperr.FieldError{Field: "body", Message: "request body is empty"})
		case errors.As(err, &typeErr) && typeErr.Field != "":
			return apperr.Validation(apperr.FieldError{Field: typeErr.Field, Message: "has the wrong type"})
		case errors.As(err, &syntaxErr):
			return apperr.Validation(apperr.FieldError{Field: "body", Message: "Invalid request body"})
		default:
			return apperr.Validation(apperr.FieldError{Field: "body", Message: "Invalid request body"})
		}
	}
	return nil
}

// BearerToken returns the token from an "Authorization: Bearer ..." header.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
