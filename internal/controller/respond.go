package controller

import (
	"encoding/json"
	"errors"
	"net/http"

	appErrors "github.com/unclebandit/charityng-backend/internal/errors"
	"github.com/unclebandit/charityng-backend/internal/logger"
)

type errorBody struct {
	Kind    appErrors.Kind    `json:"kind"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.L().WithError(err).Warn("failed to encode response")
	}
}

// writeError maps err to its status code. Internal errors are logged and
// answered without detail.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	body := errorBody{Kind: appErrors.KindInternal, Message: "internal server error"}

	var appErr *appErrors.AppError
	if errors.As(err, &appErr) && appErr.Kind != appErrors.KindInternal {
		body.Kind = appErr.Kind
		body.Message = appErr.Message
		body.Fields = appErr.Fields
		if body.Message == "" {
			body.Message = string(appErr.Kind)
		}
	}

	status := appErrors.HTTPStatus(body.Kind)
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).WithError(err).Error("request failed")
	}
	writeJSON(w, status, map[string]errorBody{"error": body})
}

// decodeJSON reads the request body into v. A malformed body is a
// validation error.
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return appErrors.NewValidation("invalid body", nil)
	}
	return nil
}
