package handler

import (
	"net/http"

	"github.com/go-chi/render"

	"github.com/dtroode/account-server/internal/apierror"
	"github.com/dtroode/account-server/internal/logger"
	"github.com/dtroode/account-server/internal/model"
)

// Response is the JSON envelope of every endpoint.
type Response struct {
	Success bool           `json:"success"`
	Message string         `json:"message,omitempty"`
	Email   string         `json:"email,omitempty"`
	User    *model.Profile `json:"user,omitempty"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, resp Response) {
	render.Status(r, status)
	render.JSON(w, r, resp)
}

// WriteError translates err into its status code and a failure envelope.
// Internal causes are logged and replaced by a generic message.
func WriteError(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error) {
	apiErr := apierror.From(err)
	status := apiErr.HTTPStatus()

	if status >= http.StatusInternalServerError {
		log.Error("HTTP handler: request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err.Error())
	} else {
		log.Debug("HTTP handler: request rejected",
			"method", r.Method,
			"path", r.URL.Path,
			"kind", string(apiErr.Kind),
			"message", apiErr.Message)
	}

	writeJSON(w, r, status, Response{Success: false, Message: apiErr.Message})
}
