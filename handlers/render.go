// Package handlers holds what the HTTP handlers share: turning domain
// errors into status codes and JSON bodies.
package handlers

import (
	"car-management/core"
	"net/http"

	"github.com/go-chi/render"
	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
)

// StatusOf maps an error kind to an HTTP status.
func StatusOf(err error) int {
	switch {
	case errors.Is(err, core.InvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, core.Unauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, core.NotFound):
		return http.StatusNotFound
	case errors.Is(err, core.AlreadyExists):
		return http.StatusConflict
	case errors.Is(err, core.UploadError):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// RenderError writes err as {"error": "..."}. Client errors carry their
// message; server-side failures are logged and get a generic one.
func RenderError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusOf(err)
	msg := err.Error()
	switch status {
	case http.StatusBadGateway:
		logrus.WithField("path", r.URL.Path).WithError(err).Error("Upload failed")
		msg = "Failed to upload images"
	case http.StatusInternalServerError:
		logrus.WithField("path", r.URL.Path).WithError(err).Error("Request failed")
		msg = "Something went wrong!"
	}
	RenderMessage(w, r, status, msg)
}

// RenderMessage writes {"error": msg} with status.
func RenderMessage(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, map[string]string{"error": msg})
}
