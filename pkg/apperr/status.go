package apperr

import (
	"errors"
	"net/http"
)

// Status maps an error to the HTTP status code and message shown to
// clients. Unclassified errors are reported as a generic 500.
func Status(err error) (int, string) {
	var (
		validation *ValidationError
		auth       *AuthenticationError
		forbidden  *ForbiddenError
		notFound   *NotFoundError
		transition *InvalidTransitionError
		schedule   *SchedulingPreconditionError
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, validation.Error()
	case errors.As(err, &auth):
		return http.StatusUnauthorized, auth.Error()
	case errors.As(err, &forbidden):
		return http.StatusForbidden, forbidden.Error()
	case errors.As(err, &notFound):
		return http.StatusNotFound, notFound.Error()
	case errors.As(err, &transition):
		return http.StatusConflict, transition.Error()
	case errors.As(err, &schedule):
		return http.StatusUnprocessableEntity, schedule.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
