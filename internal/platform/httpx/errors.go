package httpx

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/pharmacore/pharmacore/internal/shared"
)

// RespondError maps the domain error taxonomy to HTTP responses.
func RespondError(w http.ResponseWriter, err error) {
	var validationErr *shared.ValidationError
	var notFoundErr *shared.NotFoundError
	var stockErr *shared.InsufficientStockError

	switch {
	case errors.As(err, &validationErr):
		JSON(w, http.StatusBadRequest, ProblemDetail{
			Title:  "Validation Failed",
			Status: http.StatusBadRequest,
			Detail: validationErr.Message,
			Field:  validationErr.Field,
		})
	case errors.As(err, &notFoundErr):
		Problem(w, http.StatusNotFound, "Not Found", notFoundErr.Error())
	case errors.As(err, &stockErr):
		available := stockErr.Available
		JSON(w, http.StatusUnprocessableEntity, ProblemDetail{
			Title:     "Insufficient Stock",
			Status:    http.StatusUnprocessableEntity,
			Detail:    fmt.Sprintf("Only %d units available", available),
			Available: &available,
		})
	case errors.Is(err, shared.ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", "movement could not be serialized, retry")
	case errors.Is(err, shared.ErrIdempotencyConflict):
		Problem(w, http.StatusConflict, "Duplicate", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
