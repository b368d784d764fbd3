package httpapi

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"examination/internal/exam"
)

// Envelope is the shared response shape for every endpoint.
type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message"`
	Errors  interface{} `json:"errors,omitempty"`
}

func respond(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, Envelope{Success: true, Data: data, Message: message})
}

func fail(c *gin.Context, status int, message string, errs interface{}) {
	c.AbortWithStatusJSON(status, Envelope{Success: false, Message: message, Errors: errs})
}

// failDomain maps domain errors to HTTP statuses. Unknown errors are logged
// with context and surfaced as a generic 500; store error details never
// cross the boundary.
func failDomain(c *gin.Context, err error) {
	switch {
	case errors.Is(err, exam.ErrExamNotFound),
		errors.Is(err, exam.ErrAttemptNotFound),
		errors.Is(err, exam.ErrResultNotFound),
		errors.Is(err, exam.ErrUserNotFound):
		fail(c, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, exam.ErrDuplicateUser):
		fail(c, http.StatusConflict, err.Error(), nil)
	case errors.Is(err, exam.ErrAlreadyAttempted),
		errors.Is(err, exam.ErrAlreadyCompleted):
		var errs interface{}
		if ce, ok := exam.AsConflict(err); ok && ce.ExistingID != "" {
			errs = gin.H{"existing_id": ce.ExistingID}
		}
		var reason string
		if errors.Is(err, exam.ErrAlreadyAttempted) {
			reason = "already attempted"
		} else {
			reason = "already completed"
		}
		fail(c, http.StatusConflict, reason, errs)
	case errors.Is(err, exam.ErrExamInactive),
		errors.Is(err, exam.ErrExamNotStarted),
		errors.Is(err, exam.ErrExamClosed):
		fail(c, http.StatusConflict, err.Error(), nil)
	case errors.Is(err, exam.ErrNotAttemptOwner):
		fail(c, http.StatusForbidden, "not allowed", nil)
	default:
		log.Printf("%s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
		fail(c, http.StatusInternalServerError, "internal error", nil)
	}
}
