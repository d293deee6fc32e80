package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/haatos/multi-ci/internal/service"
	"github.com/labstack/echo/v4"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

func ErrorHandler(err error, c echo.Context) {
	var (
		httpErr      *echo.HTTPError
		validation   service.ValidationError
		notFound     service.NotFoundError
		invalidState service.InvalidStateError
		queueFull    *service.ErrRunQueueFull
	)

	status := http.StatusInternalServerError
	message := "something went terribly wrong"

	switch {
	case errors.As(err, &httpErr):
		status = httpErr.Code
		if msg, ok := httpErr.Message.(string); ok {
			message = msg
		}
	case errors.As(err, &validation):
		status = http.StatusUnprocessableEntity
		message = validation.Message
	case errors.As(err, &notFound):
		status = http.StatusNotFound
		message = notFound.Error()
	case errors.As(err, &invalidState):
		status = http.StatusConflict
		message = invalidState.Message
	case errors.As(err, &queueFull):
		status = http.StatusTooManyRequests
		message = queueFull.Error()
	case isUniqueConstraintError(err):
		status = http.StatusConflict
		message = "conflicting record already exists"
	default:
		log.Printf("handler error %s: %+v\n", c.Request().URL.Path, err)
	}

	if err := c.JSON(status, echo.Map{"message": message}); err != nil {
		log.Printf("err returning json: %+v\n", err)
	}
}

func isUniqueConstraintError(err error) bool {
	var sqErr *sqlite.Error
	if errors.As(err, &sqErr) {
		return sqErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			sqErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}
