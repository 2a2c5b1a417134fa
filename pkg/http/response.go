package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// NewAPIResponse builds the envelope without writing it, for non-HTTP transports.
func NewAPIResponse(statusCode int, data interface{}) APIResponse {
	return APIResponse{
		Status:  statusCode,
		Message: http.StatusText(statusCode),
		Data:    data,
	}
}

// DataResponse writes the envelope with statusCode as both HTTP and body status.
func DataResponse(c echo.Context, statusCode int, data interface{}) error {
	return c.JSON(statusCode, NewAPIResponse(statusCode, data))
}

func SuccessResponse(c echo.Context, data interface{}) error {
	return DataResponse(c, http.StatusOK, data)
}

func BadRequestResponse(c echo.Context, data interface{}) error {
	return DataResponse(c, http.StatusBadRequest, data)
}

func InternalServerErrorResponse(c echo.Context) error {
	return DataResponse(c, http.StatusInternalServerError, "Something went wrong")
}

// ErrorEnvelope maps err to the envelope it should be answered with.
func ErrorEnvelope(err error) APIResponse {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return NewAPIResponse(appErr.Status, []*AppError{appErr})
	}
	return NewAPIResponse(http.StatusInternalServerError, "Something went wrong")
}

// AppErrorResponse writes AppErrors with their own status and anything else as a 500.
func AppErrorResponse(c echo.Context, err error) error {
	env := ErrorEnvelope(err)
	return c.JSON(env.Status, env)
}
