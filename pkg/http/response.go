package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// APIResponse is the envelope of every API reply.
type APIResponse struct {
	Status  int         `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ListDataResponse is a page of rows and the number of rows that matched.
type ListDataResponse struct {
	Rows  interface{} `json:"rows"`
	Total int64       `json:"total"`
}

// JSON writes data in the envelope with status.
func JSON(c echo.Context, status int, data interface{}) error {
	return c.JSON(status, APIResponse{
		Status:  status,
		Message: http.StatusText(status),
		Data:    data,
	})
}

func OK(c echo.Context, data interface{}) error {
	return JSON(c, http.StatusOK, data)
}

func List(c echo.Context, rows interface{}, total int64) error {
	return OK(c, &ListDataResponse{Rows: rows, Total: total})
}

// Fail writes err. FieldErrors and *Error keep their status and detail;
// anything else becomes a bare 500.
func Fail(c echo.Context, err error) error {
	var fe FieldErrors
	if errors.As(err, &fe) {
		return JSON(c, http.StatusBadRequest, fe)
	}
	var ae *Error
	if errors.As(err, &ae) {
		return JSON(c, ae.Status, []*Error{ae})
	}
	return JSON(c, http.StatusInternalServerError, "internal error")
}
