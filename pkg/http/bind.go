package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

var validate = validator.New()

// Bind reads path, query and body into req, applies `default` tags and
// validates it. Failures come back as FieldErrors.
func Bind(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return bindFailure(err)
	}
	if err := defaults.Set(req); err != nil {
		return bindFailure(err)
	}
	if err := validate.StructCtx(c.Request().Context(), req); err != nil {
		return bindFailure(err)
	}
	return nil
}

func bindFailure(err error) FieldErrors {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		out := make(FieldErrors, 0, len(verrs))
		for _, fe := range verrs {
			e := NewError(http.StatusBadRequest, "ERR_"+strings.ToUpper(fe.Tag()), fieldMessage(fe))
			e.Field = fe.Field()
			if p := fe.Param(); p != "" {
				e.Params = map[string]interface{}{fe.Tag(): p}
			}
			out = append(out, e)
		}
		return out
	}

	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg = fmt.Sprint(he.Message)
	}
	return FieldErrors{NewError(http.StatusBadRequest, "ERR_BIND", msg)}
}

var fieldMessages = map[string]string{
	"required": "%s is required",
	"uuid":     "%s must be a task id",
	"oneof":    "%s must be one of: %s",
	"gt":       "%s must be greater than %s",
	"gte":      "%s must be at least %s",
	"lt":       "%s must be less than %s",
	"lte":      "%s must be at most %s",
}

func fieldMessage(fe validator.FieldError) string {
	format, ok := fieldMessages[fe.Tag()]
	if !ok {
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
	if strings.Count(format, "%s") == 1 {
		return fmt.Sprintf(format, fe.Field())
	}
	return fmt.Sprintf(format, fe.Field(), strings.ReplaceAll(fe.Param(), " ", ", "))
}
