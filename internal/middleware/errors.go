package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	apperrors "tourbook/internal/errors"
	"tourbook/internal/logger"
)

const internalMessage = "Internal server error"

type ErrorResponse struct {
	Status  string                 `json:"status"`
	Message string                 `json:"message"`
	Errors  []apperrors.FieldError `json:"errors,omitempty"`
	ErrorID string                 `json:"errorId,omitempty"`
	Stack   []string               `json:"stack,omitempty"`
}

// ErrorHandler renders the last error attached with c.Error. debug adds an
// error id and the cause chain to the body.
func ErrorHandler(debug bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		status, body := Render(c.Request.Context(), c.Errors.Last().Err, debug)
		c.JSON(status, body)
	}
}

// Render maps err onto an HTTP status and error body.
func Render(ctx context.Context, err error, debug bool) (int, ErrorResponse) {
	appErr := classify(err)
	status := appErr.Kind.HTTPStatus()

	body := ErrorResponse{
		Status:  "error",
		Message: appErr.Message,
		Errors:  appErr.Details,
	}

	if debug {
		body.ErrorID = uuid.New().String()
		body.Stack = causes(err)
	}

	log := logger.WithContext(ctx)
	if appErr.Kind == apperrors.KindInternal || appErr.Kind == apperrors.KindGateway {
		log.Error("Request failed", "error", err, "kind", appErr.Kind.String(), "error_id", body.ErrorID)
	} else {
		log.Debug("Request rejected", "error", err, "kind", appErr.Kind.String())
	}

	if appErr.Kind == apperrors.KindInternal && !debug {
		body.Message = internalMessage
	}

	return status, body
}

func classify(err error) *apperrors.Error {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		details := make([]apperrors.FieldError, 0, len(verrs))
		for _, fe := range verrs {
			details = append(details, apperrors.FieldError{Field: fe.Field(), Message: fieldMessage(fe)})
		}
		return apperrors.Validation("Validation failed", details...)
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &typeErr):
		return apperrors.Validation("Invalid request body",
			apperrors.FieldError{Field: typeErr.Field, Message: "must be a " + typeErr.Type.String()})
	case errors.As(err, &syntaxErr), errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return apperrors.Wrap(apperrors.KindBadRequest, err, "Invalid request body")
	}

	return apperrors.Wrap(apperrors.KindInternal, err, internalMessage)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte", "min":
		if fe.Kind() == reflect.String {
			return "must be at least " + fe.Param() + " characters"
		}
		return "must be at least " + fe.Param()
	case "max":
		if fe.Kind() == reflect.String {
			return "must be at most " + fe.Param() + " characters"
		}
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of " + fe.Param()
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

func causes(err error) []string {
	var out []string
	for ; err != nil; err = errors.Unwrap(err) {
		out = append(out, err.Error())
	}
	return out
}

// UseJSONFieldNames makes validation errors report json field names.
func UseJSONFieldNames() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
}
