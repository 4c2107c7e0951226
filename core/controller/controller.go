package controller

import (
	stdErrors "errors"
	"net/http"

	"calendar-aggregator/core/errors"
	"calendar-aggregator/core/logger"

	"github.com/labstack/echo/v4"
)

// ErrorResponse is the failure envelope every endpoint returns.
type ErrorResponse struct {
	OK      bool             `json:"ok"`
	Code    errors.ErrorCode `json:"code,omitempty"`
	Message string           `json:"message"`
}

type BaseController interface {
	BadRequest(appErrCode errors.ErrorCode, message string) *echo.HTTPError
	Unauthorized(appErrCode errors.ErrorCode, message string) *echo.HTTPError
	NotFound(appErrCode errors.ErrorCode, message string) *echo.HTTPError
	InternalServerError(appErrCode errors.ErrorCode, message string) *echo.HTTPError
	SuccessResponse(c echo.Context, data any) error
	ErrorResponse(c echo.Context, err error) error
}

type responseHandler struct{}

func NewBaseController() BaseController {
	return &responseHandler{}
}

func NewErrorResponse(httpStatusCode int, appErrCode errors.ErrorCode, message string) *echo.HTTPError {
	return echo.NewHTTPError(httpStatusCode, &ErrorResponse{
		OK:      false,
		Code:    appErrCode,
		Message: message,
	})
}

func (h *responseHandler) BadRequest(appErrCode errors.ErrorCode, message string) *echo.HTTPError {
	return NewErrorResponse(http.StatusBadRequest, appErrCode, message)
}

func (h *responseHandler) Unauthorized(appErrCode errors.ErrorCode, message string) *echo.HTTPError {
	return NewErrorResponse(http.StatusUnauthorized, appErrCode, message)
}

func (h *responseHandler) NotFound(appErrCode errors.ErrorCode, message string) *echo.HTTPError {
	return NewErrorResponse(http.StatusNotFound, appErrCode, message)
}

func (h *responseHandler) InternalServerError(appErrCode errors.ErrorCode, message string) *echo.HTTPError {
	return NewErrorResponse(http.StatusInternalServerError, appErrCode, message)
}

// SuccessResponse writes data as-is with 200. Payloads carry their own ok flag.
func (h *responseHandler) SuccessResponse(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, data)
}

func (h *responseHandler) ErrorResponse(c echo.Context, err error) error {
	httpStatus, resp := ToErrorResponse(err)
	logger.Error("BaseController:ErrorResponse",
		"status", httpStatus,
		"code", resp.Code,
		"message", resp.Message,
		"error", err,
	)
	return c.JSON(httpStatus, resp)
}

// StatusFor maps an application error code to its HTTP status.
func StatusFor(code errors.ErrorCode) int {
	switch code {
	case errors.ErrInvalidInput, errors.ErrInvalidRequestData:
		return http.StatusBadRequest
	case errors.ErrUnauthorized, errors.ErrTokenExpired, errors.ErrInvalidTokenFormat, errors.ErrMissingAuthorizationHeader:
		return http.StatusUnauthorized
	case errors.ErrForbidden:
		return http.StatusForbidden
	case errors.ErrNotFound:
		return http.StatusNotFound
	case errors.ErrAlreadyExists:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// ToErrorResponse converts any error into a status and envelope. Internal
// errors never leak their text.
func ToErrorResponse(err error) (int, *ErrorResponse) {
	var ae *errors.AppError
	if stdErrors.As(err, &ae) && ae != nil {
		status := StatusFor(ae.Code)
		msg := ae.Message
		if msg == "" || status == http.StatusInternalServerError {
			msg = "Internal server error"
		}
		return status, &ErrorResponse{OK: false, Code: ae.Code, Message: msg}
	}
	return http.StatusInternalServerError, &ErrorResponse{
		OK:      false,
		Code:    errors.ErrInternalServer,
		Message: "Internal server error",
	}
}

// HTTPErrorHandler renders echo errors (including ones raised by
// NewErrorResponse and unknown routes) with the standard envelope.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	var resp *ErrorResponse

	var he *echo.HTTPError
	if stdErrors.As(err, &he) {
		status = he.Code
		switch m := he.Message.(type) {
		case *ErrorResponse:
			resp = m
		case string:
			resp = &ErrorResponse{OK: false, Message: m}
		default:
			resp = &ErrorResponse{OK: false, Message: http.StatusText(status)}
		}
	} else {
		status, resp = ToErrorResponse(err)
	}

	if status >= http.StatusInternalServerError {
		logger.Error("HTTPErrorHandler:Error", "path", c.Path(), "status", status, "error", err)
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(status)
		return
	}
	_ = c.JSON(status, resp)
}
