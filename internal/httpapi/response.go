package httpapi

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/MrEthical07/phoneauth"
)

type apiError struct {
	Code              string `json:"code"`
	Message           string `json:"message"`
	AttemptsRemaining *int   `json:"attempts_remaining,omitempty"`
	RetryAfterSeconds int    `json:"retry_after_seconds,omitempty"`
}

type errorResponse struct {
	Error     apiError `json:"error"`
	RequestID string   `json:"request_id,omitempty"`
}

type dataResponse struct {
	Data any `json:"data,omitempty"`
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind phoneauth.Kind) int {
	switch kind {
	case phoneauth.KindNone:
		return http.StatusOK
	case phoneauth.KindInputInvalid:
		return http.StatusBadRequest
	case phoneauth.KindRateLimited:
		return http.StatusTooManyRequests
	case phoneauth.KindProviderUnavailable:
		return http.StatusServiceUnavailable
	case phoneauth.KindChallengeInvalid:
		return http.StatusUnprocessableEntity
	case phoneauth.KindConflict:
		return http.StatusConflict
	case phoneauth.KindStateViolation:
		return http.StatusPreconditionFailed
	case phoneauth.KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(c echo.Context, status int, data any) error {
	return c.JSON(status, dataResponse{Data: data})
}

func writeError(c echo.Context, err error) error {
	kind := phoneauth.KindOf(err)
	body := apiError{Code: kind.String(), Message: phoneauth.ErrInternal.Error()}

	var pub *phoneauth.Error
	if errors.As(err, &pub) {
		body.Message = pub.Error()
		if pub.Kind == phoneauth.KindChallengeInvalid && errors.Is(err, phoneauth.ErrInvalidCode) {
			n := pub.AttemptsRemaining
			body.AttemptsRemaining = &n
		}
		if pub.RetryAfter > 0 {
			secs := int(math.Ceil(pub.RetryAfter.Seconds()))
			body.RetryAfterSeconds = secs
			c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
		}
	}
	return c.JSON(StatusFor(kind), errorResponse{Error: body, RequestID: requestID(c)})
}

func badPayload(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, errorResponse{
		Error:     apiError{Code: phoneauth.KindInputInvalid.String(), Message: "invalid payload"},
		RequestID: requestID(c),
	})
}

func requestID(c echo.Context) string {
	if id := c.Response().Header().Get(echo.HeaderXRequestID); id != "" {
		return id
	}
	return c.Request().Header.Get(echo.HeaderXRequestID)
}
