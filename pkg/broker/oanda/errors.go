package oanda

import (
	"errors"
	"fmt"
	"strings"
)

// Cause is the coarse classification of a broker failure.
type Cause string

const (
	CauseMarketHalted   Cause = "market_halted"
	CauseUnauthorized   Cause = "unauthorized"
	CauseMarginCloseout Cause = "margin_closeout"
	CauseUnknown        Cause = "unknown"
)

// Error is a typed OANDA API failure carrying the HTTP status, the broker
// error code and a classified cause.
type Error struct {
	Status  int
	Code    string
	Message string
	Cause   Cause
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("oanda: %s (%s, status %d)", e.Message, e.Code, e.Status)
	}
	return fmt.Sprintf("oanda: %s (status %d)", e.Message, e.Status)
}

// CauseOf extracts the classified cause from an error chain. Non-broker
// errors map to CauseUnknown.
func CauseOf(err error) Cause {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Cause
	}
	return CauseUnknown
}

// classifyCause maps an OANDA error code (or order reject reason) to a
// Cause. Codes are matched first; the message matching below is a
// best-effort fallback for responses that carry no usable code and is
// intentionally confined to this function.
func classifyCause(code, message string) Cause {
	switch code {
	case "MARKET_HALTED", "INSTRUMENT_NOT_TRADEABLE", "MARKET_ORDER_REJECT":
		return CauseMarketHalted
	case "INSUFFICIENT_AUTHORIZATION", "UNAUTHORIZED_REQUEST", "INVALID_AUTHENTICATION_TOKEN":
		return CauseUnauthorized
	case "MARGIN_CLOSEOUT_POSITION_REJECT", "INSUFFICIENT_MARGIN":
		return CauseMarginCloseout
	}

	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "halted"), strings.Contains(lower, "not tradeable"):
		return CauseMarketHalted
	case strings.Contains(lower, "authorization"), strings.Contains(lower, "authentication"):
		return CauseUnauthorized
	case strings.Contains(lower, "closeout"):
		return CauseMarginCloseout
	}
	return CauseUnknown
}

func newAPIError(status int, code, message string) *Error {
	if message == "" {
		message = "request failed"
	}
	return &Error{
		Status:  status,
		Code:    code,
		Message: message,
		Cause:   classifyCause(code, message),
	}
}
