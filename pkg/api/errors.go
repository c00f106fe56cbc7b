package api

import (
	"context"
	"errors"
	"net/http"

	"campuspay/pkg/account"
	"campuspay/pkg/chat"
	"campuspay/pkg/gateway"
	"campuspay/pkg/payment"
	"campuspay/pkg/store"
)

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, account.ErrValidation),
		errors.Is(err, account.ErrInvalidCredential),
		errors.Is(err, payment.ErrInvalidCredential),
		errors.Is(err, payment.ErrInvalidOptions),
		errors.Is(err, chat.ErrEmptyMessage):
		return http.StatusBadRequest
	case errors.Is(err, account.ErrUnknownAccount):
		return http.StatusUnauthorized
	case errors.Is(err, payment.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, account.ErrAccountExists),
		errors.Is(err, payment.ErrInvalidTransition),
		errors.Is(err, payment.ErrSettlementInProgress):
		return http.StatusConflict
	case errors.Is(err, payment.ErrClosed):
		return http.StatusGone
	case errors.Is(err, payment.ErrCapabilityUnavailable),
		errors.Is(err, gateway.ErrBothUnavailable),
		store.IsUnavailable(err):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": message,
	})
}

func writeErr(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}
