package rpc

import (
	"errors"
	"net/http"

	nativecommon "subledger/native/common"
	"subledger/native/market"
	"subledger/oracle"
)

// mapError converts a ledger error into an HTTP status and JSON-RPC error.
func mapError(err error) (int, *RPCError) {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		if rpcErr.Code == codeInvalidParams {
			return http.StatusBadRequest, rpcErr
		}
		return http.StatusInternalServerError, rpcErr
	}

	var deposit *market.InsufficientDepositError
	if errors.As(err, &deposit) {
		return http.StatusUnprocessableEntity, &RPCError{Code: codeRejected, Message: err.Error(), Data: map[string]string{
			"current":  amountString(deposit.Current),
			"required": amountString(deposit.Required),
			"unit":     deposit.Unit,
		}}
	}
	var fee *market.FeeBelowMinimumError
	if errors.As(err, &fee) {
		return http.StatusUnprocessableEntity, &RPCError{Code: codeRejected, Message: err.Error(), Data: map[string]string{
			"value":   amountString(fee.Value),
			"minimum": amountString(fee.Minimum),
		}}
	}
	var debt *market.AmountExceedsDebtError
	if errors.As(err, &debt) {
		return http.StatusUnprocessableEntity, &RPCError{Code: codeRejected, Message: err.Error(), Data: map[string]string{
			"amount": amountString(debt.Amount),
			"owed":   amountString(debt.Owed),
		}}
	}

	switch {
	case errors.Is(err, market.ErrNotFound):
		return http.StatusNotFound, &RPCError{Code: codeNotFound, Message: err.Error()}
	case errors.Is(err, market.ErrNotOwner), errors.Is(err, market.ErrNotAdmin):
		return http.StatusForbidden, &RPCError{Code: codeForbidden, Message: err.Error()}
	case errors.Is(err, nativecommon.ErrModulePaused):
		return http.StatusServiceUnavailable, &RPCError{Code: codeModulePaused, Message: err.Error()}
	case errors.Is(err, market.ErrAlreadyExists),
		errors.Is(err, market.ErrAlreadySubscribed),
		errors.Is(err, market.ErrSubscriptionPaused),
		errors.Is(err, market.ErrCapacityExceeded),
		errors.Is(err, market.ErrProviderInactive),
		errors.Is(err, nativecommon.ErrReentrantCall):
		return http.StatusConflict, &RPCError{Code: codeConflict, Message: err.Error()}
	case errors.Is(err, market.ErrZeroOwner),
		errors.Is(err, market.ErrInvalidID),
		errors.Is(err, market.ErrZeroAmount),
		errors.Is(err, market.ErrInvalidAmount),
		errors.Is(err, market.ErrInvalidFee),
		errors.Is(err, market.ErrInvalidParams):
		return http.StatusBadRequest, &RPCError{Code: codeInvalidParams, Message: err.Error()}
	case errors.Is(err, market.ErrNothingToWithdraw),
		errors.Is(err, market.ErrAssetTransferFailed):
		return http.StatusUnprocessableEntity, &RPCError{Code: codeRejected, Message: err.Error()}
	case errors.Is(err, oracle.ErrFeedUnavailable),
		errors.Is(err, oracle.ErrInvalidAssetMetadata),
		errors.Is(err, oracle.ErrZeroAmount):
		return http.StatusBadGateway, &RPCError{Code: codeOracle, Message: err.Error()}
	default:
		return http.StatusInternalServerError, &RPCError{Code: codeServerError, Message: err.Error()}
	}
}
