package binance

import (
	"fmt"

	"scalp-trading-bot/internal/interfaces"
)

// Exchange error codes the engine needs to recognize.
const (
	codeMarginModeNoChange = -4046 // margin type already set
	codeReduceOnlyRejected = -2022 // reduce-only order rejected: nothing left to close
	codeLeverageNoChange   = -4028 // leverage already at requested value
)

// APIError is a structured error returned by the exchange REST API.
type APIError struct {
	Code    int64  `json:"code"`
	Message string `json:"msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("binance api error %d: %s", e.Code, e.Message)
}

// Is lets errors.Is match the gateway-level sentinels, so callers never need
// to know exchange error codes.
func (e *APIError) Is(target error) bool {
	return target == interfaces.ErrPositionMissing && e.Code == codeReduceOnlyRejected
}
