// =============================
// File: internal/engine/errors.go
// =============================
package engine

import (
	"errors"

	"github.com/ektovd/soltrader/internal/jito"
	"github.com/ektovd/soltrader/internal/quote"
	"github.com/ektovd/soltrader/internal/route"
	"github.com/ektovd/soltrader/internal/submit"
)

// The engine's error taxonomy, aliased from the packages that raise them so
// callers can classify with errors.Is against one import.
var (
	ErrRouteNotFound       = route.ErrRouteNotFound
	ErrInsufficientBalance = quote.ErrInsufficientBalance
	ErrInvalidAmount       = quote.ErrInvalidAmount
	ErrNoTipAccounts       = jito.ErrNoTipAccounts
	ErrTipUnavailable      = jito.ErrTipUnavailable
	ErrTransactionRejected = submit.ErrTransactionRejected
	ErrBundleTimeout       = jito.ErrBundleTimeout
	ErrBundleFailed        = jito.ErrBundleFailed
	ErrMalformedResponse   = jito.ErrMalformedResponse
)

// IsClientError reports whether err is the caller's fault (bad input,
// missing funds, unknown token) rather than an upstream failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrRouteNotFound) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrInvalidAmount)
}
