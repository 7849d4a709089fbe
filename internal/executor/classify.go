package executor

import (
	"errors"
	"strings"

	"github.com/tng25/lino/internal/domain"
	"github.com/tng25/lino/internal/jupiter"
)

// Classify maps an error from the quote/swap/send/confirm path onto the
// closed outcome set. This is the only place raw error text is inspected;
// everything downstream branches on the outcome kind.
func Classify(err error) domain.ExecOutcome {
	if err == nil {
		return domain.ExecSent
	}

	if errors.Is(err, domain.ErrRateLimited) {
		return domain.ExecRateLimited
	}
	if errors.Is(err, domain.ErrNoRoute) {
		return domain.ExecRouteFail
	}

	var apiErr *jupiter.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Status == 429 {
			return domain.ExecRateLimited
		}
		switch apiErr.Code {
		case "COULD_NOT_FIND_ANY_ROUTE", "TOKEN_NOT_TRADABLE", "ROUTE_PLAN_DOES_NOT_CONSUME_ALL_THE_AMOUNT":
			return domain.ExecRouteFail
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "too many requests") ||
		strings.Contains(msg, "rate limit"):
		return domain.ExecRateLimited

	case strings.Contains(msg, "insufficient funds") ||
		strings.Contains(msg, "insufficient lamports") ||
		strings.Contains(msg, "insufficientfundsforrent"):
		return domain.ExecInsufficientFunds

	// Aggregator program errors for amounts below the tradeable minimum.
	case strings.Contains(msg, "0x1788"):
		return domain.ExecDustUntradeable

	case strings.Contains(msg, "no route") ||
		strings.Contains(msg, "could not find any route") ||
		strings.Contains(msg, "not tradable") ||
		strings.Contains(msg, "custom program error: 6024") ||
		strings.Contains(msg, "custom program error: 6025"):
		return domain.ExecRouteFail
	}

	return domain.ExecFailed
}
