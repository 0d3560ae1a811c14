package trade

import "fmt"

type ErrorKind string

const (
	InsufficientFunds    ErrorKind = "insufficient_funds"
	InsufficientHoldings ErrorKind = "insufficient_holdings"
	QuoteUnavailable     ErrorKind = "quote_unavailable"
)

// TradeError is a structured, recoverable trade failure. The session loop
// feeds it back to the decision collaborator as data instead of aborting.
type TradeError struct {
	Kind   ErrorKind
	Symbol string
	Date   string
	Detail string
	Err    error
}

func (e *TradeError) Error() string {
	msg := fmt.Sprintf("%s: %s (%s, %s)", e.Kind, e.Detail, e.Symbol, e.Date)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TradeError) Unwrap() error {
	return e.Err
}
