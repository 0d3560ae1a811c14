package entity

import (
	"github.com/shopspring/decimal"
)

// CashSymbol is the reserved holdings key for the quote currency.
const CashSymbol = "CASH"

type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// TradeAction describes the trade that produced a ledger record.
type TradeAction struct {
	Side   Side            `json:"side"`
	Symbol string          `json:"symbol"`
	Amount decimal.Decimal `json:"amount"`
	Price  decimal.Decimal `json:"price"`
	// Value is the cost of a buy or the proceeds of a sell (amount * price).
	Value decimal.Decimal `json:"cost_or_proceeds"`
}

// OrderInfo is the opaque receipt attached by the trade executor.
type OrderInfo struct {
	ID     string          `json:"id"`
	Symbol string          `json:"symbol"`
	Type   string          `json:"type"`
	Side   Side            `json:"side"`
	Amount decimal.Decimal `json:"amount"`
	Price  decimal.Decimal `json:"price"`
	Value  decimal.Decimal `json:"cost"`
	Status string          `json:"status"`
}

// PositionRecord is one immutable entry in an agent's position ledger.
// Sequence is assigned by the ledger store at append time, never by callers.
type PositionRecord struct {
	Date      string                     `json:"date"`
	Sequence  int64                      `json:"sequence_id"`
	Holdings  map[string]decimal.Decimal `json:"holdings"`
	Action    *TradeAction               `json:"action,omitempty"`
	OrderInfo *OrderInfo                 `json:"order_info,omitempty"`
}

// ExecutionReceipt is returned by the trade executor after a settled trade.
type ExecutionReceipt struct {
	Sequence int64                      `json:"sequence_id"`
	OrderID  string                     `json:"order_id"`
	Side     Side                       `json:"side"`
	Symbol   string                     `json:"symbol"`
	Amount   decimal.Decimal            `json:"amount"`
	Price    decimal.Decimal            `json:"price"`
	Value    decimal.Decimal            `json:"cost_or_proceeds"`
	Holdings map[string]decimal.Decimal `json:"new_holdings"`
}

// CloneHoldings returns a copy of a holdings map so ledger records stay immutable.
func CloneHoldings(holdings map[string]decimal.Decimal) map[string]decimal.Decimal {
	clone := make(map[string]decimal.Decimal, len(holdings))
	for symbol, qty := range holdings {
		clone[symbol] = qty
	}
	return clone
}
