package trade

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"aitrader/entity"
	"aitrader/ledger"
	"aitrader/runstate"
)

// PriceSource supplies the executed price for a trade. The executor never
// talks to an exchange directly; fills settle at the quoted price.
type PriceSource interface {
	LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// Executor validates buy/sell intents against the agent's ledger state and
// settles them as new ledger records. The read-check-append sequence runs
// inside the ledger's per-agent lock, so at most one trade is in flight per
// agent even when sessions overlap.
type Executor struct {
	ledger *ledger.Store
	state  *runstate.State
}

func NewExecutor(store *ledger.Store, state *runstate.State) *Executor {
	return &Executor{ledger: store, state: state}
}

func (e *Executor) Execute(
	ctx context.Context,
	agentID, date string,
	side entity.Side,
	symbol string,
	amount decimal.Decimal,
	prices PriceSource,
) (*entity.ExecutionReceipt, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("trade amount must be positive, got %s", amount)
	}
	if side != entity.Buy && side != entity.Sell {
		return nil, fmt.Errorf("unknown trade side %q", side)
	}

	price, err := prices.LastPrice(ctx, symbol)
	if err != nil {
		return nil, &TradeError{
			Kind:   QuoteUnavailable,
			Symbol: symbol,
			Date:   date,
			Detail: "no price quote",
			Err:    err,
		}
	}

	value := amount.Mul(price)
	var receipt *entity.ExecutionReceipt

	seq, err := e.ledger.Apply(agentID, date, func(holdings map[string]decimal.Decimal, _ int64) (entity.PositionRecord, error) {
		next := entity.CloneHoldings(holdings)
		switch side {
		case entity.Buy:
			cash := holdings[entity.CashSymbol]
			if cash.LessThan(value) {
				return entity.PositionRecord{}, &TradeError{
					Kind:   InsufficientFunds,
					Symbol: symbol,
					Date:   date,
					Detail: fmt.Sprintf("need %s, have %s", value, cash),
				}
			}
			next[entity.CashSymbol] = cash.Sub(value)
			next[symbol] = holdings[symbol].Add(amount)
		case entity.Sell:
			held := holdings[symbol]
			if held.LessThan(amount) {
				return entity.PositionRecord{}, &TradeError{
					Kind:   InsufficientHoldings,
					Symbol: symbol,
					Date:   date,
					Detail: fmt.Sprintf("want to sell %s, hold %s", amount, held),
				}
			}
			next[symbol] = held.Sub(amount)
			next[entity.CashSymbol] = holdings[entity.CashSymbol].Add(value)
		}

		action := &entity.TradeAction{
			Side:   side,
			Symbol: symbol,
			Amount: amount,
			Price:  price,
			Value:  value,
		}
		order := &entity.OrderInfo{
			ID:     uuid.NewString(),
			Symbol: symbol,
			Type:   "market",
			Side:   side,
			Amount: amount,
			Price:  price,
			Value:  value,
			Status: "filled",
		}
		record := entity.PositionRecord{
			Date:      date,
			Holdings:  next,
			Action:    action,
			OrderInfo: order,
		}
		receipt = &entity.ExecutionReceipt{
			OrderID:  order.ID,
			Side:     side,
			Symbol:   symbol,
			Amount:   amount,
			Price:    price,
			Value:    value,
			Holdings: entity.CloneHoldings(next),
		}
		return record, nil
	})
	if err != nil {
		return nil, err
	}

	receipt.Sequence = seq
	e.state.MarkTraded()
	return receipt, nil
}
