package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	json "github.com/bytedance/sonic"
	"github.com/shopspring/decimal"

	"aitrader/entity"
	"aitrader/market"
	"aitrader/runstate"
	"aitrader/trade"
	"aitrader/utils"
)

// ToolSet is the closed registry of tool collaborators the decision function
// may invoke: order execution against the trade executor plus read-only
// market data. Tool failures never propagate as errors; they come back as
// descriptive result text the model can react to.
type ToolSet struct {
	agentID     string
	state       *runstate.State
	executor    *trade.Executor
	source      market.Source
	descriptors []entity.ToolDescriptor
	handlers    map[string]func(ctx context.Context, args string) (string, error)
}

type tradeArgs struct {
	Symbol string  `json:"symbol"`
	Amount float64 `json:"amount"`
}

type symbolArgs struct {
	Symbol string `json:"symbol"`
}

type symbolsArgs struct {
	Symbols []string `json:"symbols"`
}

type candleArgs struct {
	Symbol   string `json:"symbol"`
	Interval string `json:"interval"`
	Limit    int    `json:"limit"`
}

type bookArgs struct {
	Symbol string `json:"symbol"`
	Depth  int    `json:"depth"`
}

func NewToolSet(agentID string, state *runstate.State, executor *trade.Executor, source market.Source) *ToolSet {
	ts := &ToolSet{
		agentID:  agentID,
		state:    state,
		executor: executor,
		source:   source,
		handlers: make(map[string]func(ctx context.Context, args string) (string, error)),
	}

	symbolParam := map[string]any{"type": "string", "description": "Asset symbol, e.g. BTC"}

	ts.register(entity.ToolDescriptor{
		Name:        "buy",
		Description: "Buy an amount of an asset at the current market price using available CASH.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"symbol": symbolParam,
				"amount": map[string]any{"type": "number", "description": "Base-asset quantity to buy"},
			},
			"required": []string{"symbol", "amount"},
		},
	}, ts.handleBuy)

	ts.register(entity.ToolDescriptor{
		Name:        "sell",
		Description: "Sell an amount of a held asset at the current market price for CASH.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"symbol": symbolParam,
				"amount": map[string]any{"type": "number", "description": "Base-asset quantity to sell"},
			},
			"required": []string{"symbol", "amount"},
		},
	}, ts.handleSell)

	ts.register(entity.ToolDescriptor{
		Name:        "get_price",
		Description: "Get the current market price for one asset.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"symbol": symbolParam},
			"required":   []string{"symbol"},
		},
	}, ts.handlePrice)

	ts.register(entity.ToolDescriptor{
		Name:        "get_prices",
		Description: "Get current market prices for several assets at once.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"symbols": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			},
			"required": []string{"symbols"},
		},
	}, ts.handlePrices)

	ts.register(entity.ToolDescriptor{
		Name:        "get_candles",
		Description: "Get recent OHLCV candles for an asset.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"symbol":   symbolParam,
				"interval": map[string]any{"type": "string", "description": "Candle interval such as 1h or 1d", "default": "1d"},
				"limit":    map[string]any{"type": "integer", "default": 30},
			},
			"required": []string{"symbol"},
		},
	}, ts.handleCandles)

	ts.register(entity.ToolDescriptor{
		Name:        "get_order_book",
		Description: "Get the current order book for an asset.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"symbol": symbolParam,
				"depth":  map[string]any{"type": "integer", "default": 10},
			},
			"required": []string{"symbol"},
		},
	}, ts.handleBook)

	return ts
}

func (ts *ToolSet) register(desc entity.ToolDescriptor, handler func(ctx context.Context, args string) (string, error)) {
	ts.descriptors = append(ts.descriptors, desc)
	ts.handlers[desc.Name] = handler
}

func (ts *ToolSet) Descriptors() []entity.ToolDescriptor {
	return ts.descriptors
}

// Dispatch forwards each invocation to its handler and concatenates the
// results. Unknown tools and handler failures become result text, so the
// session loop can feed them back to the model instead of crashing.
func (ts *ToolSet) Dispatch(ctx context.Context, calls []entity.ToolInvocation) string {
	if len(calls) == 0 {
		return "(no tools invoked)"
	}
	results := make([]string, 0, len(calls))
	for _, call := range calls {
		handler, ok := ts.handlers[call.Name]
		if !ok {
			results = append(results, fmt.Sprintf("%s: %s", call.Name, errorResult(fmt.Errorf("unknown tool %q", call.Name))))
			continue
		}
		result, err := handler(ctx, call.Arguments)
		if err != nil {
			result = errorResult(err)
		}
		results = append(results, fmt.Sprintf("%s: %s", call.Name, result))
	}
	return strings.Join(results, "\n")
}

// errorResult renders a failure as a JSON error object. Trade errors keep
// their structured fields so the model sees what was wrong.
func errorResult(err error) string {
	payload := map[string]any{"error": err.Error()}
	var tradeErr *trade.TradeError
	if errors.As(err, &tradeErr) {
		payload["kind"] = string(tradeErr.Kind)
		payload["symbol"] = tradeErr.Symbol
		payload["date"] = tradeErr.Date
	}
	data, mErr := json.Marshal(payload)
	if mErr != nil {
		return fmt.Sprintf(`{"error":%q}`, err.Error())
	}
	return string(data)
}

func marshalResult(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode tool result: %w", err)
	}
	return string(data), nil
}

func (ts *ToolSet) handleBuy(ctx context.Context, raw string) (string, error) {
	return ts.handleTrade(ctx, raw, entity.Buy)
}

func (ts *ToolSet) handleSell(ctx context.Context, raw string) (string, error) {
	return ts.handleTrade(ctx, raw, entity.Sell)
}

func (ts *ToolSet) handleTrade(ctx context.Context, raw string, side entity.Side) (string, error) {
	args, err := utils.ParseLoose[tradeArgs](raw)
	if err != nil {
		return "", err
	}
	receipt, err := ts.executor.Execute(ctx, ts.agentID, ts.state.Today(),
		side, strings.ToUpper(args.Symbol), decimal.NewFromFloat(args.Amount), ts.source)
	if err != nil {
		return "", err
	}
	return marshalResult(receipt)
}

func (ts *ToolSet) handlePrice(ctx context.Context, raw string) (string, error) {
	args, err := utils.ParseLoose[symbolArgs](raw)
	if err != nil {
		return "", err
	}
	quote, err := ts.source.Quote(ctx, strings.ToUpper(args.Symbol))
	if err != nil {
		return "", err
	}
	return marshalResult(quote)
}

func (ts *ToolSet) handlePrices(ctx context.Context, raw string) (string, error) {
	args, err := utils.ParseLoose[symbolsArgs](raw)
	if err != nil {
		return "", err
	}
	quotes, err := ts.source.Quotes(ctx, args.Symbols)
	if err != nil {
		return "", err
	}
	return marshalResult(quotes)
}

func (ts *ToolSet) handleCandles(ctx context.Context, raw string) (string, error) {
	args, err := utils.ParseLoose[candleArgs](raw)
	if err != nil {
		return "", err
	}
	if args.Limit <= 0 {
		args.Limit = 30
	}
	candles, err := ts.source.Candles(ctx, strings.ToUpper(args.Symbol), args.Interval, args.Limit)
	if err != nil {
		return "", err
	}
	return marshalResult(candles)
}

func (ts *ToolSet) handleBook(ctx context.Context, raw string) (string, error) {
	args, err := utils.ParseLoose[bookArgs](raw)
	if err != nil {
		return "", err
	}
	if args.Depth <= 0 {
		args.Depth = 10
	}
	book, err := ts.source.OrderBook(ctx, strings.ToUpper(args.Symbol), args.Depth)
	if err != nil {
		return "", err
	}
	return marshalResult(book)
}
