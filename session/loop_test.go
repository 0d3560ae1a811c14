package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aitrader/entity"
	"aitrader/ledger"
	"aitrader/llm"
	"aitrader/market"
	"aitrader/prompts"
	"aitrader/runstate"
	"aitrader/trade"
)

type fakeSource struct {
	prices map[string]decimal.Decimal
}

func (f *fakeSource) LastPrice(_ context.Context, symbol string) (decimal.Decimal, error) {
	price, ok := f.prices[symbol]
	if !ok {
		return decimal.Zero, fmt.Errorf("no price for %s", symbol)
	}
	return price, nil
}

func (f *fakeSource) Quote(ctx context.Context, symbol string) (market.Quote, error) {
	price, err := f.LastPrice(ctx, symbol)
	if err != nil {
		return market.Quote{}, err
	}
	return market.Quote{Symbol: symbol, Price: price, Time: time.Now()}, nil
}

func (f *fakeSource) Quotes(ctx context.Context, symbols []string) (map[string]market.Quote, error) {
	quotes := make(map[string]market.Quote, len(symbols))
	for _, symbol := range symbols {
		quote, err := f.Quote(ctx, symbol)
		if err != nil {
			continue
		}
		quotes[symbol] = quote
	}
	return quotes, nil
}

func (f *fakeSource) Candles(context.Context, string, string, int) ([]market.Candle, error) {
	return []market.Candle{{Close: decimal.NewFromInt(100)}}, nil
}

func (f *fakeSource) OrderBook(_ context.Context, symbol string, _ int) (market.Book, error) {
	return market.Book{Symbol: symbol}, nil
}

func (f *fakeSource) DailySnapshot(_ context.Context, symbols []string, date string) (market.Snapshot, error) {
	snapshot := market.Snapshot{Date: date, Assets: make(map[string]market.AssetSnapshot)}
	for _, symbol := range symbols {
		if price, ok := f.prices[symbol]; ok {
			snapshot.Assets[symbol] = market.AssetSnapshot{PrevClose: price, TodayOpen: price}
		}
	}
	return snapshot, nil
}

type fakeDecider struct {
	decisions []entity.Decision
	errs      []error
	calls     int
	requests  []llm.Request
}

func (f *fakeDecider) Decide(_ context.Context, req llm.Request) (entity.Decision, error) {
	f.requests = append(f.requests, req)
	idx := f.calls
	f.calls++
	if idx < len(f.errs) && f.errs[idx] != nil {
		return entity.Decision{}, f.errs[idx]
	}
	if idx < len(f.decisions) {
		return f.decisions[idx], nil
	}
	return entity.Decision{Content: "nothing to do"}, nil
}

type fixture struct {
	loop    *Loop
	decider *fakeDecider
	store   *ledger.Store
	state   *runstate.State
	dataDir string
}

func newFixture(t *testing.T, decider *fakeDecider, maxSteps int) *fixture {
	t.Helper()
	dataDir := t.TempDir()
	store := ledger.NewStore(dataDir, ledger.Genesis{
		InitDate:    "2025-10-13",
		InitialCash: decimal.NewFromFloat(10000),
		Symbols:     []string{"BTC"},
	})
	require.NoError(t, store.Initialize("agentA"))

	state := runstate.New("agentA")
	source := &fakeSource{prices: map[string]decimal.Decimal{"BTC": decimal.NewFromInt(50000)}}
	executor := trade.NewExecutor(store, state)
	tools := NewToolSet("agentA", state, executor, source)

	loop := NewLoop(LoopConfig{
		AgentID:    "agentA",
		DataDir:    dataDir,
		Symbols:    []string{"BTC"},
		MaxSteps:   maxSteps,
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
	}, decider, tools, store, source, state)

	return &fixture{loop: loop, decider: decider, store: store, state: state, dataDir: dataDir}
}

func transcriptLines(t *testing.T, dataDir, date string) []string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dataDir, "agentA", "log", date, "log.jsonl"))
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestStopSignalEndsSession(t *testing.T) {
	decider := &fakeDecider{decisions: []entity.Decision{
		{Content: "All positions reviewed. " + prompts.StopSignal},
	}}
	fix := newFixture(t, decider, 10)

	require.NoError(t, fix.loop.Run(context.Background(), "2025-10-14"))
	// The loop stops on the same step: no further decision invocation.
	assert.Equal(t, 1, decider.calls)

	lines := transcriptLines(t, fix.dataDir, "2025-10-14")
	assert.Len(t, lines, 2) // initial user message + final assistant message
	assert.Contains(t, lines[1], prompts.StopSignal)
}

func TestStepLimitExceeded(t *testing.T) {
	decider := &fakeDecider{} // never emits the stop signal
	fix := newFixture(t, decider, 3)

	err := fix.loop.Run(context.Background(), "2025-10-14")
	assert.ErrorIs(t, err, ErrStepLimitExceeded)
	assert.Equal(t, 3, decider.calls)
}

func TestToolCallsAreDispatchedAndFedBack(t *testing.T) {
	decider := &fakeDecider{decisions: []entity.Decision{
		{
			Content: "Buying a small BTC position.",
			ToolCalls: []entity.ToolInvocation{
				{ID: "call_1", Name: "buy", Arguments: `{"symbol":"BTC","amount":0.1}`},
			},
		},
		{Content: "Done for today. " + prompts.StopSignal},
	}}
	fix := newFixture(t, decider, 10)

	require.NoError(t, fix.loop.Run(context.Background(), "2025-10-14"))
	require.Equal(t, 2, decider.calls)

	// The trade settled in the ledger.
	holdings, seq, err := fix.store.Latest("agentA", "2025-10-14")
	require.NoError(t, err)
	assert.Equal(t, int64(1), seq)
	assert.True(t, holdings["BTC"].Equal(decimal.NewFromFloat(0.1)))
	assert.True(t, holdings[entity.CashSymbol].Equal(decimal.NewFromInt(5000)))

	// The tool result came back to the model as a user-role entry.
	second := decider.requests[1]
	last := second.History[len(second.History)-1]
	assert.Equal(t, entity.RoleUser, last.Role)
	assert.Contains(t, last.Content, "Tool results: buy:")
	assert.Contains(t, last.Content, `"sequence_id":1`)
}

func TestTradeErrorFedBackAsData(t *testing.T) {
	decider := &fakeDecider{decisions: []entity.Decision{
		{
			Content: "Going all in.",
			ToolCalls: []entity.ToolInvocation{
				{ID: "call_1", Name: "buy", Arguments: `{"symbol":"BTC","amount":100}`},
			},
		},
		{Content: "Understood, standing down. " + prompts.StopSignal},
	}}
	fix := newFixture(t, decider, 10)

	require.NoError(t, fix.loop.Run(context.Background(), "2025-10-14"))

	second := decider.requests[1]
	last := second.History[len(second.History)-1]
	assert.Contains(t, last.Content, "insufficient_funds")

	// The rejected trade appended nothing.
	summary, err := fix.store.Summarize("agentA")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TotalRecords)
}

func TestDeciderRetryExhaustionFailsSession(t *testing.T) {
	transient := errors.New("upstream timeout")
	decider := &fakeDecider{errs: []error{transient, transient, transient}}
	fix := newFixture(t, decider, 10)

	err := fix.loop.Run(context.Background(), "2025-10-14")
	require.Error(t, err)
	assert.ErrorIs(t, err, transient)
	// Exactly max_retries attempts before the session fails.
	assert.Equal(t, 3, decider.calls)

	// Progress so far is still on disk.
	lines := transcriptLines(t, fix.dataDir, "2025-10-14")
	assert.Len(t, lines, 1)
}

func TestSystemPromptCarriesHoldingsAndStopToken(t *testing.T) {
	decider := &fakeDecider{decisions: []entity.Decision{
		{Content: prompts.StopSignal},
	}}
	fix := newFixture(t, decider, 10)

	require.NoError(t, fix.loop.Run(context.Background(), "2025-10-14"))
	req := decider.requests[0]
	assert.Contains(t, req.SystemPrompt, "2025-10-14")
	assert.Contains(t, req.SystemPrompt, "CASH: 10000")
	assert.Contains(t, req.SystemPrompt, prompts.StopSignal)
	assert.NotEmpty(t, req.Tools)
	assert.Equal(t, "2025-10-14", fix.state.Today())
}

func TestTradeFlagResetAcrossSessions(t *testing.T) {
	decider := &fakeDecider{decisions: []entity.Decision{
		{
			Content: "Buying.",
			ToolCalls: []entity.ToolInvocation{
				{ID: "call_1", Name: "buy", Arguments: `{"symbol":"BTC","amount":0.01}`},
			},
		},
		{Content: prompts.StopSignal},
		{Content: prompts.StopSignal},
	}}
	fix := newFixture(t, decider, 10)

	require.NoError(t, fix.loop.Run(context.Background(), "2025-10-14"))
	require.NoError(t, fix.loop.Run(context.Background(), "2025-10-15"))
	assert.False(t, fix.state.Traded())
}
