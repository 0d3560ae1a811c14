package prompts

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"aitrader/entity"
	"aitrader/market"
)

// StopSignal is the sentinel the decision collaborator emits when it has
// finished reasoning for the current session.
const StopSignal = "<FINISH_SIGNAL>"

const systemPromptTemplate = `You are an autonomous cryptocurrency portfolio trading agent.

Your goals are:
- Think and reason by calling the available tools.
- Weigh the prices of the tracked assets and their recent behavior.
- Your long-term goal is to maximize the portfolio's return.
- Gather the information you need through the market tools before deciding.

Operating rules:
- You do not need to ask for permission; execute trades directly through the buy and sell tools.
- Trades are only accepted through tool calls. Plain-text orders are ignored.
- Quantities are amounts of the base asset (e.g. 0.5 BTC), not quote currency.

Here is the information you need:

Today's date:
{date}

Current positions (asset quantities; CASH is your available quote currency):
{positions}

Yesterday's closing prices:
{yesterday_close_price}

Today's opening prices:
{today_open_price}

Daily indicators (EMA20 / RSI14, computed through yesterday's close):
{indicators}

When you consider today's work complete, output
{stop_signal}`

// BuildSystemPrompt renders the day's system prompt from the agent's current
// holdings and the exogenous market snapshot.
func BuildSystemPrompt(date string, holdings map[string]decimal.Decimal, snapshot market.Snapshot) string {
	replacer := strings.NewReplacer(
		"{date}", date,
		"{positions}", formatHoldings(holdings),
		"{yesterday_close_price}", formatPrices(snapshot, func(a market.AssetSnapshot) decimal.Decimal { return a.PrevClose }),
		"{today_open_price}", formatPrices(snapshot, func(a market.AssetSnapshot) decimal.Decimal { return a.TodayOpen }),
		"{indicators}", formatIndicators(snapshot),
		"{stop_signal}", StopSignal,
	)
	return replacer.Replace(systemPromptTemplate)
}

// BuildInitialUserPrompt is the first user-role message of every session.
func BuildInitialUserPrompt(date string) string {
	return fmt.Sprintf("Please analyze and update today's (%s) positions.", date)
}

func formatHoldings(holdings map[string]decimal.Decimal) string {
	symbols := sortedKeys(holdings)
	lines := make([]string, 0, len(symbols))
	for _, symbol := range symbols {
		lines = append(lines, fmt.Sprintf("- %s: %s", symbol, holdings[symbol]))
	}
	if len(lines) == 0 {
		return "- (none)"
	}
	return strings.Join(lines, "\n")
}

func formatPrices(snapshot market.Snapshot, pick func(market.AssetSnapshot) decimal.Decimal) string {
	symbols := sortedKeys(snapshot.Assets)
	lines := make([]string, 0, len(symbols))
	for _, symbol := range symbols {
		price := pick(snapshot.Assets[symbol])
		if price.IsZero() {
			continue
		}
		lines = append(lines, fmt.Sprintf("- %s: %s %s", symbol, price, entity.CashSymbol))
	}
	if len(lines) == 0 {
		return "- (unavailable)"
	}
	return strings.Join(lines, "\n")
}

func formatIndicators(snapshot market.Snapshot) string {
	symbols := sortedKeys(snapshot.Assets)
	lines := make([]string, 0, len(symbols))
	for _, symbol := range symbols {
		asset := snapshot.Assets[symbol]
		if asset.EMA20 == 0 && asset.RSI14 == 0 {
			continue
		}
		lines = append(lines, fmt.Sprintf("- %s: EMA20=%.2f RSI14=%.2f", symbol, asset.EMA20, asset.RSI14))
	}
	if len(lines) == 0 {
		return "- (unavailable)"
	}
	return strings.Join(lines, "\n")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
