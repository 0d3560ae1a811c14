package market

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is a point-in-time price for one trading pair.
type Quote struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
	Time   time.Time       `json:"time"`
}

// Candle is one OHLCV bar.
type Candle struct {
	OpenTime time.Time       `json:"open_time"`
	Open     decimal.Decimal `json:"open"`
	High     decimal.Decimal `json:"high"`
	Low      decimal.Decimal `json:"low"`
	Close    decimal.Decimal `json:"close"`
	Volume   decimal.Decimal `json:"volume"`
}

type BookLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

// Book is an order-book snapshot, best levels first.
type Book struct {
	Symbol string      `json:"symbol"`
	Bids   []BookLevel `json:"bids"`
	Asks   []BookLevel `json:"asks"`
}

// AssetSnapshot is the per-symbol daily context embedded in the system prompt.
type AssetSnapshot struct {
	PrevClose decimal.Decimal `json:"prev_close"`
	TodayOpen decimal.Decimal `json:"today_open"`
	EMA20     float64         `json:"ema_20"`
	RSI14     float64         `json:"rsi_14"`
}

// Snapshot is the exogenous market context for one trading day.
type Snapshot struct {
	Date   string                   `json:"date"`
	Assets map[string]AssetSnapshot `json:"assets"`
}

// Source is the read-only market data collaborator consumed by the session
// loop and its tools.
type Source interface {
	LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	Quote(ctx context.Context, symbol string) (Quote, error)
	Quotes(ctx context.Context, symbols []string) (map[string]Quote, error)
	Candles(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
	OrderBook(ctx context.Context, symbol string, depth int) (Book, error)
	DailySnapshot(ctx context.Context, symbols []string, date string) (Snapshot, error)
}
