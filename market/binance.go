package market

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/cinar/indicator"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"aitrader/utils"
)

const (
	quoteSuffix = "USDT"
	// snapshotLookback is enough daily closes to seed EMA20 and RSI14.
	snapshotLookback = 60
	dailyInterval    = "1d"
)

// Binance serves spot market data. Public endpoints work without credentials.
type Binance struct {
	client *binance.Client
}

func NewBinance(apiKey, secretKey string) *Binance {
	return &Binance{client: binance.NewClient(apiKey, secretKey)}
}

// pair normalizes "BTC" or "BTC/USDT" to the exchange symbol "BTCUSDT".
func pair(symbol string) string {
	s := strings.ToUpper(strings.ReplaceAll(symbol, "/", ""))
	if !strings.HasSuffix(s, quoteSuffix) {
		s += quoteSuffix
	}
	return s
}

func (b *Binance) Quote(ctx context.Context, symbol string) (Quote, error) {
	target := pair(symbol)
	prices, err := b.client.NewListPricesService().Symbol(target).Do(ctx)
	if err != nil {
		return Quote{}, fmt.Errorf("failed to fetch price for %s: %w", target, err)
	}
	// The API returns a slice even for a single symbol.
	for _, p := range prices {
		if p.Symbol != target {
			continue
		}
		price, err := decimal.NewFromString(p.Price)
		if err != nil {
			return Quote{}, fmt.Errorf("unparseable price %q for %s: %w", p.Price, target, err)
		}
		return Quote{Symbol: symbol, Price: price, Time: time.Now().UTC()}, nil
	}
	return Quote{}, fmt.Errorf("symbol %s not found in price list", target)
}

func (b *Binance) LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	quote, err := b.Quote(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	return quote.Price, nil
}

func (b *Binance) Quotes(ctx context.Context, symbols []string) (map[string]Quote, error) {
	var (
		mu     sync.Mutex
		quotes = make(map[string]Quote, len(symbols))
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, symbol := range symbols {
		g.Go(func() error {
			quote, err := b.Quote(gctx, symbol)
			if err != nil {
				// Non-fatal: one missing quote should not sink the batch.
				log.Printf("warning: quote failed for %s: %v", symbol, err)
				return nil
			}
			mu.Lock()
			quotes[symbol] = quote
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return quotes, nil
}

func (b *Binance) Candles(ctx context.Context, symbol, interval string, limit int) ([]Candle, error) {
	if interval == "" {
		interval = dailyInterval
	}
	klines, err := b.client.NewKlinesService().Symbol(pair(symbol)).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s klines for %s: %w", interval, symbol, err)
	}
	return lo.Map(klines, func(k *binance.Kline, _ int) Candle {
		return parseKline(k)
	}), nil
}

func parseKline(k *binance.Kline) Candle {
	open, _ := decimal.NewFromString(k.Open)
	high, _ := decimal.NewFromString(k.High)
	low, _ := decimal.NewFromString(k.Low)
	closePrice, _ := decimal.NewFromString(k.Close)
	volume, _ := decimal.NewFromString(k.Volume)
	return Candle{
		OpenTime: time.UnixMilli(k.OpenTime).UTC(),
		Open:     open,
		High:     high,
		Low:      low,
		Close:    closePrice,
		Volume:   volume,
	}
}

func (b *Binance) OrderBook(ctx context.Context, symbol string, depth int) (Book, error) {
	res, err := b.client.NewDepthService().Symbol(pair(symbol)).Limit(depth).Do(ctx)
	if err != nil {
		return Book{}, fmt.Errorf("failed to fetch order book for %s: %w", symbol, err)
	}
	book := Book{Symbol: symbol}
	for _, bid := range res.Bids {
		price, _ := decimal.NewFromString(bid.Price)
		qty, _ := decimal.NewFromString(bid.Quantity)
		book.Bids = append(book.Bids, BookLevel{Price: price, Quantity: qty})
	}
	for _, ask := range res.Asks {
		price, _ := decimal.NewFromString(ask.Price)
		qty, _ := decimal.NewFromString(ask.Quantity)
		book.Asks = append(book.Asks, BookLevel{Price: price, Quantity: qty})
	}
	return book, nil
}

// DailySnapshot assembles the prompt context for one trading day: prior-day
// close, current-day open and trailing daily indicators per symbol. Symbols
// whose data cannot be fetched are skipped with a warning.
func (b *Binance) DailySnapshot(ctx context.Context, symbols []string, date string) (Snapshot, error) {
	day, err := time.ParseInLocation("2006-01-02", date, time.UTC)
	if err != nil {
		return Snapshot{}, fmt.Errorf("invalid snapshot date %q: %w", date, err)
	}

	var (
		mu       sync.Mutex
		snapshot = Snapshot{Date: date, Assets: make(map[string]AssetSnapshot, len(symbols))}
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, symbol := range symbols {
		g.Go(func() error {
			asset, err := utils.Retry(func() (AssetSnapshot, error) {
				return b.fetchAssetSnapshot(gctx, symbol, day)
			}, 3, utils.ExponentialJitter(200*time.Millisecond, 2*time.Second))
			if err != nil {
				log.Printf("warning: snapshot failed for %s on %s: %v", symbol, date, err)
				return nil
			}
			mu.Lock()
			snapshot.Assets[symbol] = asset
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}
	return snapshot, nil
}

func (b *Binance) fetchAssetSnapshot(ctx context.Context, symbol string, day time.Time) (AssetSnapshot, error) {
	dayEnd := day.Add(24 * time.Hour).UnixMilli()
	klines, err := b.client.NewKlinesService().
		Symbol(pair(symbol)).
		Interval(dailyInterval).
		EndTime(dayEnd - 1).
		Limit(snapshotLookback).
		Do(ctx)
	if err != nil {
		return AssetSnapshot{}, err
	}
	if len(klines) == 0 {
		return AssetSnapshot{}, errors.New("no daily candles returned")
	}

	candles := lo.Map(klines, func(k *binance.Kline, _ int) Candle { return parseKline(k) })
	todayIdx := -1
	for i, c := range candles {
		if c.OpenTime.Equal(day) {
			todayIdx = i
			break
		}
	}
	if todayIdx <= 0 {
		return AssetSnapshot{}, fmt.Errorf("no candle for %s", day.Format("2006-01-02"))
	}

	asset := AssetSnapshot{
		PrevClose: candles[todayIdx-1].Close,
		TodayOpen: candles[todayIdx].Open,
	}

	// Indicators are computed on closes up to and including the prior day,
	// so the snapshot never leaks the current day's close.
	closes := lo.Map(candles[:todayIdx], func(c Candle, _ int) float64 {
		f, _ := c.Close.Float64()
		return f
	})
	if len(closes) >= 20 {
		asset.EMA20 = lo.LastOrEmpty(indicator.Ema(20, closes))
	}
	if len(closes) >= 15 {
		_, rsi := indicator.RsiPeriod(14, closes)
		asset.RSI14 = lo.LastOrEmpty(rsi)
	}
	return asset, nil
}
