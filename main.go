package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"aitrader/config"
	"aitrader/ledger"
	"aitrader/llm"
	"aitrader/market"
	"aitrader/runstate"
	"aitrader/session"
	"aitrader/trade"
)

const deciderTimeout = 5 * time.Minute

func main() {
	validateOnly := flag.Bool("validate-only", false, "validate the config file and exit")
	flag.Parse()

	// Missing .env is fine, real deployments set the environment directly.
	_ = godotenv.Load()

	configPath := "config.json"
	if flag.NArg() > 0 {
		configPath = flag.Arg(0)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *validateOnly {
		log.Printf("config %s is valid: %d enabled model(s)", configPath, len(cfg.EnabledModels()))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	source := market.NewBinance(os.Getenv("BINANCE_API_KEY"), os.Getenv("BINANCE_SECRET_KEY"))
	store := ledger.NewStore(cfg.LogConfig.LogPath, ledger.Genesis{
		InitDate:    cfg.DateRange.InitDate,
		InitialCash: decimal.NewFromFloat(cfg.AgentConfig.InitialCash),
		Symbols:     cfg.Symbols,
	})

	group, gctx := errgroup.WithContext(ctx)
	for _, model := range cfg.EnabledModels() {
		group.Go(func() error {
			return runAgent(gctx, cfg, model, store, source)
		})
	}
	if err := group.Wait(); err != nil {
		log.Fatalf("run failed: %v", err)
	}

	for _, model := range cfg.EnabledModels() {
		summary, err := store.Summarize(model.Signature)
		if err != nil {
			log.Printf("%s: summary unavailable: %v", model.Signature, err)
			continue
		}
		log.Printf("%s: %d records through %s, cash %s, holdings %v",
			summary.AgentID, summary.TotalRecords, summary.LatestDate, summary.Cash, summary.Holdings)
	}
}

// runAgent wires one model into a full trading stack and drives its date range.
func runAgent(ctx context.Context, cfg *config.Config, model config.ModelConfig, store *ledger.Store, source market.Source) error {
	agentID := model.Signature
	log.Printf("starting agent %s (%s)", agentID, model.BaseModel)

	decider, err := llm.NewDecider(model.BaseModel, model.OpenAIBaseURL, model.OpenAIAPIKey, deciderTimeout)
	if err != nil {
		return err
	}

	state := runstate.New(agentID)
	executor := trade.NewExecutor(store, state)
	tools := session.NewToolSet(agentID, state, executor, source)
	loop := session.NewLoop(session.LoopConfig{
		AgentID:    agentID,
		DataDir:    cfg.LogConfig.LogPath,
		Symbols:    cfg.Symbols,
		MaxSteps:   cfg.AgentConfig.MaxSteps,
		MaxRetries: cfg.AgentConfig.MaxRetries,
		BaseDelay:  cfg.BaseDelayDuration(),
	}, decider, tools, store, source, state)

	driver := session.NewDriver(session.DriverConfig{
		MaxRetries:      cfg.AgentConfig.MaxRetries,
		BaseDelay:       cfg.BaseDelayDuration(),
		IncludeWeekends: cfg.AgentConfig.IncludeWeekends,
	}, loop, store)

	return driver.Run(ctx, agentID, cfg.DateRange.InitDate, cfg.DateRange.EndDate)
}
