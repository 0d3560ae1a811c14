package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"aitrader/entity"
	"aitrader/ledger"
	"aitrader/llm"
	"aitrader/market"
	"aitrader/prompts"
	"aitrader/runstate"
	"aitrader/utils"
)

// ErrStepLimitExceeded is returned when a session burns through max_steps
// decision iterations without emitting the stop signal.
var ErrStepLimitExceeded = errors.New("step limit exceeded")

type LoopConfig struct {
	AgentID    string
	DataDir    string
	Symbols    []string
	MaxSteps   int
	MaxRetries int
	BaseDelay  time.Duration
}

// Loop drives a single trading day: it builds the prompt context from the
// ledger and market snapshot, repeatedly invokes the decision collaborator,
// applies requested tool calls, and stops on the stop signal. Every message
// is durably appended to the transcript before the next step runs.
type Loop struct {
	cfg     LoopConfig
	decider llm.Decider
	tools   *ToolSet
	ledger  *ledger.Store
	source  market.Source
	state   *runstate.State
}

func NewLoop(
	cfg LoopConfig,
	decider llm.Decider,
	tools *ToolSet,
	store *ledger.Store,
	source market.Source,
	state *runstate.State,
) *Loop {
	return &Loop{
		cfg:     cfg,
		decider: decider,
		tools:   tools,
		ledger:  store,
		source:  source,
		state:   state,
	}
}

// Run executes the session for one calendar date.
func (l *Loop) Run(ctx context.Context, date string) error {
	agentID := l.cfg.AgentID
	log.Printf("starting trading session: %s - %s", agentID, date)

	l.state.SetToday(date)
	l.state.ResetTraded()

	transcript, err := OpenTranscript(l.cfg.DataDir, agentID, date)
	if err != nil {
		return err
	}

	holdings, _, err := l.ledger.Latest(agentID, date)
	if err != nil {
		return err
	}
	snapshot, err := l.source.DailySnapshot(ctx, l.cfg.Symbols, date)
	if err != nil {
		return fmt.Errorf("agent %s date %s: market snapshot failed: %w", agentID, date, err)
	}

	systemPrompt := prompts.BuildSystemPrompt(date, holdings, snapshot)
	history := []entity.ChatMessage{entity.UserMessage(prompts.BuildInitialUserPrompt(date))}
	if err := transcript.Append(history[0]); err != nil {
		return err
	}

	for step := 1; step <= l.cfg.MaxSteps; step++ {
		log.Printf("%s - %s step %d/%d", agentID, date, step, l.cfg.MaxSteps)

		decision, err := utils.Retry(func() (entity.Decision, error) {
			return l.decider.Decide(ctx, llm.Request{
				SystemPrompt: systemPrompt,
				History:      history,
				Tools:        l.tools.Descriptors(),
			})
		}, l.cfg.MaxRetries, utils.Linear(l.cfg.BaseDelay))
		if err != nil {
			return fmt.Errorf("agent %s date %s step %d: decision failed: %w", agentID, date, step, err)
		}

		if strings.Contains(decision.Content, prompts.StopSignal) {
			final := entity.AssistantMessage(decision.Content)
			history = append(history, final)
			if err := transcript.Append(final); err != nil {
				return err
			}
			log.Printf("%s - %s: received stop signal, session ended", agentID, date)
			l.settle(agentID, date)
			return nil
		}

		toolResults := l.tools.Dispatch(ctx, decision.ToolCalls)
		assistantMsg := entity.AssistantMessage(decision.Content)
		resultMsg := entity.UserMessage("Tool results: " + toolResults)
		history = append(history, assistantMsg, resultMsg)

		// Durable before the next step: the transcript must reflect all
		// progress even if a later step fails.
		if err := transcript.Append(assistantMsg); err != nil {
			return err
		}
		if err := transcript.Append(resultMsg); err != nil {
			return err
		}
	}

	return fmt.Errorf("agent %s date %s: %w after %d steps", agentID, date, ErrStepLimitExceeded, l.cfg.MaxSteps)
}

// settle is the end-of-day bookkeeping driven by the trade-occurred flag.
func (l *Loop) settle(agentID, date string) {
	if l.state.Traded() {
		log.Printf("%s - %s: trades executed, positions updated", agentID, date)
	} else {
		log.Printf("%s - %s: no trades, maintaining positions", agentID, date)
	}
	l.state.ResetTraded()
}
