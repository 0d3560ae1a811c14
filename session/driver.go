package session

import (
	"context"
	"fmt"
	"log"
	"time"

	"aitrader/ledger"
	"aitrader/utils"
)

const dateLayout = "2006-01-02"

// SessionRunner runs one full trading-day session.
type SessionRunner interface {
	Run(ctx context.Context, date string) error
}

type DriverConfig struct {
	MaxRetries      int
	BaseDelay       time.Duration
	IncludeWeekends bool
}

// Driver walks the pending trading dates for an agent, running one session
// per date with whole-session retry. A date that fails after all retries
// aborts the remaining range: position state for later days depends on the
// current day settling.
type Driver struct {
	cfg    DriverConfig
	runner SessionRunner
	ledger *ledger.Store
}

func NewDriver(cfg DriverConfig, runner SessionRunner, store *ledger.Store) *Driver {
	return &Driver{cfg: cfg, runner: runner, ledger: store}
}

// PendingDates computes the trading dates still to process, in ascending
// order. An agent without a ledger is registered implicitly and starts the
// day after initDate's genesis record; otherwise iteration starts the day
// after the latest ledger date. Weekends are filtered out unless configured.
func (d *Driver) PendingDates(agentID, initDate, endDate string) ([]string, error) {
	end, err := time.ParseInLocation(dateLayout, endDate, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("invalid end date %q: %w", endDate, err)
	}

	latest := initDate
	if !d.ledger.Exists(agentID) {
		if err := d.ledger.Initialize(agentID); err != nil {
			return nil, err
		}
		log.Printf("registered agent %s with genesis positions", agentID)
	} else {
		latest, err = d.ledger.LatestDate(agentID)
		if err != nil {
			return nil, err
		}
	}
	start, err := time.ParseInLocation(dateLayout, latest, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("invalid ledger date %q: %w", latest, err)
	}

	var dates []string
	for day := start.AddDate(0, 0, 1); !day.After(end); day = day.AddDate(0, 0, 1) {
		if !d.cfg.IncludeWeekends {
			if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
				continue
			}
		}
		dates = append(dates, day.Format(dateLayout))
	}
	return dates, nil
}

// Run processes every pending date for the agent, fail-fast.
func (d *Driver) Run(ctx context.Context, agentID, initDate, endDate string) error {
	dates, err := d.PendingDates(agentID, initDate, endDate)
	if err != nil {
		return err
	}
	if len(dates) == 0 {
		log.Printf("%s: no trading days to process", agentID)
		return nil
	}
	log.Printf("%s: trading days to process: %v", agentID, dates)

	for _, date := range dates {
		_, err := utils.Retry(func() (struct{}, error) {
			return struct{}{}, d.runner.Run(ctx, date)
		}, d.cfg.MaxRetries, utils.Linear(d.cfg.BaseDelay))
		if err != nil {
			return fmt.Errorf("agent %s: date %s failed, aborting remaining range: %w", agentID, date, err)
		}
		log.Printf("%s - %s: session complete", agentID, date)
	}
	return nil
}
