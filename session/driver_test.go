package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aitrader/entity"
	"aitrader/ledger"
)

type fakeRunner struct {
	ran  []string
	fail map[string]error
}

func (f *fakeRunner) Run(_ context.Context, date string) error {
	f.ran = append(f.ran, date)
	if err, ok := f.fail[date]; ok {
		return err
	}
	return nil
}

func newDriverStore(t *testing.T, initDate string) *ledger.Store {
	t.Helper()
	return ledger.NewStore(t.TempDir(), ledger.Genesis{
		InitDate:    initDate,
		InitialCash: decimal.NewFromFloat(10000),
		Symbols:     []string{"BTC"},
	})
}

func TestPendingDatesSkipsWeekends(t *testing.T) {
	store := newDriverStore(t, "2025-10-13") // a Monday
	require.NoError(t, store.Initialize("agentA"))

	driver := NewDriver(DriverConfig{MaxRetries: 1, BaseDelay: time.Millisecond}, &fakeRunner{}, store)
	dates, err := driver.PendingDates("agentA", "2025-10-01", "2025-10-16")
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-10-14", "2025-10-15", "2025-10-16"}, dates)
}

func TestPendingDatesIncludeWeekends(t *testing.T) {
	store := newDriverStore(t, "2025-10-16") // a Thursday
	require.NoError(t, store.Initialize("agentA"))

	weekdaysOnly := NewDriver(DriverConfig{}, &fakeRunner{}, store)
	dates, err := weekdaysOnly.PendingDates("agentA", "2025-10-16", "2025-10-20")
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-10-17", "2025-10-20"}, dates)

	withWeekends := NewDriver(DriverConfig{IncludeWeekends: true}, &fakeRunner{}, store)
	dates, err = withWeekends.PendingDates("agentA", "2025-10-16", "2025-10-20")
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-10-17", "2025-10-18", "2025-10-19", "2025-10-20"}, dates)
}

func TestPendingDatesRegistersNewAgent(t *testing.T) {
	store := newDriverStore(t, "2025-10-13")
	driver := NewDriver(DriverConfig{}, &fakeRunner{}, store)

	dates, err := driver.PendingDates("fresh", "2025-10-13", "2025-10-15")
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-10-14", "2025-10-15"}, dates)

	// The genesis record exists and carries the initial cash.
	assert.True(t, store.Exists("fresh"))
	holdings, seq, err := store.Latest("fresh", "2025-10-13")
	require.NoError(t, err)
	assert.Equal(t, int64(0), seq)
	assert.True(t, holdings["CASH"].Equal(decimal.NewFromFloat(10000)))
}

func TestPendingDatesResumeFromLatestLedgerDate(t *testing.T) {
	store := newDriverStore(t, "2025-10-13")
	require.NoError(t, store.Initialize("agentA"))

	holdings, _, err := store.Latest("agentA", "2025-10-14")
	require.NoError(t, err)
	_, err = store.Append("agentA", entity.PositionRecord{Date: "2025-10-14", Holdings: holdings})
	require.NoError(t, err)

	driver := NewDriver(DriverConfig{}, &fakeRunner{}, store)
	dates, err := driver.PendingDates("agentA", "2025-10-13", "2025-10-16")
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-10-15", "2025-10-16"}, dates)
}

func TestPendingDatesEmptyWhenCaughtUp(t *testing.T) {
	store := newDriverStore(t, "2025-10-16")
	require.NoError(t, store.Initialize("agentA"))

	driver := NewDriver(DriverConfig{}, &fakeRunner{}, store)
	dates, err := driver.PendingDates("agentA", "2025-10-16", "2025-10-16")
	require.NoError(t, err)
	assert.Empty(t, dates)
}

func TestPendingDatesRejectsBadEndDate(t *testing.T) {
	store := newDriverStore(t, "2025-10-13")
	driver := NewDriver(DriverConfig{}, &fakeRunner{}, store)

	_, err := driver.PendingDates("agentA", "2025-10-13", "not-a-date")
	assert.Error(t, err)
}

func TestRunProcessesAllPendingDates(t *testing.T) {
	store := newDriverStore(t, "2025-10-13")
	require.NoError(t, store.Initialize("agentA"))

	runner := &fakeRunner{}
	driver := NewDriver(DriverConfig{MaxRetries: 2, BaseDelay: time.Millisecond}, runner, store)

	require.NoError(t, driver.Run(context.Background(), "agentA", "2025-10-13", "2025-10-15"))
	assert.Equal(t, []string{"2025-10-14", "2025-10-15"}, runner.ran)
}

func TestRunAbortsRangeAfterRetriesExhausted(t *testing.T) {
	store := newDriverStore(t, "2025-10-13")
	require.NoError(t, store.Initialize("agentA"))

	boom := errors.New("session blew up")
	runner := &fakeRunner{fail: map[string]error{"2025-10-14": boom}}
	driver := NewDriver(DriverConfig{MaxRetries: 3, BaseDelay: time.Millisecond}, runner, store)

	err := driver.Run(context.Background(), "agentA", "2025-10-13", "2025-10-16")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	// The failing date was retried, later dates never ran.
	assert.Equal(t, []string{"2025-10-14", "2025-10-14", "2025-10-14"}, runner.ran)
}
