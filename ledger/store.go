package ledger

import (
	"bufio"
	"errors"
	"io/fs"
	"iter"
	"log"
	"os"
	"path/filepath"
	"sync"

	json "github.com/bytedance/sonic"
	"github.com/shopspring/decimal"

	"aitrader/entity"
)

const maxLineSize = 1 << 20

// Genesis holds the parameters of an agent's first ledger record.
type Genesis struct {
	InitDate    string
	InitialCash decimal.Decimal
	Symbols     []string
}

// Store is the append-only per-agent position ledger. One JSON record per
// line, newline-terminated; records are never mutated after being written.
// The store is the only component with write access to ledger files, and it
// serializes read-compute-append per agent so sequence ids stay gapless even
// if two sessions for the same agent ever overlap.
type Store struct {
	dataDir string
	genesis Genesis

	mu     sync.Mutex
	agents map[string]*sync.Mutex
}

func NewStore(dataDir string, genesis Genesis) *Store {
	return &Store{
		dataDir: dataDir,
		genesis: genesis,
		agents:  make(map[string]*sync.Mutex),
	}
}

func (s *Store) path(agentID string) string {
	return filepath.Join(s.dataDir, agentID, "position", "position.jsonl")
}

func (s *Store) agentLock(agentID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.agents[agentID]
	if !ok {
		lock = &sync.Mutex{}
		s.agents[agentID] = lock
	}
	return lock
}

// Exists reports whether a ledger has been created for the agent.
func (s *Store) Exists(agentID string) bool {
	_, err := os.Stat(s.path(agentID))
	return err == nil
}

// Initialize creates the agent's ledger and writes the genesis record:
// sequence 0, the configured init date, the configured initial cash and a
// zero quantity for every tracked symbol. Fails with ErrAlreadyInitialized
// when a ledger already exists.
func (s *Store) Initialize(agentID string) error {
	lock := s.agentLock(agentID)
	lock.Lock()
	defer lock.Unlock()
	return s.initializeLocked(agentID)
}

func (s *Store) initializeLocked(agentID string) error {
	path := s.path(agentID)
	if _, err := os.Stat(path); err == nil {
		return ErrAlreadyInitialized
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &StorageError{Op: "mkdir", Path: path, Err: err}
	}

	holdings := make(map[string]decimal.Decimal, len(s.genesis.Symbols)+1)
	for _, symbol := range s.genesis.Symbols {
		holdings[symbol] = decimal.Zero
	}
	holdings[entity.CashSymbol] = s.genesis.InitialCash

	genesis := entity.PositionRecord{
		Date:     s.genesis.InitDate,
		Sequence: 0,
		Holdings: holdings,
	}
	return s.writeLine(path, genesis, os.O_CREATE|os.O_WRONLY|os.O_EXCL)
}

// writeLine marshals the record and writes it as one newline-terminated line
// in a single write call, so a reader never observes a truncated record.
func (s *Store) writeLine(path string, record entity.PositionRecord, flags int) error {
	data, err := json.Marshal(record)
	if err != nil {
		return &StorageError{Op: "encode", Path: path, Err: err}
	}
	file, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return &StorageError{Op: "open", Path: path, Err: err}
	}
	defer file.Close()
	if _, err := file.Write(append(data, '\n')); err != nil {
		return &StorageError{Op: "write", Path: path, Err: err}
	}
	return nil
}

// readAll replays the ledger file. Malformed lines (possible after a crash
// mid-write) are skipped with a warning instead of aborting the read.
func (s *Store) readAll(agentID string) ([]entity.PositionRecord, error) {
	path := s.path(agentID)
	file, err := os.Open(path)
	if err != nil {
		return nil, &StorageError{Op: "open", Path: path, Err: err}
	}
	defer file.Close()

	var records []entity.PositionRecord
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var record entity.PositionRecord
		if err := json.Unmarshal(line, &record); err != nil {
			log.Printf("warning: skipping malformed ledger line for %s: %v", agentID, err)
			continue
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, &StorageError{Op: "read", Path: path, Err: err}
	}
	return records, nil
}

// Latest returns the holdings and sequence id of the most advanced record as
// of the given date: the max-sequence record dated asOfDate if one exists,
// otherwise the max-sequence record overall. An agent without a ledger is
// implicitly initialized and the genesis state is returned.
func (s *Store) Latest(agentID, asOfDate string) (map[string]decimal.Decimal, int64, error) {
	lock := s.agentLock(agentID)
	lock.Lock()
	defer lock.Unlock()
	return s.latestLocked(agentID, asOfDate)
}

func (s *Store) latestLocked(agentID, asOfDate string) (map[string]decimal.Decimal, int64, error) {
	records, err := s.readAll(agentID)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if initErr := s.initializeLocked(agentID); initErr != nil {
				return nil, 0, initErr
			}
			records, err = s.readAll(agentID)
		}
		if err != nil {
			return nil, 0, err
		}
	}

	var today, overall *entity.PositionRecord
	for i := range records {
		record := &records[i]
		if record.Date == asOfDate && (today == nil || record.Sequence > today.Sequence) {
			today = record
		}
		if overall == nil || record.Sequence > overall.Sequence {
			overall = record
		}
	}
	best := today
	if best == nil {
		best = overall
	}
	if best == nil {
		return nil, 0, &StorageError{Op: "read", Path: s.path(agentID), Err: errors.New("ledger has no readable records")}
	}
	return entity.CloneHoldings(best.Holdings), best.Sequence, nil
}

// Append assigns the next sequence id (overall max + 1) and writes the record.
func (s *Store) Append(agentID string, record entity.PositionRecord) (int64, error) {
	lock := s.agentLock(agentID)
	lock.Lock()
	defer lock.Unlock()
	return s.appendLocked(agentID, record)
}

func (s *Store) appendLocked(agentID string, record entity.PositionRecord) (int64, error) {
	records, err := s.readAll(agentID)
	if err != nil {
		return 0, err
	}
	var maxSeq int64 = -1
	for i := range records {
		if records[i].Sequence > maxSeq {
			maxSeq = records[i].Sequence
		}
	}
	record.Sequence = maxSeq + 1
	if err := s.writeLine(s.path(agentID), record, os.O_WRONLY|os.O_APPEND); err != nil {
		return 0, err
	}
	return record.Sequence, nil
}

// Apply runs fn with the agent's latest state as of date and appends the
// record it returns, all under the agent's lock. When fn fails nothing is
// appended and the ledger is left unchanged. This is the executor's
// check-then-append path made race-free.
func (s *Store) Apply(agentID, asOfDate string, fn func(holdings map[string]decimal.Decimal, seq int64) (entity.PositionRecord, error)) (int64, error) {
	lock := s.agentLock(agentID)
	lock.Lock()
	defer lock.Unlock()

	holdings, seq, err := s.latestLocked(agentID, asOfDate)
	if err != nil {
		return 0, err
	}
	record, err := fn(holdings, seq)
	if err != nil {
		return 0, err
	}
	return s.appendLocked(agentID, record)
}

// History replays the full ledger in append order. The returned sequence
// re-reads the file every time it is ranged over, so it is restartable.
func (s *Store) History(agentID string) (iter.Seq[entity.PositionRecord], error) {
	path := s.path(agentID)
	if _, err := os.Stat(path); err != nil {
		return nil, &StorageError{Op: "stat", Path: path, Err: err}
	}
	return func(yield func(entity.PositionRecord) bool) {
		records, err := s.readAll(agentID)
		if err != nil {
			log.Printf("warning: ledger history read failed for %s: %v", agentID, err)
			return
		}
		for _, record := range records {
			if !yield(record) {
				return
			}
		}
	}, nil
}

// LatestDate returns the greatest calendar date present in the ledger.
func (s *Store) LatestDate(agentID string) (string, error) {
	lock := s.agentLock(agentID)
	lock.Lock()
	defer lock.Unlock()

	records, err := s.readAll(agentID)
	if err != nil {
		return "", err
	}
	var latest string
	for i := range records {
		if records[i].Date > latest {
			latest = records[i].Date
		}
	}
	if latest == "" {
		return "", &StorageError{Op: "read", Path: s.path(agentID), Err: errors.New("ledger has no readable records")}
	}
	return latest, nil
}

// Summary condenses the ledger for end-of-run reporting.
type Summary struct {
	AgentID      string
	LatestDate   string
	TotalRecords int
	Cash         decimal.Decimal
	Holdings     map[string]decimal.Decimal
}

func (s *Store) Summarize(agentID string) (Summary, error) {
	lock := s.agentLock(agentID)
	lock.Lock()
	defer lock.Unlock()

	records, err := s.readAll(agentID)
	if err != nil {
		return Summary{}, err
	}
	summary := Summary{AgentID: agentID, TotalRecords: len(records)}
	var latest *entity.PositionRecord
	for i := range records {
		if records[i].Date > summary.LatestDate {
			summary.LatestDate = records[i].Date
		}
		if latest == nil || records[i].Sequence > latest.Sequence {
			latest = &records[i]
		}
	}
	if latest != nil {
		summary.Holdings = entity.CloneHoldings(latest.Holdings)
		summary.Cash = latest.Holdings[entity.CashSymbol]
	}
	return summary, nil
}
