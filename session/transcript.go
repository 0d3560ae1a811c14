package session

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	json "github.com/bytedance/sonic"

	"aitrader/entity"
	"aitrader/ledger"
)

// Transcript is the append-only per-agent per-day session log: one JSON entry
// per line, written durably before the loop takes its next step.
type Transcript struct {
	mu      sync.Mutex
	path    string
	agentID string
}

func OpenTranscript(dataDir, agentID, date string) (*Transcript, error) {
	dir := filepath.Join(dataDir, agentID, "log", date)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &ledger.StorageError{Op: "mkdir", Path: dir, Err: err}
	}
	return &Transcript{
		path:    filepath.Join(dir, "log.jsonl"),
		agentID: agentID,
	}, nil
}

// Append writes the messages as one timestamped line in a single write call.
func (t *Transcript) Append(messages ...entity.ChatMessage) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry := entity.TranscriptEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		AgentID:   t.agentID,
		Messages:  messages,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return &ledger.StorageError{Op: "encode", Path: t.path, Err: err}
	}
	file, err := os.OpenFile(t.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return &ledger.StorageError{Op: "open", Path: t.path, Err: err}
	}
	defer file.Close()
	if _, err := file.Write(append(data, '\n')); err != nil {
		return &ledger.StorageError{Op: "write", Path: t.path, Err: err}
	}
	return nil
}
