// Package runstate carries the mutable per-run facts (current agent, current
// trading date, whether a trade settled today) that the driver, session loop
// and trade executor exchange. It is passed explicitly down the call chain so
// concurrent multi-agent runs never share state.
package runstate

import "sync"

type State struct {
	mu        sync.Mutex
	signature string
	today     string
	traded    bool
}

func New(signature string) *State {
	return &State{signature: signature}
}

func (s *State) Signature() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signature
}

func (s *State) SetToday(date string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.today = date
}

func (s *State) Today() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.today
}

// MarkTraded is set by the trade executor when a trade settles.
func (s *State) MarkTraded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.traded = true
}

// ResetTraded clears the flag at the start of a session.
func (s *State) ResetTraded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.traded = false
}

func (s *State) Traded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.traded
}
