package agent

import (
	"encoding/json"
	"os"
	"sync"
)

// Stats is the agent's local counter snapshot, kept alongside the durable
// server-side counters so the popup works offline.
type Stats struct {
	PromptCount       int64   `json:"promptCount"`
	TotalInputTokens  int64   `json:"totalInputTokens"`
	TotalOutputTokens int64   `json:"totalOutputTokens"`
	TotalCO2Grams     float64 `json:"totalCO2"`
}

type persistedState struct {
	Token string `json:"token"`
	Stats Stats  `json:"stats"`
}

// StateStore persists the agent's token and local stats across restarts.
type StateStore interface {
	Load() (persistedState, error)
	Save(persistedState) error
}

// FileStateStore keeps the state in a JSON file.
type FileStateStore struct {
	Path string
	mu   sync.Mutex
}

func (s *FileStateStore) Load() (persistedState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var state persistedState
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return state, nil
		}
		return state, err
	}
	return state, json.Unmarshal(data, &state)
}

func (s *FileStateStore) Save(state persistedState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.Path, data, 0o600)
}

// MemoryStateStore is a StateStore for tests.
type MemoryStateStore struct {
	mu    sync.Mutex
	state persistedState
}

func (s *MemoryStateStore) Load() (persistedState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, nil
}

func (s *MemoryStateStore) Save(state persistedState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	return nil
}
