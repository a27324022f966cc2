package bot

import "sync"

// State is what the next plain text message in a chat is taken as.
type State int

const (
	StateIdle State = iota
	StateAwaitingAdd
	StateAwaitingDelete
)

// ConversationStore remembers pending multi-step commands per chat.
type ConversationStore struct {
	mu     sync.Mutex
	states map[int64]State
}

func NewConversationStore() *ConversationStore {
	return &ConversationStore{states: make(map[int64]State)}
}

func (s *ConversationStore) Set(chatID int64, st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st == StateIdle {
		delete(s.states, chatID)
		return
	}
	s.states[chatID] = st
}

// Take returns the chat's state and resets it to idle.
func (s *ConversationStore) Take(chatID int64) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.states[chatID]
	delete(s.states, chatID)
	return st
}
