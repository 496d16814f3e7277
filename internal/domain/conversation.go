package domain

// MemoryEntry is one completed turn as remembered for follow-up questions.
type MemoryEntry struct {
	UserText string `json:"user_text"`
	Summary  string `json:"summary"`
}

// Message is a single persisted conversation turn.
type Message struct {
	PK             string
	SK             string
	ConversationID string
	Text           string
	Summary        string
	Status         string
	TTL            int64
}

// ConversationMeta stores aggregate conversation state.
type ConversationMeta struct {
	PK             string
	SK             string
	ConversationID string
	LastActivity   string
	Turns          int
	Generation     string
	TTL            int64
}
