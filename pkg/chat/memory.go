package chat

import "github.com/dotsetgreg/dbchat/pkg/providers"

// DefaultMaxExchanges bounds conversation memory to the most recent turns.
const DefaultMaxExchanges = 10

// Memory is a sliding window over past user/assistant exchanges. It is not
// safe for concurrent use; a session owns exactly one.
type Memory struct {
	max      int
	messages []providers.Message
}

func NewMemory(maxExchanges int) *Memory {
	if maxExchanges <= 0 {
		maxExchanges = DefaultMaxExchanges
	}
	return &Memory{max: maxExchanges}
}

// AppendExchange records one user turn and the assistant reply, dropping the
// oldest exchanges once the window is full.
func (m *Memory) AppendExchange(user, assistant providers.Message) {
	m.messages = append(m.messages, user, assistant)
	if limit := m.max * 2; len(m.messages) > limit {
		m.messages = m.messages[len(m.messages)-limit:]
	}
}

// Messages returns a copy of the window in chronological order.
func (m *Memory) Messages() []providers.Message {
	out := make([]providers.Message, len(m.messages))
	copy(out, m.messages)
	return out
}

func (m *Memory) Len() int {
	return len(m.messages)
}
