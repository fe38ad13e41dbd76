package facts

// Message is the append-only discussion entity. Messages are simpler than
// facts: no schema, no retraction, a dense per-store sequence index.
type Message struct {
	ID      string `json:"id"`
	Topic   string `json:"topic,omitempty"`
	Sender  string `json:"sender"`
	Content string `json:"content"`
	TS      string `json:"ts"`
	Index   int64  `json:"index"`
}

type MessageKeys struct {
	Messages string `json:"messages"`
}

type WireMessage struct {
	Message
	Indexes MessageKeys `json:"indexes"`
}

func MessageWithIndexes(m Message) WireMessage {
	topic := m.Topic
	if topic == "" {
		topic = "general"
	}
	return WireMessage{
		Message: m,
		Indexes: MessageKeys{Messages: topic + "\x00" + m.TS + "\x00" + m.ID},
	}
}
