package app

import "sync"

// Event is pushed to everyone watching a player. Type names mirror the websocket protocol.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

const (
	EventTimedState    = "timed.state"
	EventTimedAnswered = "timed.answered"
	EventTimedFinished = "timed.finished"
	EventThemedState   = "themed.state"
	EventThemedResults = "themed.results"
	EventHistorySaved  = "history.saved"
	EventFocusState    = "focus.state"
	EventNotice        = "notice"
)

// Notice is a transient, non-blocking user notification.
type Notice struct {
	Level   string `json:"level"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

func infoNotice(title, message string) Event {
	return Event{Type: EventNotice, Payload: Notice{Level: "info", Title: title, Message: message}}
}

func errorNotice(title, message string) Event {
	return Event{Type: EventNotice, Payload: Notice{Level: "error", Title: title, Message: message}}
}

// Publisher receives session events.
type Publisher interface {
	Publish(ev Event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(Event) {}

// Broadcaster fans events out to subscribers without ever blocking the publisher.
type Broadcaster struct {
	mu          sync.Mutex
	subscribers map[chan Event]struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subscribers: make(map[chan Event]struct{})}
}

// Subscribe registers a listener. The caller must invoke cancel to avoid leaks.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 32)

	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subscribers[ch]; ok {
			delete(b.subscribers, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Subscribers counts active listeners.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

func (b *Broadcaster) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
			// Slow listener: drop its oldest event so the publisher never blocks.
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}
