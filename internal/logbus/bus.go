package logbus

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Message is one entry on the bus. Seq increases by one per published
// message, so a client that reconnects can tell replayed history from live
// traffic.
type Message struct {
	Seq  uint64 `json:"seq"`
	Type string `json:"type"`
	Time int64  `json:"time"`
	Data any    `json:"data"`
}

// Bus keeps the last cap messages in a ring and fans new ones out to
// subscribers. Slow subscribers drop messages instead of blocking
// publishers. A nil *Bus discards everything.
type Bus struct {
	sink *zerolog.Logger
	now  func() time.Time

	mu     sync.Mutex
	ring   []Message
	head   int
	size   int
	seq    uint64
	subs   map[chan Message]struct{}
	closed bool
}

func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = 200
	}
	return &Bus{
		now:  time.Now,
		ring: make([]Message, capacity),
		subs: make(map[chan Message]struct{}),
	}
}

// NewWithLogger returns a bus that also writes every Log call to sink.
func NewWithLogger(capacity int, sink zerolog.Logger) *Bus {
	b := New(capacity)
	b.sink = &sink
	return b
}

func (b *Bus) Close() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		close(ch)
	}
	b.subs = nil
	b.ring, b.head, b.size = nil, 0, 0
}

// Snapshot returns the buffered messages, oldest first.
func (b *Bus) Snapshot() []Message {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.history()
}

func (b *Bus) history() []Message {
	out := make([]Message, 0, b.size)
	start := (b.head - b.size + len(b.ring)) % max(len(b.ring), 1)
	for i := 0; i < b.size; i++ {
		out = append(out, b.ring[(start+i)%len(b.ring)])
	}
	return out
}

func (b *Bus) Subscribe(buffer int) (<-chan Message, func()) {
	_, ch, cancel := b.Follow(buffer)
	return ch, cancel
}

// Follow returns the buffered history and a subscription starting right
// after it, taken under one lock so no message is lost or repeated between
// the two.
func (b *Bus) Follow(buffer int) ([]Message, <-chan Message, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Message, buffer)
	if b == nil {
		close(ch)
		return nil, ch, func() {}
	}

	b.mu.Lock()
	if b.closed {
		close(ch)
		b.mu.Unlock()
		return nil, ch, func() {}
	}
	hist := b.history()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[ch]; ok {
				delete(b.subs, ch)
				close(ch)
			}
		})
	}
	return hist, ch, cancel
}

func (b *Bus) Publish(typ string, data any) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.seq++
	msg := Message{Seq: b.seq, Type: typ, Time: b.now().UnixMilli(), Data: data}

	b.ring[b.head] = msg
	b.head = (b.head + 1) % len(b.ring)
	if b.size < len(b.ring) {
		b.size++
	}
	for ch := range b.subs {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (b *Bus) Log(level, message string, fields map[string]any) {
	if b == nil {
		return
	}
	if b.sink != nil {
		lvl, err := zerolog.ParseLevel(level)
		if err != nil || lvl == zerolog.NoLevel {
			lvl = zerolog.InfoLevel
		}
		b.sink.WithLevel(lvl).Fields(fields).Msg(message)
	}
	b.Publish(TypeLog, LogEvent{Level: level, Msg: message, Fields: fields})
}
