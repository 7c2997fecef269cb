package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/comigor/jenesi-go/internal/logger"
)

// ErrInvariantViolation marks a logic defect such as a duplicate message id.
var ErrInvariantViolation = errors.New("history: invariant violation")

// Log is the ordered, append-mostly conversation. Entries are only ever
// appended or truncated from the tail. Every externally observable mutation
// is written through to the Store; write failures are logged, not returned.
//
// Log is not safe for concurrent use. The chat controller serializes access.
type Log struct {
	store          Store
	conversationID string
	now            func() time.Time

	msgs []Message
	ids  map[string]struct{}
}

// LogOption configures a Log.
type LogOption func(*Log)

// WithClock overrides the time source used for new timestamps.
func WithClock(now func() time.Time) LogOption {
	return func(l *Log) { l.now = now }
}

// NewLog creates a log seeded with the greeting. Call Load to restore a
// persisted conversation.
func NewLog(store Store, conversationID string, opts ...LogOption) *Log {
	l := &Log{
		store:          store,
		conversationID: conversationID,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.reset()
	return l
}

func (l *Log) reset() {
	g := Greeting(l.now())
	l.msgs = []Message{g}
	l.ids = map[string]struct{}{g.ID: {}}
}

// Load restores the persisted conversation. A read failure, an empty payload
// or a payload that breaks the log invariants leaves the log at the seeded
// greeting. Entries persisted mid-stream are settled.
func (l *Log) Load(ctx context.Context) {
	msgs, err := l.store.Load(ctx, l.conversationID)
	if err != nil {
		logger.L.Warn("history load failed; starting from greeting", "conversation", l.conversationID, "error", err)
		l.reset()
		return
	}
	if len(msgs) == 0 {
		l.reset()
		return
	}
	if err := validate(msgs); err != nil {
		logger.L.Warn("persisted history rejected; starting from greeting", "conversation", l.conversationID, "error", err)
		l.reset()
		return
	}
	l.msgs = msgs
	l.ids = make(map[string]struct{}, len(msgs))
	for i := range l.msgs {
		l.msgs[i].IsStreaming = false
		if i > 0 && l.msgs[i].Timestamp.Before(l.msgs[i-1].Timestamp) {
			l.msgs[i].Timestamp = l.msgs[i-1].Timestamp
		}
		l.ids[l.msgs[i].ID] = struct{}{}
	}
	logger.L.Info("history restored", "conversation", l.conversationID, "messages", len(l.msgs))
}

func validate(msgs []Message) error {
	seen := make(map[string]struct{}, len(msgs))
	for i, m := range msgs {
		if m.ID == "" {
			return fmt.Errorf("%w: empty id at %d", ErrCorrupt, i)
		}
		if _, ok := seen[m.ID]; ok {
			return fmt.Errorf("%w: duplicate id %q", ErrCorrupt, m.ID)
		}
		seen[m.ID] = struct{}{}
		if !m.Role.Valid() {
			return fmt.Errorf("%w: unknown role %q", ErrCorrupt, m.Role)
		}
		if m.IsError && i != len(msgs)-1 {
			return fmt.Errorf("%w: error message %q is not the tail", ErrCorrupt, m.ID)
		}
	}
	return nil
}

// Len returns the number of entries.
func (l *Log) Len() int { return len(l.msgs) }

// Messages returns a copy of all entries in order.
func (l *Log) Messages() []Message {
	return append([]Message(nil), l.msgs...)
}

// Suffix returns a copy of the last n entries.
func (l *Log) Suffix(n int) []Message {
	if n > len(l.msgs) {
		n = len(l.msgs)
	}
	if n < 0 {
		n = 0
	}
	return append([]Message(nil), l.msgs[len(l.msgs)-n:]...)
}

// Last returns the tail entry.
func (l *Log) Last() (Message, bool) {
	if len(l.msgs) == 0 {
		return Message{}, false
	}
	return l.msgs[len(l.msgs)-1], true
}

// Get returns the entry with the given id.
func (l *Log) Get(id string) (Message, bool) {
	if i := l.index(id); i >= 0 {
		return l.msgs[i], true
	}
	return Message{}, false
}

// Stamp returns a timestamp that keeps the log non-decreasing.
func (l *Log) Stamp() time.Time {
	t := l.now()
	if last, ok := l.Last(); ok && t.Before(last.Timestamp) {
		return last.Timestamp
	}
	return t
}

// Append adds m to the tail. A zero timestamp is filled in; a timestamp older
// than the tail is raised to the tail's.
func (l *Log) Append(m Message) error {
	if _, dup := l.ids[m.ID]; dup || m.ID == "" {
		return fmt.Errorf("%w: duplicate message id %q", ErrInvariantViolation, m.ID)
	}
	if last, ok := l.Last(); ok {
		if m.Timestamp.IsZero() || m.Timestamp.Before(last.Timestamp) {
			m.Timestamp = l.Stamp()
		}
	} else if m.Timestamp.IsZero() {
		m.Timestamp = l.now()
	}
	l.msgs = append(l.msgs, m)
	l.ids[m.ID] = struct{}{}
	l.persist()
	return nil
}

// ReplaceByID patches the entry with the given id in memory. It reports
// whether the entry exists; an absent id is silently ignored so late updates
// after a Clear do nothing. The id cannot be changed by mutate.
func (l *Log) ReplaceByID(id string, mutate func(*Message)) bool {
	i := l.index(id)
	if i < 0 {
		return false
	}
	mutate(&l.msgs[i])
	l.msgs[i].ID = id
	return true
}

// SettleByID is ReplaceByID followed by a durable write.
func (l *Log) SettleByID(id string, mutate func(*Message)) bool {
	if !l.ReplaceByID(id, mutate) {
		return false
	}
	l.persist()
	return true
}

// TruncateTail removes trailing entries while match holds and returns the
// number removed.
func (l *Log) TruncateTail(match func(Message) bool) int {
	n := 0
	for len(l.msgs) > 0 && match(l.msgs[len(l.msgs)-1]) {
		delete(l.ids, l.msgs[len(l.msgs)-1].ID)
		l.msgs = l.msgs[:len(l.msgs)-1]
		n++
	}
	if n > 0 {
		l.persist()
	}
	return n
}

// Clear resets the log to the seeded greeting and deletes persisted state.
func (l *Log) Clear() {
	l.reset()
	if err := l.store.Delete(context.Background(), l.conversationID); err != nil {
		logger.L.Error("failed to delete persisted history", "conversation", l.conversationID, "error", err)
	}
}

func (l *Log) index(id string) int {
	if _, ok := l.ids[id]; !ok {
		return -1
	}
	for i := len(l.msgs) - 1; i >= 0; i-- {
		if l.msgs[i].ID == id {
			return i
		}
	}
	return -1
}

func (l *Log) persist() {
	if err := l.store.Save(context.Background(), l.conversationID, l.msgs); err != nil {
		logger.L.Error("failed to persist history; continuing in memory", "conversation", l.conversationID, "error", err)
	}
}
