package history

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/comigor/jenesi-go/internal/logger"
)

// ErrCorrupt is returned by stores when a persisted conversation cannot be decoded.
var ErrCorrupt = errors.New("history: corrupt payload")

// Store persists whole conversations keyed by conversation id.
// Load returns an empty slice and no error when nothing was saved yet.
type Store interface {
	Load(ctx context.Context, conversationID string) ([]Message, error)
	Save(ctx context.Context, conversationID string, msgs []Message) error
	Delete(ctx context.Context, conversationID string) error
	Close() error
}

// Memory is an in-memory Store. It is used in tests and as the fallback when
// the configured store cannot be opened.
type Memory struct {
	mu    sync.Mutex
	convs map[string][]Message
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{convs: make(map[string][]Message)}
}

func (m *Memory) Load(_ context.Context, conversationID string) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.convs[conversationID]...), nil
}

func (m *Memory) Save(_ context.Context, conversationID string, msgs []Message) error {
	m.mu.Lock()
	m.convs[conversationID] = append([]Message(nil), msgs...)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, conversationID string) error {
	m.mu.Lock()
	delete(m.convs, conversationID)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error { return nil }

// Open opens the store named by driver ("sqlite", "badger" or "memory").
// If the store cannot be opened it logs a warning and returns an in-memory
// store so the conversation keeps working without durability.
func Open(driver, path string) Store {
	var (
		s   Store
		err error
	)
	switch driver {
	case "sqlite", "":
		s, err = OpenSQLite(path)
	case "badger":
		s, err = OpenBadger(BadgerOptions{Dir: path})
	case "memory":
		return NewMemory()
	default:
		err = fmt.Errorf("unknown history driver %q", driver)
	}
	if err != nil {
		logger.L.Warn("history store unavailable; using in-memory history", "driver", driver, "error", err)
		return NewMemory()
	}
	return s
}
