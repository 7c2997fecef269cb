package history

import (
	"context"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/comigor/jenesi-go/internal/logger"
)

// BadgerStore is a Store backed by BadgerDB. A conversation is stored as one
// msgpack-encoded value under "conversation:<id>".
type BadgerStore struct {
	db *badger.DB
}

// BadgerOptions configures the BadgerDB store.
type BadgerOptions struct {
	// Dir is the directory for BadgerDB data files. Required unless InMemory.
	Dir string

	// InMemory runs BadgerDB without disk persistence. Used by tests.
	InMemory bool
}

// OpenBadger opens a BadgerDB-backed store.
func OpenBadger(opts BadgerOptions) (*BadgerStore, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("history: BadgerOptions.Dir is required for on-disk mode")
	}
	dbOpts := badger.DefaultOptions(opts.Dir).WithLogger(badgerLogger{})
	if opts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("badger open: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func conversationKey(id string) []byte {
	return []byte("conversation:" + id)
}

func (b *BadgerStore) Load(_ context.Context, conversationID string) ([]Message, error) {
	var raw []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(conversationKey(conversationID))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var msgs []Message
	if err := msgpack.Unmarshal(raw, &msgs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return msgs, nil
}

func (b *BadgerStore) Save(_ context.Context, conversationID string, msgs []Message) error {
	raw, err := msgpack.Marshal(msgs)
	if err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(conversationKey(conversationID), raw)
	})
}

func (b *BadgerStore) Delete(_ context.Context, conversationID string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(conversationKey(conversationID))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	return err
}

func (b *BadgerStore) Close() error {
	return b.db.Close()
}

// badgerLogger routes badger's logging into the application logger.
// Info and debug chatter is dropped.
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...any) {
	logger.L.Error(fmt.Sprintf(format, args...), "component", "badger")
}

func (badgerLogger) Warningf(format string, args ...any) {
	logger.L.Warn(fmt.Sprintf(format, args...), "component", "badger")
}

func (badgerLogger) Infof(string, ...any)  {}
func (badgerLogger) Debugf(string, ...any) {}
