package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	badger "github.com/dgraph-io/badger/v4"
)

// Badger is a Store backed by BadgerDB
type Badger struct {
	db *badger.DB
}

// BadgerOptions configures the BadgerDB store
type BadgerOptions struct {
	// Dir holds the data files; required unless InMemory is set.
	Dir string

	// InMemory runs BadgerDB without disk persistence.
	InMemory bool

	Logger *slog.Logger
}

// NewBadger opens a BadgerDB-backed Store
func NewBadger(opts BadgerOptions) (*Badger, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("catalog: BadgerOptions.Dir is required for on-disk mode")
	}

	dbOpts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		dbOpts = badger.DefaultOptions("").WithInMemory(true)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dbOpts = dbOpts.WithLogger(badgerLogger{logger: logger.With(slog.String("component", "badger"))})

	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("catalog: open badger: %w", err)
	}
	return &Badger{db: db}, nil
}

func (b *Badger) Put(_ context.Context, r *Recording) error {
	data, err := prepare(r)
	if err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(r.ID), data)
	})
}

func (b *Badger) Get(_ context.Context, id string) (Recording, error) {
	var val []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(id))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Recording{}, ErrNotFound
	}
	if err != nil {
		return Recording{}, err
	}
	return decode(val)
}

func (b *Badger) List(_ context.Context, limit int) ([]Recording, error) {
	prefix := []byte(keyPrefix)
	var out []Recording

	err := b.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = prefix
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			r, err := decode(val)
			if err != nil {
				return err
			}
			out = append(out, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return newestFirst(out, limit), nil
}

func (b *Badger) Delete(_ context.Context, id string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key(id))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	return err
}

func (b *Badger) Close() error {
	return b.db.Close()
}

// badgerLogger routes badger output to slog, dropping info and debug chatter
type badgerLogger struct {
	logger *slog.Logger
}

func (l badgerLogger) Errorf(f string, v ...interface{}) { l.logger.Error(fmt.Sprintf(f, v...)) }
func (l badgerLogger) Warningf(f string, v ...interface{}) {
	l.logger.Warn(fmt.Sprintf(f, v...))
}
func (badgerLogger) Infof(string, ...interface{})  {}
func (badgerLogger) Debugf(string, ...interface{}) {}

var _ Store = (*Badger)(nil)
