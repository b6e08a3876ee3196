// Package recent keeps the most-recently-updated-first list of diagram
// files in an embedded badger database.
package recent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/signalsfoundry/seqlogic/internal/logging"
)

// DefaultCapacity bounds the list when Config.Capacity is not positive.
const DefaultCapacity = 20

var filesKey = []byte("files")

// Entry is one remembered file.
type Entry struct {
	Path    string
	Updated time.Time
}

type record struct {
	Pathname    string `json:"pathname"`
	UpdatedTime int64  `json:"updatedTime"` // unix milliseconds
}

// Config configures Open.
type Config struct {
	// Path is the database directory. Ignored when InMemory is true.
	Path string

	// InMemory keeps the store in memory only. Useful for testing.
	InMemory bool

	// Capacity is the maximum number of entries kept.
	// Default: DefaultCapacity
	Capacity int

	// Logger receives badger's internal logging. Nil disables it.
	Logger logging.Logger

	// Now overrides the clock used to stamp entries.
	Now func() time.Time
}

// Store is the recent-files list. It is safe for concurrent use.
type Store struct {
	db       *badger.DB
	capacity int
	now      func() time.Time
}

// Open opens or creates the store described by cfg.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent recent-files store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create recent-files directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path).WithSyncWrites(true)
	}
	opts = opts.WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{log: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open recent-files store: %w", err)
	}

	s := &Store{db: db, capacity: cfg.Capacity, now: cfg.Now}
	if s.capacity <= 0 {
		s.capacity = DefaultCapacity
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// List returns the remembered files, most recently updated first.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var recs []record
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		recs, err = load(txn)
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make([]Entry, len(recs))
	for i, r := range recs {
		out[i] = Entry{Path: r.Pathname, Updated: time.UnixMilli(r.UpdatedTime)}
	}
	return out, nil
}

// Touch records path as updated now, moving it to the front and evicting
// the oldest entries beyond capacity.
func (s *Store) Touch(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	stamp := s.now().UnixMilli()
	return s.db.Update(func(txn *badger.Txn) error {
		recs, err := load(txn)
		if err != nil {
			return err
		}
		recs = slices.DeleteFunc(recs, func(r record) bool { return r.Pathname == path })
		// Front first so a touch within the same millisecond still wins the
		// stable sort.
		recs = slices.Insert(recs, 0, record{Pathname: path, UpdatedTime: stamp})
		slices.SortStableFunc(recs, func(a, b record) int {
			switch {
			case a.UpdatedTime > b.UpdatedTime:
				return -1
			case a.UpdatedTime < b.UpdatedTime:
				return 1
			}
			return 0
		})
		if len(recs) > s.capacity {
			recs = recs[:s.capacity]
		}
		return save(txn, recs)
	})
}

// Remove forgets path. Forgetting an unknown path is not an error.
func (s *Store) Remove(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		recs, err := load(txn)
		if err != nil {
			return err
		}
		kept := slices.DeleteFunc(recs, func(r record) bool { return r.Pathname == path })
		return save(txn, kept)
	})
}

func load(txn *badger.Txn) ([]record, error) {
	item, err := txn.Get(filesKey)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get recent files: %w", err)
	}
	var recs []record
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &recs)
	})
	if err != nil {
		return nil, fmt.Errorf("decode recent files: %w", err)
	}
	return recs, nil
}

func save(txn *badger.Txn, recs []record) error {
	if recs == nil {
		recs = []record{}
	}
	data, err := json.Marshal(recs)
	if err != nil {
		return fmt.Errorf("encode recent files: %w", err)
	}
	return txn.Set(filesKey, data)
}

type badgerLogger struct {
	log logging.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.log.Error(context.Background(), fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.log.Warn(context.Background(), fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.log.Debug(context.Background(), fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.log.Debug(context.Background(), fmt.Sprintf(format, args...))
}
