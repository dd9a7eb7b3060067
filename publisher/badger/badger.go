package badger

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/autom8ter/sql2hub/errors"
	"github.com/autom8ter/sql2hub/publisher"
	"github.com/dgraph-io/badger/v3"
	"github.com/spf13/cast"
)

func init() {
	publisher.Register("badger", func(params publisher.Params) (publisher.Publisher, error) {
		return Open(params)
	})
}

// Outbox is a durable local queue of payloads. A forwarder drains it with Pending and Ack.
// Keys are topic/<zero padded sequence number> so pending payloads iterate in publish order.
type Outbox struct {
	db     *badger.DB
	seq    *badger.Sequence
	prefix []byte
	ttl    time.Duration
}

// Open opens the outbox stored at params.ConnectionString. An empty path keeps it in memory.
// Options: ttl (a duration after which unacknowledged payloads expire, 0 for never).
func Open(params publisher.Params) (*Outbox, error) {
	var ttl time.Duration
	if val, ok := params.Options["ttl"]; ok && val != nil {
		var err error
		ttl, err = cast.ToDurationE(val)
		if err != nil {
			return nil, errors.Wrap(err, errors.Configuration, "invalid outbox ttl")
		}
	}
	opts := badger.DefaultOptions(params.ConnectionString)
	if params.ConnectionString == "" {
		opts.InMemory = true
		opts.Dir = ""
		opts.ValueDir = ""
	}
	opts = opts.WithLoggingLevel(badger.ERROR)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, errors.Publish, "failed to open outbox")
	}
	seq, err := db.GetSequence([]byte("_seq/"+params.Topic), 100)
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, errors.Publish, "failed to open outbox sequence")
	}
	return &Outbox{
		db:     db,
		seq:    seq,
		prefix: []byte(params.Topic + "/"),
		ttl:    ttl,
	}, nil
}

func (o *Outbox) Publish(ctx context.Context, payload []byte) error {
	n, err := o.seq.Next()
	if err != nil {
		return errors.Wrap(err, errors.Publish, "failed to allocate outbox key")
	}
	key := []byte(fmt.Sprintf("%s%020d", o.prefix, n))
	err = o.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(key, payload)
		if o.ttl > 0 {
			entry = entry.WithTTL(o.ttl)
		}
		return txn.SetEntry(entry)
	})
	return errors.Wrap(err, errors.Publish, "failed to store payload")
}

// PendingFunc handles one stored payload. It returns false to stop iterating.
type PendingFunc func(key string, payload []byte) (bool, error)

// Pending iterates over unacknowledged payloads, oldest first
func (o *Outbox) Pending(ctx context.Context, fn PendingFunc) error {
	return o.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = o.prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(o.prefix); it.ValidForPrefix(o.prefix); it.Next() {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			item := it.Item()
			payload, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			next, err := fn(string(item.KeyCopy(nil)), payload)
			if err != nil {
				return err
			}
			if !next {
				return nil
			}
		}
		return nil
	})
}

// Ack removes delivered payloads from the outbox
func (o *Outbox) Ack(ctx context.Context, keys ...string) error {
	return o.db.Update(func(txn *badger.Txn) error {
		for _, key := range keys {
			if !bytes.HasPrefix([]byte(key), o.prefix) {
				return errors.New(errors.Internal, "key %s does not belong to this outbox", key)
			}
			if err := txn.Delete([]byte(key)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close returns the unused sequence lease and closes the database. The database is closed even if the release fails.
func (o *Outbox) Close() error {
	err := o.seq.Release()
	if cerr := o.db.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return errors.Wrap(err, errors.Publish, "failed to close outbox")
}
