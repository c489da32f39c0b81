package blob

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

const (
	dataPrefix = "d:"
	typePrefix = "t:"
)

// Badger stores objects in an embedded badger database. The payload and its
// content type live under sibling keys written in one transaction.
type Badger struct {
	db *badger.DB
}

// NewBadger opens (or creates) a badger database in dir.
func NewBadger(dir string) (*Badger, error) {
	if dir == "" {
		return nil, errors.New("blob directory is not configured")
	}
	opts := badger.DefaultOptions(dir).
		WithLogger(nil).
		WithMemTableSize(16 << 20).
		WithNumMemtables(2).
		WithNumLevelZeroTables(2).
		WithNumLevelZeroTablesStall(4).
		WithBlockCacheSize(32 << 20).
		WithIndexCacheSize(16 << 20)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger blob store: %w", err)
	}
	return &Badger{db: db}, nil
}

// Backend implements Store.
func (b *Badger) Backend() string { return BackendBadger }

// Close implements Store.
func (b *Badger) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

// Put implements Store.
func (b *Badger) Put(ctx context.Context, key string, data []byte, contentType string) (Location, error) {
	if err := ctx.Err(); err != nil {
		return Location{}, err
	}
	cleaned, err := validateKey(key)
	if err != nil {
		return Location{}, err
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(dataPrefix+cleaned), data); err != nil {
			return err
		}
		return txn.Set([]byte(typePrefix+cleaned), []byte(contentType))
	})
	if err != nil {
		return Location{}, fmt.Errorf("write blob: %w", err)
	}
	return Location{
		Backend:  BackendBadger,
		Key:      key,
		Size:     int64(len(data)),
		Checksum: Checksum(data),
	}, nil
}

// Get implements Store.
func (b *Badger) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cleaned, err := validateKey(key)
	if err != nil {
		return nil, err
	}
	var data []byte
	err = b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(dataPrefix + cleaned))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read blob: %w", err)
	}
	return data, nil
}

// Stat implements Store using the stored content type.
func (b *Badger) Stat(ctx context.Context, key string) (Info, error) {
	if err := ctx.Err(); err != nil {
		return Info{}, err
	}
	cleaned, err := validateKey(key)
	if err != nil {
		return Info{}, err
	}
	info := Info{Key: key}
	err = b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(dataPrefix + cleaned))
		if err != nil {
			return err
		}
		info.Size = item.ValueSize()
		typeItem, err := txn.Get([]byte(typePrefix + cleaned))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return typeItem.Value(func(val []byte) error {
			info.ContentType = string(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Info{}, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if err != nil {
		return Info{}, fmt.Errorf("stat blob: %w", err)
	}
	return info, nil
}

// Delete implements Store.
func (b *Badger) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cleaned, err := validateKey(key)
	if err != nil {
		return err
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(dataPrefix + cleaned)); err != nil {
			return err
		}
		return txn.Delete([]byte(typePrefix + cleaned))
	})
	if err != nil {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}
