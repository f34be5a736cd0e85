package cache

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

var (
	// ErrKeyNotFound is returned when a key is not found in the cache
	ErrKeyNotFound = errors.New("key not found in cache")
)

// Cache is the key/value store behind cached annotations.
type Cache interface {
	// Set stores a value; a zero ttl keeps it until deleted
	Set(key string, value []byte, ttl time.Duration) error
	// Get retrieves a value or ErrKeyNotFound
	Get(key string) ([]byte, error)
	Delete(key string) error
	Close() error
}

// BadgerCache implements Cache using BadgerDB
type BadgerCache struct {
	db     *badger.DB
	prefix string
}

// NewBadgerCache opens (or creates) a BadgerDB cache at path. Keys are
// namespaced with prefix so several caches can share one directory.
func NewBadgerCache(path, prefix string) (*BadgerCache, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	return open(opts, prefix)
}

// NewMemoryCache opens an in-memory BadgerDB cache that vanishes on Close.
func NewMemoryCache(prefix string) (*BadgerCache, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	return open(opts, prefix)
}

func open(opts badger.Options, prefix string) (*BadgerCache, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}
	return &BadgerCache{db: db, prefix: prefix}, nil
}

func (c *BadgerCache) key(k string) []byte {
	return []byte(c.prefix + k)
}

// Set stores a value with a TTL
func (c *BadgerCache) Set(key string, value []byte, ttl time.Duration) error {
	return c.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(c.key(key), value)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
}

// Get retrieves a value
func (c *BadgerCache) Get(key string) ([]byte, error) {
	var val []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(c.key(key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	return val, nil
}

// Delete removes a value
func (c *BadgerCache) Delete(key string) error {
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(c.key(key))
	})
}

// Close closes the cache
func (c *BadgerCache) Close() error {
	return c.db.Close()
}
