package main

import (
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
)

// MetadataCache stores raw metadata responses by lookup key.
type MetadataCache interface {
	Get(key string) ([]byte, bool)
	Put(key string, value []byte) error
	Delete(key string) error
	Close() error
}

// LevelDBCache implements MetadataCache on a LevelDB directory.
type LevelDBCache struct {
	db *leveldb.DB
}

func OpenLevelDBCache(dir string) (*LevelDBCache, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("open metadata cache %s: %w", dir, err)
	}
	return &LevelDBCache{db: db}, nil
}

// Get treats any read failure as a miss.
func (c *LevelDBCache) Get(key string) ([]byte, bool) {
	data, err := c.db.Get([]byte(key), nil)
	if err != nil {
		return nil, false
	}
	return data, true
}

func (c *LevelDBCache) Put(key string, value []byte) error {
	return c.db.Put([]byte(key), value, nil)
}

// Delete drops a cached entry; a missing key is not an error.
func (c *LevelDBCache) Delete(key string) error {
	err := c.db.Delete([]byte(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil
	}
	return err
}

func (c *LevelDBCache) Close() error {
	return c.db.Close()
}
