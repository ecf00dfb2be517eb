// Package cache stores compiled units in SQLite, keyed by the hash of their
// source, so unchanged programs skip parsing and code generation.
package cache

import (
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/latino/compiler"
	"github.com/chazu/latino/vm"
)

var log = commonlog.GetLogger("latino.cache")

// Cache is a content-addressed store of compiled units.
type Cache struct {
	db   *sql.DB
	path string
	mu   sync.Mutex

	hits, misses int
}

// Open opens (creating if needed) the cache database at path.
func Open(path string) (*Cache, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection keeps the pragma below in effect for every query.
	db.SetMaxOpenConns(1)

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS units (
		hash       BLOB PRIMARY KEY,
		image      BLOB NOT NULL,
		created_at INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	return &Cache{db: db, path: path}, nil
}

// Close closes the database connection.
func (c *Cache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Path returns the database file path.
func (c *Cache) Path() string {
	return c.path
}

// Get returns the unit stored under hash. A missing or undecodable entry
// is a miss; undecodable entries are removed.
func (c *Cache) Get(hash [32]byte) (*vm.Function, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var data []byte
	err := c.db.QueryRow("SELECT image FROM units WHERE hash = ?", hash[:]).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		c.misses++
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("querying unit: %w", err)
	}

	fn, stored, err := vm.UnmarshalImage(data)
	if err != nil || stored != hash {
		log.Warningf("dropping unreadable cache entry %s: %v", hex.EncodeToString(hash[:8]), err)
		if _, err := c.db.Exec("DELETE FROM units WHERE hash = ?", hash[:]); err != nil {
			return nil, false, fmt.Errorf("deleting unit: %w", err)
		}
		c.misses++
		return nil, false, nil
	}
	c.hits++
	return fn, true, nil
}

// Put stores fn under hash, replacing any previous entry.
func (c *Cache) Put(hash [32]byte, fn *vm.Function) error {
	data, err := vm.MarshalImage(fn, hash)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err = c.db.Exec(
		"INSERT OR REPLACE INTO units (hash, image, created_at) VALUES (?, ?, ?)",
		hash[:], data, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("saving unit: %w", err)
	}
	return nil
}

// Compile returns the compiled form of source, from the cache when
// possible. Fresh compilations are stored; a failure to store them is
// logged and otherwise ignored.
func (c *Cache) Compile(source []byte) (*vm.Function, error) {
	hash := vm.HashSource(source)
	fn, ok, err := c.Get(hash)
	if err != nil {
		log.Warningf("cache lookup failed: %v", err)
	}
	if ok {
		log.Debugf("cache hit %s", hex.EncodeToString(hash[:8]))
		return fn, nil
	}

	fn, err = compiler.Analyze(string(source))
	if err != nil {
		return nil, err
	}
	if err := c.Put(hash, fn); err != nil {
		log.Warningf("cache store failed: %v", err)
	}
	return fn, nil
}

// Len returns the number of stored units.
func (c *Cache) Len() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int
	if err := c.db.QueryRow("SELECT COUNT(*) FROM units").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting units: %w", err)
	}
	return n, nil
}

// Prune removes entries created before cutoff and returns how many were
// removed.
func (c *Cache) Prune(cutoff time.Time) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res, err := c.db.Exec("DELETE FROM units WHERE created_at < ?", cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("pruning units: %w", err)
	}
	return res.RowsAffected()
}

// Clear removes every entry.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.db.Exec("DELETE FROM units"); err != nil {
		return fmt.Errorf("clearing units: %w", err)
	}
	return nil
}

// Stats returns the hit and miss counts since Open.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
