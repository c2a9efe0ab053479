package artifacts

import (
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"

	"github.com/buildercred/zkcred/log"
	"github.com/buildercred/zkcred/types"
)

var (
	// binMetaPrefix stores the metadata rows of the binary artifact table.
	binMetaPrefix = []byte("am/")
	// binDataPrefix stores the raw blobs of the binary artifact table.
	binDataPrefix = []byte("ab/")
	// vkPrefix stores the verification key table.
	vkPrefix = []byte("vk/")
)

// ErrTooLarge is returned by SetBinary when a single artifact alone exceeds
// the cache byte budget. The caller proceeds without caching.
var ErrTooLarge = errors.New("artifact exceeds cache budget")

// binMeta is one row of the binary artifact table, stored separately from the
// blob so eviction scans stay cheap.
type binMeta struct {
	Circuit      types.CircuitID    `json:"circuitId"`
	Type         types.ArtifactType `json:"type"`
	Version      string             `json:"version"`
	Size         int64              `json:"size"`
	LastAccessed int64              `json:"lastAccessed"` // unix nanoseconds
}

// vkRow is one row of the verification key table.
type vkRow struct {
	Circuit      types.CircuitID `json:"circuitId"`
	Version      string          `json:"version"`
	LastAccessed int64           `json:"lastAccessed"`
	Key          json.RawMessage `json:"key"`
}

// Stats summarizes the cache contents. TotalBytes covers the binary table
// only, since verification keys are exempt from the budget.
type Stats struct {
	EntryCount int   `json:"entryCount"`
	TotalBytes int64 `json:"totalBytes"`
}

// Cache is the persistent, size-bounded artifact cache. Binary artifacts
// (witness binaries and proving keys) share a byte budget enforced before
// every insert with least-recently-used eviction; verification keys are kept
// in a separate table outside the budget.
//
// Every operation is non-fatal by design: an internal storage failure turns
// reads into misses and writes into no-ops, so a broken cache can slow proof
// generation down but never block it.
type Cache struct {
	db     db.Database
	budget int64
	mu     sync.Mutex
	nowFn  func() time.Time
}

// NewCache creates a cache over the given database with the given byte
// budget for binary artifacts.
func NewCache(database db.Database, budget int64) *Cache {
	return &Cache{
		db:     database,
		budget: budget,
		nowFn:  time.Now,
	}
}

// GetBinary returns the cached bytes for the artifact, or (nil, false) on a
// miss. A corrupted or unreadable entry counts as a miss. Reading an entry
// refreshes its LRU timestamp.
func (c *Cache) GetBinary(circuit types.CircuitID, at types.ArtifactType, version string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := []byte(types.ArtifactKey{Circuit: circuit, Version: version, Type: at}.String())
	metaReader := prefixeddb.NewPrefixedReader(c.db, binMetaPrefix)
	rawMeta, err := metaReader.Get(key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			log.Warnw("cache read failed, treating as miss", "key", string(key), "err", err.Error())
		}
		return nil, false
	}
	meta := binMeta{}
	if err := json.Unmarshal(rawMeta, &meta); err != nil {
		log.Warnw("corrupted cache metadata, treating as miss", "key", string(key), "err", err.Error())
		c.deleteBinaryLocked(key)
		return nil, false
	}
	dataReader := prefixeddb.NewPrefixedReader(c.db, binDataPrefix)
	data, err := dataReader.Get(key)
	if err != nil || int64(len(data)) != meta.Size {
		log.Warnw("corrupted cache entry, treating as miss", "key", string(key))
		c.deleteBinaryLocked(key)
		return nil, false
	}
	// touch the LRU timestamp; a failed touch is not a miss
	meta.LastAccessed = c.nowFn().UnixNano()
	if raw, err := json.Marshal(meta); err == nil {
		wTx := prefixeddb.NewPrefixedWriteTx(c.db.WriteTx(), binMetaPrefix)
		if err := wTx.Set(key, raw); err == nil {
			if err := wTx.Commit(); err != nil {
				log.Warnw("cache touch failed", "key", string(key), "err", err.Error())
			}
		} else {
			wTx.Discard()
		}
	}
	return data, true
}

// SetBinary stores a binary artifact. If the insert would push the binary
// table over the budget, least-recently-used entries are evicted first. An
// artifact that alone exceeds the budget is never stored and ErrTooLarge is
// returned. Internal storage failures degrade to a no-op.
func (c *Cache) SetBinary(circuit types.CircuitID, at types.ArtifactType, version string, data []byte) error {
	if int64(len(data)) > c.budget {
		return ErrTooLarge
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.evictForLocked(int64(len(data))); err != nil {
		log.Warnw("cache eviction failed, skipping insert", "err", err.Error())
		return nil
	}
	key := []byte(types.ArtifactKey{Circuit: circuit, Version: version, Type: at}.String())
	meta := binMeta{
		Circuit:      circuit,
		Type:         at,
		Version:      version,
		Size:         int64(len(data)),
		LastAccessed: c.nowFn().UnixNano(),
	}
	rawMeta, err := json.Marshal(meta)
	if err != nil {
		log.Warnw("cache insert failed", "key", string(key), "err", err.Error())
		return nil
	}
	tx := c.db.WriteTx()
	metaTx := prefixeddb.NewPrefixedWriteTx(tx, binMetaPrefix)
	dataTx := prefixeddb.NewPrefixedWriteTx(tx, binDataPrefix)
	if err := metaTx.Set(key, rawMeta); err != nil {
		tx.Discard()
		log.Warnw("cache insert failed", "key", string(key), "err", err.Error())
		return nil
	}
	if err := dataTx.Set(key, data); err != nil {
		tx.Discard()
		log.Warnw("cache insert failed", "key", string(key), "err", err.Error())
		return nil
	}
	if err := tx.Commit(); err != nil {
		log.Warnw("cache insert commit failed", "key", string(key), "err", err.Error())
	}
	return nil
}

// GetVerificationKey returns the cached verification key JSON for the
// circuit version, or (nil, false) on a miss.
func (c *Cache) GetVerificationKey(circuit types.CircuitID, version string) (json.RawMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := []byte(types.ArtifactKey{Circuit: circuit, Version: version, Type: types.ArtifactVerificationKey}.String())
	reader := prefixeddb.NewPrefixedReader(c.db, vkPrefix)
	raw, err := reader.Get(key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			log.Warnw("vkey cache read failed, treating as miss", "key", string(key), "err", err.Error())
		}
		return nil, false
	}
	row := vkRow{}
	if err := json.Unmarshal(raw, &row); err != nil || len(row.Key) == 0 {
		log.Warnw("corrupted vkey cache entry, treating as miss", "key", string(key))
		return nil, false
	}
	row.LastAccessed = c.nowFn().UnixNano()
	if updated, err := json.Marshal(row); err == nil {
		wTx := prefixeddb.NewPrefixedWriteTx(c.db.WriteTx(), vkPrefix)
		if err := wTx.Set(key, updated); err == nil {
			if err := wTx.Commit(); err != nil {
				log.Warnw("vkey cache touch failed", "key", string(key), "err", err.Error())
			}
		} else {
			wTx.Discard()
		}
	}
	return row.Key, true
}

// SetVerificationKey stores a verification key JSON document. Verification
// keys are exempt from the byte budget.
func (c *Cache) SetVerificationKey(circuit types.CircuitID, version string, vkey json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := []byte(types.ArtifactKey{Circuit: circuit, Version: version, Type: types.ArtifactVerificationKey}.String())
	row := vkRow{
		Circuit:      circuit,
		Version:      version,
		LastAccessed: c.nowFn().UnixNano(),
		Key:          vkey,
	}
	raw, err := json.Marshal(row)
	if err != nil {
		log.Warnw("vkey cache insert failed", "key", string(key), "err", err.Error())
		return
	}
	wTx := prefixeddb.NewPrefixedWriteTx(c.db.WriteTx(), vkPrefix)
	if err := wTx.Set(key, raw); err != nil {
		wTx.Discard()
		log.Warnw("vkey cache insert failed", "key", string(key), "err", err.Error())
		return
	}
	if err := wTx.Commit(); err != nil {
		log.Warnw("vkey cache insert commit failed", "key", string(key), "err", err.Error())
	}
}

// Has reports whether all three artifact types for the circuit version are
// cached, meaning the circuit is ready to prove offline.
func (c *Cache) Has(circuit types.CircuitID, version string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	metaReader := prefixeddb.NewPrefixedReader(c.db, binMetaPrefix)
	for _, at := range []types.ArtifactType{types.ArtifactWitnessBinary, types.ArtifactProvingKey} {
		key := []byte(types.ArtifactKey{Circuit: circuit, Version: version, Type: at}.String())
		if _, err := metaReader.Get(key); err != nil {
			return false
		}
	}
	vkReader := prefixeddb.NewPrefixedReader(c.db, vkPrefix)
	vkKey := []byte(types.ArtifactKey{Circuit: circuit, Version: version, Type: types.ArtifactVerificationKey}.String())
	if _, err := vkReader.Get(vkKey); err != nil {
		return false
	}
	return true
}

// InvalidateCircuit removes every cached artifact of every version for the
// circuit. Used when a new circuit version is published.
func (c *Cache) InvalidateCircuit(circuit types.CircuitID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var binKeys, vkKeys [][]byte
	metaReader := prefixeddb.NewPrefixedReader(c.db, binMetaPrefix)
	if err := metaReader.Iterate(nil, func(k, v []byte) bool {
		meta := binMeta{}
		if err := json.Unmarshal(v, &meta); err != nil || meta.Circuit == circuit {
			binKeys = append(binKeys, append([]byte{}, k...))
		}
		return true
	}); err != nil {
		log.Warnw("cache invalidate scan failed", "circuit", string(circuit), "err", err.Error())
	}
	vkReader := prefixeddb.NewPrefixedReader(c.db, vkPrefix)
	if err := vkReader.Iterate(nil, func(k, v []byte) bool {
		row := vkRow{}
		if err := json.Unmarshal(v, &row); err != nil || row.Circuit == circuit {
			vkKeys = append(vkKeys, append([]byte{}, k...))
		}
		return true
	}); err != nil {
		log.Warnw("vkey invalidate scan failed", "circuit", string(circuit), "err", err.Error())
	}
	for _, k := range binKeys {
		c.deleteBinaryLocked(k)
	}
	if len(vkKeys) > 0 {
		wTx := prefixeddb.NewPrefixedWriteTx(c.db.WriteTx(), vkPrefix)
		for _, k := range vkKeys {
			if err := wTx.Delete(k); err != nil {
				log.Warnw("vkey delete failed", "key", string(k), "err", err.Error())
			}
		}
		if err := wTx.Commit(); err != nil {
			log.Warnw("vkey invalidate commit failed", "err", err.Error())
		}
	}
	log.Debugw("circuit invalidated", "circuit", string(circuit),
		"binaries", len(binKeys), "vkeys", len(vkKeys))
}

// Clear removes every entry from both tables.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, prefix := range [][]byte{binMetaPrefix, binDataPrefix, vkPrefix} {
		var keys [][]byte
		reader := prefixeddb.NewPrefixedReader(c.db, prefix)
		if err := reader.Iterate(nil, func(k, v []byte) bool {
			keys = append(keys, append([]byte{}, k...))
			return true
		}); err != nil {
			log.Warnw("cache clear scan failed", "err", err.Error())
			continue
		}
		wTx := prefixeddb.NewPrefixedWriteTx(c.db.WriteTx(), prefix)
		for _, k := range keys {
			if err := wTx.Delete(k); err != nil {
				log.Warnw("cache clear delete failed", "err", err.Error())
			}
		}
		if err := wTx.Commit(); err != nil {
			log.Warnw("cache clear commit failed", "err", err.Error())
		}
	}
}

// Stats returns the entry count across both tables and the total bytes held
// by the binary table.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	stats := Stats{}
	metaReader := prefixeddb.NewPrefixedReader(c.db, binMetaPrefix)
	if err := metaReader.Iterate(nil, func(k, v []byte) bool {
		meta := binMeta{}
		if err := json.Unmarshal(v, &meta); err == nil {
			stats.EntryCount++
			stats.TotalBytes += meta.Size
		}
		return true
	}); err != nil {
		log.Warnw("cache stats scan failed", "err", err.Error())
	}
	vkReader := prefixeddb.NewPrefixedReader(c.db, vkPrefix)
	if err := vkReader.Iterate(nil, func(k, v []byte) bool {
		stats.EntryCount++
		return true
	}); err != nil {
		log.Warnw("vkey stats scan failed", "err", err.Error())
	}
	return stats
}

// evictForLocked makes room for incoming bytes by evicting the globally
// least-recently-used binary entries until the new entry fits or the table is
// empty. Must be called with the mutex held.
func (c *Cache) evictForLocked(incoming int64) error {
	type candidate struct {
		key          []byte
		size         int64
		lastAccessed int64
	}
	var total int64
	var entries []candidate
	metaReader := prefixeddb.NewPrefixedReader(c.db, binMetaPrefix)
	if err := metaReader.Iterate(nil, func(k, v []byte) bool {
		meta := binMeta{}
		if err := json.Unmarshal(v, &meta); err != nil {
			// unreadable row, evict it first
			entries = append(entries, candidate{key: append([]byte{}, k...)})
			return true
		}
		total += meta.Size
		entries = append(entries, candidate{
			key:          append([]byte{}, k...),
			size:         meta.Size,
			lastAccessed: meta.LastAccessed,
		})
		return true
	}); err != nil {
		return err
	}
	if total+incoming <= c.budget {
		return nil
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].lastAccessed < entries[j].lastAccessed
	})
	for _, e := range entries {
		if total+incoming <= c.budget {
			break
		}
		c.deleteBinaryLocked(e.key)
		total -= e.size
		log.Debugw("evicted cache entry", "key", string(e.key), "size", e.size)
	}
	return nil
}

// deleteBinaryLocked removes a binary entry (meta and blob) best-effort.
func (c *Cache) deleteBinaryLocked(key []byte) {
	tx := c.db.WriteTx()
	metaTx := prefixeddb.NewPrefixedWriteTx(tx, binMetaPrefix)
	dataTx := prefixeddb.NewPrefixedWriteTx(tx, binDataPrefix)
	if err := metaTx.Delete(key); err != nil && !errors.Is(err, db.ErrKeyNotFound) {
		log.Warnw("cache delete failed", "key", string(key), "err", err.Error())
	}
	if err := dataTx.Delete(key); err != nil && !errors.Is(err, db.ErrKeyNotFound) {
		log.Warnw("cache delete failed", "key", string(key), "err", err.Error())
	}
	if err := tx.Commit(); err != nil {
		log.Warnw("cache delete commit failed", "key", string(key), "err", err.Error())
	}
}
