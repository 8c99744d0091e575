package cache

import (
	"encoding/binary"
	"fmt"
	"sort"
	"time"

	"github.com/cespare/xxhash/v2"
	badger "github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// schemaVersion is embedded in every stored value so a future change to the
// on-disk record layout can detect and discard records written by an older
// build instead of misinterpreting their bytes.
const schemaVersion uint32 = 1

// lz4Threshold is the payload size above which lz4 (better ratio, slower)
// replaces snappy (faster, worse ratio) for the disk tier, per §4.2's
// dual-algorithm split.
const lz4Threshold = 8 * 1024 * 1024 // 8 MiB

// diskTier is the badger-backed second cache tier. Keys are xxhash64
// fingerprints of the logical cache key; values are schema-version-prefixed,
// compressed payloads plus a last-access timestamp used by the sweep.
type diskTier struct {
	db     *badger.DB
	logger *zap.Logger
}

func openDiskTier(dir string, logger *zap.Logger) (*diskTier, error) {
	opts := badger.DefaultOptions(dir).
		WithLogger(nil).
		WithCompression(0)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("cache: open disk tier: %w", err)
	}
	return &diskTier{db: db, logger: logger}, nil
}

func (d *diskTier) close() error {
	return d.db.Close()
}

func fingerprint(logicalKey string) []byte {
	h := xxhash.Sum64String(logicalKey)
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, h)
	return buf
}

// record is the on-disk value layout: schemaVersion(4) | lastAccessUnix(8) |
// algo(1) | compressed payload.
func encodeRecord(payload []byte, lastAccess time.Time) ([]byte, error) {
	algo := AlgorithmSnappy
	if len(payload) > lz4Threshold {
		algo = AlgorithmLZ4
	}
	compressed, err := encodeWith(payload, algo)
	if err != nil {
		return nil, err
	}
	if len(payload) < compressionMinSize {
		compressed, err = encodeWith(payload, AlgorithmNone)
		if err != nil {
			return nil, err
		}
	}

	buf := make([]byte, 12, 12+len(compressed))
	binary.BigEndian.PutUint32(buf[0:4], schemaVersion)
	binary.BigEndian.PutUint64(buf[4:12], uint64(lastAccess.Unix()))
	buf = append(buf, compressed...)
	return buf, nil
}

func decodeRecord(stored []byte) (payload []byte, lastAccess time.Time, err error) {
	if len(stored) < 12 {
		return nil, time.Time{}, fmt.Errorf("%w: record too short", ErrDecompression)
	}
	version := binary.BigEndian.Uint32(stored[0:4])
	if version != schemaVersion {
		return nil, time.Time{}, fmt.Errorf("%w: unsupported schema version %d", ErrDecompression, version)
	}
	accessUnix := int64(binary.BigEndian.Uint64(stored[4:12]))
	payload, err = decode(stored[12:])
	if err != nil {
		return nil, time.Time{}, err
	}
	return payload, time.Unix(accessUnix, 0), nil
}

func (d *diskTier) get(logicalKey string) ([]byte, bool) {
	key := fingerprint(logicalKey)
	var payload []byte

	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			p, _, decErr := decodeRecord(val)
			if decErr != nil {
				return decErr
			}
			payload = p
			return nil
		})
	})

	if err != nil {
		if err != badger.ErrKeyNotFound {
			// Corruption on a specific key: delete it and report Miss, per §4.2.
			d.logger.Warn("disk cache entry unreadable, evicting", zap.String("key", logicalKey), zap.Error(err))
			_ = d.invalidate(logicalKey)
		}
		return nil, false
	}
	_ = d.touch(key)
	return payload, true
}

func (d *diskTier) put(logicalKey string, payload []byte, ttl time.Duration) error {
	key := fingerprint(logicalKey)
	record, err := encodeRecord(payload, time.Now())
	if err != nil {
		return err
	}
	return d.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(key, record)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
}

func (d *diskTier) touch(key []byte) error {
	return d.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) < 12 {
				return nil
			}
			updated := make([]byte, len(val))
			copy(updated, val)
			binary.BigEndian.PutUint64(updated[4:12], uint64(time.Now().Unix()))
			entry := badger.NewEntry(key, updated)
			entry.ExpiresAt = item.ExpiresAt() // keep the TTL set by put
			return txn.SetEntry(entry)
		})
	})
}

func (d *diskTier) invalidate(logicalKey string) error {
	key := fingerprint(logicalKey)
	return d.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(key)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	})
}

// size reports the on-disk footprint in bytes (LSM + value log).
func (d *diskTier) size() int64 {
	lsm, vlog := d.db.Size()
	return lsm + vlog
}

// evictOldest deletes the given fraction (0..1) of entries with the oldest
// last-access timestamp, per §4.2's "delete oldest 25% by last-access".
func (d *diskTier) evictOldest(fraction float64) (evicted int, err error) {
	type candidate struct {
		key        []byte
		lastAccess int64
	}
	var candidates []candidate

	err = d.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := append([]byte{}, item.Key()...)
			verr := item.Value(func(val []byte) error {
				if len(val) < 12 {
					return nil
				}
				candidates = append(candidates, candidate{
					key:        key,
					lastAccess: int64(binary.BigEndian.Uint64(val[4:12])),
				})
				return nil
			})
			if verr != nil {
				return verr
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	total := len(candidates)
	if total == 0 {
		return 0, nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].lastAccess < candidates[j].lastAccess
	})

	toEvict := int(float64(total) * fraction)
	if toEvict == 0 && total > 0 {
		toEvict = 1
	}

	err = d.db.Update(func(txn *badger.Txn) error {
		for i := 0; i < toEvict && i < total; i++ {
			if derr := txn.Delete(candidates[i].key); derr != nil {
				return derr
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return toEvict, nil
}
