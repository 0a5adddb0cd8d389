package db

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
	"golang.org/x/xerrors"
	"k8s.io/utils/clock"

	"github.com/vulnscope/vulnscope/pkg/log"
	"github.com/vulnscope/vulnscope/pkg/types"
)

const (
	SchemaVersion = 1

	metadataBucket = "vulnscope"
	lookupBucket   = "osv"

	DefaultTTL = 24 * time.Hour
)

type Metadata struct {
	Version   int
	CreatedAt time.Time
}

// Operations is the subset of the cache the lookup decorator depends on.
type Operations interface {
	GetLookup(pkg types.Package) ([]types.Vulnerability, bool, error)
	PutLookup(pkg types.Package, vulns []types.Vulnerability) error
}

// Entry is a cached lookup response.
type Entry struct {
	Vulnerabilities []types.Vulnerability
	StoredAt        time.Time
}

// DB caches vulnerability lookups in a bolt file under the cache directory.
type DB struct {
	db    *bolt.DB
	path  string
	ttl   time.Duration
	clock clock.Clock
}

type Option func(*DB)

func WithClock(clock clock.Clock) Option {
	return func(d *DB) {
		d.clock = clock
	}
}

func WithTTL(ttl time.Duration) Option {
	return func(d *DB) {
		d.ttl = ttl
	}
}

func Open(cacheDir string, opts ...Option) (*DB, error) {
	dbPath := Path(cacheDir)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, xerrors.Errorf("failed to mkdir: %w", err)
	}

	log.Debug("Opening lookup cache", log.FilePath(dbPath))
	bdb, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, xerrors.Errorf("failed to open db: %w", err)
	}

	d := &DB{
		db:    bdb,
		path:  dbPath,
		ttl:   DefaultTTL,
		clock: clock.RealClock{},
	}
	for _, opt := range opts {
		opt(d)
	}

	if err = d.ensureMetadata(); err != nil {
		_ = bdb.Close()
		return nil, err
	}
	return d, nil
}

func Path(cacheDir string) string {
	return filepath.Join(cacheDir, "db", "vulnscope.db")
}

// Remove deletes the cache file under cacheDir, if any.
func Remove(cacheDir string) error {
	if err := os.RemoveAll(filepath.Dir(Path(cacheDir))); err != nil {
		return xerrors.Errorf("failed to remove cache: %w", err)
	}
	return nil
}

func (d *DB) Path() string {
	return d.path
}

func (d *DB) Close() error {
	if err := d.db.Close(); err != nil {
		return xerrors.Errorf("failed to close DB: %w", err)
	}
	return nil
}

func (d *DB) Metadata() (Metadata, error) {
	var metadata Metadata
	value, err := d.get(metadataBucket, "metadata", "data")
	if err != nil {
		return Metadata{}, err
	}
	if value == nil {
		return Metadata{}, nil
	}
	if err = json.Unmarshal(value, &metadata); err != nil {
		return Metadata{}, xerrors.Errorf("failed to unmarshal metadata: %w", err)
	}
	return metadata, nil
}

// ensureMetadata stamps a fresh cache and drops lookups written under an
// older schema.
func (d *DB) ensureMetadata() error {
	md, err := d.Metadata()
	if err != nil {
		return err
	}
	if md.Version == SchemaVersion {
		return nil
	}
	if md.Version != 0 {
		log.Info("Cache schema changed, dropping cached lookups", log.Int("old", md.Version), log.Int("new", SchemaVersion))
		if err = d.deleteBucket(lookupBucket); err != nil {
			return err
		}
	}
	md = Metadata{Version: SchemaVersion, CreatedAt: d.clock.Now().UTC()}
	if err = d.update(metadataBucket, "metadata", "data", md); err != nil {
		return xerrors.Errorf("failed to save metadata: %w", err)
	}
	return nil
}

// GetLookup returns the cached response for pkg. Entries older than the TTL
// are reported as missing.
func (d *DB) GetLookup(pkg types.Package) ([]types.Vulnerability, bool, error) {
	value, err := d.get(lookupBucket, pkg.Ecosystem, lookupKey(pkg))
	if err != nil {
		return nil, false, err
	}
	if value == nil {
		return nil, false, nil
	}

	var e Entry
	if err = json.Unmarshal(value, &e); err != nil {
		return nil, false, xerrors.Errorf("failed to unmarshal cache entry: %w", err)
	}
	if d.ttl > 0 && d.clock.Since(e.StoredAt) > d.ttl {
		return nil, false, nil
	}
	return e.Vulnerabilities, true, nil
}

func (d *DB) PutLookup(pkg types.Package, vulns []types.Vulnerability) error {
	e := Entry{
		Vulnerabilities: vulns,
		StoredAt:        d.clock.Now().UTC(),
	}
	if err := d.update(lookupBucket, pkg.Ecosystem, lookupKey(pkg), e); err != nil {
		return xerrors.Errorf("failed to cache lookup: %w", err)
	}
	return nil
}

// Count returns the number of cached lookups per ecosystem.
func (d *DB) Count() (map[string]int, error) {
	counts := map[string]int{}
	err := d.db.View(func(tx *bolt.Tx) error {
		root := tx.Bucket([]byte(lookupBucket))
		if root == nil {
			return nil
		}
		return root.ForEachBucket(func(k []byte) error {
			counts[string(k)] = root.Bucket(k).Stats().KeyN
			return nil
		})
	})
	if err != nil {
		return nil, xerrors.Errorf("failed to count cache entries: %w", err)
	}
	return counts, nil
}

// Purge removes expired lookups and returns how many were dropped.
func (d *DB) Purge() (int, error) {
	var purged int
	err := d.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket([]byte(lookupBucket))
		if root == nil {
			return nil
		}
		return root.ForEachBucket(func(k []byte) error {
			nested := root.Bucket(k)
			var stale [][]byte
			err := nested.ForEach(func(k, v []byte) error {
				var e Entry
				if err := json.Unmarshal(v, &e); err != nil || d.clock.Since(e.StoredAt) > d.ttl {
					stale = append(stale, append([]byte(nil), k...))
				}
				return nil
			})
			if err != nil {
				return err
			}
			for _, key := range stale {
				if err = nested.Delete(key); err != nil {
					return xerrors.Errorf("failed to delete %s: %w", key, err)
				}
			}
			purged += len(stale)
			return nil
		})
	})
	if err != nil {
		return 0, xerrors.Errorf("error in cache purge: %w", err)
	}
	return purged, nil
}

func lookupKey(pkg types.Package) string {
	return pkg.Name + "@" + pkg.Version
}

func (d *DB) update(rootBucket, nestedBucket, key string, value interface{}) error {
	err := d.db.Update(func(tx *bolt.Tx) error {
		return d.putNestedBucket(tx, rootBucket, nestedBucket, key, value)
	})
	if err != nil {
		return xerrors.Errorf("error in db update: %w", err)
	}
	return nil
}

func (d *DB) putNestedBucket(tx *bolt.Tx, rootBucket, nestedBucket, key string, value interface{}) error {
	root, err := tx.CreateBucketIfNotExists([]byte(rootBucket))
	if err != nil {
		return xerrors.Errorf("failed to create a bucket: %w", err)
	}
	return d.put(root, nestedBucket, key, value)
}

func (d *DB) put(root *bolt.Bucket, nestedBucket, key string, value interface{}) error {
	nested, err := root.CreateBucketIfNotExists([]byte(nestedBucket))
	if err != nil {
		return xerrors.Errorf("failed to create a bucket: %w", err)
	}
	v, err := json.Marshal(value)
	if err != nil {
		return xerrors.Errorf("failed to marshal JSON: %w", err)
	}
	return nested.Put([]byte(key), v)
}

func (d *DB) get(rootBucket, nestedBucket, key string) (value []byte, err error) {
	err = d.db.View(func(tx *bolt.Tx) error {
		root := tx.Bucket([]byte(rootBucket))
		if root == nil {
			return nil
		}
		nested := root.Bucket([]byte(nestedBucket))
		if nested == nil {
			return nil
		}
		// bolt values are only valid inside the transaction
		if v := nested.Get([]byte(key)); v != nil {
			value = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, xerrors.Errorf("failed to get data from db: %w", err)
	}
	return value, nil
}

func (d *DB) deleteBucket(bucketName string) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket([]byte(bucketName)) == nil {
			return nil
		}
		if err := tx.DeleteBucket([]byte(bucketName)); err != nil {
			return xerrors.Errorf("failed to delete bucket: %w", err)
		}
		return nil
	})
}
