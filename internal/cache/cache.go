// Package cache stores regridded fields in a local SQLite database so a
// restart does not refetch and re-triangulate every field.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// ErrMiss reports that no entry exists for the requested key.
var ErrMiss = errors.New("cache: miss")

const schema = `
CREATE TABLE IF NOT EXISTS fields (
	dataset    TEXT NOT NULL,
	variable   TEXT NOT NULL,
	time_index INTEGER NOT NULL,
	grid_sig   TEXT NOT NULL,
	payload    BLOB NOT NULL,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (dataset, variable, time_index, grid_sig)
);
`

// payload is the msgpack-encoded cache entry.
type payload struct {
	NLat   int       `msgpack:"nlat"`
	NLon   int       `msgpack:"nlon"`
	Values []float64 `msgpack:"values"`
}

// Cache is a field cache backed by one SQLite file.
type Cache struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// Open opens (creating if needed) the cache database at path.
func Open(path string, logger *zap.SugaredLogger) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening cache database %s: %v", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating cache schema in %s: %v", path, err)
	}
	return &Cache{db: db, logger: logger}, nil
}

// Get returns a cached field and its lat/lon extents, or ErrMiss.
func (c *Cache) Get(ctx context.Context, dataset, variable string, timeIndex int, gridSig string) ([]float64, int, int, error) {
	var blob []byte
	err := c.db.QueryRowContext(ctx,
		`SELECT payload FROM fields WHERE dataset=? AND variable=? AND time_index=? AND grid_sig=?`,
		dataset, variable, timeIndex, gridSig).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, 0, 0, ErrMiss
	}
	if err != nil {
		return nil, 0, 0, fmt.Errorf("cache lookup for %s/%s[%d]: %v", dataset, variable, timeIndex, err)
	}

	var p payload
	if err := msgpack.Unmarshal(blob, &p); err != nil {
		// A corrupt entry behaves as a miss; the caller will overwrite it.
		c.logger.Warnf("discarding corrupt cache entry %s/%s[%d]: %v", dataset, variable, timeIndex, err)
		return nil, 0, 0, ErrMiss
	}
	if p.NLat*p.NLon != len(p.Values) {
		c.logger.Warnf("discarding inconsistent cache entry %s/%s[%d]", dataset, variable, timeIndex)
		return nil, 0, 0, ErrMiss
	}
	return p.Values, p.NLat, p.NLon, nil
}

// Put stores a regridded field, replacing any existing entry for the key.
func (c *Cache) Put(ctx context.Context, dataset, variable string, timeIndex int, gridSig string, nlat, nlon int, values []float64) error {
	blob, err := msgpack.Marshal(payload{NLat: nlat, NLon: nlon, Values: values})
	if err != nil {
		return fmt.Errorf("encoding cache entry %s/%s[%d]: %v", dataset, variable, timeIndex, err)
	}
	_, err = c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO fields (dataset, variable, time_index, grid_sig, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		dataset, variable, timeIndex, gridSig, blob, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("storing cache entry %s/%s[%d]: %v", dataset, variable, timeIndex, err)
	}
	return nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}
