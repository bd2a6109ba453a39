// Package bolt implements the catalog repositories on a local bbolt file for offline development.
package bolt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	bbolt "go.etcd.io/bbolt"

	"github.com/nirvana-iot/catalog-api/internal/repositories"
)

var (
	bucketCategories   = []byte("categories")
	bucketServiceLinks = []byte("service_products")
	bucketSettings     = []byte("settings")
)

// Registry exposes bbolt-backed repositories.
type Registry struct {
	db         *bbolt.DB
	categories *CategoryRepository
	links      *ServiceLinkRepository
	settings   *SettingsRepository
	health     repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// Open opens (or creates) the database file and prepares the catalog buckets.
func Open(path string, clock func() time.Time) (*Registry, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("bolt registry: path is required")
	}
	if clock == nil {
		clock = time.Now
	}
	utc := func() time.Time { return clock().UTC() }

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("bolt registry: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketCategories, bucketServiceLinks, bucketSettings} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bolt registry: init buckets: %w", err)
	}

	health, err := repositories.NewDependencyHealthRepository([]repositories.DependencyCheck{{
		Name: "bolt",
		Check: func(ctx context.Context) error {
			return db.View(func(*bbolt.Tx) error { return ctx.Err() })
		},
	}})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Registry{
		db:         db,
		categories: &CategoryRepository{db: db, clock: utc},
		links:      &ServiceLinkRepository{db: db, clock: utc},
		settings:   &SettingsRepository{db: db, clock: utc},
		health:     health,
	}, nil
}

func (r *Registry) Categories() repositories.CategoryRepository     { return r.categories }
func (r *Registry) ServiceLinks() repositories.ServiceLinkRepository { return r.links }
func (r *Registry) Settings() repositories.SettingsRepository       { return r.settings }
func (r *Registry) Health() repositories.HealthRepository           { return r.health }

// DB exposes the handle so other local stores (idempotency keys) can share the file.
func (r *Registry) DB() *bbolt.DB { return r.db }

// Close closes the database file.
func (r *Registry) Close(context.Context) error {
	return r.db.Close()
}

func getJSON(bucket *bbolt.Bucket, key string, target any) (bool, error) {
	raw := bucket.Get([]byte(key))
	if raw == nil {
		return false, nil
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return true, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func putJSON(bucket *bbolt.Bucket, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return bucket.Put([]byte(key), raw)
}

func view(ctx context.Context, db *bbolt.DB, fn func(tx *bbolt.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return db.View(fn)
}

func update(ctx context.Context, db *bbolt.DB, fn func(tx *bbolt.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return db.Update(fn)
}
