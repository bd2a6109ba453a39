package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	bbolt "go.etcd.io/bbolt"
)

var boltBucket = []byte("admin_idempotency_keys")

// BoltStore keeps idempotency records in the local catalog database used with the bolt driver.
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore prepares the idempotency bucket inside db.
func NewBoltStore(db *bbolt.DB) (*BoltStore, error) {
	if db == nil {
		return nil, errors.New("idempotency: bolt database is required")
	}
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

// Reserve implements the Store interface.
func (s *BoltStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	if err := ctx.Err(); err != nil {
		return Reservation{}, err
	}
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	var result Reservation
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(boltBucket)
		id := []byte(compositeKey(key))

		record, found, err := decodeBoltRecord(bucket.Get(id))
		if err != nil {
			return err
		}
		if !found || (!record.ExpiresAt.IsZero() && !now.Before(record.ExpiresAt)) {
			record = Record{
				Key:         key,
				Fingerprint: fingerprint,
				Status:      StatusPending,
				CreatedAt:   now,
				UpdatedAt:   now,
				ExpiresAt:   now.Add(ttl),
			}
			result = Reservation{State: ReservationStateNew, Record: record}
			return putBoltRecord(bucket, id, record)
		}
		if record.Fingerprint != fingerprint {
			return ErrFingerprintMismatch
		}
		if record.Status == StatusCompleted {
			result = Reservation{State: ReservationStateCompleted, Record: record}
			return nil
		}
		result = Reservation{State: ReservationStatePending, Record: record}
		return nil
	})
	return result, err
}

// SaveResponse implements the Store interface.
func (s *BoltStore) SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(boltBucket)
		id := []byte(compositeKey(key))

		record, found, err := decodeBoltRecord(bucket.Get(id))
		if err != nil {
			return err
		}
		if found && record.Fingerprint != fingerprint {
			return ErrFingerprintMismatch
		}
		if !found {
			record = Record{Key: key, Fingerprint: fingerprint, CreatedAt: now}
		}
		record.Status = StatusCompleted
		record.ResponseStatus = resp.Status
		record.ResponseHeaders = sanitizeHeaders(resp.Headers)
		record.ResponseBody = append([]byte(nil), resp.Body...)
		record.UpdatedAt = now
		record.ExpiresAt = now.Add(ttl)
		return putBoltRecord(bucket, id, record)
	})
}

// Release implements the Store interface.
func (s *BoltStore) Release(ctx context.Context, key, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(boltBucket).Delete([]byte(compositeKey(key)))
	})
}

// CleanupExpired implements the Store interface.
func (s *BoltStore) CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	now = now.UTC()
	removed := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(boltBucket)
		var expired [][]byte
		err := bucket.ForEach(func(k, v []byte) error {
			if limit > 0 && len(expired) >= limit {
				return nil
			}
			record, _, err := decodeBoltRecord(v)
			if err != nil {
				return err
			}
			if !record.ExpiresAt.IsZero() && !now.Before(record.ExpiresAt) {
				expired = append(expired, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range expired {
			if err := bucket.Delete(k); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	return removed, err
}

func decodeBoltRecord(raw []byte) (Record, bool, error) {
	if raw == nil {
		return Record{}, false, nil
	}
	var record Record
	if err := json.Unmarshal(raw, &record); err != nil {
		return Record{}, false, err
	}
	return record, true, nil
}

func putBoltRecord(bucket *bbolt.Bucket, id []byte, record Record) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return bucket.Put(id, raw)
}
