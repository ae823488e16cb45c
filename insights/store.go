// Package insights persists flagged observations and turns them into
// notifications.
package insights

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/btree"
	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/evandepol/homewatch/types"
)

// Bucket names in bbolt
var (
	bucketInsights = []byte("insights")
	bucketMeta     = []byte("meta")
)

// retentionDays bounds how long stored insights are kept.
const retentionDays = 30

// StoredInsight is an insight enriched with identity and lifecycle fields.
type StoredInsight struct {
	ID           string           `json:"id"`
	Insight      types.Insight    `json:"insight"`
	Provider     types.Tier       `json:"provider"`
	Assessment   types.Assessment `json:"assessment"`
	CreatedAt    time.Time        `json:"created_at"`
	Acknowledged bool             `json:"acknowledged"`
	Notified     bool             `json:"notified"`
}

// indexEntry orders insights by creation time in the in-memory index.
type indexEntry struct {
	CreatedAt time.Time
	ID        string
}

func entryLess(a, b *indexEntry) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// Store keeps insights on disk with a btree time index for recency queries.
type Store struct {
	mu    sync.RWMutex
	index *btree.BTreeG[*indexEntry]
	db    *bbolt.DB
}

// Open opens or creates the insight database in dir.
func Open(dir string) (*Store, error) {
	dbPath := filepath.Join(dir, "insights.db")

	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open insight database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range [][]byte{bucketInsights, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	store := &Store{
		index: btree.NewG[*indexEntry](32, entryLess),
		db:    db,
	}

	if err := store.rebuildIndex(); err != nil {
		_ = db.Close()
		return nil, err
	}
	store.pruneExpired()

	return store, nil
}

// Close closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save persists one insight and returns its assigned ID.
func (s *Store) Save(insight types.Insight, provider types.Tier, assessment types.Assessment, notified bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := StoredInsight{
		ID:         uuid.NewString(),
		Insight:    insight,
		Provider:   provider,
		Assessment: assessment,
		CreatedAt:  time.Now(),
		Notified:   notified,
	}

	if err := s.put(stored); err != nil {
		return "", err
	}

	s.index.ReplaceOrInsert(&indexEntry{CreatedAt: stored.CreatedAt, ID: stored.ID})
	return stored.ID, nil
}

// Acknowledge marks an insight as seen by the user.
func (s *Store) Acknowledge(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.getLocked(id)
	if err != nil {
		return err
	}

	stored.Acknowledged = true
	return s.put(*stored)
}

// Get returns one insight by ID.
func (s *Store) Get(id string) (*StoredInsight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getLocked(id)
}

func (s *Store) getLocked(id string) (*StoredInsight, error) {
	var stored StoredInsight
	err := s.db.View(func(tx *bbolt.Tx) error {
		value := tx.Bucket(bucketInsights).Get([]byte(id))
		if value == nil {
			return fmt.Errorf("insight %s not found", id)
		}
		return json.Unmarshal(value, &stored)
	})
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// Recent returns up to limit insights, newest first.
func (s *Store) Recent(limit int) ([]StoredInsight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, limit)
	s.index.Descend(func(entry *indexEntry) bool {
		ids = append(ids, entry.ID)
		return len(ids) < limit
	})

	out := make([]StoredInsight, 0, len(ids))
	for _, id := range ids {
		stored, err := s.getLocked(id)
		if err != nil {
			return nil, err
		}
		out = append(out, *stored)
	}
	return out, nil
}

// Statistics summarizes the stored insight set.
type Statistics struct {
	Total          int                       `json:"total"`
	Unacknowledged int                       `json:"unacknowledged"`
	AvgConfidence  float64                   `json:"avg_confidence"`
	ByType         map[types.InsightType]int `json:"by_type"`
	ByProvider     map[types.Tier]int        `json:"by_provider"`
}

// Stats walks the full store and tallies counts.
func (s *Store) Stats() (Statistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Statistics{
		ByType:     make(map[types.InsightType]int),
		ByProvider: make(map[types.Tier]int),
	}

	var confidenceSum float64
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketInsights).ForEach(func(_, value []byte) error {
			var stored StoredInsight
			if err := json.Unmarshal(value, &stored); err != nil {
				return err
			}
			stats.Total++
			if !stored.Acknowledged {
				stats.Unacknowledged++
			}
			confidenceSum += stored.Insight.Confidence
			stats.ByType[stored.Insight.Type]++
			stats.ByProvider[stored.Provider]++
			return nil
		})
	})
	if stats.Total > 0 {
		stats.AvgConfidence = confidenceSum / float64(stats.Total)
	}
	return stats, err
}

func (s *Store) put(stored StoredInsight) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		value, err := json.Marshal(stored)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketInsights).Put([]byte(stored.ID), value)
	})
}

// rebuildIndex repopulates the btree from disk on open.
func (s *Store) rebuildIndex() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketInsights).ForEach(func(key, value []byte) error {
			var stored StoredInsight
			if err := json.Unmarshal(value, &stored); err != nil {
				// Skip corrupt entries rather than refusing to start.
				return nil
			}
			s.index.ReplaceOrInsert(&indexEntry{CreatedAt: stored.CreatedAt, ID: stored.ID})
			return nil
		})
	})
}

// pruneExpired drops insights past retention. Runs at open; the store is
// small enough that startup pruning suffices.
func (s *Store) pruneExpired() {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	var expired []*indexEntry
	s.index.Ascend(func(entry *indexEntry) bool {
		if entry.CreatedAt.Before(cutoff) {
			expired = append(expired, entry)
			return true
		}
		return false
	})
	if len(expired) == 0 {
		return
	}

	_ = s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketInsights)
		for _, entry := range expired {
			_ = bucket.Delete([]byte(entry.ID))
		}
		return nil
	})
	for _, entry := range expired {
		s.index.Delete(entry)
	}
}
