// Package storage persists high-quality recommendations in an embedded
// Badger store and journals every consultation result to daily JSONL files.
package storage

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"

	"stock-scout/internal/interfaces"
	"stock-scout/internal/types"
)

// storedRecommendation is the persisted row. The key is symbol+date so a
// duplicate insert for the same symbol on the same day is a no-op, matching
// append-only semantics without updates.
type storedRecommendation struct {
	Key            string `badgerhold:"key"`
	Symbol         string `badgerhold:"index"`
	Rating         int    `badgerhold:"index"`
	Recommendation types.Recommendation
}

// Store wraps a badgerhold instance.
type Store struct {
	db *badgerhold.Store
}

var _ interfaces.RecommendationStore = (*Store)(nil)

// Open opens (creating if needed) the store under dir.
func Open(dir string) (*Store, error) {
	options := badgerhold.DefaultOptions
	options.Options = badger.DefaultOptions(dir).WithLogger(nil)

	db, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("open recommendation store: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// InsertRecommendation persists a recommendation. Badger serializes the
// underlying writes, so concurrent single-row inserts are safe. A row for
// the same symbol and day already present is kept as-is.
func (s *Store) InsertRecommendation(_ context.Context, rec *types.Recommendation) error {
	if rec == nil || rec.Symbol == "" {
		return fmt.Errorf("recommendation symbol is required")
	}
	row := &storedRecommendation{
		Key:            rec.Symbol + "/" + rec.CreatedAt.Format("2006-01-02"),
		Symbol:         rec.Symbol,
		Rating:         rec.Rating,
		Recommendation: *rec,
	}
	err := s.db.Insert(row.Key, row)
	if err == badgerhold.ErrKeyExists {
		return nil
	}
	if err != nil {
		return fmt.Errorf("insert recommendation for %s: %w", rec.Symbol, err)
	}
	return nil
}

// QueryByThreshold returns stored recommendations with rating ≥ minRating,
// newest first.
func (s *Store) QueryByThreshold(_ context.Context, minRating int) ([]types.Recommendation, error) {
	var rows []storedRecommendation
	if err := s.db.Find(&rows, badgerhold.Where("Rating").Ge(minRating)); err != nil {
		return nil, fmt.Errorf("query recommendations: %w", err)
	}
	recs := make([]types.Recommendation, len(rows))
	for i, row := range rows {
		recs[i] = row.Recommendation
	}
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].CreatedAt.After(recs[j].CreatedAt)
	})
	return recs, nil
}

// PurgeOlderThan drops stored recommendations created before the cutoff.
func (s *Store) PurgeOlderThan(cutoff time.Time) error {
	return s.db.DeleteMatching(&storedRecommendation{},
		badgerhold.Where("Recommendation.CreatedAt").Lt(cutoff))
}
