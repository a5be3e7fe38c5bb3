package db

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is the gorm-backed shared registry and gauge store. Every write is a
// single statement, so concurrent writers need no coordination beyond the database.
type Store struct {
	db *gorm.DB
}

// NewStore wraps an already migrated database handle.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// UpsertNode inserts the record or, when the uuid already exists, overwrites
// every mutable column in the same statement.
func (s *Store) UpsertNode(ctx context.Context, record *NodeRecord) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "uuid"}},
		DoUpdates: clause.AssignmentColumns(mutableNodeColumns),
	}).Create(record).Error
}

// NodesSeenSince returns records with last_seen strictly after since, ordered by name descending.
func (s *Store) NodesSeenSince(ctx context.Context, since time.Time) ([]NodeRecord, error) {
	var records []NodeRecord
	err := s.db.WithContext(ctx).
		Where("last_seen > ?", since).
		Order("name DESC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// InsertGauge appends one gauge sample.
func (s *Store) InsertGauge(ctx context.Context, gauge *NodeMetricGauge) error {
	return s.db.WithContext(ctx).Create(gauge).Error
}

// DeleteGaugesBefore removes gauge samples of every node created before cutoff.
func (s *Store) DeleteGaugesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&NodeMetricGauge{})
	return result.RowsAffected, result.Error
}

// GaugesSince returns the samples of one metric for one node created after since, oldest first.
func (s *Store) GaugesSince(ctx context.Context, nodeID, metricName string, since time.Time) ([]NodeMetricGauge, error) {
	var gauges []NodeMetricGauge
	err := s.db.WithContext(ctx).
		Where("node_id = ? AND metric_name = ? AND created_at > ?", nodeID, metricName, since).
		Order("created_at ASC").
		Find(&gauges).Error
	if err != nil {
		return nil, err
	}
	return gauges, nil
}
