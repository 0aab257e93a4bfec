// Package featurestore is the gateway to the durable time-series store the
// pipeline writes canonical feature groups to. The store is at-least-once and
// eventually consistent: a write is not guaranteed to be visible to an
// immediately following read, so pipeline stages pass freshly produced groups
// forward in memory instead of re-querying them.
package featurestore

import (
	"context"

	"github.com/banzuzi-carioni/cross-border-electricity-flow-prediction/models"
)

// Store is the read/write contract of the feature store.
type Store interface {
	// Write upserts every record of the group. The batch is atomic: either
	// all records land or none do.
	Write(ctx context.Context, group *models.FeatureGroup) error

	// Read returns records of a group for the given entities (nil means all)
	// within the half-open window, ordered by timestamp.
	Read(ctx context.Context, group string, entityIDs []string, window models.TimeRange) ([]models.TimeSeriesRecord, error)
}
