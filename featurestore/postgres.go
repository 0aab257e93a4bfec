package featurestore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/banzuzi-carioni/cross-border-electricity-flow-prediction/models"
)

// PostgresStore keeps feature records in a single TimescaleDB/Postgres table
// keyed by (group, entity, ts, metric).
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewPostgresStore(pool *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, logger: logger}
}

// EnsureSchema creates the backing table if it does not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS feature_records (
			group_name    text NOT NULL,
			group_version int  NOT NULL DEFAULT 1,
			entity_id     text NOT NULL,
			ts            timestamptz NOT NULL,
			metric        text NOT NULL,
			value         double precision NOT NULL,
			PRIMARY KEY (group_name, entity_id, ts, metric)
		)
	`)
	if err != nil {
		return fmt.Errorf("feature_records schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Write(ctx context.Context, group *models.FeatureGroup) error {
	if len(group.Records) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin write %s: %w", group.Name, err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, r := range group.Records {
		batch.Queue(`
			INSERT INTO feature_records (group_name, group_version, entity_id, ts, metric, value)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (group_name, entity_id, ts, metric) DO UPDATE SET
				value = EXCLUDED.value,
				group_version = EXCLUDED.group_version
		`, group.Name, group.Version, r.EntityID, r.TS.UTC(), r.Metric, r.Value)
	}

	results := tx.SendBatch(ctx, batch)
	for range group.Records {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("write %s: %w", group.Name, err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("write %s: %w", group.Name, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit write %s: %w", group.Name, err)
	}

	s.logger.Info("feature group written",
		zap.String("group", group.Name),
		zap.Int("records", len(group.Records)))
	return nil
}

func (s *PostgresStore) Read(ctx context.Context, group string, entityIDs []string, window models.TimeRange) ([]models.TimeSeriesRecord, error) {
	query := `
		SELECT entity_id, ts, metric, value
		FROM feature_records
		WHERE group_name = $1 AND ts >= $2 AND ts < $3
	`
	args := []interface{}{group, window.Start.UTC(), window.End.UTC()}
	if len(entityIDs) > 0 {
		query += " AND entity_id = ANY($4)"
		args = append(args, entityIDs)
	}
	query += " ORDER BY ts, entity_id, metric"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", group, err)
	}
	defer rows.Close()

	var records []models.TimeSeriesRecord
	for rows.Next() {
		var r models.TimeSeriesRecord
		if err := rows.Scan(&r.EntityID, &r.TS, &r.Metric, &r.Value); err != nil {
			return nil, fmt.Errorf("read %s: %w", group, err)
		}
		r.TS = r.TS.UTC()
		records = append(records, r)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("read %s: %w", group, rows.Err())
	}
	return records, nil
}
