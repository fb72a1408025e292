package store

import (
	"context"
	"fmt"

	"github.com/devrev/pairdb/repairscheduler/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PostgresRepairHistoryStore implements RepairHistoryStore for PostgreSQL.
//
// Schema:
//
//	CREATE TABLE repair_history (
//	    table_id    UUID     NOT NULL,
//	    range_start BIGINT   NOT NULL,
//	    range_end   BIGINT   NOT NULL,
//	    replicas    TEXT[]   NOT NULL,
//	    repaired_at BIGINT   NOT NULL,
//	    PRIMARY KEY (table_id, range_start, range_end)
//	);
type PostgresRepairHistoryStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresRepairHistoryStore creates a history store on an existing pool
func NewPostgresRepairHistoryStore(pool *pgxpool.Pool, logger *zap.Logger) *PostgresRepairHistoryStore {
	return &PostgresRepairHistoryStore{
		pool:   pool,
		logger: logger,
	}
}

// LoadRepairHistory implements RepairHistoryStore
func (s *PostgresRepairHistoryStore) LoadRepairHistory(ctx context.Context, tableID uuid.UUID) ([]model.VnodeRepairState, error) {
	query := `
		SELECT range_start, range_end, replicas, repaired_at
		FROM repair_history
		WHERE table_id = $1
		ORDER BY range_start, range_end
	`

	rows, err := s.pool.Query(ctx, query, tableID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to load repair history: %w", err)
	}
	defer rows.Close()

	states := make([]model.VnodeRepairState, 0)
	for rows.Next() {
		var start, end, repairedAt int64
		var replicaIDs []string
		if err := rows.Scan(&start, &end, &replicaIDs, &repairedAt); err != nil {
			return nil, fmt.Errorf("failed to scan repair history: %w", err)
		}

		replicas := make([]model.Host, 0, len(replicaIDs))
		for _, id := range replicaIDs {
			replicas = append(replicas, model.Host{ID: id})
		}
		states = append(states, model.NewVnodeRepairState(model.NewLongTokenRange(start, end), replicas, repairedAt))
	}

	return states, rows.Err()
}

// RecordRepair implements RepairHistoryStore. A recorded time never moves
// backwards.
func (s *PostgresRepairHistoryStore) RecordRepair(ctx context.Context, tableID uuid.UUID, state model.VnodeRepairState) error {
	query := `
		INSERT INTO repair_history (table_id, range_start, range_end, replicas, repaired_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (table_id, range_start, range_end) DO UPDATE
		SET replicas = EXCLUDED.replicas,
		    repaired_at = GREATEST(repair_history.repaired_at, EXCLUDED.repaired_at)
	`

	_, err := s.pool.Exec(ctx, query,
		tableID.String(),
		state.TokenRange.Start,
		state.TokenRange.End,
		state.ReplicaIDs(),
		state.LastRepairedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record repair: %w", err)
	}

	return nil
}

// Ping checks the database connection
func (s *PostgresRepairHistoryStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close is a no-op; the pool is shared and closed by its owner
func (s *PostgresRepairHistoryStore) Close() {}
