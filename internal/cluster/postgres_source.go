package cluster

import (
	"context"
	"fmt"

	"github.com/devrev/pairdb/repairscheduler/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PostgresSchemaSource reads schema and membership from the metadata database
type PostgresSchemaSource struct {
	pool         *pgxpool.Pool
	includeHosts bool
	logger       *zap.Logger
}

// NewPostgresSchemaSource creates a schema source on an existing pool.
// When includeHosts is false membership is left to gossip.
func NewPostgresSchemaSource(pool *pgxpool.Pool, includeHosts bool, logger *zap.Logger) *PostgresSchemaSource {
	return &PostgresSchemaSource{
		pool:         pool,
		includeHosts: includeHosts,
		logger:       logger,
	}
}

// LoadSchema implements SchemaSource
func (s *PostgresSchemaSource) LoadSchema(ctx context.Context) (*Snapshot, error) {
	keyspaces, err := s.loadKeyspaces(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.loadTables(ctx, keyspaces); err != nil {
		return nil, err
	}

	snapshot := &Snapshot{Keyspaces: make([]model.KeyspaceMetadata, 0, len(keyspaces))}
	for _, ks := range keyspaces {
		snapshot.Keyspaces = append(snapshot.Keyspaces, ks)
	}

	if s.includeHosts {
		hosts, err := s.loadHosts(ctx)
		if err != nil {
			return nil, err
		}
		snapshot.Hosts = hosts
	}

	return snapshot, nil
}

func (s *PostgresSchemaSource) loadKeyspaces(ctx context.Context) (map[string]model.KeyspaceMetadata, error) {
	query := `
		SELECT keyspace_name, replication_strategy, replication_factor
		FROM keyspaces
		ORDER BY keyspace_name
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query keyspaces: %w", err)
	}
	defer rows.Close()

	keyspaces := make(map[string]model.KeyspaceMetadata)
	for rows.Next() {
		var name string
		var replication model.Replication
		if err := rows.Scan(&name, &replication.Strategy, &replication.ReplicationFactor); err != nil {
			return nil, fmt.Errorf("failed to scan keyspace: %w", err)
		}
		keyspaces[name] = model.NewKeyspaceMetadata(name, replication)
	}
	return keyspaces, rows.Err()
}

func (s *PostgresSchemaSource) loadTables(ctx context.Context, keyspaces map[string]model.KeyspaceMetadata) error {
	query := `
		SELECT id::text, keyspace_name, table_name
		FROM tables
		ORDER BY keyspace_name, table_name
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to query tables: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rawID, keyspace, table string
		if err := rows.Scan(&rawID, &keyspace, &table); err != nil {
			return fmt.Errorf("failed to scan table: %w", err)
		}

		id, err := uuid.Parse(rawID)
		if err != nil {
			s.logger.Warn("Skipping table with invalid id",
				zap.String("keyspace", keyspace),
				zap.String("table", table),
				zap.Error(err))
			continue
		}

		ks, exists := keyspaces[keyspace]
		if !exists {
			// Table row committed before its keyspace row
			continue
		}
		ks.Tables[table] = model.TableMetadata{ID: id, Keyspace: keyspace, Name: table}
	}
	return rows.Err()
}

func (s *PostgresSchemaSource) loadHosts(ctx context.Context) ([]HostSpec, error) {
	query := `
		SELECT node_id, host, port, virtual_nodes
		FROM storage_nodes
		WHERE status = 'active'
		ORDER BY node_id
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query storage nodes: %w", err)
	}
	defer rows.Close()

	hosts := make([]HostSpec, 0)
	for rows.Next() {
		var nodeID, host string
		var port, virtualNodes int
		if err := rows.Scan(&nodeID, &host, &port, &virtualNodes); err != nil {
			return nil, fmt.Errorf("failed to scan storage node: %w", err)
		}
		hosts = append(hosts, HostSpec{
			Host:         model.Host{ID: nodeID, Address: fmt.Sprintf("%s:%d", host, port)},
			VirtualNodes: virtualNodes,
		})
	}
	return hosts, rows.Err()
}

// Ping checks the database connection
func (s *PostgresSchemaSource) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close is a no-op; the pool is shared and closed by its owner
func (s *PostgresSchemaSource) Close() {}
