package cluster

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SchemaSource loads the current schema of the data store
type SchemaSource interface {
	LoadSchema(ctx context.Context) (*Snapshot, error)
	Ping(ctx context.Context) error
	Close()
}

// SchemaRefresher periodically loads the schema from a SchemaSource and
// applies it to the cluster view, which turns differences into events
type SchemaRefresher struct {
	source   SchemaSource
	cluster  *Cluster
	interval time.Duration
	timeout  time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	logger   *zap.Logger
}

// NewSchemaRefresher creates a schema refresher
func NewSchemaRefresher(source SchemaSource, cluster *Cluster, interval time.Duration, logger *zap.Logger) *SchemaRefresher {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &SchemaRefresher{
		source:   source,
		cluster:  cluster,
		interval: interval,
		timeout:  10 * time.Second,
		stopCh:   make(chan struct{}),
		logger:   logger,
	}
}

// Refresh loads and applies the schema once
func (r *SchemaRefresher) Refresh(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	snapshot, err := r.source.LoadSchema(ctx)
	if err != nil {
		return fmt.Errorf("failed to load schema: %w", err)
	}

	r.cluster.Apply(snapshot)

	r.logger.Debug("Schema refreshed",
		zap.Int("keyspaces", len(snapshot.Keyspaces)),
		zap.Int("hosts", len(snapshot.Hosts)))
	return nil
}

// Start begins periodic refreshes in the background
func (r *SchemaRefresher) Start() {
	r.wg.Add(1)
	go r.run()
}

func (r *SchemaRefresher) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := r.Refresh(context.Background()); err != nil {
				r.logger.Error("Failed to refresh schema", zap.Error(err))
			}
		case <-r.stopCh:
			return
		}
	}
}

// Stop ends the background refreshes
func (r *SchemaRefresher) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
	})
	r.wg.Wait()
}
