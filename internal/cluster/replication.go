package cluster

// DefaultExcludedKeyspaces are local system keyspaces that are never repaired
var DefaultExcludedKeyspaces = []string{"system", "system_schema", "system_virtual_schema", "system_views"}

// ReplicatedTableProvider decides whether the tables of a keyspace are
// replicated to the local host
type ReplicatedTableProvider interface {
	Accept(keyspace string) bool
}

// LocalReplicationProvider accepts keyspaces that have a positive
// replication factor while the local host owns tokens on the ring
type LocalReplicationProvider struct {
	cluster     *Cluster
	localHostID string
	excluded    map[string]bool
}

// NewLocalReplicationProvider creates a replication provider for the local host
func NewLocalReplicationProvider(cluster *Cluster, localHostID string, excludedKeyspaces []string) *LocalReplicationProvider {
	excluded := make(map[string]bool, len(excludedKeyspaces))
	for _, ks := range excludedKeyspaces {
		excluded[ks] = true
	}
	return &LocalReplicationProvider{
		cluster:     cluster,
		localHostID: localHostID,
		excluded:    excluded,
	}
}

// Accept implements ReplicatedTableProvider
func (p *LocalReplicationProvider) Accept(keyspace string) bool {
	if p.excluded[keyspace] {
		return false
	}

	ks, exists := p.cluster.Keyspace(keyspace)
	if !exists || ks.Replication.ReplicationFactor <= 0 {
		return false
	}

	// Every host is the first replica of the ranges ending at its own tokens
	return p.cluster.Ring().HasHost(p.localHostID)
}
