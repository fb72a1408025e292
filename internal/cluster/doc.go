// Package cluster models the data store the scheduler repairs: its schema,
// its token ring and the change notifications both produce. Schema is loaded
// from the metadata database by SchemaRefresher; ring membership comes from
// the same database or from gossip.
package cluster
