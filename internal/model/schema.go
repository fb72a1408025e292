package model

import (
	"sort"

	"github.com/google/uuid"
)

// Replication describes how a keyspace is replicated
type Replication struct {
	Strategy          string `json:"strategy"`
	ReplicationFactor int    `json:"replication_factor"`
}

// TableMetadata describes one table as seen in the cluster schema
type TableMetadata struct {
	ID       uuid.UUID `json:"id"`
	Keyspace string    `json:"keyspace"`
	Name     string    `json:"name"`
}

// KeyspaceMetadata describes one keyspace and its tables
type KeyspaceMetadata struct {
	Name        string                   `json:"name"`
	Replication Replication              `json:"replication"`
	Tables      map[string]TableMetadata `json:"tables"`
}

// NewKeyspaceMetadata creates keyspace metadata without tables
func NewKeyspaceMetadata(name string, replication Replication) KeyspaceMetadata {
	return KeyspaceMetadata{
		Name:        name,
		Replication: replication,
		Tables:      make(map[string]TableMetadata),
	}
}

// Table returns the named table
func (k KeyspaceMetadata) Table(name string) (TableMetadata, bool) {
	t, ok := k.Tables[name]
	return t, ok
}

// TableList returns the tables ordered by name
func (k KeyspaceMetadata) TableList() []TableMetadata {
	tables := make([]TableMetadata, 0, len(k.Tables))
	for _, t := range k.Tables {
		tables = append(tables, t)
	}
	sort.Slice(tables, func(i, j int) bool { return tables[i].Name < tables[j].Name })
	return tables
}

// Clone returns a deep copy
func (k KeyspaceMetadata) Clone() KeyspaceMetadata {
	c := NewKeyspaceMetadata(k.Name, k.Replication)
	for name, t := range k.Tables {
		c.Tables[name] = t
	}
	return c
}

// SchemaEventKind enumerates schema change notifications
type SchemaEventKind int

const (
	// KeyspaceAdded is sent when a keyspace is created
	KeyspaceAdded SchemaEventKind = iota
	// KeyspaceChanged is sent when keyspace options such as replication change
	KeyspaceChanged
	// KeyspaceRemoved is sent when a keyspace is dropped
	KeyspaceRemoved
	// TableAdded is sent when a table is created
	TableAdded
	// TableChanged is sent when a table is altered
	TableChanged
	// TableRemoved is sent when a table is dropped
	TableRemoved
	// OtherObjectChanged covers user types, functions, aggregates, views and
	// listener registration
	OtherObjectChanged
)

// String returns the event kind name used in logs and metrics
func (k SchemaEventKind) String() string {
	switch k {
	case KeyspaceAdded:
		return "keyspace_added"
	case KeyspaceChanged:
		return "keyspace_changed"
	case KeyspaceRemoved:
		return "keyspace_removed"
	case TableAdded:
		return "table_added"
	case TableChanged:
		return "table_changed"
	case TableRemoved:
		return "table_removed"
	default:
		return "other"
	}
}

// SchemaEvent is a single schema change notification.
// Keyspace is set for keyspace events (the removed keyspace, including its
// tables, for KeyspaceRemoved). Table is set for table events.
type SchemaEvent struct {
	Kind             SchemaEventKind
	Keyspace         KeyspaceMetadata
	PreviousKeyspace *KeyspaceMetadata
	Table            TableMetadata
	PreviousTable    *TableMetadata
	Object           string
}
