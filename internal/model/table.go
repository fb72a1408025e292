package model

import (
	"github.com/google/uuid"
)

// TableReference identifies one physical table.
// Instances are created by the table reference factory only, so that a single
// pointer exists per table id and can be used as a map key.
type TableReference struct {
	id       uuid.UUID
	keyspace string
	table    string
}

// NewTableReference creates a table reference. Callers outside the identity
// registry should not use this directly.
func NewTableReference(id uuid.UUID, keyspace, table string) *TableReference {
	return &TableReference{
		id:       id,
		keyspace: keyspace,
		table:    table,
	}
}

// ID returns the cluster-assigned table id
func (t *TableReference) ID() uuid.UUID {
	return t.id
}

// Keyspace returns the keyspace name
func (t *TableReference) Keyspace() string {
	return t.keyspace
}

// Table returns the table name
func (t *TableReference) Table() string {
	return t.table
}

// String returns keyspace.table
func (t *TableReference) String() string {
	return t.keyspace + "." + t.table
}
