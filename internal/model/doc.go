// Package model holds the value types shared by the repair scheduler: table
// references, token ranges, vnode repair states, repair configuration,
// snapshots and schema change events.
package model
