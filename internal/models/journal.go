package models

import (
	"encoding/json"
	"time"
)

type MutationOp string

const (
	OpInsert MutationOp = "insert"
	OpUpdate MutationOp = "update"
	OpDelete MutationOp = "delete"
)

// Mutation is one applied change with the full row image after it. Record is
// empty for deletes. Before holds the row an update replaced; it travels with
// commit results and events but is not journaled.
type Mutation struct {
	Op     MutationOp      `json:"op" bson:"op"`
	Table  Table           `json:"table" bson:"table"`
	Key    Key             `json:"key" bson:"key"`
	Record json.RawMessage `json:"record,omitempty" bson:"record,omitempty"`
	Before json.RawMessage `json:"before,omitempty" bson:"-"`
}

// CommitEntry is one committed transaction in the append-only log.
type CommitEntry struct {
	Seq         uint64     `json:"seq" bson:"seq"`
	TxID        string     `json:"tx_id" bson:"tx_id"`
	CommittedAt time.Time  `json:"committed_at" bson:"committed_at"`
	Mutations   []Mutation `json:"mutations" bson:"mutations"`
}

// Snapshot holds every committed row as of Seq, tables in key order.
type Snapshot struct {
	Seq    uint64                      `json:"seq" bson:"seq"`
	Tables map[Table][]json.RawMessage `json:"tables" bson:"-"`
}

// CommitEvent is published after a commit for downstream consumers.
type CommitEvent struct {
	Type        string     `json:"type"`
	Seq         uint64     `json:"seq"`
	TxID        string     `json:"tx_id"`
	CommittedAt time.Time  `json:"committed_at"`
	Tables      []Table    `json:"tables"`
	Mutations   []Mutation `json:"mutations"`
}

// NewCommitEvent builds the event for entry, listing touched tables in
// schema order.
func NewCommitEvent(eventType string, entry *CommitEntry) *CommitEvent {
	touched := make(map[Table]bool)
	for _, m := range entry.Mutations {
		touched[m.Table] = true
	}
	var tables []Table
	for _, t := range Tables {
		if touched[t] {
			tables = append(tables, t)
		}
	}
	return &CommitEvent{
		Type:        eventType,
		Seq:         entry.Seq,
		TxID:        entry.TxID,
		CommittedAt: entry.CommittedAt,
		Tables:      tables,
		Mutations:   entry.Mutations,
	}
}
