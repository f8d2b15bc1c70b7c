package mongodb

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"ridestore/internal/models"
	"ridestore/internal/repositories/interfaces"
	"ridestore/pkg/database"
)

// snapshotsKept is how many snapshots survive pruning.
const snapshotsKept = 2

type journalRepository struct {
	commitLog *mongo.Collection
	snapshots *mongo.Collection
}

// mutationDocument stores the row image as a JSON string so the log stays
// readable in the shell and decodes with the same strict decoder.
type mutationDocument struct {
	Op     models.MutationOp `bson:"op"`
	Table  models.Table      `bson:"table"`
	Key    models.Key        `bson:"key"`
	Record string            `bson:"record,omitempty"`
}

type commitDocument struct {
	Seq         int64              `bson:"seq"`
	TxID        string             `bson:"tx_id"`
	CommittedAt time.Time          `bson:"committed_at"`
	Mutations   []mutationDocument `bson:"mutations"`
}

type snapshotDocument struct {
	Seq       int64               `bson:"seq"`
	CreatedAt time.Time           `bson:"created_at"`
	Tables    map[string][]string `bson:"tables"`
}

func NewJournalRepository(db *mongo.Database) interfaces.JournalRepository {
	return &journalRepository{
		commitLog: db.Collection(database.CommitLogCollection),
		snapshots: db.Collection(database.SnapshotsCollection),
	}
}

// Log operations
func (r *journalRepository) Append(ctx context.Context, entry *models.CommitEntry) error {
	doc := commitDocument{
		Seq:         int64(entry.Seq),
		TxID:        entry.TxID,
		CommittedAt: entry.CommittedAt,
		Mutations:   make([]mutationDocument, 0, len(entry.Mutations)),
	}
	for _, m := range entry.Mutations {
		doc.Mutations = append(doc.Mutations, mutationDocument{
			Op:     m.Op,
			Table:  m.Table,
			Key:    m.Key,
			Record: string(m.Record),
		})
	}

	_, err := r.commitLog.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("commit %d already journaled: %w", entry.Seq, err)
		}
		return fmt.Errorf("failed to append commit: %w", err)
	}

	return nil
}

func (r *journalRepository) ReadEntries(ctx context.Context, afterSeq uint64, fn func(*models.CommitEntry) error) error {
	opts := options.Find().SetSort(bson.D{{Key: "seq", Value: 1}})
	cursor, err := r.commitLog.Find(ctx, bson.M{"seq": bson.M{"$gt": int64(afterSeq)}}, opts)
	if err != nil {
		return fmt.Errorf("failed to read commit log: %w", err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var doc commitDocument
		if err := cursor.Decode(&doc); err != nil {
			return fmt.Errorf("failed to decode commit: %w", err)
		}
		if err := fn(doc.toEntry()); err != nil {
			return err
		}
	}

	if err := cursor.Err(); err != nil {
		return fmt.Errorf("failed to iterate commit log: %w", err)
	}

	return nil
}

// Snapshot operations
func (r *journalRepository) SaveSnapshot(ctx context.Context, snapshot *models.Snapshot) error {
	doc := snapshotDocument{
		Seq:       int64(snapshot.Seq),
		CreatedAt: time.Now(),
		Tables:    make(map[string][]string, len(snapshot.Tables)),
	}
	for table, rows := range snapshot.Tables {
		encoded := make([]string, len(rows))
		for i, row := range rows {
			encoded[i] = string(row)
		}
		doc.Tables[string(table)] = encoded
	}

	_, err := r.snapshots.ReplaceOne(ctx, bson.M{"seq": doc.Seq}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	return r.pruneSnapshots(ctx)
}

func (r *journalRepository) LoadSnapshot(ctx context.Context) (*models.Snapshot, error) {
	var doc snapshotDocument
	opts := options.FindOne().SetSort(bson.D{{Key: "seq", Value: -1}})
	err := r.snapshots.FindOne(ctx, bson.M{}, opts).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	snapshot := &models.Snapshot{
		Seq:    uint64(doc.Seq),
		Tables: make(map[models.Table][]json.RawMessage, len(doc.Tables)),
	}
	for table, rows := range doc.Tables {
		raw := make([]json.RawMessage, len(rows))
		for i, row := range rows {
			raw[i] = json.RawMessage(row)
		}
		snapshot.Tables[models.Table(table)] = raw
	}

	return snapshot, nil
}

func (r *journalRepository) Close() error {
	return nil
}

// pruneSnapshots drops everything older than the newest snapshotsKept.
func (r *journalRepository) pruneSnapshots(ctx context.Context) error {
	opts := options.Find().
		SetSort(bson.D{{Key: "seq", Value: -1}}).
		SetSkip(snapshotsKept - 1).
		SetLimit(1).
		SetProjection(bson.M{"seq": 1})
	cursor, err := r.snapshots.Find(ctx, bson.M{}, opts)
	if err != nil {
		return fmt.Errorf("failed to find old snapshots: %w", err)
	}
	defer cursor.Close(ctx)

	if !cursor.Next(ctx) {
		return cursor.Err()
	}
	var oldestKept struct {
		Seq int64 `bson:"seq"`
	}
	if err := cursor.Decode(&oldestKept); err != nil {
		return fmt.Errorf("failed to decode snapshot seq: %w", err)
	}

	_, err = r.snapshots.DeleteMany(ctx, bson.M{"seq": bson.M{"$lt": oldestKept.Seq}})
	if err != nil {
		return fmt.Errorf("failed to prune snapshots: %w", err)
	}

	return nil
}

func (doc commitDocument) toEntry() *models.CommitEntry {
	entry := &models.CommitEntry{
		Seq:         uint64(doc.Seq),
		TxID:        doc.TxID,
		CommittedAt: doc.CommittedAt,
		Mutations:   make([]models.Mutation, 0, len(doc.Mutations)),
	}
	for _, m := range doc.Mutations {
		mut := models.Mutation{Op: m.Op, Table: m.Table, Key: m.Key}
		if m.Record != "" {
			mut.Record = json.RawMessage(m.Record)
		}
		entry.Mutations = append(entry.Mutations, mut)
	}
	return entry
}
