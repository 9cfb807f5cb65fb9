package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoQueue is a durable Queue on a MongoDB collection. A task is claimed
// by FindOneAndDelete, which is atomic per document.
//
// Document layout:
//
//	{ _id: task ID, envelope_id, payload: encoded Task, enqueued_at, not_before }
type MongoQueue struct {
	coll         *mongo.Collection
	pollInterval time.Duration
}

var _ Queue = (*MongoQueue)(nil)

// NewMongoQueue returns a queue on dbName.collName. collName defaults to
// "routing_tasks".
func NewMongoQueue(client *mongo.Client, dbName, collName string) *MongoQueue {
	if collName == "" {
		collName = "routing_tasks"
	}
	return &MongoQueue{
		coll:         client.Database(dbName).Collection(collName),
		pollInterval: 100 * time.Millisecond,
	}
}

type mongoTaskDoc struct {
	ID         string    `bson:"_id"`
	EnvelopeID string    `bson:"envelope_id"`
	Payload    []byte    `bson:"payload"`
	EnqueuedAt time.Time `bson:"enqueued_at"`
	NotBefore  time.Time `bson:"not_before"`
}

// EnsureIndexes creates the due-order index.
func (q *MongoQueue) EnsureIndexes(ctx context.Context) error {
	_, err := q.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "not_before", Value: 1}, {Key: "enqueued_at", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("taskqueue/mongo: create index: %w", err)
	}
	return nil
}

// Enqueue upserts t by ID.
func (q *MongoQueue) Enqueue(ctx context.Context, t Task) error {
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = time.Now()
	}
	if t.NotBefore.IsZero() {
		t.NotBefore = t.EnqueuedAt
	}
	payload, err := EncodeTask(t)
	if err != nil {
		return err
	}
	doc := mongoTaskDoc{
		ID:         t.ID,
		EnvelopeID: t.Effect.EnvelopeID,
		Payload:    payload,
		EnqueuedAt: t.EnqueuedAt.UTC(),
		NotBefore:  t.NotBefore.UTC(),
	}
	_, err = q.coll.ReplaceOne(ctx, bson.M{"_id": t.ID}, doc, options.Replace().SetUpsert(true))
	return err
}

// Dequeue polls until a due task is claimed or ctx is cancelled.
func (q *MongoQueue) Dequeue(ctx context.Context) (*Task, error) {
	tmr := time.NewTimer(0)
	if !tmr.Stop() {
		select {
		case <-tmr.C:
		default:
		}
	}
	defer tmr.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var doc mongoTaskDoc
		err := q.coll.FindOneAndDelete(ctx,
			bson.M{"not_before": bson.M{"$lte": time.Now().UTC()}},
			options.FindOneAndDelete().SetSort(bson.D{{Key: "not_before", Value: 1}, {Key: "enqueued_at", Value: 1}}),
		).Decode(&doc)
		if err == nil {
			return DecodeTask(doc.Payload)
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return nil, err
		}

		tmr.Reset(q.pollInterval)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-tmr.C:
		}
	}
}

// Len counts queued tasks. It returns 0 if the count fails.
func (q *MongoQueue) Len() int {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	n, err := q.coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0
	}
	return int(n)
}
