package persistence

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/petrijr/envroute/pkg/api"
)

// MongoStore is a WorkflowStore backed by one MongoDB document per envelope.
//
// Writes are compare-and-swap on the document's version field; a writer that
// loses the race reloads and re-runs its mutation.
type MongoStore struct {
	coll       *mongo.Collection
	maxRetries int
}

var _ WorkflowStore = (*MongoStore)(nil)

// NewMongoStore creates a Mongo-backed workflow store.
// dbName defaults to "envroute" if empty, collName defaults to "routing_workflows".
func NewMongoStore(client *mongo.Client, dbName, collName string) *MongoStore {
	if dbName == "" {
		dbName = "envroute"
	}
	if collName == "" {
		collName = "routing_workflows"
	}

	return &MongoStore{
		coll:       client.Database(dbName).Collection(collName),
		maxRetries: DefaultMaxRetries,
	}
}

type mongoWorkflowDoc struct {
	EnvelopeID        string     `bson:"_id"`
	WorkflowID        string     `bson:"workflow_id"`
	Status            string     `bson:"status"`
	ScheduledResumeAt *time.Time `bson:"scheduled_resume_at,omitempty"`
	CreatedAt         time.Time  `bson:"created_at"`
	Version           int64      `bson:"version"`
	Snapshot          []byte     `bson:"snapshot"`
}

func toMongoDoc(s *api.Snapshot) (*mongoWorkflowDoc, error) {
	data, err := EncodeSnapshot(s)
	if err != nil {
		return nil, err
	}
	wf := s.Workflow
	doc := &mongoWorkflowDoc{
		EnvelopeID: wf.EnvelopeID,
		WorkflowID: wf.ID,
		Status:     string(wf.Status),
		CreatedAt:  wf.CreatedAt,
		Version:    wf.Version,
		Snapshot:   data,
	}
	if isScheduled(wf) {
		at := wf.ScheduledResumeAt.UTC()
		doc.ScheduledResumeAt = &at
	}
	return doc, nil
}

// EnsureIndexes creates the index used by the scheduled-resume sweep.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "status", Value: 1}, {Key: "scheduled_resume_at", Value: 1}},
	})
	return err
}

func (s *MongoStore) Mutate(ctx context.Context, envelopeID string, fn MutateFunc) error {
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		var doc mongoWorkflowDoc
		found := true
		err := s.coll.FindOne(ctx, bson.M{"_id": envelopeID}).Decode(&doc)
		if errors.Is(err, mongo.ErrNoDocuments) {
			found = false
		} else if err != nil {
			return err
		}

		var prev *api.Snapshot
		if found {
			if prev, err = DecodeSnapshot(doc.Snapshot); err != nil {
				return err
			}
			prev.Workflow.Version = doc.Version
		}

		next, err := fn(prev.Clone())
		if err != nil {
			return err
		}
		if next == nil {
			return nil
		}
		if err := prepareNext(next, prev); err != nil {
			return err
		}
		newDoc, err := toMongoDoc(next)
		if err != nil {
			return err
		}
		newDoc.EnvelopeID = envelopeID

		if !found {
			_, err = s.coll.InsertOne(ctx, newDoc)
			if mongo.IsDuplicateKeyError(err) {
				continue
			}
			return err
		}

		res, err := s.coll.ReplaceOne(ctx, bson.M{"_id": envelopeID, "version": doc.Version}, newDoc)
		if err != nil {
			return err
		}
		if res.MatchedCount == 0 {
			continue
		}
		return nil
	}
	return ErrConflict
}

func (s *MongoStore) Get(ctx context.Context, envelopeID string) (*api.Snapshot, error) {
	var doc mongoWorkflowDoc
	if err := s.coll.FindOne(ctx, bson.M{"_id": envelopeID}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrWorkflowNotFound
		}
		return nil, err
	}
	snap, err := DecodeSnapshot(doc.Snapshot)
	if err != nil {
		return nil, err
	}
	snap.Workflow.Version = doc.Version
	return snap, nil
}

func (s *MongoStore) List(ctx context.Context, filter WorkflowFilter) ([]*api.Workflow, error) {
	query := bson.M{}
	if filter.Status != "" {
		query["status"] = string(filter.Status)
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})

	cur, err := s.coll.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var result []*api.Workflow
	for cur.Next(ctx) {
		var doc mongoWorkflowDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		snap, err := DecodeSnapshot(doc.Snapshot)
		if err != nil {
			return nil, err
		}
		snap.Workflow.Version = doc.Version
		result = append(result, snap.Workflow)
	}
	return result, cur.Err()
}

func (s *MongoStore) ListScheduled(ctx context.Context, dueBy time.Time) ([]string, error) {
	query := bson.M{
		"status":              string(api.WorkflowPaused),
		"scheduled_resume_at": bson.M{"$lte": dueBy.UTC()},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "scheduled_resume_at", Value: 1}, {Key: "_id", Value: 1}}).
		SetProjection(bson.M{"_id": 1})

	cur, err := s.coll.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []string
	for cur.Next(ctx) {
		var doc struct {
			ID string `bson:"_id"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.ID)
	}
	return out, cur.Err()
}
