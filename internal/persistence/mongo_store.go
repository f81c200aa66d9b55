package persistence

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/petrijr/sagaflow/pkg/api"
)

// MongoResultStore is a ResultStore backed by a MongoDB collection. The
// searchable fields are stored as plain document fields next to the
// gob-encoded payload.
type MongoResultStore struct {
	coll *mongo.Collection
}

var _ ResultStore = (*MongoResultStore)(nil)

// NewMongoResultStore creates a Mongo-backed result store.
// dbName defaults to "sagaflow" if empty, collName defaults to "run_results".
func NewMongoResultStore(client *mongo.Client, dbName, collName string) *MongoResultStore {
	if dbName == "" {
		dbName = "sagaflow"
	}
	if collName == "" {
		collName = "run_results"
	}

	return &MongoResultStore{
		coll: client.Database(dbName).Collection(collName),
	}
}

type mongoResultDoc struct {
	ID         string `bson:"_id"`
	Workflow   string `bson:"workflow_name"`
	Status     string `bson:"status"`
	FailedStep string `bson:"failed_step,omitempty"`
	ErrorKind  string `bson:"error_kind,omitempty"`
	StartedAt  int64  `bson:"started_at"`
	FinishedAt int64  `bson:"finished_at"`
	Payload    []byte `bson:"payload"`
}

func (s *MongoResultStore) SaveResult(ctx context.Context, r *api.RunResult) error {
	payload, err := EncodeResult(r)
	if err != nil {
		return err
	}

	doc := mongoResultDoc{
		ID:         r.ID,
		Workflow:   r.Workflow,
		Status:     string(r.Status),
		FailedStep: r.FailedStep,
		ErrorKind:  errorKind(r),
		StartedAt:  r.StartedAt.UnixNano(),
		FinishedAt: r.FinishedAt.UnixNano(),
		Payload:    payload,
	}

	_, err = s.coll.ReplaceOne(ctx, bson.M{"_id": r.ID}, doc, options.Replace().SetUpsert(true))
	return err
}

func (s *MongoResultStore) GetResult(ctx context.Context, id string) (*api.RunResult, error) {
	var doc mongoResultDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrResultNotFound
		}
		return nil, err
	}
	return DecodeResult(doc.Payload)
}

func (s *MongoResultStore) ListResults(ctx context.Context, filter ResultFilter) ([]*api.RunResult, error) {
	bfilter := bson.M{}
	if filter.Workflow != "" {
		bfilter["workflow_name"] = filter.Workflow
	}
	if filter.Status != "" {
		bfilter["status"] = string(filter.Status)
	}

	opts := options.Find().SetSort(bson.D{{Key: "started_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.coll.Find(ctx, bfilter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var results []*api.RunResult
	for cur.Next(ctx) {
		var doc mongoResultDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		r, err := DecodeResult(doc.Payload)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}

	if err := cur.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
