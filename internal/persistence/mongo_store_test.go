package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/petrijr/sagaflow/internal/testutil"
	"github.com/petrijr/sagaflow/pkg/api"
)

type MongoStoreTestSuite struct {
	suite.Suite
	client *mongo.Client
	store  *MongoResultStore
}

func TestMongoStoreTestSuite(t *testing.T) {
	uri := testutil.GetMongoURI(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		t.Fatalf("mongo.Connect failed: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Disconnect(context.Background())
	})

	suite.Run(t, &MongoStoreTestSuite{
		client: client,
		store:  NewMongoResultStore(client, "sagaflow_test", "run_results_test"),
	})
}

func (m *MongoStoreTestSuite) SetupTest() {
	err := m.store.coll.Drop(context.Background())
	m.NoError(err)
}

func (m *MongoStoreTestSuite) TestContract() {
	exerciseResultStore(m.T(), m.store)
}

func (m *MongoStoreTestSuite) TestDocumentFields() {
	ctx := context.Background()
	m.Require().NoError(m.store.SaveResult(ctx, sampleResult("f-1", "pizza", api.StatusFailed, 0)))

	var doc bson.M
	err := m.store.coll.FindOne(ctx, bson.M{"_id": "f-1"}).Decode(&doc)
	m.Require().NoError(err)
	m.Equal("pizza", doc["workflow_name"])
	m.Equal("FAILED", doc["status"])
	m.Equal("charge", doc["failed_step"])
	m.Equal(string(api.KindCreditCardProcessingError), doc["error_kind"])
}
