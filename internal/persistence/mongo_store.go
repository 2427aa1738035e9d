package persistence

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/petrijr/flowstate/pkg/api"
)

// MongoInstanceStore is an InstanceStore backed by MongoDB. Each instance is
// a single document holding its history as an embedded array, so a
// transition is one atomic UpdateOne filtered on the current state.
type MongoInstanceStore struct {
	coll *mongo.Collection
}

// Ensure it implements InstanceStore.
var _ InstanceStore = (*MongoInstanceStore)(nil)

// NewMongoInstanceStore creates a Mongo-backed instance store.
// dbName defaults to "flowstate" if empty, collName defaults to "instances".
func NewMongoInstanceStore(client *mongo.Client, dbName, collName string) *MongoInstanceStore {
	if dbName == "" {
		dbName = "flowstate"
	}
	if collName == "" {
		collName = "instances"
	}

	return &MongoInstanceStore{
		coll: client.Database(dbName).Collection(collName),
	}
}

type mongoInstanceDoc struct {
	ID        string         `bson:"_id"`
	State     string         `bson:"state"`
	Payload   []byte         `bson:"payload,omitempty"`
	History   []storedRecord `bson:"history"`
	CreatedAt int64          `bson:"created_at"`
	UpdatedAt int64          `bson:"updated_at"`
}

func (d mongoInstanceDoc) snapshot() (api.InstanceSnapshot, error) {
	payload, err := DecodeValue(d.Payload)
	if err != nil {
		return api.InstanceSnapshot{}, fmt.Errorf("decode payload of %s: %w", d.ID, err)
	}
	snap := api.InstanceSnapshot{
		ID:        d.ID,
		Payload:   payload,
		State:     api.State(d.State),
		CreatedAt: fromUnixNano(d.CreatedAt),
		UpdatedAt: fromUnixNano(d.UpdatedAt),
	}
	for _, r := range d.History {
		snap.History = append(snap.History, r.record())
	}
	return snap, nil
}

func (s *MongoInstanceStore) SaveInstance(ctx context.Context, snap api.InstanceSnapshot) error {
	payload, err := EncodeValue(snap.Payload)
	if err != nil {
		return err
	}

	updated := snap.UpdatedAt
	if updated.IsZero() {
		updated = snap.CreatedAt
	}

	doc := mongoInstanceDoc{
		ID:        snap.ID,
		State:     string(snap.State),
		Payload:   payload,
		History:   make([]storedRecord, 0, len(snap.History)),
		CreatedAt: snap.CreatedAt.UnixNano(),
		UpdatedAt: updated.UnixNano(),
	}
	for _, rec := range snap.History {
		doc.History = append(doc.History, toStoredRecord(rec))
	}

	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrInstanceExists
		}
		return err
	}
	return nil
}

func (s *MongoInstanceStore) GetInstance(ctx context.Context, id string) (api.InstanceSnapshot, error) {
	var doc mongoInstanceDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return api.InstanceSnapshot{}, ErrInstanceNotFound
		}
		return api.InstanceSnapshot{}, err
	}
	return doc.snapshot()
}

func (s *MongoInstanceStore) ListInstances(ctx context.Context, filter InstanceFilter) ([]api.InstanceSnapshot, error) {
	bfilter := bson.M{}
	if filter.State != "" {
		bfilter["state"] = string(filter.State)
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	cur, err := s.coll.Find(ctx, bfilter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var results []api.InstanceSnapshot
	for cur.Next(ctx) {
		var doc mongoInstanceDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		snap, err := doc.snapshot()
		if err != nil {
			return nil, err
		}
		results = append(results, snap)
	}

	if err := cur.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *MongoInstanceStore) AppendTransition(ctx context.Context, id string, rec api.TransitionRecord) error {
	update := bson.M{
		"$set": bson.M{
			"state":      string(rec.To),
			"updated_at": rec.At.UnixNano(),
		},
		"$push": bson.M{
			"history": toStoredRecord(rec),
		},
	}

	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": id, "state": string(rec.From)}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount > 0 {
		return nil
	}

	n, err := s.coll.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrInstanceNotFound
	}
	return ErrStateConflict
}
