// Package mongo implements store.Store on MongoDB. Each model gets its own
// collection and documents are stored flat, so update operators apply to the
// stored fields unchanged.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	mopt "go.mongodb.org/mongo-driver/mongo/options"

	"github.com/alfredjeanlab/refguard/internal/model"
	"github.com/alfredjeanlab/refguard/internal/store"
)

// Timestamp keys kept next to the document fields.
const (
	createdAtKey = "_created_at"
	updatedAtKey = "_updated_at"
)

// MongoStore implements store.Store backed by a MongoDB database.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// Compile-time check that MongoStore implements store.Store.
var _ store.Store = (*MongoStore)(nil)

// New connects to uri and pings the server before returning.
func New(ctx context.Context, uri, database string) (*MongoStore, error) {
	if database == "" {
		return nil, fmt.Errorf("mongo: database name is empty")
	}
	opts := mopt.Client().ApplyURI(uri)
	opts.SetConnectTimeout(10 * time.Second).SetServerSelectionTimeout(10 * time.Second)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &MongoStore{client: client, db: client.Database(database)}, nil
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) coll(name string) *mongo.Collection {
	return s.db.Collection(name)
}

func (s *MongoStore) Insert(ctx context.Context, collection string, doc *model.Document) error {
	if doc.ID == "" {
		return fmt.Errorf("insert into %s: document has no id", collection)
	}
	now := time.Now().UTC()
	raw := toBSON(doc)
	raw[createdAtKey] = now
	raw[updatedAtKey] = now

	if _, err := s.coll(collection).InsertOne(ctx, raw); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("insert into %s: %w: %s", collection, store.ErrDuplicateID, doc.ID)
		}
		return err
	}
	doc.CreatedAt, doc.UpdatedAt = now, now
	return nil
}

// Replace swaps the stored fields for doc's fields, keeping the creation time.
func (s *MongoStore) Replace(ctx context.Context, collection string, doc *model.Document) error {
	existing, err := s.FindByID(ctx, collection, doc.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		return store.ErrNotFound
	}
	now := time.Now().UTC()
	raw := toBSON(doc)
	raw[createdAtKey] = existing.CreatedAt
	raw[updatedAtKey] = now

	res, err := s.coll(collection).ReplaceOne(ctx, idFilter(doc.ID), raw)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	doc.CreatedAt, doc.UpdatedAt = existing.CreatedAt, now
	return nil
}

// Update runs the operator maps on the server and returns the document as
// it is after the update.
func (s *MongoStore) Update(ctx context.Context, collection, id string, upd model.Update) (*model.Document, error) {
	opts := mopt.FindOneAndUpdate().SetReturnDocument(mopt.After)
	res := s.coll(collection).FindOneAndUpdate(ctx, idFilter(id), updateDocument(upd, time.Now().UTC()), opts)

	var raw bson.M
	if err := res.Decode(&raw); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return fromBSON(raw), nil
}

func (s *MongoStore) FindByID(ctx context.Context, collection, id string) (*model.Document, error) {
	var raw bson.M
	err := s.coll(collection).FindOne(ctx, idFilter(id)).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return fromBSON(raw), nil
}

func (s *MongoStore) Delete(ctx context.Context, collection, id string) error {
	res, err := s.coll(collection).DeleteOne(ctx, idFilter(id))
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *MongoStore) List(ctx context.Context, collection string) ([]*model.Document, error) {
	cursor, err := s.coll(collection).Find(ctx, bson.M{}, mopt.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []*model.Document
	for cursor.Next(ctx) {
		var raw bson.M
		if err := cursor.Decode(&raw); err != nil {
			return nil, err
		}
		out = append(out, fromBSON(raw))
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	// ObjectIDs and string ids sort separately on the server.
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MongoStore) Collections(ctx context.Context) ([]string, error) {
	names, err := s.db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}
