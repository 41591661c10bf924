// Package mongo stores saga records as documents keyed by "type/id".
package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/shortlink-org/commandbus/cqrs/result"
	"github.com/shortlink-org/commandbus/db"
	"github.com/shortlink-org/commandbus/saga"
	"github.com/shortlink-org/commandbus/saga/repository/internal/columns"
)

const collectionName = "sagas"

type document struct {
	Key         string    `bson:"_id"`
	Type        string    `bson:"saga_type"`
	ID          string    `bson:"saga_id"`
	Status      string    `bson:"status"`
	CurrentStep string    `bson:"current_step"`
	Data        string    `bson:"data"`
	TempData    string    `bson:"temp_data"`
	Error       string    `bson:"error,omitempty"`
	Version     int64     `bson:"version"`
	CreatedAt   time.Time `bson:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at"`
	ExpiresAt   time.Time `bson:"expires_at"`
	TTL         int64     `bson:"ttl"`
}

// Store is a saga.Repository on top of a mongo collection.
type Store struct {
	collection *mongo.Collection
}

// New returns the repository using the database named in the connection URI,
// or "commandbus".
func New(ctx context.Context, store db.DB, database string) (*Store, error) {
	client, ok := store.GetConn().(*mongo.Client)
	if !ok {
		return nil, db.ErrGetConnection
	}

	if database == "" {
		database = "commandbus"
	}

	collection := client.Database(database).Collection(collectionName)

	_, err := collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "expires_at", Value: 1}},
	})
	if err != nil {
		return nil, err
	}

	return &Store{collection: collection}, nil
}

func (s *Store) FindBySagaID(ctx context.Context, sagaType, id string) result.Result[saga.Record] {
	var doc document

	err := s.collection.FindOne(ctx, bson.M{"_id": sagaType + "/" + id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return result.Err[saga.Record](saga.NotFoundError(sagaType, id))
	}
	if err != nil {
		return result.Err[saga.Record](saga.StoreFailure("find", err))
	}

	return decode(doc)
}

func (s *Store) Create(ctx context.Context, rec saga.Record) result.Result[saga.Record] {
	doc, err := encode(rec)
	if err != nil {
		return result.Err[saga.Record](saga.StoreFailure("create", err))
	}

	_, err = s.collection.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return result.Err[saga.Record](saga.AlreadyExistsError(rec.Type, rec.ID))
	}
	if err != nil {
		return result.Err[saga.Record](saga.StoreFailure("create", err))
	}

	return result.Ok(rec.Clone())
}

func (s *Store) Save(ctx context.Context, rec saga.Record) result.Result[saga.Record] {
	doc, err := encode(rec)
	if err != nil {
		return result.Err[saga.Record](saga.StoreFailure("save", err))
	}

	set := bson.M{
		"status":       doc.Status,
		"current_step": doc.CurrentStep,
		"data":         doc.Data,
		"temp_data":    doc.TempData,
		"error":        doc.Error,
		"updated_at":   doc.UpdatedAt,
		"expires_at":   doc.ExpiresAt,
		"ttl":          doc.TTL,
	}

	var saved document

	err = s.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": doc.Key, "version": rec.Version},
		bson.M{"$set": set, "$inc": bson.M{"version": 1}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&saved)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return result.Err[saga.Record](saga.OptimisticLockError(rec.Type, rec.ID, rec.Version))
	}
	if err != nil {
		return result.Err[saga.Record](saga.StoreFailure("save", err))
	}

	return decode(saved)
}

func encode(rec saga.Record) (document, error) {
	enc, err := columns.Encode(rec)
	if err != nil {
		return document{}, err
	}

	return document{
		Key:         rec.Key(),
		Type:        rec.Type,
		ID:          rec.ID,
		Status:      string(rec.Status),
		CurrentStep: rec.CurrentStep,
		Data:        string(enc.Data),
		TempData:    string(enc.TempData),
		Error:       string(enc.Error),
		Version:     rec.Version,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
		ExpiresAt:   rec.ExpiresAt,
		TTL:         int64(rec.TTL),
	}, nil
}

func decode(doc document) result.Result[saga.Record] {
	rec := saga.Record{
		ID:          doc.ID,
		Type:        doc.Type,
		Status:      saga.Status(doc.Status),
		CurrentStep: doc.CurrentStep,
		Version:     doc.Version,
		CreatedAt:   doc.CreatedAt.UTC(),
		UpdatedAt:   doc.UpdatedAt.UTC(),
		ExpiresAt:   doc.ExpiresAt.UTC(),
		TTL:         time.Duration(doc.TTL),
	}

	if err := columns.Decode(&rec, []byte(doc.Data), []byte(doc.TempData), []byte(doc.Error)); err != nil {
		return result.Err[saga.Record](saga.StoreFailure("decode", err))
	}

	return result.Ok(rec)
}
